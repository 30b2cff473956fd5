package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ezenkico/deploy-commander/sequencer/models"
	"github.com/ezenkico/deploy-commander/sequencer/services/docker"
	"github.com/ezenkico/deploy-commander/sequencer/services/sequencer"
)

func newDownCommand(a *app) *cobra.Command {
	var volumes bool

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Remove the project's containers and network",
		Long:  "Removes every container and network labelled with the project. Named volumes survive unless --volumes is given.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.loadStack()
			if err != nil {
				return err
			}

			project := s.Name
			if a.cfg.ProjectName != "" {
				project = a.cfg.ProjectName
			}
			run := a.runConfiguration(models.Deployment{Project: project, Variant: a.cfg.Variant}, models.ActionDown)
			logger := a.runLogger(run)

			p, err := docker.NewDockerPlatform(run, logger)
			if err != nil {
				return fmt.Errorf("connect docker: %w", err)
			}
			defer p.Close()

			return sequencer.New(p, run, logger).Down(cmd.Context(), volumes)
		},
	}

	cmd.Flags().BoolVarP(&volumes, "volumes", "v", false, "also remove the project's named volumes")
	return cmd
}
