package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ezenkico/deploy-commander/sequencer/models"
	"github.com/ezenkico/deploy-commander/sequencer/services/docker"
	"github.com/ezenkico/deploy-commander/sequencer/services/sequencer"
)

func newStopCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop every service, dependents first, keeping containers and volumes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.loadDeployment()
			if err != nil {
				return err
			}

			run := a.runConfiguration(d, models.ActionStop)
			logger := a.runLogger(run)

			p, err := docker.NewDockerPlatform(run, logger)
			if err != nil {
				return fmt.Errorf("connect docker: %w", err)
			}
			defer p.Close()

			opts, err := a.sequencerOptions()
			if err != nil {
				return err
			}
			return sequencer.New(p, run, logger, opts...).Stop(cmd.Context(), d)
		},
	}
}
