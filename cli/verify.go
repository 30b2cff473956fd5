package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ezenkico/deploy-commander/sequencer/models"
	"github.com/ezenkico/deploy-commander/sequencer/services/docker"
	"github.com/ezenkico/deploy-commander/sequencer/services/probe"
)

func newVerifyVolumeCommand(a *app) *cobra.Command {
	var service string

	cmd := &cobra.Command{
		Use:   "verify-volume",
		Short: "Write a marker to the database, restart it and check the marker survived",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.loadDeployment()
			if err != nil {
				return err
			}

			svc, ok := d.Service(service)
			if !ok {
				return fmt.Errorf("service %q is not part of the stack", service)
			}
			if !isPostgres(svc) || len(svc.Bindings) == 0 {
				return fmt.Errorf("service %q is not a published postgres service", service)
			}

			run := a.runConfiguration(d, models.ActionUp)
			logger := a.runLogger(run)

			p, err := docker.NewDockerPlatform(run, logger)
			if err != nil {
				return fmt.Errorf("connect docker: %w", err)
			}
			defer p.Close()

			restart := func(ctx context.Context) error {
				logger.Info().Str("service", svc.Name).Msg("restarting database")
				if err := p.StopService(ctx, svc); err != nil {
					return err
				}
				return p.RestartService(ctx, svc)
			}

			b := svc.Bindings[0]
			host := probeHost(b)
			if err := probe.PersistenceRoundTrip(cmd.Context(), postgresDSN(svc, host, b.HostPort), probe.DefaultBackoff, restart); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: data survived a restart\n", svc.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&service, "service", "db", "postgres service to check")
	return cmd
}
