package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ezenkico/deploy-commander/sequencer/services"
	"github.com/ezenkico/deploy-commander/sequencer/services/sequencer"
)

func newPortsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List the host port bindings of each variant and check they do not collide",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.loadStack()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VARIANT\tSERVICE\tBINDING")

			var collision error
			for _, variant := range a.variants(s) {
				d, err := a.resolve(s, variant)
				if err != nil {
					return err
				}
				for _, svc := range d.Services {
					for _, b := range svc.Bindings {
						fmt.Fprintf(tw, "%s\t%s\t%s\n", variant, svc.Name, b)
					}
				}
				if err := services.CheckHostPortCollisions(d.Services); err != nil && collision == nil {
					collision = &sequencer.StartupError{Kind: sequencer.ErrInvalidDescriptor, Err: fmt.Errorf("variant %q: %w", variant, err)}
				}
			}
			tw.Flush()

			return collision
		},
	}
}
