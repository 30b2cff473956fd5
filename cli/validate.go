package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ezenkico/deploy-commander/sequencer/services/sequencer"
)

func newValidateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the stack file and print the start order of each variant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.loadStack()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, variant := range a.variants(s) {
				d, err := a.resolve(s, variant)
				if err != nil {
					return err
				}

				g, err := sequencer.Validate(d)
				if err != nil {
					return &sequencer.StartupError{Kind: sequencer.ErrInvalidDescriptor, Err: fmt.Errorf("variant %q: %w", variant, err)}
				}
				order, err := g.Order()
				if err != nil {
					return &sequencer.StartupError{Kind: sequencer.ErrInvalidDescriptor, Err: err}
				}

				names := make([]string, 0, len(order))
				for _, svc := range order {
					names = append(names, svc.Name)
				}
				fmt.Fprintf(out, "variant %s: ok, start order %s\n", variant, strings.Join(names, " -> "))

				if v, err := s.Variant(variant); err == nil {
					fmt.Fprintf(out, "  values: %s\n", strings.Join(v.Keys(), ", "))
				}
				for _, svc := range order {
					for _, e := range g.Dependents(svc.Name) {
						fmt.Fprintf(out, "  %s gates %s (%s)\n", e.To, e.From, e.Condition)
					}
				}
			}
			return nil
		},
	}
}
