package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// exitFetchFailed is the exit code when the backend lookup failed.
const exitFetchFailed = 2

func newAppCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "app <application-no>",
		Short: "Look up an application for the damaged-application flow",
		Long: `Fetch an application's zone, campus, PRO and DGM assignment and its
normalized status. Statuses are mapped through the [status] alias table:
aliases win, an empty status becomes status.default, anything else is
upper-cased. Exits 2 when the lookup fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cc := mustCLIContext(ctx)

			svc, err := NewServices(ctx, cc.Cfg, cc.Logger)
			if err != nil {
				return err
			}

			res, err := svc.StatusResolver().Resolve(ctx, args[0])
			if err != nil {
				return err
			}

			if cc.Flags.JSON {
				if err := printJSON(cc.Out, res); err != nil {
					return err
				}
			} else if !res.FetchError {
				printKeyValues(cc.Out, [2]string{"FIELD", "VALUE"}, res.Values)
			}

			if res.FetchError {
				return &exitError{code: exitFetchFailed, err: fmt.Errorf("application %s: %w", res.ApplicationNo, res.Err)}
			}

			return nil
		},
	}
}
