package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/appdist/internal/journal"
)

func newHistoryCmd() *cobra.Command {
	var f journal.Filter

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List journaled submissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cc := mustCLIContext(ctx)

			store, err := openJournalForRead(ctx, cc)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(ctx, f)
			if err != nil {
				return err
			}

			if cc.Flags.JSON {
				return printJSON(cc.Out, entries)
			}

			if len(entries) == 0 {
				cc.Statusf("No submissions recorded.\n")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{e.ID, formatTime(e.CreatedAt), e.Kind, e.RecordID, e.Status, e.Error})
			}

			printTable(cc.Out, []string{"ID", "WHEN", "KIND", "RECORD", "STATUS", "ERROR"}, rows)

			return nil
		},
	}

	cmd.Flags().StringVar(&f.Kind, "kind", "", "only this form kind")
	cmd.Flags().StringVar(&f.RecordID, "record", "", "only this record id")
	cmd.Flags().StringVar(&f.Status, "status", "", "only this status (sent, failed, dry_run)")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "maximum entries (default 50)")

	cmd.AddCommand(newHistoryShowCmd())

	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <entry-id>",
		Short: "Show one journaled submission with its payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cc := mustCLIContext(ctx)

			store, err := openJournalForRead(ctx, cc)
			if err != nil {
				return err
			}
			defer store.Close()

			e, err := store.Get(ctx, args[0])
			if err != nil {
				return err
			}

			if cc.Flags.JSON {
				return printJSON(cc.Out, e)
			}

			printKeyValues(cc.Out, [2]string{"FIELD", "VALUE"}, map[string]any{
				"id":          e.ID,
				"created_at":  e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				"kind":        e.Kind,
				"record_id":   e.RecordID,
				"session_id":  e.SessionID,
				"employee_id": e.EmployeeID,
				"status":      e.Status,
				"error":       e.Error,
			})
			fmt.Fprintf(cc.Out, "\nPayload:\n%s\n", e.Payload)

			if e.Response != "" {
				fmt.Fprintf(cc.Out, "\nResponse:\n%s\n", e.Response)
			}

			return nil
		},
	}
}

func openJournalForRead(ctx context.Context, cc *CLIContext) (*journal.Store, error) {
	if !cc.Cfg.Journal.Enabled {
		return nil, errors.New("the submission journal is disabled (journal.enabled = false)")
	}

	return journal.Open(ctx, cc.Cfg.Journal.Path, cc.Logger)
}
