package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/appdist/internal/cascade"
	"github.com/tonimelisma/appdist/internal/journal"
	"github.com/tonimelisma/appdist/internal/payload"
)

func newSubmitCmd() *cobra.Command {
	var (
		sets   []string
		fields []string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "submit <kind> <record-id>",
		Short: "Fill a form and send the update",
		Long: `Open a form session, apply --set selections, and PUT the mapped payload to
<update_path>/update-<kind>/<record-id>.

--set values go through the selection chain (fields bound to levels are
resolved by label). --field values are plain form fields such as issueDate,
applicationNoTo or range, copied into the submission as given.

Every submission is recorded in the local journal unless journal.enabled is
false. With --dry-run the payload is mapped and journaled but not sent.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd.Context(), args[0], args[1], sets, fields)
		},
	}

	cmd.Flags().StringArrayVar(&sets, "set", nil, "selection field=value (repeatable)")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "form field=value (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "map and journal the payload without sending it")

	return cmd
}

func runSubmit(ctx context.Context, kindName, recordID string, sets, fieldArgs []string) error {
	cc := mustCLIContext(ctx)

	kind, err := payload.ParseKind(kindName)
	if err != nil {
		return err
	}

	values, err := parseSets(sets)
	if err != nil {
		return err
	}

	plain, err := parseSets(fieldArgs)
	if err != nil {
		return err
	}

	fields := make(map[string]any, len(plain))
	for k, v := range plain {
		fields[k] = v
	}

	svc, err := NewServices(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}

	identity, err := svc.Identity(cc.Flags.EmployeeID)
	if err != nil {
		return err
	}

	sess, err := svc.OpenSession(ctx, kind, identity, nil)
	if err != nil {
		return err
	}
	defer sess.Close()

	var steps []Step
	if len(values) > 0 {
		steps = []Step{{Values: values}}
	}

	if _, err := RunScript(ctx, svc, sess, steps); err != nil {
		return err
	}

	res, err := submitSession(ctx, svc, sess, kind, recordID, fields)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, res)
	}

	fmt.Fprintf(cc.Out, "%s %s: %s\n", res.Entry.Kind, res.Entry.RecordID, res.Entry.Status)
	printKeyValues(cc.Out, [2]string{"FIELD", "VALUE"}, res.Payload)

	if res.Entry.ID != "" {
		cc.Statusf("Journal entry %s\n", res.Entry.ID)
	}

	return nil
}

// submitSession settles sess, builds the submission values and sends them
// through the journaling submitter.
func submitSession(
	ctx context.Context, svc *Services, sess *cascade.Session, kind payload.Kind, recordID string, fields map[string]any,
) (*journal.Result, error) {
	if err := svc.Settle(ctx, sess); err != nil {
		return nil, err
	}

	if snap := sess.Snapshot(); len(snap.FetchErrors) > 0 {
		return nil, fmt.Errorf("lookups failed (%v); refusing to submit a partial form", sortedKeys(snap.FetchErrors))
	}

	store, err := svc.OpenJournal(ctx)
	if err != nil {
		return nil, err
	}

	if store != nil {
		defer store.Close()
	}

	res, err := svc.Submitter(store).Submit(ctx, journal.Submission{
		Kind:       kind,
		RecordID:   recordID,
		Values:     sess.SubmissionValues(fields),
		SessionID:  sess.ID(),
		EmployeeID: string(sess.Identity()),
	})
	if err != nil {
		if errors.Is(err, journal.ErrNoRecordID) {
			return nil, errors.New("a record id is required")
		}

		return res, err
	}

	return res, nil
}
