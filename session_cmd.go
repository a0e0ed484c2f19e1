package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/appdist/internal/cascade"
	"github.com/tonimelisma/appdist/internal/journal"
)

// watchDebounce collapses the burst of events an editor save produces.
const watchDebounce = 200 * time.Millisecond

func newSessionCmd() *cobra.Command {
	var (
		scriptPath string
		sets       []string
		watch      bool
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "session [kind]",
		Short: "Run a form session and print its state",
		Long: `Open a zone, dgm or campus form session, apply selections and print the
resulting selections, option lists and submission view.

Selections come from a TOML script (--script) or from --set field=value
pairs, which are applied like edit-flow values: fields bound to levels are
selected by label in dependency order.

With --watch the script is re-run every time the file changes.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			script, err := sessionScript(scriptPath, args, sets)
			if err != nil {
				return err
			}

			if !watch {
				return runSession(ctx, script)
			}

			if scriptPath == "" {
				return errors.New("--watch needs --script")
			}

			return watchScript(shutdownContext(ctx, mustCLIContext(ctx).Logger), scriptPath)
		},
	}

	cmd.Flags().StringVar(&scriptPath, "script", "", "TOML session script")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field=value to apply (repeatable)")
	cmd.Flags().BoolVar(&watch, "watch", false, "re-run the script when it changes")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "when the script submits, map and journal without sending")

	return cmd
}

// sessionScript builds the script to run from --script or the kind
// argument plus --set pairs.
func sessionScript(path string, args, sets []string) (*Script, error) {
	if path != "" {
		if len(args) > 0 || len(sets) > 0 {
			return nil, errors.New("--script cannot be combined with a kind argument or --set")
		}

		return LoadScript(path)
	}

	if len(args) == 0 {
		return nil, errors.New("pass a form kind or --script")
	}

	values, err := parseSets(sets)
	if err != nil {
		return nil, err
	}

	s := &Script{Kind: args[0]}
	if len(values) > 0 {
		s.Steps = []Step{{Values: values}}
	}

	if err := s.validate(); err != nil {
		return nil, err
	}

	return s, nil
}

// parseSets splits field=value pairs.
func parseSets(sets []string) (map[string]string, error) {
	out := make(map[string]string, len(sets))

	for _, kv := range sets {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("--set %q: want field=value", kv)
		}

		out[strings.TrimSpace(k)] = v
	}

	return out, nil
}

func runSession(ctx context.Context, script *Script) error {
	cc := mustCLIContext(ctx)

	svc, err := NewServices(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}

	identity, err := svc.Identity(firstNonEmpty(cc.Flags.EmployeeID, script.EmployeeID))
	if err != nil {
		return err
	}

	sess, err := svc.OpenSession(ctx, script.kind, identity, script.Initial)
	if err != nil {
		return err
	}
	defer sess.Close()

	res, err := RunScript(ctx, svc, sess, script.Steps)
	if err != nil {
		return err
	}

	var sub *journal.Result
	if script.Submit {
		sub, err = submitSession(ctx, svc, sess, script.kind, script.RecordID, script.Fields)
		if err != nil {
			return err
		}
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, struct {
			*ScriptResult
			Submission *journal.Result `json:"submission,omitempty"`
		}{res, sub})
	}

	printScriptResult(cc, res)

	if sub != nil {
		fmt.Fprintf(cc.Out, "\nSubmitted %s %s: %s (journal %s)\n",
			sub.Entry.Kind, sub.Entry.RecordID, sub.Entry.Status, firstNonEmpty(sub.Entry.ID, "off"))
	}

	return nil
}

func printScriptResult(cc *CLIContext, res *ScriptResult) {
	if len(res.Steps) > 0 {
		rows := make([][]string, 0, len(res.Steps))
		for _, st := range res.Steps {
			rows = append(rows, []string{fmt.Sprint(st.Step), st.Action, st.Outcome})
		}

		printTable(cc.Out, []string{"STEP", "ACTION", "OUTCOME"}, rows)
		fmt.Fprintln(cc.Out)
	}

	printSnapshot(cc, res.Snapshot)
}

// printSnapshot renders a session snapshot as tables.
func printSnapshot(cc *CLIContext, snap cascade.Snapshot) {
	levels := make([]string, 0, len(snap.Options))
	for l := range snap.Options {
		levels = append(levels, string(l))
	}

	sort.Strings(levels)

	rows := make([][]string, 0, len(levels))
	for _, l := range levels {
		lv := cascade.Level(l)

		selected := ""
		if id, ok := snap.Selections[lv]; ok {
			selected = fmt.Sprintf("%s (#%d)", snap.Labels[lv], id)
		}

		rows = append(rows, []string{l, selected, fmt.Sprint(len(snap.Options[lv]))})
	}

	printTable(cc.Out, []string{"LEVEL", "SELECTED", "OPTIONS"}, rows)

	for _, slot := range sortedKeys(snap.Choices) {
		fmt.Fprintf(cc.Out, "\n%s: %s\n", slot, strings.Join(snap.Choices[slot], ", "))
	}

	if len(snap.View) > 0 {
		fmt.Fprintln(cc.Out)
		printKeyValues(cc.Out, [2]string{"FIELD", "VALUE"}, snap.View)
	}

	if len(snap.FetchErrors) > 0 {
		fmt.Fprintf(cc.Out, "\nFailed lookups: %s\n", strings.Join(sortedKeys(snap.FetchErrors), ", "))
	}
}

// watchScript re-runs the script whenever it changes until ctx is done. The
// directory is watched because editors often replace files by rename.
func watchScript(ctx context.Context, path string) error {
	cc := mustCLIContext(ctx)

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	rerun := func() {
		script, err := LoadScript(abs)
		if err == nil {
			err = runSession(ctx, script)
		}

		if err != nil && ctx.Err() == nil {
			cc.Logger.Error("script run failed", slog.String("script", abs), slog.String("error", err.Error()))
		}
	}

	rerun()
	cc.Statusf("Watching %s (Ctrl-C to stop)\n", abs)

	var debounce <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) == abs && ev.Has(fsnotify.Write|fsnotify.Create) {
				debounce = time.After(watchDebounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}

			cc.Logger.Warn("watch error", slog.String("error", err.Error()))
		case <-debounce:
			debounce = nil

			cc.Statusf("\n%s changed, re-running\n", filepath.Base(abs))
			rerun()
		}
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}

	return ""
}
