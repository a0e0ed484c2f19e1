package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/appdist/internal/cascade"
	"github.com/tonimelisma/appdist/internal/forms"
	"github.com/tonimelisma/appdist/internal/payload"
)

// formInfo is one form kind as printed by "forms".
type formInfo struct {
	Kind    string              `json:"kind"`
	Segment string              `json:"segment"`
	Levels  []levelInfo         `json:"levels"`
	Slots   []string            `json:"slots"`
	Options map[string][]string `json:"options,omitempty"`
}

type levelInfo struct {
	Name    string   `json:"name"`
	Field   string   `json:"field"`
	Parents []string `json:"parents,omitempty"`
}

func newFormsCmd() *cobra.Command {
	var withOptions bool

	cmd := &cobra.Command{
		Use:   "forms",
		Short: "List form kinds and their selection chains",
		Long: `List the zone, DGM and campus forms with their levels and lookups.

With --options, a session is opened for every form in parallel and the
root-level option lists (levels without parents) are fetched and shown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runForms(cmd.Context(), withOptions)
		},
	}

	cmd.Flags().BoolVar(&withOptions, "options", false, "fetch root option lists from the backend")

	return cmd
}

func runForms(ctx context.Context, withOptions bool) error {
	cc := mustCLIContext(ctx)

	svc, err := NewServices(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}

	kinds := payload.Kinds()
	infos := make([]formInfo, len(kinds))

	for i, k := range kinds {
		g, err := forms.New(k, svc.Lookups)
		if err != nil {
			return err
		}

		infos[i] = describeForm(k, g)
	}

	if withOptions {
		if err := fetchRootOptions(ctx, svc, infos); err != nil {
			return err
		}
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, infos)
	}

	for _, info := range infos {
		fmt.Fprintf(cc.Out, "%s (%s)\n", info.Kind, info.Segment)

		rows := make([][]string, 0, len(info.Levels))
		for _, l := range info.Levels {
			rows = append(rows, []string{
				"  " + l.Name, l.Field, strings.Join(l.Parents, ","),
				strings.Join(info.Options[l.Name], ", "),
			})
		}

		printTable(cc.Out, []string{"  LEVEL", "FIELD", "PARENTS", "OPTIONS"}, rows)
		fmt.Fprintln(cc.Out)
	}

	return nil
}

func describeForm(kind payload.Kind, g *cascade.Graph) formInfo {
	info := formInfo{Kind: string(kind), Segment: kind.Segment(), Slots: g.SlotNames()}

	for _, l := range g.Levels() {
		li := levelInfo{Name: string(l.Name), Field: l.Field}
		for _, p := range l.Parents {
			li.Parents = append(li.Parents, string(p))
		}

		info.Levels = append(info.Levels, li)
	}

	return info
}

// fetchRootOptions opens one session per form concurrently and records the
// option lists of parentless levels once the sessions settle.
func fetchRootOptions(ctx context.Context, svc *Services, infos []formInfo) error {
	identity, err := svc.Identity(mustCLIContext(ctx).Flags.EmployeeID)
	if err != nil {
		return err
	}

	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)

	for i := range infos {
		info := &infos[i]

		g.Go(func() error {
			sess, err := svc.OpenSession(gctx, payload.Kind(info.Kind), identity, nil)
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := svc.Settle(gctx, sess); err != nil {
				return fmt.Errorf("%s: %w", info.Kind, err)
			}

			snap := sess.Snapshot()
			if len(snap.FetchErrors) > 0 {
				svc.Logger.Warn("lookups failed",
					slog.String("kind", info.Kind),
					slog.String("slots", strings.Join(sortedKeys(snap.FetchErrors), ",")),
				)
			}

			opts := make(map[string][]string)

			for _, l := range info.Levels {
				if len(l.Parents) == 0 {
					opts[l.Name] = snap.Options[cascade.Level(l.Name)]
				}
			}

			mu.Lock()
			info.Options = opts
			mu.Unlock()

			return nil
		})
	}

	return g.Wait()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
