package cascade

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Level names one rung of a dependency chain (e.g. "academicYear", "city").
type Level string

// ID is the backend identifier committed for a Level.
type ID int64

// Option is one selectable entry of a Level's lookup list.
type Option struct {
	Label string `json:"label"`
	ID    ID     `json:"id"`
}

// LevelSpec declares a Level, the Levels it depends on, the hosting UI field
// bound to it, and the view keys its ID is emitted under.
type LevelSpec struct {
	Name     Level
	Parents  []Level
	Field    string
	ViewKeys []string
}

// ExtraSpec declares an independently keyed selection. ClearedBy lists the
// Levels whose change resets it; the list is not expanded to descendants.
type ExtraSpec struct {
	Name      string
	Field     string
	ClearedBy []Level
	ViewKey   string
}

// FetchFunc performs one remote lookup for a slot. It runs on its own
// goroutine and must honor ctx.
type FetchFunc func(ctx context.Context, req Request) (any, error)

// SlotSpec declares a remote-derived quantity. The slot is issuable once every
// Level in Levels and every extra in Extras holds a value.
type SlotSpec struct {
	Name   string
	Levels []Level
	Extras []string

	// Options names the Level whose option list this slot feeds. The result
	// must then be a []Option.
	Options Level

	Fetch FetchFunc

	// Fields flattens an accepted result into view keys. Nil values are
	// dropped by the view builder.
	Fields func(result any) map[string]any

	// Choices renders display labels for the hosting UI (fee amounts,
	// series names). Ignored when Options is set.
	Choices func(result any) []string
}

// Graph is a validated dependency graph. It is immutable once built and may
// be shared between sessions.
type Graph struct {
	levels []LevelSpec
	extras []ExtraSpec
	slots  []SlotSpec

	levelIdx map[Level]int
	extraIdx map[string]int
	children map[Level][]Level
	fields   map[string]binding
}

// binding resolves a hosting UI field name to a level or an extra.
type binding struct {
	level Level
	extra string
}

// NewGraph validates the declarations and returns a Graph with levels in
// dependency order. Levels may be declared in any order; ties are broken by
// declaration order.
func NewGraph(levels []LevelSpec, extras []ExtraSpec, slots []SlotSpec) (*Graph, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("%w: no levels declared", ErrInvalidGraph)
	}

	declared := make(map[Level]int, len(levels))
	for i, l := range levels {
		if l.Name == "" {
			return nil, fmt.Errorf("%w: level %d has no name", ErrInvalidGraph, i)
		}

		if _, dup := declared[l.Name]; dup {
			return nil, fmt.Errorf("%w: level %q declared twice", ErrInvalidGraph, l.Name)
		}

		declared[l.Name] = i
	}

	order, err := topoSort(len(levels), func(i int) ([]int, error) {
		deps := make([]int, 0, len(levels[i].Parents))
		for _, p := range levels[i].Parents {
			j, ok := declared[p]
			if !ok {
				return nil, fmt.Errorf("%w: level %q depends on undeclared level %q", ErrInvalidGraph, levels[i].Name, p)
			}

			deps = append(deps, j)
		}

		return deps, nil
	})
	if err != nil {
		return nil, err
	}

	g := &Graph{
		levels:   make([]LevelSpec, 0, len(levels)),
		levelIdx: make(map[Level]int, len(levels)),
		extraIdx: make(map[string]int, len(extras)),
		children: make(map[Level][]Level),
		fields:   make(map[string]binding),
	}

	for _, i := range order {
		spec := levels[i]
		g.levelIdx[spec.Name] = len(g.levels)
		g.levels = append(g.levels, spec)

		for _, p := range spec.Parents {
			g.children[p] = append(g.children[p], spec.Name)
		}

		if err := g.bind(spec.Field, binding{level: spec.Name}); err != nil {
			return nil, err
		}
	}

	for _, e := range extras {
		if e.Name == "" {
			return nil, fmt.Errorf("%w: extra with no name", ErrInvalidGraph)
		}

		if _, dup := g.extraIdx[e.Name]; dup {
			return nil, fmt.Errorf("%w: extra %q declared twice", ErrInvalidGraph, e.Name)
		}

		for _, l := range e.ClearedBy {
			if _, ok := g.levelIdx[l]; !ok {
				return nil, fmt.Errorf("%w: extra %q cleared by undeclared level %q", ErrInvalidGraph, e.Name, l)
			}
		}

		g.extraIdx[e.Name] = len(g.extras)
		g.extras = append(g.extras, e)

		if err := g.bind(e.Field, binding{extra: e.Name}); err != nil {
			return nil, err
		}
	}

	if err := g.addSlots(slots); err != nil {
		return nil, err
	}

	return g, nil
}

func (g *Graph) addSlots(slots []SlotSpec) error {
	names := make(map[string]bool, len(slots))

	for _, s := range slots {
		if s.Name == "" {
			return fmt.Errorf("%w: slot with no name", ErrInvalidGraph)
		}

		if names[s.Name] {
			return fmt.Errorf("%w: slot %q declared twice", ErrInvalidGraph, s.Name)
		}

		names[s.Name] = true

		if s.Fetch == nil {
			return fmt.Errorf("%w: slot %q has no fetch function", ErrInvalidGraph, s.Name)
		}

		for _, l := range s.Levels {
			if _, ok := g.levelIdx[l]; !ok {
				return fmt.Errorf("%w: slot %q depends on undeclared level %q", ErrInvalidGraph, s.Name, l)
			}
		}

		for _, e := range s.Extras {
			if _, ok := g.extraIdx[e]; !ok {
				return fmt.Errorf("%w: slot %q depends on undeclared extra %q", ErrInvalidGraph, s.Name, e)
			}
		}

		if s.Options != "" {
			if _, ok := g.levelIdx[s.Options]; !ok {
				return fmt.Errorf("%w: slot %q feeds undeclared level %q", ErrInvalidGraph, s.Name, s.Options)
			}
		}

		g.slots = append(g.slots, s)
	}

	return nil
}

func (g *Graph) bind(field string, b binding) error {
	if field == "" {
		return nil
	}

	if _, dup := g.fields[field]; dup {
		return fmt.Errorf("%w: field %q bound twice", ErrInvalidGraph, field)
	}

	g.fields[field] = b

	return nil
}

// Levels returns the level declarations in dependency order.
func (g *Graph) Levels() []LevelSpec {
	out := make([]LevelSpec, len(g.levels))
	copy(out, g.levels)

	return out
}

// Extras returns the extra declarations.
func (g *Graph) Extras() []ExtraSpec {
	out := make([]ExtraSpec, len(g.extras))
	copy(out, g.extras)

	return out
}

// SlotNames returns the slot names in declaration order.
func (g *Graph) SlotNames() []string {
	out := make([]string, len(g.slots))
	for i, s := range g.slots {
		out[i] = s.Name
	}

	return out
}

// HasLevel reports whether level is declared.
func (g *Graph) HasLevel(level Level) bool {
	_, ok := g.levelIdx[level]
	return ok
}

// HasExtra reports whether key is a declared extra.
func (g *Graph) HasExtra(key string) bool {
	_, ok := g.extraIdx[key]
	return ok
}

// FieldLevel returns the level bound to a hosting UI field name.
func (g *Graph) FieldLevel(field string) (Level, bool) {
	b, ok := g.fields[field]
	if !ok || b.level == "" {
		return "", false
	}

	return b.level, true
}

// Parents returns the declared parents of level.
func (g *Graph) Parents(level Level) []Level {
	i, ok := g.levelIdx[level]
	if !ok {
		return nil
	}

	return g.levels[i].Parents
}

// Depth returns the position of level in dependency order, or -1.
func (g *Graph) Depth(level Level) int {
	i, ok := g.levelIdx[level]
	if !ok {
		return -1
	}

	return i
}

// Descendants returns every strict descendant of level in dependency order.
func (g *Graph) Descendants(level Level) []Level {
	seen := map[Level]bool{}
	stack := append([]Level(nil), g.children[level]...)

	for len(stack) > 0 {
		l := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if seen[l] {
			continue
		}

		seen[l] = true
		stack = append(stack, g.children[l]...)
	}

	out := make([]Level, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}

	sort.Slice(out, func(a, b int) bool {
		return g.levelIdx[out[a]] < g.levelIdx[out[b]]
	})

	return out
}

// Ancestors returns every strict ancestor of level in dependency order.
func (g *Graph) Ancestors(level Level) []Level {
	seen := map[Level]bool{}
	stack := append([]Level(nil), g.Parents(level)...)

	for len(stack) > 0 {
		l := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if seen[l] {
			continue
		}

		seen[l] = true
		stack = append(stack, g.Parents(l)...)
	}

	out := make([]Level, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}

	sort.Slice(out, func(a, b int) bool {
		return g.levelIdx[out[a]] < g.levelIdx[out[b]]
	})

	return out
}

// topoSort returns node indices so that every node follows its dependencies.
// When several nodes are ready the smallest index goes first.
func topoSort(n int, depsFn func(i int) ([]int, error)) ([]int, error) {
	indeg := make([]int, n)
	out := make([][]int, n)

	for i := range n {
		deps, err := depsFn(i)
		if err != nil {
			return nil, err
		}

		for _, d := range deps {
			indeg[i]++
			out[d] = append(out[d], i)
		}
	}

	var ready []int

	for i := range n {
		if indeg[i] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]int, 0, n)

	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]

		order = append(order, i)

		for _, j := range out[i] {
			indeg[j]--
			if indeg[j] == 0 {
				k := sort.SearchInts(ready, j)
				ready = append(ready, 0)
				copy(ready[k+1:], ready[k:])
				ready[k] = j
			}
		}
	}

	if len(order) != n {
		return nil, errors.Join(ErrInvalidGraph, errors.New("dependency cycle between levels"))
	}

	return order, nil
}
