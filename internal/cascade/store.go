package cascade

import (
	"fmt"
	"maps"
)

// Store holds the committed ID for each Level and the independent extras.
// It enforces the ancestor invariant: a Level holds an ID only while every
// declared ancestor holds one.
type Store struct {
	graph  *Graph
	ids    map[Level]ID
	extras map[string]string
}

func newStore(g *Graph) *Store {
	return &Store{
		graph:  g,
		ids:    make(map[Level]ID),
		extras: make(map[string]string),
	}
}

// Get returns the committed ID for level.
func (s *Store) Get(level Level) (ID, bool) {
	id, ok := s.ids[level]
	return id, ok
}

// Extra returns the committed value for an extra key.
func (s *Store) Extra(key string) (string, bool) {
	v, ok := s.extras[key]
	return v, ok
}

// ready reports whether every parent of level holds an ID.
func (s *Store) ready(level Level) bool {
	for _, p := range s.graph.Parents(level) {
		if _, ok := s.ids[p]; !ok {
			return false
		}
	}

	return true
}

// commit sets level to id and clears every descendant plus every extra whose
// ClearedBy list intersects the levels that changed. It returns the changed
// levels (level first, then cleared descendants in depth order) and the
// cleared extras. The caller has already checked that the value differs.
func (s *Store) commit(level Level, id ID) ([]Level, []string) {
	s.ids[level] = id
	changed := []Level{level}

	for _, d := range s.graph.Descendants(level) {
		if _, ok := s.ids[d]; ok {
			delete(s.ids, d)
			changed = append(changed, d)
		}
	}

	return changed, s.clearExtras(changed)
}

func (s *Store) clearExtras(changed []Level) []string {
	hit := make(map[Level]bool, len(changed))
	for _, l := range changed {
		hit[l] = true
	}

	var cleared []string

	for _, e := range s.graph.extras {
		if _, set := s.extras[e.Name]; !set {
			continue
		}

		for _, l := range e.ClearedBy {
			if hit[l] {
				delete(s.extras, e.Name)
				cleared = append(cleared, e.Name)

				break
			}
		}
	}

	return cleared
}

// setExtra commits value for key. An empty value clears the key. It reports
// whether anything changed.
func (s *Store) setExtra(key, value string) bool {
	cur, ok := s.extras[key]

	if value == "" {
		if !ok {
			return false
		}

		delete(s.extras, key)

		return true
	}

	if ok && cur == value {
		return false
	}

	s.extras[key] = value

	return true
}

// selections returns a copy of the committed level IDs.
func (s *Store) selections() map[Level]ID {
	return maps.Clone(s.ids)
}

// extraValues returns a copy of the committed extras.
func (s *Store) extraValues() map[string]string {
	return maps.Clone(s.extras)
}

// checkInvariant returns an error naming the first level that holds an ID
// while one of its ancestors does not.
func (s *Store) checkInvariant() error {
	for l := range s.ids {
		for _, a := range s.graph.Ancestors(l) {
			if _, ok := s.ids[a]; !ok {
				return fmt.Errorf("cascade: level %q selected while ancestor %q is empty", l, a)
			}
		}
	}

	return nil
}
