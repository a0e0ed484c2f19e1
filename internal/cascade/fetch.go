package cascade

import (
	"strconv"
	"strings"
)

// Identity is the acting user's identifier, fixed for the life of a session.
type Identity string

// Request describes one fetch issued for a slot.
type Request struct {
	Slot       string
	Key        Key
	Identity   Identity
	Generation uint64
}

// Key holds the upstream values a slot request was derived from.
type Key struct {
	slot   string
	levels []Level
	extras []string
	ids    map[Level]ID
	values map[string]string
}

// Level returns the upstream ID for level. It returns 0 if the slot does not
// depend on level.
func (k Key) Level(level Level) ID {
	return k.ids[level]
}

// Extra returns the upstream value for an extra key.
func (k Key) Extra(name string) string {
	return k.values[name]
}

// String returns the canonical dedupe key, e.g. "series|academicYear=3|fee=500".
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(k.slot)

	for _, l := range k.levels {
		b.WriteByte('|')
		b.WriteString(string(l))
		b.WriteByte('=')
		b.WriteString(strconv.FormatInt(int64(k.ids[l]), 10))
	}

	for _, e := range k.extras {
		b.WriteByte('|')
		b.WriteString(e)
		b.WriteByte('=')
		b.WriteString(k.values[e])
	}

	return b.String()
}

// slotKey evaluates the trigger predicate for spec and, when it holds,
// derives the request key from the store.
func slotKey(spec *SlotSpec, st *Store) (Key, bool) {
	k := Key{
		slot:   spec.Name,
		levels: spec.Levels,
		extras: spec.Extras,
		ids:    make(map[Level]ID, len(spec.Levels)),
		values: make(map[string]string, len(spec.Extras)),
	}

	for _, l := range spec.Levels {
		id, ok := st.Get(l)
		if !ok {
			return Key{}, false
		}

		k.ids[l] = id
	}

	for _, e := range spec.Extras {
		v, ok := st.Extra(e)
		if !ok {
			return Key{}, false
		}

		k.values[e] = v
	}

	return k, true
}

// Observer receives fetch lifecycle events. Implementations must be cheap;
// they are called with the session lock held.
type Observer interface {
	FetchIssued(slot string)
	FetchAccepted(slot string)
	FetchStale(slot string)
	FetchFailed(slot string, err error)
}

type nopObserver struct{}

func (nopObserver) FetchIssued(string)        {}
func (nopObserver) FetchAccepted(string)      {}
func (nopObserver) FetchStale(string)         {}
func (nopObserver) FetchFailed(string, error) {}

// slot is the mutable state of one SlotSpec within a session.
type slot struct {
	spec *SlotSpec

	generation uint64
	issuedKey  string
	inflight   bool

	result   any
	accepted bool
	failed   bool
	err      error
}

// holds reports whether the slot carries anything that a reset would drop.
func (s *slot) holds() bool {
	return s.issuedKey != "" || s.accepted || s.failed || s.inflight
}

// invalidate drops the accepted result and error and bumps the generation so
// that any request still in flight resolves as stale.
func (s *slot) invalidate() {
	s.generation++
	s.result = nil
	s.accepted = false
	s.failed = false
	s.err = nil
	s.inflight = false
}

// issue is a fetch the coordinator decided to start.
type issue struct {
	slot *slot
	req  Request
}

// coordinator owns the slots of one session.
type coordinator struct {
	slots    []*slot
	byName   map[string]*slot
	identity Identity
}

func newCoordinator(g *Graph, identity Identity) *coordinator {
	c := &coordinator{
		slots:    make([]*slot, len(g.slots)),
		byName:   make(map[string]*slot, len(g.slots)),
		identity: identity,
	}

	for i := range g.slots {
		s := &slot{spec: &g.slots[i]}
		c.slots[i] = s
		c.byName[s.spec.Name] = s
	}

	return c
}

// evaluate re-checks every slot against the store. Slots whose predicate no
// longer holds are invalidated; slots whose key changed are invalidated and
// returned for issuing. Option lists fed by an invalidated slot are cleared
// from index.
func (c *coordinator) evaluate(st *Store, index *LabelIndex) []issue {
	var issues []issue

	for _, s := range c.slots {
		key, ok := slotKey(s.spec, st)
		if !ok {
			if s.holds() {
				s.invalidate()
				s.issuedKey = ""
				c.clearOptions(s, index)
			}

			continue
		}

		ks := key.String()
		if ks == s.issuedKey {
			continue
		}

		issues = append(issues, c.reissue(s, key, ks, index))
	}

	return issues
}

// reissue invalidates s, drops its option list and prepares a request for
// key.
func (c *coordinator) reissue(s *slot, key Key, ks string, index *LabelIndex) issue {
	iss := c.refetch(s, key, ks)
	c.clearOptions(s, index)

	return iss
}

// refetch re-issues s for an unchanged key. The option list of an options
// slot stays in place, since the committed child selection is still valid.
func (c *coordinator) refetch(s *slot, key Key, ks string) issue {
	s.invalidate()
	s.issuedKey = ks
	s.inflight = true

	return issue{
		slot: s,
		req: Request{
			Slot:       s.spec.Name,
			Key:        key,
			Identity:   c.identity,
			Generation: s.generation,
		},
	}
}

func (c *coordinator) clearOptions(s *slot, index *LabelIndex) {
	if s.spec.Options != "" {
		index.Clear(s.spec.Options)
	}
}

// states returns a snapshot of every slot in declaration order.
func (c *coordinator) states() []SlotState {
	out := make([]SlotState, len(c.slots))
	for i, s := range c.slots {
		out[i] = SlotState{
			Name:       s.spec.Name,
			Generation: s.generation,
			Result:     s.result,
			Accepted:   s.accepted,
			Failed:     s.failed,
			Err:        s.err,
			InFlight:   s.inflight,
		}
	}

	return out
}

// SlotState is a read-only view of one slot.
type SlotState struct {
	Name       string
	Generation uint64
	Result     any
	Accepted   bool
	Failed     bool
	Err        error
	InFlight   bool
}
