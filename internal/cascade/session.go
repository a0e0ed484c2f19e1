package cascade

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// Session is one live form: the selection store, label index, and fetch
// slots for a single Graph. All mutations and fetch resolutions take the
// session lock, so each step is observed atomically.
type Session struct {
	id       string
	graph    *Graph
	identity Identity
	logger   *slog.Logger
	observer Observer

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	store   *Store
	index   *LabelIndex
	coord   *coordinator
	seeds   map[Level]string
	view    View
	subs    []subscription
	nextSub int
	pending int
	idle    chan struct{}
	closed  bool
}

type subscription struct {
	id int
	fn func(Snapshot)
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the session logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver installs a fetch lifecycle observer.
func WithObserver(o Observer) SessionOption {
	return func(s *Session) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithSeed pre-selects levels by label for edit flows. A seed is applied when
// its level's option list arrives and is dropped as soon as the caller
// selects that level or one of its ancestors.
func WithSeed(seed map[Level]string) SessionOption {
	return func(s *Session) {
		for l, label := range seed {
			if label != "" {
				s.seeds[l] = label
			}
		}
	}
}

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) SessionOption {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// NewSession starts a session for g. Slots without dependencies are issued
// immediately. ctx bounds every fetch the session issues; Close cancels it.
func NewSession(ctx context.Context, g *Graph, identity Identity, opts ...SessionOption) (*Session, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: nil graph", ErrInvalidGraph)
	}

	if identity == "" {
		return nil, ErrMissingIdentity
	}

	sctx, cancel := context.WithCancel(ctx)

	s := &Session{
		id:       uuid.NewString(),
		graph:    g,
		identity: identity,
		logger:   slog.Default(),
		observer: nopObserver{},
		ctx:      sctx,
		cancel:   cancel,
		store:    newStore(g),
		index:    NewLabelIndex(),
		coord:    newCoordinator(g, identity),
		seeds:    make(map[Level]string),
	}

	for _, opt := range opts {
		opt(s)
	}

	for l := range s.seeds {
		if !g.HasLevel(l) {
			cancel()
			return nil, fmt.Errorf("%w: seed for %q", ErrUnknownLevel, l)
		}
	}

	s.logger = s.logger.With(slog.String("session", s.id))

	s.mu.Lock()
	s.refresh()
	s.mu.Unlock()

	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Graph returns the graph the session runs.
func (s *Session) Graph() *Graph {
	return s.graph
}

// Identity returns the acting user.
func (s *Session) Identity() Identity {
	return s.identity
}

// SelectLevel resolves label through level's option list and commits the ID.
// A label that does not resolve changes nothing and reports OutcomeMiss.
func (s *Session) SelectLevel(level Level, label string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return OutcomeMiss, ErrSessionClosed
	}

	if !s.graph.HasLevel(level) {
		return OutcomeMiss, fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}

	id, ok := s.index.Resolve(level, label)
	if !ok {
		s.logger.Debug("label did not resolve",
			slog.String("level", string(level)),
			slog.String("label", label),
		)

		return OutcomeMiss, nil
	}

	return s.selectID(level, id, true)
}

// SelectLevelID commits id for level without consulting the option list.
// Every ancestor of level must already be selected.
func (s *Session) SelectLevelID(level Level, id ID) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return OutcomeMiss, ErrSessionClosed
	}

	if !s.graph.HasLevel(level) {
		return OutcomeMiss, fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}

	return s.selectID(level, id, true)
}

// selectID commits id for level. Caller holds s.mu.
func (s *Session) selectID(level Level, id ID, byCaller bool) (Outcome, error) {
	if !s.store.ready(level) {
		return OutcomeMiss, fmt.Errorf("%w: %q", ErrUnmetDependency, level)
	}

	if byCaller {
		s.dropSeeds(level)
	}

	if cur, ok := s.store.Get(level); ok && cur == id {
		return OutcomeUnchanged, nil
	}

	changed, clearedExtras := s.store.commit(level, id)

	s.logger.Debug("level selected",
		slog.String("level", string(level)),
		slog.Int64("id", int64(id)),
		slog.Int("cleared_levels", len(changed)-1),
		slog.Int("cleared_extras", len(clearedExtras)),
	)

	s.refresh()

	return OutcomeChanged, nil
}

// SelectExtra commits an independent selection. An empty value clears it.
func (s *Session) SelectExtra(key, value string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return OutcomeMiss, ErrSessionClosed
	}

	if !s.graph.HasExtra(key) {
		return OutcomeMiss, fmt.Errorf("%w: %q", ErrUnknownExtra, key)
	}

	if !s.store.setExtra(key, value) {
		return OutcomeUnchanged, nil
	}

	s.logger.Debug("extra selected",
		slog.String("key", key),
		slog.String("value", value),
	)

	s.refresh()

	return OutcomeChanged, nil
}

// ApplyValues forwards a hosting UI's field-change payload. Fields bound to
// levels are applied in dependency order, then fields bound to extras. An
// extra that one of those level changes cleared stays cleared; the caller
// sets it again with SelectExtra. Unbound fields are ordinary form fields
// and are ignored. Empty values are skipped.
func (s *Session) ApplyValues(values map[string]string) error {
	type levelValue struct {
		level Level
		label string
	}

	var levels []levelValue

	var extras []ExtraSpec

	for field, v := range values {
		b, ok := s.graph.fields[field]
		if !ok || v == "" || b.level == "" {
			continue
		}

		levels = append(levels, levelValue{level: b.level, label: v})
	}

	sort.Slice(levels, func(i, j int) bool {
		return s.graph.Depth(levels[i].level) < s.graph.Depth(levels[j].level)
	})

	for _, e := range s.graph.extras {
		if e.Field == "" {
			continue
		}

		if v, ok := values[e.Field]; ok && v != "" {
			extras = append(extras, e)
		}
	}

	held := s.heldExtras(extras)

	for _, lv := range levels {
		if _, err := s.SelectLevel(lv.level, lv.label); err != nil {
			return err
		}
	}

	for _, e := range extras {
		// A level change above cleared it; the payload still carries the
		// old value and must not restore it.
		if _, still := s.Extra(e.Name); held[e.Name] && !still {
			s.logger.Debug("extra cleared by level change, not re-applied",
				slog.String("key", e.Name),
			)

			continue
		}

		if _, err := s.SelectExtra(e.Name, values[e.Field]); err != nil {
			return err
		}
	}

	return nil
}

// heldExtras reports which of extras currently have a value.
func (s *Session) heldExtras(extras []ExtraSpec) map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	held := make(map[string]bool, len(extras))
	for _, e := range extras {
		_, held[e.Name] = s.store.Extra(e.Name)
	}

	return held
}

// Refresh re-issues the named slot with its current key. It is the manual
// recovery path after a failed fetch; failures are never retried on their own.
// An options slot keeps its current list until the new one arrives.
func (s *Session) Refresh(slotName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	sl, ok := s.coord.byName[slotName]
	if !ok {
		return fmt.Errorf("cascade: unknown slot %q", slotName)
	}

	key, ok := slotKey(sl.spec, s.store)
	if !ok {
		return nil
	}

	s.launch(s.coord.refetch(sl, key, key.String()))
	s.publish()

	return nil
}

// Get returns the committed ID for level.
func (s *Session) Get(level Level) (ID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.store.Get(level)
}

// Extra returns the committed value for an extra key.
func (s *Session) Extra(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.store.Extra(key)
}

// Options returns the option labels currently offered for level.
func (s *Session) Options(level Level) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.index.Labels(level)
}

// View returns a copy of the current submission view.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.view.Clone()
}

// SubmissionValues overlays the current view onto the caller's form fields
// and fills userId and createdBy from the session identity when absent.
func (s *Session) SubmissionValues(fields map[string]any) View {
	out := View{}

	for k, v := range fields {
		if !isNil(v) {
			out[k] = v
		}
	}

	for k, v := range s.View() {
		out[k] = v
	}

	who := identityValue(s.identity)
	for _, k := range []string{"userId", "createdBy"} {
		if _, ok := out[k]; !ok {
			out[k] = who
		}
	}

	return out
}

// identityValue returns the identity as an int64 when it is numeric.
func identityValue(id Identity) any {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return n
	}

	return string(id)
}

// Subscribe registers fn to receive a snapshot after every step. fn runs
// with the session lock held and must not call back into the session.
func (s *Session) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscription{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Settle blocks until no fetch is in flight or ctx is done.
func (s *Session) Settle(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.pending == 0 {
			s.mu.Unlock()
			return nil
		}

		idle := s.idle
		s.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return fmt.Errorf("cascade: waiting for fetches: %w", ctx.Err())
		}
	}
}

// Close ends the session. In-flight fetches are canceled through the session
// context and their results are ignored.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true
	s.subs = nil
	s.cancel()
}

// refresh re-evaluates every slot, launches the resulting fetches, and
// publishes the new view. Caller holds s.mu.
func (s *Session) refresh() {
	for _, is := range s.coord.evaluate(s.store, s.index) {
		s.launch(is)
	}

	s.publish()
}

// publish recomputes the view and notifies subscribers. Caller holds s.mu.
func (s *Session) publish() {
	if err := s.store.checkInvariant(); err != nil {
		s.logger.Error("selection invariant violated", slog.String("error", err.Error()))
	}

	s.view = BuildView(s.graph, s.store.ids, s.store.extras, s.coord.states())

	if len(s.subs) == 0 {
		return
	}

	snap := s.snapshotLocked()
	for _, sub := range s.subs {
		sub.fn(snap)
	}
}

// launch starts the fetch for is on its own goroutine. Caller holds s.mu.
func (s *Session) launch(is issue) {
	s.pending++
	if s.pending == 1 {
		s.idle = make(chan struct{})
	}

	s.observer.FetchIssued(is.req.Slot)
	s.logger.Debug("fetch issued",
		slog.String("slot", is.req.Slot),
		slog.String("key", is.req.Key.String()),
		slog.Uint64("generation", is.req.Generation),
	)

	fetch := is.slot.spec.Fetch
	go func() {
		result, err := fetch(s.ctx, is.req)
		s.resolve(is.slot, is.req.Generation, result, err)
	}()
}

// resolve merges a fetch outcome if its generation is still current.
func (s *Session) resolve(sl *slot, generation uint64, result any, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.release()

	if s.closed {
		return
	}

	name := sl.spec.Name

	if generation != sl.generation {
		s.observer.FetchStale(name)
		s.logger.Debug("stale fetch result dropped",
			slog.String("slot", name),
			slog.Uint64("generation", generation),
			slog.Uint64("current", sl.generation),
		)

		return
	}

	sl.inflight = false

	if err == nil && sl.spec.Options != "" {
		if opts, ok := result.([]Option); ok {
			s.index.Rebuild(sl.spec.Options, opts)
		} else {
			err = fmt.Errorf("cascade: slot %q returned %T, want []Option", name, result)
		}
	}

	if err != nil {
		if sl.spec.Options != "" {
			s.index.Clear(sl.spec.Options)
		}

		sl.failed = true
		sl.err = err
		s.observer.FetchFailed(name, err)
		s.logger.Warn("fetch failed",
			slog.String("slot", name),
			slog.String("error", err.Error()),
		)
		s.publish()

		return
	}

	sl.result = result
	sl.accepted = true
	s.observer.FetchAccepted(name)

	if sl.spec.Options != "" {
		s.applySeed(sl.spec.Options)
	}

	s.refresh()
}

// release marks one fetch as finished. Caller holds s.mu.
func (s *Session) release() {
	s.pending--
	if s.pending == 0 && s.idle != nil {
		close(s.idle)
		s.idle = nil
	}
}

// applySeed commits the pending seed for level, if any. Caller holds s.mu.
func (s *Session) applySeed(level Level) {
	label, ok := s.seeds[level]
	if !ok {
		return
	}

	delete(s.seeds, level)

	id, ok := s.index.Resolve(level, label)
	if !ok {
		s.logger.Debug("seed label did not resolve",
			slog.String("level", string(level)),
			slog.String("label", label),
		)

		return
	}

	if !s.store.ready(level) {
		return
	}

	if cur, ok := s.store.Get(level); ok && cur == id {
		return
	}

	s.store.commit(level, id)
}

// dropSeeds forgets seeds for level and its descendants. Caller holds s.mu.
func (s *Session) dropSeeds(level Level) {
	delete(s.seeds, level)

	for _, d := range s.graph.Descendants(level) {
		delete(s.seeds, d)
	}
}
