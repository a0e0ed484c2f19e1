package cascade

// Snapshot is everything a hosting UI renders from a session: the committed
// selections, the option labels per level, display choices per slot, the
// submission view, and per-slot fetch error flags.
type Snapshot struct {
	SessionID   string              `json:"session_id"`
	Selections  map[Level]ID        `json:"selections"`
	Labels      map[Level]string    `json:"labels"`
	Extras      map[string]string   `json:"extras"`
	Options     map[Level][]string  `json:"options"`
	Choices     map[string][]string `json:"choices"`
	View        View                `json:"view"`
	FetchErrors map[string]bool     `json:"fetch_errors"`
	Pending     int                 `json:"pending"`
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:   s.id,
		Selections:  s.store.selections(),
		Labels:      make(map[Level]string),
		Extras:      s.store.extraValues(),
		Options:     make(map[Level][]string),
		Choices:     make(map[string][]string),
		View:        s.view.Clone(),
		FetchErrors: make(map[string]bool),
		Pending:     s.pending,
	}

	for _, l := range s.graph.levels {
		if s.index.Loaded(l.Name) {
			snap.Options[l.Name] = s.index.Labels(l.Name)
		}

		if id, ok := snap.Selections[l.Name]; ok {
			if label, ok := s.index.LabelFor(l.Name, id); ok {
				snap.Labels[l.Name] = label
			}
		}
	}

	for _, sl := range s.coord.slots {
		if sl.failed {
			snap.FetchErrors[sl.spec.Name] = true
		}

		if sl.accepted && sl.spec.Options == "" && sl.spec.Choices != nil {
			snap.Choices[sl.spec.Name] = sl.spec.Choices(sl.result)
		}
	}

	return snap
}
