package cascade

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// LabelIndex maps each Level's option labels to IDs. An index is rebuilt
// wholesale from the latest option list, so it never holds IDs for labels
// that are no longer offered.
type LabelIndex struct {
	byLevel map[Level]levelOptions
}

type levelOptions struct {
	options []Option
	ids     map[string]ID
}

// NewLabelIndex returns an empty index.
func NewLabelIndex() *LabelIndex {
	return &LabelIndex{byLevel: make(map[Level]levelOptions)}
}

// normalizeLabel trims surrounding space and applies NFC so that visually
// identical labels from different sources compare equal.
func normalizeLabel(label string) string {
	return norm.NFC.String(strings.TrimSpace(label))
}

// Rebuild replaces the option list for level. When several options share a
// label the first one wins.
func (x *LabelIndex) Rebuild(level Level, options []Option) {
	ids := make(map[string]ID, len(options))
	kept := make([]Option, len(options))
	copy(kept, options)

	for _, o := range options {
		key := normalizeLabel(o.Label)
		if _, dup := ids[key]; dup {
			continue
		}

		ids[key] = o.ID
	}

	x.byLevel[level] = levelOptions{options: kept, ids: ids}
}

// Clear drops the option list for level.
func (x *LabelIndex) Clear(level Level) {
	delete(x.byLevel, level)
}

// Resolve returns the ID bound to label at level.
func (x *LabelIndex) Resolve(level Level, label string) (ID, bool) {
	lo, ok := x.byLevel[level]
	if !ok {
		return 0, false
	}

	id, ok := lo.ids[normalizeLabel(label)]

	return id, ok
}

// LabelFor returns the first label bound to id at level.
func (x *LabelIndex) LabelFor(level Level, id ID) (string, bool) {
	for _, o := range x.byLevel[level].options {
		if o.ID == id {
			return o.Label, true
		}
	}

	return "", false
}

// Labels returns the display labels for level in source order.
func (x *LabelIndex) Labels(level Level) []string {
	lo := x.byLevel[level]
	out := make([]string, len(lo.options))

	for i, o := range lo.options {
		out[i] = o.Label
	}

	return out
}

// Loaded reports whether an option list is present for level.
func (x *LabelIndex) Loaded(level Level) bool {
	_, ok := x.byLevel[level]
	return ok
}
