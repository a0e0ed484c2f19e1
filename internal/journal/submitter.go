package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/appdist/internal/payload"
)

// ErrNoRecordID is returned when a submission names no record to update.
var ErrNoRecordID = errors.New("journal: submission requires a record id")

// Sender delivers one mapped update. *payload.Dispatcher satisfies it.
type Sender interface {
	Send(ctx context.Context, kind payload.Kind, id string, values map[string]any) (any, error)
}

// Submission is one form submit request.
type Submission struct {
	Kind       payload.Kind
	RecordID   string
	Values     map[string]any
	SessionID  string
	EmployeeID string
}

// Result is the outcome of Submit. Response is nil for dry runs.
type Result struct {
	Entry    Entry           `json:"entry"`
	Payload  payload.Payload `json:"payload"`
	Response any             `json:"response,omitempty"`
}

// Submitter maps, sends and journals submissions. A nil store skips the
// journal; DryRun maps and journals without sending.
type Submitter struct {
	sender Sender
	store  *Store
	dryRun bool
	logger *slog.Logger
}

// NewSubmitter creates a Submitter. store may be nil.
func NewSubmitter(sender Sender, store *Store, dryRun bool, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}

	return &Submitter{sender: sender, store: store, dryRun: dryRun, logger: logger}
}

// Submit maps sub's values, sends them unless in dry-run mode, and records
// the outcome. Mapping errors return before anything is sent or recorded.
// A journal write failure after a successful send is logged, not returned,
// because the backend has already accepted the update.
func (s *Submitter) Submit(ctx context.Context, sub Submission) (*Result, error) {
	p, err := payload.Map(sub.Kind, sub.Values)
	if err != nil {
		return nil, err
	}

	if sub.RecordID == "" {
		return nil, ErrNoRecordID
	}

	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("journal: encoding payload: %w", err)
	}

	res := &Result{
		Payload: p,
		Entry: Entry{
			Kind:       string(sub.Kind),
			RecordID:   sub.RecordID,
			SessionID:  sub.SessionID,
			EmployeeID: sub.EmployeeID,
			Status:     StatusDryRun,
			Payload:    string(body),
		},
	}

	var sendErr error

	if !s.dryRun {
		res.Response, sendErr = s.sender.Send(ctx, sub.Kind, sub.RecordID, sub.Values)
		if sendErr != nil {
			res.Entry.Status = StatusFailed
			res.Entry.Error = sendErr.Error()
		} else {
			res.Entry.Status = StatusSent
			res.Entry.Response = encodeResponse(res.Response)
		}
	}

	s.record(ctx, res)

	return res, sendErr
}

func (s *Submitter) record(ctx context.Context, res *Result) {
	if s.store == nil {
		return
	}

	e, err := s.store.Record(ctx, res.Entry)
	if err != nil {
		s.logger.Warn("journal write failed",
			slog.String("kind", res.Entry.Kind),
			slog.String("record_id", res.Entry.RecordID),
			slog.String("error", err.Error()),
		)

		return
	}

	res.Entry = e
}

// encodeResponse keeps string responses verbatim and JSON-encodes the rest.
func encodeResponse(v any) string {
	switch r := v.(type) {
	case nil:
		return ""
	case string:
		return r
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}

	return string(b)
}
