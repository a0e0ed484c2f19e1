package journal

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/appdist/internal/payload"
)

type fakeSender struct {
	calls int
	resp  any
	err   error
}

func (f *fakeSender) Send(context.Context, payload.Kind, string, map[string]any) (any, error) {
	f.calls++
	return f.resp, f.err
}

func campusValues() map[string]any {
	return map[string]any{
		"academicYearId": int64(2),
		"campusId":       int64(111),
		"issuedToEmpId":  int64(1111),
		"issueDate":      "05/01/2026",
		"applicationFee": "500",
	}
}

func TestSubmit_SentIsJournaled(t *testing.T) {
	store := newTestStore(t)
	sender := &fakeSender{resp: map[string]any{"ok": true}}
	sub := NewSubmitter(sender, store, false, testLogger(t))

	res, err := sub.Submit(context.Background(), Submission{
		Kind:       payload.KindCampus,
		RecordID:   "17",
		Values:     campusValues(),
		SessionID:  "s-1",
		EmployeeID: "42",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sender.calls)
	assert.Equal(t, StatusSent, res.Entry.Status)
	assert.JSONEq(t, `{"ok":true}`, res.Entry.Response)

	var stored map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.Entry.Payload), &stored))
	assert.Equal(t, "2026-01-05", stored["issueDate"])

	got, err := store.Get(context.Background(), res.Entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "s-1", got.SessionID)
}

func TestSubmit_FailureIsJournaledAndReturned(t *testing.T) {
	store := newTestStore(t)
	boom := errors.New("backend down")
	sub := NewSubmitter(&fakeSender{err: boom}, store, false, testLogger(t))

	res, err := sub.Submit(context.Background(), Submission{Kind: payload.KindCampus, RecordID: "17", Values: campusValues()})
	require.ErrorIs(t, err, boom)
	require.NotNil(t, res)
	assert.Equal(t, StatusFailed, res.Entry.Status)

	failed, err := store.List(context.Background(), Filter{Status: StatusFailed})
	require.NoError(t, err)
	assert.Len(t, failed, 1)
}

func TestSubmit_DryRunDoesNotSend(t *testing.T) {
	store := newTestStore(t)
	sender := &fakeSender{}
	sub := NewSubmitter(sender, store, true, testLogger(t))

	res, err := sub.Submit(context.Background(), Submission{Kind: payload.KindZone, RecordID: "9", Values: campusValues()})
	require.NoError(t, err)
	assert.Zero(t, sender.calls)
	assert.Equal(t, StatusDryRun, res.Entry.Status)
	assert.Nil(t, res.Response)
}

func TestSubmit_RejectsBeforeSending(t *testing.T) {
	sender := &fakeSender{}
	sub := NewSubmitter(sender, nil, false, testLogger(t))

	_, err := sub.Submit(context.Background(), Submission{Kind: payload.Kind("bogus"), RecordID: "1"})
	require.ErrorIs(t, err, payload.ErrUnknownFormKind)

	_, err = sub.Submit(context.Background(), Submission{Kind: payload.KindDGM, Values: campusValues()})
	require.ErrorIs(t, err, ErrNoRecordID)

	assert.Zero(t, sender.calls)
}

func TestSubmit_NilStore(t *testing.T) {
	sub := NewSubmitter(&fakeSender{resp: "done"}, nil, false, testLogger(t))

	res, err := sub.Submit(context.Background(), Submission{Kind: payload.KindCampus, RecordID: "3", Values: campusValues()})
	require.NoError(t, err)
	assert.Empty(t, res.Entry.ID)
	assert.Equal(t, "done", res.Entry.Response)
}
