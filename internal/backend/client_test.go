package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noopSleep returns immediately, for fast retry tests.
func noopSleep(_ context.Context, _ time.Duration) error {
	return nil
}

// failingToken always fails.
type failingToken struct{}

func (failingToken) Token() (string, error) {
	return "", errors.New("token error")
}

func newTestClient(t *testing.T, url string, token TokenSource) *Client {
	t.Helper()

	c := NewClient(url, http.DefaultClient, token, nil, Options{UserAgent: "test-agent", MaxRetries: 3})
	c.sleepFunc = noopSleep

	return c
}

func TestGetJSON_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/gets/cities", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("districtId"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))

		_, _ = io.WriteString(w, `[{"id":11,"name":"Hyd"}]`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, StaticToken("tok"))

	var out []map[string]any
	err := c.GetJSON(context.Background(), "/gets/cities", map[string][]string{"districtId": {"7"}}, &out)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, json.Number("11"), out[0]["id"])
}

func TestGetJSON_NoTokenSourceSendsNoAuthorization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	var out []any
	require.NoError(t, newTestClient(t, srv.URL, nil).GetJSON(context.Background(), "/x", nil, &out))
}

func TestGetJSON_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		_, _ = io.WriteString(w, `["500","1000"]`)
	}))
	defer srv.Close()

	var out []string
	require.NoError(t, newTestClient(t, srv.URL, nil).GetJSON(context.Background(), "/fees", nil, &out))
	assert.Equal(t, []string{"500", "1000"}, out)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetJSON_MaxRetriesExhausted(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	var out any
	err := newTestClient(t, srv.URL, nil).GetJSON(context.Background(), "/x", nil, &out)
	require.ErrorIs(t, err, ErrServerError)
	assert.Equal(t, int32(4), calls.Load(), "one attempt plus three retries")
}

func TestGetJSON_NoRetryOn4xx(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "no such zone", http.StatusNotFound)
	}))
	defer srv.Close()

	var out any
	err := newTestClient(t, srv.URL, nil).GetJSON(context.Background(), "/zones", nil, &out)
	require.ErrorIs(t, err, ErrNotFound)

	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.StatusNotFound, be.StatusCode)
	assert.Equal(t, "no such zone", be.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetJSON_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"not":"a list"}`)
	}))
	defer srv.Close()

	var out []string
	err := newTestClient(t, srv.URL, nil).GetJSON(context.Background(), "/x", nil, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding")
}

func TestGetJSON_TokenError(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:0", failingToken{})
	c.maxRetries = 0

	var out any
	err := c.GetJSON(context.Background(), "/x", nil, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "obtaining token")
}

func TestGetJSON_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out any
	err := newTestClient(t, srv.URL, nil).GetJSON(ctx, "/x", nil, &out)
	require.ErrorIs(t, err, context.Canceled)
}

func TestPutJSON_SendsBodyOnce(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/updates/update-zone/17", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "2026-01-05", body["issueDate"])

		_, _ = io.WriteString(w, `{"updated":true,"id":17}`)
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv.URL, nil).PutJSON(context.Background(), "/updates/update-zone/17",
		map[string]any{"issueDate": "2026-01-05"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"updated": true, "id": json.Number("17")}, resp)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPutJSON_NeverRetried(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, nil).PutJSON(context.Background(), "/u", map[string]any{})
	require.ErrorIs(t, err, ErrServerError)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPutJSON_EmptyAndTextResponses(t *testing.T) {
	body := ""

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, body)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)

	resp, err := c.PutJSON(context.Background(), "/u", nil)
	require.NoError(t, err)
	assert.Nil(t, resp)

	body = "Updated successfully"
	resp, err = c.PutJSON(context.Background(), "/u", nil)
	require.NoError(t, err)
	assert.Equal(t, "Updated successfully", resp)
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		code int
		want error
	}{
		{http.StatusBadRequest, ErrBadRequest},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusConflict, ErrConflict},
		{http.StatusTooManyRequests, ErrThrottled},
		{http.StatusInternalServerError, ErrServerError},
		{http.StatusTeapot, ErrUnexpected},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyStatus(tt.code), "status %d", tt.code)
	}
}

func TestCalcBackoff_MaxCap(t *testing.T) {
	c := NewClient("http://x", nil, nil, nil, Options{})

	for range 20 {
		assert.LessOrEqual(t, c.calcBackoff(30), time.Duration(float64(maxBackoff)*(1+jitterFraction)))
	}
}

func TestTimeSleep_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, timeSleep(ctx, time.Hour), context.Canceled)
}
