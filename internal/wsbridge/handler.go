package wsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/tonimelisma/appdist/internal/cascade"
	"github.com/tonimelisma/appdist/internal/journal"
	"github.com/tonimelisma/appdist/internal/payload"
)

const defaultSettleTimeout = 30 * time.Second

// Opener starts a cascade session for one form.
type Opener func(ctx context.Context, kind payload.Kind, identity cascade.Identity, initial map[string]string) (*cascade.Session, error)

// Submitter sends a finished form. *journal.Submitter satisfies it.
type Submitter interface {
	Submit(ctx context.Context, sub journal.Submission) (*journal.Result, error)
}

// Metrics receives bridge events. *metrics.Collector satisfies it.
type Metrics interface {
	SessionOpened()
	SessionClosed()
	RecordSubmission(kind, status string)
}

type nopMetrics struct{}

func (nopMetrics) SessionOpened()                  {}
func (nopMetrics) SessionClosed()                  {}
func (nopMetrics) RecordSubmission(string, string) {}

// Options tunes a Handler. Zero values are usable.
type Options struct {
	AllowedOrigins    []string
	DefaultEmployeeID string
	SettleTimeout     time.Duration
	Metrics           Metrics
	Logger            *slog.Logger
}

// Handler upgrades requests to websockets and runs one form session per
// connection.
type Handler struct {
	open   Opener
	submit Submitter
	opts   Options
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(open Opener, submit Submitter, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}

	if opts.SettleTimeout <= 0 {
		opts.SettleTimeout = defaultSettleTimeout
	}

	return &Handler{open: open, submit: submit, opts: opts, logger: opts.Logger}
}

// conn is the per-connection state. The session pointer is shared with the
// snapshot pusher goroutine.
type conn struct {
	ws     *websocket.Conn
	notify chan struct{}

	mu      sync.Mutex
	sess    *cascade.Session
	kind    payload.Kind
	unsub   func()
	metrics Metrics
}

func (c *conn) current() (*cascade.Session, payload.Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.sess, c.kind
}

// swap installs sess as the connection's session, closing the previous one.
func (c *conn) swap(sess *cascade.Session, kind payload.Kind) {
	c.mu.Lock()
	prev, unsub := c.sess, c.unsub
	c.sess, c.kind, c.unsub = sess, kind, nil

	if sess != nil {
		c.unsub = sess.Subscribe(func(cascade.Snapshot) { c.poke() })
		c.metrics.SessionOpened()
	}
	c.mu.Unlock()

	if prev != nil {
		unsub()
		prev.Close()
		c.metrics.SessionClosed()
	}
}

// poke schedules a snapshot push. It never blocks, so it is safe to call
// with the session lock held.
func (c *conn) poke() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// ServeHTTP upgrades to a websocket and runs the message loop.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.opts.AllowedOrigins,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", slog.String("error", err.Error()))
		return
	}
	defer ws.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &conn{ws: ws, notify: make(chan struct{}, 1), metrics: h.opts.Metrics}
	defer c.swap(nil, "")

	go h.pushSnapshots(ctx, c)

	for {
		var msg ClientMessage
		if err := wsjson.Read(ctx, ws, &msg); err != nil {
			if status := websocket.CloseStatus(err); status != -1 {
				h.logger.Debug("websocket closed", slog.Int("status", int(status)))
			} else if !errors.Is(err, context.Canceled) {
				h.logger.Debug("websocket read failed", slog.String("error", err.Error()))
			}

			return
		}

		h.dispatch(ctx, c, msg)
	}
}

func (h *Handler) dispatch(ctx context.Context, c *conn, msg ClientMessage) {
	if msg.Type == msgPing {
		h.send(ctx, c, ServerMessage{Type: msgPong, RequestID: msg.ID})
		return
	}

	if msg.Type == msgOpen {
		h.handleOpen(ctx, c, msg)
		return
	}

	sess, kind := c.current()
	if sess == nil {
		h.sendError(ctx, c, msg.ID, "no_session", "send an open message first")
		return
	}

	switch msg.Type {
	case msgSelect:
		h.handleSelect(ctx, c, sess, msg)
	case msgExtra:
		var d ExtraData
		if !h.decode(ctx, c, msg, &d) {
			return
		}

		out, err := sess.SelectExtra(d.Name, d.Value)
		h.reply(ctx, c, msg.ID, out, err)
	case msgValues:
		var d ValuesData
		if !h.decode(ctx, c, msg, &d) {
			return
		}

		if err := sess.ApplyValues(d.Values); err != nil {
			h.sendError(ctx, c, msg.ID, "values_failed", err.Error())
			return
		}

		h.send(ctx, c, ServerMessage{Type: msgSnapshot, RequestID: msg.ID, Data: sess.Snapshot()})
	case msgRefresh:
		var d RefreshData
		if !h.decode(ctx, c, msg, &d) {
			return
		}

		if err := sess.Refresh(d.Slot); err != nil {
			h.sendError(ctx, c, msg.ID, "refresh_failed", err.Error())
		}
	case msgSnapshot:
		h.send(ctx, c, ServerMessage{Type: msgSnapshot, RequestID: msg.ID, Data: sess.Snapshot()})
	case msgSubmit:
		h.handleSubmit(ctx, c, sess, kind, msg)
	default:
		h.sendError(ctx, c, msg.ID, "unknown_type", fmt.Sprintf("unknown message type: %s", msg.Type))
	}
}

func (h *Handler) handleOpen(ctx context.Context, c *conn, msg ClientMessage) {
	var d OpenData
	if !h.decode(ctx, c, msg, &d) {
		return
	}

	kind, err := payload.ParseKind(d.Kind)
	if err != nil {
		h.sendError(ctx, c, msg.ID, "unknown_kind", err.Error())
		return
	}

	employee := d.EmployeeID
	if employee == "" {
		employee = h.opts.DefaultEmployeeID
	}

	// The session outlives this message but not the connection.
	sess, err := h.open(ctx, kind, cascade.Identity(employee), d.Initial)
	if err != nil {
		h.sendError(ctx, c, msg.ID, "open_failed", err.Error())
		return
	}

	c.swap(sess, kind)

	levels := make([]string, 0, len(sess.Graph().Levels()))
	for _, l := range sess.Graph().Levels() {
		levels = append(levels, string(l.Name))
	}

	h.logger.Info("form session opened",
		slog.String("session_id", sess.ID()),
		slog.String("kind", string(kind)),
	)

	h.send(ctx, c, ServerMessage{
		Type:      msgReady,
		RequestID: msg.ID,
		Data:      ReadyData{SessionID: sess.ID(), Kind: string(kind), Levels: levels},
	})
	c.poke()
}

func (h *Handler) handleSelect(ctx context.Context, c *conn, sess *cascade.Session, msg ClientMessage) {
	var d SelectData
	if !h.decode(ctx, c, msg, &d) {
		return
	}

	level := cascade.Level(d.Level)

	var (
		out cascade.Outcome
		err error
	)

	if d.ID != nil {
		out, err = sess.SelectLevelID(level, *d.ID)
	} else {
		out, err = sess.SelectLevel(level, d.Label)
	}

	h.reply(ctx, c, msg.ID, out, err)
}

func (h *Handler) handleSubmit(ctx context.Context, c *conn, sess *cascade.Session, kind payload.Kind, msg ClientMessage) {
	var d SubmitData
	if !h.decode(ctx, c, msg, &d) {
		return
	}

	settleCtx, cancel := context.WithTimeout(ctx, h.opts.SettleTimeout)
	defer cancel()

	if err := sess.Settle(settleCtx); err != nil {
		h.sendError(ctx, c, msg.ID, "not_settled", err.Error())
		return
	}

	res, err := h.submit.Submit(ctx, journal.Submission{
		Kind:       kind,
		RecordID:   d.RecordID,
		Values:     sess.SubmissionValues(d.Fields),
		SessionID:  sess.ID(),
		EmployeeID: string(sess.Identity()),
	})

	if res != nil {
		h.opts.Metrics.RecordSubmission(string(kind), res.Entry.Status)
	}

	if err != nil {
		h.sendError(ctx, c, msg.ID, "submit_failed", err.Error())
		return
	}

	h.send(ctx, c, ServerMessage{Type: msgSubmitted, RequestID: msg.ID, Data: res})
}

// pushSnapshots sends the latest snapshot whenever the session changes.
// Bursts of changes coalesce into one push.
func (h *Handler) pushSnapshots(ctx context.Context, c *conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.notify:
		}

		sess, _ := c.current()
		if sess == nil {
			continue
		}

		h.send(ctx, c, ServerMessage{Type: msgSnapshot, Data: sess.Snapshot()})
	}
}

func (h *Handler) reply(ctx context.Context, c *conn, requestID string, out cascade.Outcome, err error) {
	if err != nil {
		h.sendError(ctx, c, requestID, "select_failed", err.Error())
		return
	}

	h.send(ctx, c, ServerMessage{Type: msgResult, RequestID: requestID, Data: ResultData{Outcome: out.String()}})
}

func (h *Handler) decode(ctx context.Context, c *conn, msg ClientMessage, v any) bool {
	if len(msg.Data) == 0 {
		msg.Data = json.RawMessage("{}")
	}

	if err := json.Unmarshal(msg.Data, v); err != nil {
		h.sendError(ctx, c, msg.ID, "invalid_data", fmt.Sprintf("invalid %s data", msg.Type))
		return false
	}

	return true
}

func (h *Handler) send(ctx context.Context, c *conn, msg ServerMessage) {
	if err := wsjson.Write(ctx, c.ws, msg); err != nil && ctx.Err() == nil {
		h.logger.Debug("websocket write failed",
			slog.String("type", msg.Type),
			slog.String("error", err.Error()),
		)
	}
}

func (h *Handler) sendError(ctx context.Context, c *conn, requestID, code, message string) {
	h.send(ctx, c, ServerMessage{
		Type:      msgError,
		RequestID: requestID,
		Data:      ErrorData{Code: code, Message: message},
	})
}
