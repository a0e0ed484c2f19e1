package payload

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Putter issues a JSON PUT and returns the decoded response body. The
// backend client satisfies it.
type Putter interface {
	PutJSON(ctx context.Context, path string, body any) (any, error)
}

// Dispatcher sends mapped payloads to "<base>/update-<kind>/<id>".
type Dispatcher struct {
	put    Putter
	base   string
	logger *slog.Logger
}

// NewDispatcher returns a Dispatcher that PUTs under basePath
// (e.g. "/distribution/updates").
func NewDispatcher(put Putter, basePath string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		put:    put,
		base:   strings.TrimRight(basePath, "/"),
		logger: logger,
	}
}

// Path returns the update path for kind and id.
func (d *Dispatcher) Path(kind Kind, id string) string {
	return d.base + "/" + kind.Segment() + "/" + url.PathEscape(id)
}

// Send maps values for kind and PUTs the payload. Mapping errors are
// returned before any request is made. Transport errors are returned as is.
func (d *Dispatcher) Send(ctx context.Context, kind Kind, id string, values map[string]any) (any, error) {
	p, err := Map(kind, values)
	if err != nil {
		return nil, err
	}

	if id == "" {
		return nil, fmt.Errorf("payload: %s update requires an id", kind)
	}

	path := d.Path(kind, id)

	d.logger.Info("sending update",
		slog.String("kind", string(kind)),
		slog.String("path", path),
		slog.Int("fields", len(p)),
	)

	resp, err := d.put.PutJSON(ctx, path, p)
	if err != nil {
		return nil, fmt.Errorf("payload: %s update %s: %w", kind, id, err)
	}

	return resp, nil
}

// SendNamed parses kind leniently and sends. It is the entry point for
// callers holding a free-form form type string.
func (d *Dispatcher) SendNamed(ctx context.Context, kind, id string, values map[string]any) (any, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return nil, err
	}

	return d.Send(ctx, k, id, values)
}

// UpdateZone sends a zone form update.
func (d *Dispatcher) UpdateZone(ctx context.Context, id string, values map[string]any) (any, error) {
	return d.Send(ctx, KindZone, id, values)
}

// UpdateDGM sends a DGM form update.
func (d *Dispatcher) UpdateDGM(ctx context.Context, id string, values map[string]any) (any, error) {
	return d.Send(ctx, KindDGM, id, values)
}

// UpdateCampus sends a campus form update.
func (d *Dispatcher) UpdateCampus(ctx context.Context, id string, values map[string]any) (any, error) {
	return d.Send(ctx, KindCampus, id, values)
}
