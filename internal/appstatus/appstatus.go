// Package appstatus resolves application details for the damaged-application
// flow and normalizes the backend's status vocabulary through an alias table.
package appstatus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tonimelisma/appdist/internal/backend"
)

// ErrNoApplicationNo is returned when an empty application number is looked up.
var ErrNoApplicationNo = errors.New("appstatus: application number is required")

// Normalizer maps raw backend statuses onto display statuses. Alias keys are
// matched case-insensitively; an empty status maps to the default and any
// other status is upper-cased verbatim.
type Normalizer struct {
	def     string
	aliases map[string]string
}

// NewNormalizer builds a Normalizer. Alias keys are lower-cased.
func NewNormalizer(def string, aliases map[string]string) *Normalizer {
	n := &Normalizer{
		def:     strings.ToUpper(strings.TrimSpace(def)),
		aliases: make(map[string]string, len(aliases)),
	}

	for k, v := range aliases {
		n.aliases[strings.ToLower(strings.TrimSpace(k))] = strings.ToUpper(strings.TrimSpace(v))
	}

	return n
}

// Normalize returns the display status for raw.
func (n *Normalizer) Normalize(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return n.def
	}

	if v, ok := n.aliases[key]; ok {
		return v
	}

	return strings.ToUpper(key)
}

// DetailsFetcher loads application details by number.
type DetailsFetcher interface {
	ApplicationDetails(ctx context.Context, applicationNo string) (*backend.ApplicationDetails, error)
}

// Result is one resolved application. FetchError is set instead of returning
// an error when the backend call failed, so callers can render the flag.
type Result struct {
	ApplicationNo string                      `json:"application_no"`
	Status        string                      `json:"status"`
	Details       *backend.ApplicationDetails `json:"details,omitempty"`
	Values        map[string]any              `json:"values"`
	FetchError    bool                        `json:"fetch_error"`
	Err           error                       `json:"-"`
}

// Resolver fetches application details and derives form values from them.
type Resolver struct {
	fetch  DetailsFetcher
	norm   *Normalizer
	logger *slog.Logger
}

// NewResolver creates a Resolver. A nil logger uses slog.Default().
func NewResolver(fetch DetailsFetcher, norm *Normalizer, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{fetch: fetch, norm: norm, logger: logger}
}

// Resolve looks up applicationNo. Only an empty number is an error; backend
// failures are reported through Result.FetchError.
func (r *Resolver) Resolve(ctx context.Context, applicationNo string) (*Result, error) {
	applicationNo = strings.TrimSpace(applicationNo)
	if applicationNo == "" {
		return nil, ErrNoApplicationNo
	}

	res := &Result{ApplicationNo: applicationNo}

	d, err := r.fetch.ApplicationDetails(ctx, applicationNo)
	if err != nil {
		r.logger.Warn("application details fetch failed",
			slog.String("application_no", applicationNo),
			slog.String("error", err.Error()),
		)

		res.FetchError = true
		res.Err = fmt.Errorf("fetching application %s: %w", applicationNo, err)

		return res, nil
	}

	res.Details = d
	res.Status = r.norm.Normalize(d.Status)
	res.Values = formValues(d, res.Status)

	r.logger.Debug("application details resolved",
		slog.String("application_no", applicationNo),
		slog.String("status", res.Status),
	)

	return res, nil
}

// formValues is the damaged-application form state. IDs that the backend
// left at zero are omitted.
func formValues(d *backend.ApplicationDetails, status string) map[string]any {
	v := map[string]any{
		"applicationNo": d.ApplicationNo,
		"zoneName":      d.ZoneName,
		"campusName":    d.CampusName,
		"proName":       d.ProName,
		"dgmName":       d.DGMName,
		"status":        status,
		"statusId":      int64(0),
		"reason":        d.Reason,
	}

	for k, id := range map[string]backend.Int{
		"zoneId":   d.ZoneID,
		"campusId": d.CampusID,
		"proId":    d.ProEmpID,
		"dgmEmpId": d.DGMEmpID,
	} {
		if id != 0 {
			v[k] = int64(id)
		}
	}

	return v
}
