// Package payload maps a submission view onto the wire payload of each
// distribution form and dispatches it to the update endpoint.
package payload

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownFormKind is returned for a form kind with no mapping.
var ErrUnknownFormKind = errors.New("payload: unknown form kind")

// Kind identifies a distribution form.
type Kind string

// Form kinds.
const (
	KindZone   Kind = "zone"
	KindDGM    Kind = "dgm"
	KindCampus Kind = "campus"
)

// Kinds returns every known form kind.
func Kinds() []Kind {
	return []Kind{KindZone, KindDGM, KindCampus}
}

// UnknownKindError names the rejected form kind.
type UnknownKindError struct {
	Kind string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("payload: unknown form kind %q (expected zone, dgm or campus)", e.Kind)
}

func (e *UnknownKindError) Unwrap() error {
	return ErrUnknownFormKind
}

// ParseKind trims and lower-cases s before matching it to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := tables[k]; !ok {
		return "", &UnknownKindError{Kind: s}
	}

	return k, nil
}

// Payload is the JSON body sent for one update.
type Payload map[string]any

// field is one output key of a form's payload.
type field struct {
	out   string
	from  string // source view key; empty for constants
	value any    // constant value
	date  bool
}

func copyOf(key string) field { return field{out: key, from: key} }

func rename(out, from string) field { return field{out: out, from: from} }

func constant(out string, v any) field { return field{out: out, value: v} }

func dateOf(key string) field { return field{out: key, from: key, date: true} }

type table struct {
	segment string
	fields  []field
}

var tables = map[Kind]table{
	KindZone: {
		segment: "update-zone",
		fields: []field{
			copyOf("academicYearId"),
			copyOf("stateId"),
			copyOf("cityId"),
			copyOf("zoneId"),
			constant("issuedByTypeId", 1),
			constant("issuedToTypeId", 2),
			copyOf("issuedToEmpId"),
			rename("appStartNo", "applicationNoFrom"),
			rename("appEndNo", "applicationNoTo"),
			copyOf("range"),
			dateOf("issueDate"),
			copyOf("createdBy"),
			rename("application_Amount", "applicationFee"),
		},
	},
	KindDGM: {
		segment: "update-dgm",
		fields: []field{
			copyOf("userId"),
			copyOf("academicYearId"),
			copyOf("cityId"),
			copyOf("zoneId"),
			copyOf("campusId"),
			rename("dgmEmployeeId", "issuedToId"),
			rename("application_Amount", "applicationFee"),
			copyOf("applicationNoFrom"),
			copyOf("applicationNoTo"),
			copyOf("range"),
		},
	},
	KindCampus: {
		segment: "update-campus",
		fields: []field{
			copyOf("userId"),
			copyOf("academicYearId"),
			copyOf("cityId"),
			copyOf("campaignDistrictId"),
			rename("branchId", "campusId"),
			rename("receiverId", "issuedToEmpId"),
			constant("issuedToTypeId", 4),
			dateOf("issueDate"),
			rename("application_Amount", "applicationFee"),
			copyOf("applicationNoFrom"),
			copyOf("applicationNoTo"),
			copyOf("range"),
			copyOf("category"),
		},
	},
}

// Segment returns the endpoint path segment for k, e.g. "update-zone".
func (k Kind) Segment() string {
	return tables[k].segment
}

// Fields returns the output keys k can produce, in table order.
func (k Kind) Fields() []string {
	t := tables[k]
	out := make([]string, len(t.fields))

	for i, f := range t.fields {
		out[i] = f.out
	}

	return out
}

// Map builds the payload for kind from values. Keys whose source is absent
// or nil are omitted; a date field is always present and converted with
// ConvertDate. Map performs no I/O.
func Map(kind Kind, values map[string]any) (Payload, error) {
	t, ok := tables[kind]
	if !ok {
		return nil, &UnknownKindError{Kind: string(kind)}
	}

	p := make(Payload, len(t.fields))

	for _, f := range t.fields {
		switch {
		case f.from == "":
			p[f.out] = f.value
		case f.date:
			p[f.out] = ConvertDate(values[f.from])
		default:
			if v, ok := values[f.from]; ok && v != nil {
				p[f.out] = v
			}
		}
	}

	return p, nil
}

// ConvertDate rewrites a "dd/mm/yyyy" date as "yyyy-mm-dd". Components are
// kept as written, without zero padding. Empty or malformed input yields "".
// A time.Time is formatted directly.
func ConvertDate(v any) string {
	switch d := v.(type) {
	case nil:
		return ""
	case time.Time:
		if d.IsZero() {
			return ""
		}

		return d.Format(time.DateOnly)
	case string:
		parts := strings.Split(d, "/")
		if len(parts) < 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return ""
		}

		return parts[2] + "-" + parts[1] + "-" + parts[0]
	default:
		return ConvertDate(fmt.Sprint(d))
	}
}
