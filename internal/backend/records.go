package backend

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tonimelisma/appdist/internal/cascade"
)

// recordKind lists, in priority order, the keys a lookup record may carry
// its label and ID under. Backend endpoints are not consistent about naming.
type recordKind struct {
	name   string
	labels []string
	ids    []string
}

var (
	yearRecord     = recordKind{name: "academic year", labels: []string{"academicYear", "name"}, ids: []string{"acdcYearId", "id"}}
	stateRecord    = recordKind{name: "state", labels: []string{"stateName", "name"}, ids: []string{"stateId", "id"}}
	districtRecord = recordKind{name: "district", labels: []string{"districtName", "name"}, ids: []string{"districtId", "id"}}
	cityRecord     = recordKind{name: "city", labels: []string{"name", "cityName"}, ids: []string{"id", "cityId"}}
	zoneRecord     = recordKind{name: "zone", labels: []string{"zoneName", "name"}, ids: []string{"zoneId", "id"}}
	campusRecord   = recordKind{name: "campus", labels: []string{"name", "campusName", "cmps_name"}, ids: []string{"id", "campusId", "cmps_id"}}
	employeeRecord = recordKind{name: "employee", labels: []string{"name", "empName", "employeeName"}, ids: []string{"id", "empId", "employeeId"}}
)

// toOptions converts raw records into options. Records without a usable ID
// are skipped; a missing label becomes "". The result is never nil.
func (k recordKind) toOptions(records []map[string]any) ([]cascade.Option, int) {
	out := make([]cascade.Option, 0, len(records))
	skipped := 0

	for _, r := range records {
		id, ok := firstID(r, k.ids)
		if !ok {
			skipped++
			continue
		}

		out = append(out, cascade.Option{Label: firstLabel(r, k.labels), ID: cascade.ID(id)})
	}

	return out, skipped
}

func firstLabel(r map[string]any, keys []string) string {
	for _, k := range keys {
		if s := asString(r[k]); s != "" {
			return s
		}
	}

	return ""
}

func firstID(r map[string]any, keys []string) (int64, bool) {
	for _, k := range keys {
		if id, ok := asInt(r[k]); ok {
			return id, true
		}
	}

	return 0, false
}

// asString renders scalar JSON values as text.
func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// asInt accepts JSON numbers and numeric strings.
func asInt(v any) (int64, bool) {
	switch x := v.(type) {
	case json.Number:
		n, err := x.Int64()
		return n, err == nil
	case float64:
		return int64(x), x == float64(int64(x))
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// Int is an integer that decodes from a JSON number or a numeric string.
type Int int64

// UnmarshalJSON implements json.Unmarshaler.
func (n *Int) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}

	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("backend: %q is not an integer", s)
	}

	*n = Int(v)

	return nil
}

// Series is one application series available to an employee. Numeric
// fields are nil when the backend sends null or omits them.
type Series struct {
	DisplaySeries  string `json:"displaySeries"`
	AvailableCount *Int   `json:"availableCount"`
	MasterStartNo  *Int   `json:"masterStartNo"`
	MasterEndNo    *Int   `json:"masterEndNo"`
	StartNo        *Int   `json:"startNo"`
}

// ApplicationDetails is the backend record for one application number.
type ApplicationDetails struct {
	ApplicationNo string `json:"-"`
	ZoneName      string `json:"zone_name"`
	CampusName    string `json:"cmps_name"`
	ProName       string `json:"pro_name"`
	DGMName       string `json:"dgm_name"`
	ZoneID        Int    `json:"zoneId"`
	CampusID      Int    `json:"campusId"`
	ProEmpID      Int    `json:"proEmpId"`
	DGMEmpID      Int    `json:"dgmEmpId"`
	Status        string `json:"status"`
	Reason        string `json:"reason"`
}
