package backend

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/tonimelisma/appdist/internal/cascade"
)

// Lookup endpoint paths, relative to the lookup prefix.
const (
	pathAcademicYears = "/academic-years"
	pathStates        = "/states"
	pathDistricts     = "/districts"
	pathCities        = "/cities"
	pathZones         = "/zones"
	pathCampuses      = "/campuses"
	pathZoneEmployees = "/employees/zone"
	pathDGMs          = "/dgms"
	pathPros          = "/pros"
	pathMobile        = "/mobile-no"
	pathFeeAmounts    = "/fee-amounts"
	pathSeries        = "/application-series"
	pathAppDetails    = "/application-details"
)

// ErrNoApplicationNo is returned for an empty application number.
var ErrNoApplicationNo = errors.New("backend: application number is required")

// Lookups fetches option lists and side data. Every list method returns an
// empty, non-nil slice when a required ID is zero, without a request.
type Lookups struct {
	client *Client
	prefix string
	logger *slog.Logger
}

// NewLookups returns lookups served under prefix (e.g. "/distribution/gets").
func NewLookups(client *Client, prefix string, logger *slog.Logger) *Lookups {
	if logger == nil {
		logger = slog.Default()
	}

	return &Lookups{
		client: client,
		prefix: strings.TrimRight(prefix, "/"),
		logger: logger,
	}
}

func (l *Lookups) options(ctx context.Context, kind recordKind, path string, query url.Values) ([]cascade.Option, error) {
	var records []map[string]any
	if err := l.client.GetJSON(ctx, l.prefix+path, query, &records); err != nil {
		return nil, err
	}

	opts, skipped := kind.toOptions(records)
	if skipped > 0 {
		l.logger.Debug("skipped lookup records without id",
			slog.String("kind", kind.name),
			slog.Int("skipped", skipped),
		)
	}

	return opts, nil
}

func byID(key string, id cascade.ID) url.Values {
	return url.Values{key: {strconv.FormatInt(int64(id), 10)}}
}

// AcademicYears lists academic years.
func (l *Lookups) AcademicYears(ctx context.Context) ([]cascade.Option, error) {
	return l.options(ctx, yearRecord, pathAcademicYears, nil)
}

// States lists states.
func (l *Lookups) States(ctx context.Context) ([]cascade.Option, error) {
	return l.options(ctx, stateRecord, pathStates, nil)
}

// Districts lists campaign districts.
func (l *Lookups) Districts(ctx context.Context) ([]cascade.Option, error) {
	return l.options(ctx, districtRecord, pathDistricts, nil)
}

// Cities lists every city.
func (l *Lookups) Cities(ctx context.Context) ([]cascade.Option, error) {
	return l.options(ctx, cityRecord, pathCities, nil)
}

// CitiesByState lists the cities of a state.
func (l *Lookups) CitiesByState(ctx context.Context, stateID cascade.ID) ([]cascade.Option, error) {
	if stateID == 0 {
		return []cascade.Option{}, nil
	}

	return l.options(ctx, cityRecord, pathCities, byID("stateId", stateID))
}

// CitiesByDistrict lists the cities of a campaign district.
func (l *Lookups) CitiesByDistrict(ctx context.Context, districtID cascade.ID) ([]cascade.Option, error) {
	if districtID == 0 {
		return []cascade.Option{}, nil
	}

	return l.options(ctx, cityRecord, pathCities, byID("districtId", districtID))
}

// ZonesByCity lists the zones of a city.
func (l *Lookups) ZonesByCity(ctx context.Context, cityID cascade.ID) ([]cascade.Option, error) {
	if cityID == 0 {
		return []cascade.Option{}, nil
	}

	return l.options(ctx, zoneRecord, pathZones, byID("cityId", cityID))
}

// CampusesByCity lists the campuses of a city.
func (l *Lookups) CampusesByCity(ctx context.Context, cityID cascade.ID) ([]cascade.Option, error) {
	if cityID == 0 {
		return []cascade.Option{}, nil
	}

	return l.options(ctx, campusRecord, pathCampuses, byID("cityId", cityID))
}

// CampusesByZone lists the campuses of a zone.
func (l *Lookups) CampusesByZone(ctx context.Context, zoneID cascade.ID) ([]cascade.Option, error) {
	if zoneID == 0 {
		return []cascade.Option{}, nil
	}

	return l.options(ctx, campusRecord, pathCampuses, byID("zoneId", zoneID))
}

// EmployeesByZone lists the employees a zone can issue to.
func (l *Lookups) EmployeesByZone(ctx context.Context, zoneID cascade.ID) ([]cascade.Option, error) {
	if zoneID == 0 {
		return []cascade.Option{}, nil
	}

	return l.options(ctx, employeeRecord, pathZoneEmployees, byID("zoneId", zoneID))
}

// DGMsByCampus lists the DGMs of a campus.
func (l *Lookups) DGMsByCampus(ctx context.Context, campusID cascade.ID) ([]cascade.Option, error) {
	if campusID == 0 {
		return []cascade.Option{}, nil
	}

	return l.options(ctx, employeeRecord, pathDGMs, byID("campusId", campusID))
}

// ProsByCampus lists the PROs of a campus.
func (l *Lookups) ProsByCampus(ctx context.Context, campusID cascade.ID) ([]cascade.Option, error) {
	if campusID == 0 {
		return []cascade.Option{}, nil
	}

	return l.options(ctx, employeeRecord, pathPros, byID("campusId", campusID))
}

// MobileNo returns an employee's mobile number as text, or "" if the
// backend has none.
func (l *Lookups) MobileNo(ctx context.Context, empID cascade.ID) (string, error) {
	if empID == 0 {
		return "", nil
	}

	var v any
	if err := l.client.GetJSON(ctx, l.prefix+pathMobile, byID("empId", empID), &v); err != nil {
		return "", err
	}

	return asString(v), nil
}

// FeeAmounts lists the application fee amounts available to an employee in
// an academic year, rendered as text.
func (l *Lookups) FeeAmounts(ctx context.Context, emp cascade.Identity, yearID cascade.ID) ([]string, error) {
	if emp == "" || yearID == 0 {
		return []string{}, nil
	}

	q := url.Values{
		"empId":          {string(emp)},
		"academicYearId": {strconv.FormatInt(int64(yearID), 10)},
	}

	var raw []any
	if err := l.client.GetJSON(ctx, l.prefix+pathFeeAmounts, q, &raw); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s := asString(v); s != "" {
			out = append(out, s)
		}
	}

	return out, nil
}

// ApplicationSeries lists the series available to an employee for a year
// and fee amount.
func (l *Lookups) ApplicationSeries(ctx context.Context, emp cascade.Identity, yearID cascade.ID, fee string) ([]Series, error) {
	if emp == "" || yearID == 0 || fee == "" {
		return []Series{}, nil
	}

	q := url.Values{
		"empId":          {string(emp)},
		"academicYearId": {strconv.FormatInt(int64(yearID), 10)},
		"amount":         {fee},
		"isPro":          {"false"},
	}

	var out []Series
	if err := l.client.GetJSON(ctx, l.prefix+pathSeries, q, &out); err != nil {
		return nil, err
	}

	if out == nil {
		out = []Series{}
	}

	return out, nil
}

// ApplicationDetails fetches the record for an application number.
func (l *Lookups) ApplicationDetails(ctx context.Context, applicationNo string) (*ApplicationDetails, error) {
	applicationNo = strings.TrimSpace(applicationNo)
	if applicationNo == "" {
		return nil, ErrNoApplicationNo
	}

	var d ApplicationDetails
	if err := l.client.GetJSON(ctx, l.prefix+pathAppDetails, url.Values{"applicationNo": {applicationNo}}, &d); err != nil {
		return nil, err
	}

	d.ApplicationNo = applicationNo

	return &d, nil
}
