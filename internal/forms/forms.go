// Package forms declares the dependency graphs of the three distribution
// forms (zone, DGM, campus) and binds their slots to backend lookups.
package forms

import (
	"context"
	"fmt"

	"github.com/tonimelisma/appdist/internal/backend"
	"github.com/tonimelisma/appdist/internal/cascade"
	"github.com/tonimelisma/appdist/internal/payload"
)

// Levels shared by the forms.
const (
	LevelAcademicYear cascade.Level = "academicYear"
	LevelState        cascade.Level = "state"
	LevelDistrict     cascade.Level = "district"
	LevelCity         cascade.Level = "city"
	LevelZone         cascade.Level = "zone"
	LevelCampus       cascade.Level = "campus"
	LevelIssuedTo     cascade.Level = "issuedTo"
)

// ExtraFee is the application fee amount picked from the fee choices.
const ExtraFee = "applicationFee"

// Slot names.
const (
	SlotYears     = "academicYears"
	SlotStates    = "states"
	SlotDistricts = "districts"
	SlotCities    = "cities"
	SlotZones     = "zones"
	SlotCampuses  = "campuses"
	SlotIssuedTo  = "issuedTo"
	SlotMobile    = "mobile"
	SlotFees      = "feeAmounts"
	SlotSeries    = "series"
)

// Lookups is the backend surface the forms read from.
type Lookups interface {
	AcademicYears(ctx context.Context) ([]cascade.Option, error)
	States(ctx context.Context) ([]cascade.Option, error)
	Districts(ctx context.Context) ([]cascade.Option, error)
	Cities(ctx context.Context) ([]cascade.Option, error)
	CitiesByState(ctx context.Context, stateID cascade.ID) ([]cascade.Option, error)
	CitiesByDistrict(ctx context.Context, districtID cascade.ID) ([]cascade.Option, error)
	ZonesByCity(ctx context.Context, cityID cascade.ID) ([]cascade.Option, error)
	CampusesByCity(ctx context.Context, cityID cascade.ID) ([]cascade.Option, error)
	CampusesByZone(ctx context.Context, zoneID cascade.ID) ([]cascade.Option, error)
	EmployeesByZone(ctx context.Context, zoneID cascade.ID) ([]cascade.Option, error)
	DGMsByCampus(ctx context.Context, campusID cascade.ID) ([]cascade.Option, error)
	ProsByCampus(ctx context.Context, campusID cascade.ID) ([]cascade.Option, error)
	MobileNo(ctx context.Context, empID cascade.ID) (string, error)
	FeeAmounts(ctx context.Context, emp cascade.Identity, yearID cascade.ID) ([]string, error)
	ApplicationSeries(ctx context.Context, emp cascade.Identity, yearID cascade.ID, fee string) ([]backend.Series, error)
}

// New returns the dependency graph for kind.
func New(kind payload.Kind, lk Lookups) (*cascade.Graph, error) {
	var (
		levels []cascade.LevelSpec
		slots  []cascade.SlotSpec
	)

	switch kind {
	case payload.KindZone:
		levels, slots = zoneForm(lk)
	case payload.KindDGM:
		levels, slots = dgmForm(lk)
	case payload.KindCampus:
		levels, slots = campusForm(lk)
	default:
		return nil, &payload.UnknownKindError{Kind: string(kind)}
	}

	// Picking a new series source resets the chosen fee; the assignee does not.
	var clearedBy []cascade.Level
	for _, l := range levels {
		if l.Name != LevelIssuedTo {
			clearedBy = append(clearedBy, l.Name)
		}
	}

	extras := []cascade.ExtraSpec{{
		Name:      ExtraFee,
		Field:     "applicationFee",
		ClearedBy: clearedBy,
		ViewKey:   "applicationFee",
	}}

	slots = append(slots, sideData(lk)...)

	g, err := cascade.NewGraph(levels, extras, slots)
	if err != nil {
		return nil, fmt.Errorf("forms: building %s graph: %w", kind, err)
	}

	return g, nil
}

var (
	yearLevel = cascade.LevelSpec{
		Name: LevelAcademicYear, Field: "academicYear", ViewKeys: []string{"academicYearId"},
	}
	issuedToKeys = []string{"issuedToEmpId", "issuedToId"}
)

// zoneForm: academic year, state > city > zone > zonal employee.
func zoneForm(lk Lookups) ([]cascade.LevelSpec, []cascade.SlotSpec) {
	levels := []cascade.LevelSpec{
		yearLevel,
		{Name: LevelState, Field: "stateName", ViewKeys: []string{"stateId"}},
		{Name: LevelCity, Parents: []cascade.Level{LevelState}, Field: "cityName", ViewKeys: []string{"cityId"}},
		{Name: LevelZone, Parents: []cascade.Level{LevelCity}, Field: "zoneName", ViewKeys: []string{"zoneId"}},
		{Name: LevelIssuedTo, Parents: []cascade.Level{LevelZone}, Field: "issuedTo", ViewKeys: issuedToKeys},
	}

	slots := []cascade.SlotSpec{
		{Name: SlotYears, Options: LevelAcademicYear, Fetch: list(lk.AcademicYears)},
		{Name: SlotStates, Options: LevelState, Fetch: list(lk.States)},
		listSlot(SlotCities, LevelState, LevelCity, lk.CitiesByState),
		listSlot(SlotZones, LevelCity, LevelZone, lk.ZonesByCity),
		listSlot(SlotIssuedTo, LevelZone, LevelIssuedTo, lk.EmployeesByZone),
	}

	return levels, slots
}

// dgmForm: academic year, city > zone > campus > DGM.
func dgmForm(lk Lookups) ([]cascade.LevelSpec, []cascade.SlotSpec) {
	levels := []cascade.LevelSpec{
		yearLevel,
		{Name: LevelCity, Field: "cityName", ViewKeys: []string{"cityId"}},
		{Name: LevelZone, Parents: []cascade.Level{LevelCity}, Field: "zoneName", ViewKeys: []string{"zoneId"}},
		{Name: LevelCampus, Parents: []cascade.Level{LevelZone}, Field: "campusName", ViewKeys: []string{"campusId"}},
		{Name: LevelIssuedTo, Parents: []cascade.Level{LevelCampus}, Field: "issuedTo", ViewKeys: issuedToKeys},
	}

	slots := []cascade.SlotSpec{
		{Name: SlotYears, Options: LevelAcademicYear, Fetch: list(lk.AcademicYears)},
		{Name: SlotCities, Options: LevelCity, Fetch: list(lk.Cities)},
		listSlot(SlotZones, LevelCity, LevelZone, lk.ZonesByCity),
		listSlot(SlotCampuses, LevelZone, LevelCampus, lk.CampusesByZone),
		listSlot(SlotIssuedTo, LevelCampus, LevelIssuedTo, lk.DGMsByCampus),
	}

	return levels, slots
}

// campusForm: academic year, district > city > campus > PRO.
func campusForm(lk Lookups) ([]cascade.LevelSpec, []cascade.SlotSpec) {
	levels := []cascade.LevelSpec{
		yearLevel,
		{Name: LevelDistrict, Field: "campaignDistrictName", ViewKeys: []string{"campaignDistrictId"}},
		{Name: LevelCity, Parents: []cascade.Level{LevelDistrict}, Field: "cityName", ViewKeys: []string{"cityId"}},
		{Name: LevelCampus, Parents: []cascade.Level{LevelCity}, Field: "campusName", ViewKeys: []string{"campusId"}},
		{Name: LevelIssuedTo, Parents: []cascade.Level{LevelCampus}, Field: "issuedTo", ViewKeys: issuedToKeys},
	}

	slots := []cascade.SlotSpec{
		{Name: SlotYears, Options: LevelAcademicYear, Fetch: list(lk.AcademicYears)},
		{Name: SlotDistricts, Options: LevelDistrict, Fetch: list(lk.Districts)},
		listSlot(SlotCities, LevelDistrict, LevelCity, lk.CitiesByDistrict),
		listSlot(SlotCampuses, LevelCity, LevelCampus, lk.CampusesByCity),
		listSlot(SlotIssuedTo, LevelCampus, LevelIssuedTo, lk.ProsByCampus),
	}

	return levels, slots
}

// sideData are the non-option slots every form carries.
func sideData(lk Lookups) []cascade.SlotSpec {
	return []cascade.SlotSpec{
		{
			Name:   SlotMobile,
			Levels: []cascade.Level{LevelIssuedTo},
			Fetch:  func(ctx context.Context, req cascade.Request) (any, error) {
				mobile, err := lk.MobileNo(ctx, req.Key.Level(LevelIssuedTo))
				if err != nil {
					return nil, err
				}

				return mobile, nil
			},
			Fields: func(result any) map[string]any {
				mobile, _ := result.(string)
				if mobile == "" {
					return nil
				}

				return map[string]any{"mobileNumber": mobile}
			},
		},
		{
			Name:   SlotFees,
			Levels: []cascade.Level{LevelAcademicYear},
			Fetch:  func(ctx context.Context, req cascade.Request) (any, error) {
				fees, err := lk.FeeAmounts(ctx, req.Identity, req.Key.Level(LevelAcademicYear))
				if err != nil {
					return nil, err
				}

				return fees, nil
			},
			Choices: func(result any) []string {
				fees, _ := result.([]string)
				return fees
			},
		},
		{
			Name:   SlotSeries,
			Levels: []cascade.Level{LevelAcademicYear},
			Extras: []string{ExtraFee},
			Fetch:  func(ctx context.Context, req cascade.Request) (any, error) {
				series, err := lk.ApplicationSeries(ctx, req.Identity, req.Key.Level(LevelAcademicYear), req.Key.Extra(ExtraFee))
				if err != nil {
					return nil, err
				}

				return series, nil
			},
			Fields:  seriesFields,
			Choices: seriesChoices,
		},
	}
}

// seriesFields flattens the first series record into the view. Fields the
// backend left null are omitted, never zero-filled.
func seriesFields(result any) map[string]any {
	series, _ := result.([]backend.Series)
	if len(series) == 0 {
		return nil
	}

	s := series[0]
	out := make(map[string]any, 5)

	if s.DisplaySeries != "" {
		out["applicationSeries"] = s.DisplaySeries
	}

	for key, n := range map[string]*backend.Int{
		"applicationCount":   s.AvailableCount,
		"availableAppNoFrom": s.MasterStartNo,
		"availableAppNoTo":   s.MasterEndNo,
		"applicationNoFrom":  s.StartNo,
	} {
		if n != nil {
			out[key] = int64(*n)
		}
	}

	return out
}

func seriesChoices(result any) []string {
	series, _ := result.([]backend.Series)
	out := make([]string, len(series))

	for i, s := range series {
		out[i] = s.DisplaySeries
	}

	return out
}

func list(fn func(context.Context) ([]cascade.Option, error)) cascade.FetchFunc {
	return func(ctx context.Context, _ cascade.Request) (any, error) {
		opts, err := fn(ctx)
		if err != nil {
			return nil, err
		}

		return opts, nil
	}
}

// listSlot feeds child's options from a lookup keyed by parent's ID.
func listSlot(name string, parent, child cascade.Level, fn func(context.Context, cascade.ID) ([]cascade.Option, error)) cascade.SlotSpec {
	return cascade.SlotSpec{
		Name:    name,
		Levels:  []cascade.Level{parent},
		Options: child,
		Fetch:   func(ctx context.Context, req cascade.Request) (any, error) {
			opts, err := fn(ctx, req.Key.Level(parent))
			if err != nil {
				return nil, err
			}

			return opts, nil
		},
	}
}

// Seeds converts edit-flow initial values (field name to label) into level
// seeds. defaultYear seeds the academic year unless a year is given.
func Seeds(g *cascade.Graph, defaultYear string, initial map[string]string) map[cascade.Level]string {
	seeds := make(map[cascade.Level]string)

	if defaultYear != "" && g.HasLevel(LevelAcademicYear) {
		seeds[LevelAcademicYear] = defaultYear
	}

	for field, label := range initial {
		if label == "" {
			continue
		}

		if l, ok := g.FieldLevel(field); ok {
			seeds[l] = label
		}
	}

	return seeds
}
