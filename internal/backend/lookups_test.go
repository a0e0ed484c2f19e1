package backend

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/appdist/internal/cascade"
)

// fakeBackend serves canned bodies keyed by path and raw query.
func fakeBackend(t *testing.T, routes map[string]string) (*Lookups, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		key := r.URL.Path
		if r.URL.RawQuery != "" {
			key += "?" + r.URL.RawQuery
		}

		body, ok := routes[key]
		if !ok {
			http.Error(w, "no route "+key, http.StatusNotFound)
			return
		}

		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	return NewLookups(newTestClient(t, srv.URL, nil), "/gets/", nil), &calls
}

func TestLookups_LabelFallbacks(t *testing.T) {
	l, _ := fakeBackend(t, map[string]string{
		"/gets/academic-years": `[{"acdcYearId":1,"academicYear":"2024-25"},{"id":2,"name":"2025-26"},{"name":"no id"}]`,
		"/gets/districts":      `[{"districtId":"5","districtName":"D1"},{"id":6,"name":"D2"}]`,
	})
	ctx := context.Background()

	years, err := l.AcademicYears(ctx)
	require.NoError(t, err)
	assert.Equal(t, []cascade.Option{{Label: "2024-25", ID: 1}, {Label: "2025-26", ID: 2}}, years)

	districts, err := l.Districts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []cascade.Option{{Label: "D1", ID: 5}, {Label: "D2", ID: 6}}, districts)
}

func TestLookups_FilteredLists(t *testing.T) {
	l, _ := fakeBackend(t, map[string]string{
		"/gets/cities?districtId=5":     `[{"id":11,"name":"Hyd"}]`,
		"/gets/cities?stateId=2":        `[{"cityId":12,"cityName":"Sec"}]`,
		"/gets/zones?cityId=11":         `[{"zoneId":4,"zoneName":"North"}]`,
		"/gets/campuses?cityId=11":      `[{"id":111,"name":"Ameerpet"}]`,
		"/gets/campuses?zoneId=4":       `[{"campusId":112,"campusName":"Kukatpally"}]`,
		"/gets/pros?campusId=111":       `[{"id":1111,"name":"Ravi"}]`,
		"/gets/dgms?campusId=112":       `[{"empId":2222,"empName":"Sita"}]`,
		"/gets/employees/zone?zoneId=4": `[{"employeeId":3333,"employeeName":"Anil"}]`,
	})
	ctx := context.Background()

	tests := []struct {
		name string
		call func() ([]cascade.Option, error)
		want []cascade.Option
	}{
		{"cities by district", func() ([]cascade.Option, error) { return l.CitiesByDistrict(ctx, 5) }, []cascade.Option{{Label: "Hyd", ID: 11}}},
		{"cities by state", func() ([]cascade.Option, error) { return l.CitiesByState(ctx, 2) }, []cascade.Option{{Label: "Sec", ID: 12}}},
		{"zones by city", func() ([]cascade.Option, error) { return l.ZonesByCity(ctx, 11) }, []cascade.Option{{Label: "North", ID: 4}}},
		{"campuses by city", func() ([]cascade.Option, error) { return l.CampusesByCity(ctx, 11) }, []cascade.Option{{Label: "Ameerpet", ID: 111}}},
		{"campuses by zone", func() ([]cascade.Option, error) { return l.CampusesByZone(ctx, 4) }, []cascade.Option{{Label: "Kukatpally", ID: 112}}},
		{"pros by campus", func() ([]cascade.Option, error) { return l.ProsByCampus(ctx, 111) }, []cascade.Option{{Label: "Ravi", ID: 1111}}},
		{"dgms by campus", func() ([]cascade.Option, error) { return l.DGMsByCampus(ctx, 112) }, []cascade.Option{{Label: "Sita", ID: 2222}}},
		{"employees by zone", func() ([]cascade.Option, error) { return l.EmployeesByZone(ctx, 4) }, []cascade.Option{{Label: "Anil", ID: 3333}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.call()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLookups_InsufficientInputsMakeNoRequest(t *testing.T) {
	l, calls := fakeBackend(t, nil)
	ctx := context.Background()

	cities, err := l.CitiesByDistrict(ctx, 0)
	require.NoError(t, err)
	assert.NotNil(t, cities)
	assert.Empty(t, cities)

	fees, err := l.FeeAmounts(ctx, "42", 0)
	require.NoError(t, err)
	assert.NotNil(t, fees)

	series, err := l.ApplicationSeries(ctx, "42", 2, "")
	require.NoError(t, err)
	assert.NotNil(t, series)

	mobile, err := l.MobileNo(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, mobile)

	assert.Zero(t, calls.Load())
}

func TestLookups_SideData(t *testing.T) {
	l, _ := fakeBackend(t, map[string]string{
		"/gets/mobile-no?empId=1111":                                                `9848012345`,
		"/gets/fee-amounts?academicYearId=2&empId=42":                               `[500, "1000", null]`,
		"/gets/application-series?academicYearId=2&amount=500&empId=42&isPro=false": `[{"displaySeries":"S-2","availableCount":"50","masterStartNo":1000,"masterEndNo":1999,"startNo":1500}]`,
	})
	ctx := context.Background()

	mobile, err := l.MobileNo(ctx, 1111)
	require.NoError(t, err)
	assert.Equal(t, "9848012345", mobile)

	fees, err := l.FeeAmounts(ctx, "42", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"500", "1000"}, fees)

	series, err := l.ApplicationSeries(ctx, "42", 2, "500")
	require.NoError(t, err)
	assert.Equal(t, []Series{{
		DisplaySeries:  "S-2",
		AvailableCount: intp(50),
		MasterStartNo:  intp(1000),
		MasterEndNo:    intp(1999),
		StartNo:        intp(1500),
	}}, series)
}

func TestLookups_SeriesNullFieldsStayNil(t *testing.T) {
	l, _ := fakeBackend(t, map[string]string{
		"/gets/application-series?academicYearId=2&amount=500&empId=42&isPro=false": `[{"displaySeries":"A-1","availableCount":null,"masterStartNo":1000,"masterEndNo":null}]`,
	})

	series, err := l.ApplicationSeries(context.Background(), "42", 2, "500")
	require.NoError(t, err)
	require.Len(t, series, 1)

	assert.Nil(t, series[0].AvailableCount)
	assert.Nil(t, series[0].MasterEndNo)
	assert.Nil(t, series[0].StartNo)
	require.NotNil(t, series[0].MasterStartNo)
	assert.Equal(t, Int(1000), *series[0].MasterStartNo)
}

func intp(v int64) *Int {
	n := Int(v)
	return &n
}

func TestLookups_ApplicationDetails(t *testing.T) {
	l, _ := fakeBackend(t, map[string]string{
		"/gets/application-details?applicationNo=250001": `{"zone_name":"North","cmps_name":"Ameerpet","dgmEmpId":"77","zoneId":4,"campusId":111,"status":"Left"}`,
	})
	ctx := context.Background()

	d, err := l.ApplicationDetails(ctx, " 250001 ")
	require.NoError(t, err)
	assert.Equal(t, "250001", d.ApplicationNo)
	assert.Equal(t, "North", d.ZoneName)
	assert.Equal(t, Int(77), d.DGMEmpID)
	assert.Equal(t, Int(111), d.CampusID)
	assert.Equal(t, "Left", d.Status)

	_, err = l.ApplicationDetails(ctx, "")
	require.ErrorIs(t, err, ErrNoApplicationNo)

	_, err = l.ApplicationDetails(ctx, "999")
	require.ErrorIs(t, err, ErrNotFound)
}
