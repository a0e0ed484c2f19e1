package cascade

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func viewGraph(t *testing.T) *Graph {
	t.Helper()

	g, err := NewGraph(
		[]LevelSpec{
			{Name: "zone", ViewKeys: []string{"zoneId"}},
			{Name: "employee", Parents: []Level{"zone"}, ViewKeys: []string{"issuedToEmpId", "issuedToId"}},
		},
		[]ExtraSpec{{Name: "fee", ViewKey: "applicationFee"}, {Name: "note"}},
		[]SlotSpec{
			{
				Name: "mobile", Levels: []Level{"employee"}, Fetch: nopFetch,
				Fields: func(result any) map[string]any {
					return map[string]any{"mobileNumber": result, "zoneId": ID(99)}
				},
			},
		},
	)
	require.NoError(t, err)

	return g
}

func TestBuildView(t *testing.T) {
	g := viewGraph(t)

	v := BuildView(g,
		map[Level]ID{"zone": 5, "employee": 7},
		map[string]string{"fee": "500", "note": "hidden"},
		[]SlotState{{Name: "mobile", Accepted: true, Result: "98480"}},
	)

	assert.Equal(t, View{
		"zoneId":         ID(99), // slot output wins on collision
		"issuedToEmpId":  ID(7),
		"issuedToId":     ID(7),
		"applicationFee": "500",
		"mobileNumber":   "98480",
	}, v)
}

func TestBuildView_OmitsAbsentSources(t *testing.T) {
	g := viewGraph(t)

	v := BuildView(g, map[Level]ID{"zone": 5}, nil, []SlotState{
		{Name: "mobile", Accepted: false, Result: "stale"},
	})
	assert.Equal(t, View{"zoneId": ID(5)}, v)

	var nilMap map[string]any
	v = BuildView(g, map[Level]ID{"zone": 5}, nil, []SlotState{
		{Name: "mobile", Accepted: true, Result: nilMap},
	})
	assert.NotContains(t, v, "mobileNumber", "nil field values are dropped")
}

func TestBuildView_Idempotent(t *testing.T) {
	g := viewGraph(t)
	sel := map[Level]ID{"zone": 5, "employee": 7}
	slots := []SlotState{{Name: "mobile", Accepted: true, Result: "98480"}}

	assert.Equal(t, BuildView(g, sel, nil, slots), BuildView(g, sel, nil, slots))
}

func TestView_Clone(t *testing.T) {
	v := View{"a": 1}
	c := v.Clone()
	c["b"] = 2

	assert.NotContains(t, v, "b")
	assert.Equal(t, View{}, View(nil).Clone())
}
