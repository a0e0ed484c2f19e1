package cascade

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Test levels for a campus-style chain.
const (
	lvYear     Level = "academicYear"
	lvDistrict Level = "district"
	lvCity     Level = "city"
	lvCampus   Level = "campus"
	lvAssignee Level = "assignee"
)

// seriesRecord mirrors the backend series row the view flattens.
type seriesRecord struct {
	DisplaySeries  string
	AvailableCount int64
	MasterStartNo  int64
	MasterEndNo    int64
	StartNo        int64
}

// fixtureData is the canned backend the fake fetchers answer from.
var (
	fixtureYears = []Option{{"2024-25", 1}, {"2025-26", 2}}

	fixtureDistricts = []Option{{"D1", 1}, {"D2", 2}}

	fixtureCities = map[ID][]Option{
		1: {{"Hyd", 11}, {"Sec", 12}},
		2: {{"Vij", 21}},
	}

	fixtureCampuses = map[ID][]Option{
		11: {{"Ameerpet", 111}},
		12: {{"Begumpet", 121}},
		21: {{"Benz", 211}},
	}
)

// countingObserver records observer callbacks per slot.
type countingObserver struct {
	mu       sync.Mutex
	issued   map[string]int
	accepted map[string]int
	stale    map[string]int
	failed   map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{
		issued:   map[string]int{},
		accepted: map[string]int{},
		stale:    map[string]int{},
		failed:   map[string]int{},
	}
}

func (o *countingObserver) FetchIssued(slot string)   { o.bump(o.issued, slot) }
func (o *countingObserver) FetchAccepted(slot string) { o.bump(o.accepted, slot) }
func (o *countingObserver) FetchStale(slot string)    { o.bump(o.stale, slot) }
func (o *countingObserver) FetchFailed(slot string, _ error) {
	o.bump(o.failed, slot)
}

func (o *countingObserver) bump(m map[string]int, slot string) {
	o.mu.Lock()
	m[slot]++
	o.mu.Unlock()
}

func (o *countingObserver) count(m map[string]int, slot string) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return m[slot]
}

// gate is one fetch held until the test releases it.
type gate struct {
	req     Request
	release chan gateResult
}

type gateResult struct {
	value any
	err   error
}

// gatedFetcher parks every call so tests control resolution order.
type gatedFetcher struct {
	arrived chan *gate
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{arrived: make(chan *gate, 16)}
}

func (g *gatedFetcher) fetch(ctx context.Context, req Request) (any, error) {
	gt := &gate{req: req, release: make(chan gateResult, 1)}
	g.arrived <- gt

	select {
	case r := <-gt.release:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *gatedFetcher) next(t *testing.T) *gate {
	t.Helper()

	select {
	case gt := <-g.arrived:
		return gt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fetch")
		return nil
	}
}

// fixture bundles the fetch functions of the test graph so individual tests
// can swap one out.
type fixture struct {
	mobileErr  error
	mobileMu   sync.Mutex
	cityFetch  FetchFunc
	mobileHits int
}

func (f *fixture) setMobileErr(err error) {
	f.mobileMu.Lock()
	f.mobileErr = err
	f.mobileMu.Unlock()
}

func (f *fixture) graph(t *testing.T) *Graph {
	t.Helper()

	cities := f.cityFetch
	if cities == nil {
		cities = func(_ context.Context, req Request) (any, error) {
			return fixtureCities[req.Key.Level(lvDistrict)], nil
		}
	}

	g, err := NewGraph(
		[]LevelSpec{
			{Name: lvYear, Field: "academicYear", ViewKeys: []string{"academicYearId"}},
			{Name: lvDistrict, Field: "campaignDistrictName", ViewKeys: []string{"campaignDistrictId"}},
			{Name: lvCity, Parents: []Level{lvDistrict}, Field: "cityName", ViewKeys: []string{"cityId"}},
			{Name: lvCampus, Parents: []Level{lvCity}, Field: "campusName", ViewKeys: []string{"campusId"}},
			{Name: lvAssignee, Parents: []Level{lvCampus}, Field: "issuedTo", ViewKeys: []string{"issuedToEmpId", "issuedToId"}},
		},
		[]ExtraSpec{
			{Name: "fee", Field: "applicationFee", ClearedBy: []Level{lvYear, lvDistrict, lvCity, lvCampus}, ViewKey: "applicationFee"},
		},
		[]SlotSpec{
			{Name: "years", Options: lvYear, Fetch: static(fixtureYears)},
			{Name: "districts", Options: lvDistrict, Fetch: static(fixtureDistricts)},
			{Name: "cities", Levels: []Level{lvDistrict}, Options: lvCity, Fetch: cities},
			{
				Name: "campuses", Levels: []Level{lvCity}, Options: lvCampus,
				Fetch: func(_ context.Context, req Request) (any, error) {
					return fixtureCampuses[req.Key.Level(lvCity)], nil
				},
			},
			{
				Name: "assignees", Levels: []Level{lvCampus}, Options: lvAssignee,
				Fetch: func(_ context.Context, req Request) (any, error) {
					c := req.Key.Level(lvCampus)
					return []Option{{"Ravi", c*10 + 1}, {"Sita", c*10 + 2}}, nil
				},
			},
			{
				Name: "mobile", Levels: []Level{lvAssignee},
				Fetch: func(_ context.Context, req Request) (any, error) {
					f.mobileMu.Lock()
					defer f.mobileMu.Unlock()

					f.mobileHits++
					if f.mobileErr != nil {
						return nil, f.mobileErr
					}

					return "98480" + strconv.FormatInt(int64(req.Key.Level(lvAssignee)), 10), nil
				},
				Fields: func(result any) map[string]any {
					return map[string]any{"mobileNumber": result.(string)}
				},
			},
			{
				Name: "series", Levels: []Level{lvYear}, Extras: []string{"fee"},
				Fetch: func(_ context.Context, req Request) (any, error) {
					fee, err := strconv.ParseInt(req.Key.Extra("fee"), 10, 64)
					if err != nil {
						return nil, fmt.Errorf("bad fee: %w", err)
					}

					return []seriesRecord{{
						DisplaySeries:  fmt.Sprintf("S-%d-%s", req.Key.Level(lvYear), req.Identity),
						AvailableCount: fee / 10,
						MasterStartNo:  1000,
						MasterEndNo:    1999,
						StartNo:        1000 + fee,
					}}, nil
				},
				Fields: func(result any) map[string]any {
					rows := result.([]seriesRecord)
					if len(rows) == 0 {
						return nil
					}

					return map[string]any{
						"applicationSeries":  rows[0].DisplaySeries,
						"applicationCount":   rows[0].AvailableCount,
						"availableAppNoFrom": rows[0].MasterStartNo,
						"availableAppNoTo":   rows[0].MasterEndNo,
						"applicationNoFrom":  rows[0].StartNo,
					}
				},
				Choices: func(result any) []string {
					rows := result.([]seriesRecord)
					out := make([]string, len(rows))
					for i, r := range rows {
						out[i] = r.DisplaySeries
					}

					return out
				},
			},
		},
	)
	require.NoError(t, err)

	return g
}

func static(opts []Option) FetchFunc {
	return func(context.Context, Request) (any, error) {
		return opts, nil
	}
}

// newTestSession starts a session over g and closes it on cleanup.
func newTestSession(t *testing.T, g *Graph, opts ...SessionOption) *Session {
	t.Helper()

	s, err := NewSession(context.Background(), g, "42", opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	return s
}

func settle(t *testing.T, s *Session) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, s.Settle(ctx))
}

// selectAll walks the chain down to the assignee and picks a fee.
func selectAll(t *testing.T, s *Session) {
	t.Helper()

	settle(t, s)

	for _, step := range []struct {
		level Level
		label string
	}{
		{lvYear, "2025-26"},
		{lvDistrict, "D1"},
		{lvCity, "Hyd"},
		{lvCampus, "Ameerpet"},
		{lvAssignee, "Ravi"},
	} {
		out, err := s.SelectLevel(step.level, step.label)
		require.NoError(t, err)
		require.Equal(t, OutcomeChanged, out, "selecting %s", step.level)
		settle(t, s)
	}

	_, err := s.SelectExtra("fee", "500")
	require.NoError(t, err)
	settle(t, s)
}

func generations(s *Session) map[string]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := map[string]uint64{}
	for _, st := range s.coord.states() {
		out[st.Name] = st.Generation
	}

	return out
}

var errBoom = errors.New("boom")

// recorder collects subscriber snapshots. Later fetch resolutions publish
// from other goroutines, so access is locked.
type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) record(snap Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, snap)
	r.mu.Unlock()
}

func (r *recorder) first(t *testing.T) Snapshot {
	t.Helper()

	r.mu.Lock()
	defer r.mu.Unlock()

	require.NotEmpty(t, r.snaps)

	return r.snaps[0]
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.snaps)
}
