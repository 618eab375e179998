package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpsanalyzer/telemetry.report/internal/report"
	"github.com/gpsanalyzer/telemetry.report/internal/tablesort"
)

func sampleResult(ids ...string) *report.AnalysisResult {
	res := &report.AnalysisResult{}
	for _, id := range ids {
		res.Scorecard = append(res.Scorecard, report.NewRow("imei", id))
	}
	return res
}

func TestNewStoreDefaults(t *testing.T) {
	s := New(100)
	st := s.State()
	assert.Equal(t, report.AllDevices, st.SelectedDevice)
	assert.Equal(t, 1, st.Page)
	assert.Equal(t, 1, st.TotalPages)
	assert.Equal(t, 100, st.PerPage)
	assert.Nil(t, s.Result())
	assert.Nil(t, s.DeviceIDs())
}

func TestLoadResetsViewState(t *testing.T) {
	s := New(50)
	s.Load(sampleResult("A", "B"), "an-1")
	require.True(t, s.SelectDevice("B"))
	s.SetSort(TableScorecard, tablesort.State{Column: "imei", Direction: tablesort.Desc})
	s.SetSort(TableStats, tablesort.State{Column: "x", Direction: tablesort.Asc})
	s.SetSearch(TableStats, "foo")
	tk, err := s.BeginPage(1)
	require.NoError(t, err)
	require.NoError(t, s.ApplyPage(tk, report.PageMeta{Page: 1, Pages: 4, Total: 200}))

	s.Load(sampleResult("C"), "an-2")
	st := s.State()
	assert.Equal(t, report.AllDevices, st.SelectedDevice)
	assert.Empty(t, st.Sorts)
	assert.Empty(t, st.Search)
	assert.Equal(t, 1, st.Page)
	assert.Equal(t, 1, st.TotalPages)
	assert.Equal(t, 0, st.TotalRows)
	assert.Equal(t, 50, st.PerPage)
	assert.Equal(t, "an-2", s.AnalysisID())
	assert.Equal(t, []string{"C"}, s.DeviceIDs())
}

func TestSelectDeviceRejectsUnknown(t *testing.T) {
	s := New(100)
	assert.False(t, s.SelectDevice("A"), "nothing loaded")
	assert.True(t, s.SelectDevice(report.AllDevices))

	s.Load(sampleResult("A", "B"), "an")
	assert.True(t, s.SelectDevice("A"))
	assert.False(t, s.SelectDevice("Z"))
	assert.Equal(t, "A", s.State().SelectedDevice)
}

func TestStateIsCopy(t *testing.T) {
	s := New(100)
	st := s.State()
	st.Sorts[TableScorecard] = tablesort.State{Column: "x", Direction: tablesort.Asc}
	st.Search[TableScorecard] = "y"
	assert.Empty(t, s.State().Sorts)
	assert.Empty(t, s.State().Search)
}

func TestBeginPageRequiresAnalysis(t *testing.T) {
	s := New(100)
	s.Load(sampleResult("A"), "")
	_, err := s.BeginPage(1)
	assert.ErrorIs(t, err, ErrNoAnalysis)
}

func TestApplyPageAdoptsServerPage(t *testing.T) {
	s := New(100)
	s.Load(sampleResult("A"), "an")

	tk, err := s.BeginPage(9)
	require.NoError(t, err)
	assert.Equal(t, Ticket{AnalysisID: "an", Device: "all", Page: 9, PerPage: 100, gen: tk.gen}, tk)

	require.NoError(t, s.ApplyPage(tk, report.PageMeta{Page: 3, Pages: 3, Total: 250, PerPage: 100}))
	st := s.State()
	assert.Equal(t, 3, st.Page)
	assert.Equal(t, 3, st.TotalPages)
	assert.Equal(t, 250, st.TotalRows)
}

func TestApplyPageEmptyResult(t *testing.T) {
	s := New(100)
	s.Load(sampleResult("A"), "an")
	tk, err := s.BeginPage(1)
	require.NoError(t, err)
	require.NoError(t, s.ApplyPage(tk, report.PageMeta{Page: 0, Pages: 0, Total: 0}))
	st := s.State()
	assert.Equal(t, 1, st.Page)
	assert.Equal(t, 1, st.TotalPages)
}

func TestApplyPageDiscardsStale(t *testing.T) {
	s := New(100)
	s.Load(sampleResult("A", "B"), "an")

	older, err := s.BeginPage(2)
	require.NoError(t, err)
	newer, err := s.BeginPage(3)
	require.NoError(t, err)

	assert.ErrorIs(t, s.ApplyPage(older, report.PageMeta{Page: 2, Pages: 5}), ErrStalePage)
	require.NoError(t, s.ApplyPage(newer, report.PageMeta{Page: 3, Pages: 5}))
	assert.Equal(t, 3, s.State().Page)

	// device change invalidates the outstanding request
	inflight, err := s.BeginPage(4)
	require.NoError(t, err)
	require.True(t, s.SelectDevice("B"))
	assert.ErrorIs(t, s.ApplyPage(inflight, report.PageMeta{Page: 4, Pages: 5}), ErrStalePage)
	assert.Equal(t, 1, s.State().Page)

	// reload invalidates too
	inflight, err = s.BeginPage(1)
	require.NoError(t, err)
	s.Load(sampleResult("A"), "an")
	assert.ErrorIs(t, s.ApplyPage(inflight, report.PageMeta{Page: 1, Pages: 1}), ErrStalePage)

	// and a page size change
	inflight, err = s.BeginPage(1)
	require.NoError(t, err)
	s.SetPerPage(25)
	assert.ErrorIs(t, s.ApplyPage(inflight, report.PageMeta{Page: 1, Pages: 1}), ErrStalePage)
	assert.Equal(t, 25, s.State().PerPage)
}

func TestSetSearchEmptyClears(t *testing.T) {
	s := New(100)
	s.SetSearch(TableScorecard, "abc")
	assert.Equal(t, "abc", s.State().Search[TableScorecard])
	s.SetSearch(TableScorecard, "")
	_, ok := s.State().Search[TableScorecard]
	assert.False(t, ok)
}

func TestClear(t *testing.T) {
	s := New(100)
	s.Load(sampleResult("A"), "an")
	s.Clear()
	assert.Nil(t, s.Result())
	assert.Empty(t, s.AnalysisID())
}
