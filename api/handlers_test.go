package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/toil-engine/accrual"
	"github.com/warp/toil-engine/api"
	"github.com/warp/toil-engine/engine"
	"github.com/warp/toil-engine/engine/store"
	"github.com/warp/toil-engine/schedule"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type testServer struct {
	srv *httptest.Server
	eng *engine.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	schedules := api.NewScheduleRegistry()
	holidays := api.NewHolidayRegistry()
	entries := api.NewEntryRegistry()

	calc := accrual.New(schedule.NewResolver(schedule.DefaultConfig()), accrual.DefaultConfig())
	eng, err := engine.New(engine.Config{
		Store:      store.NewMemory(),
		Calculator: calc,
		Throttle:   engine.ThrottleConfig{MinInterval: time.Nanosecond, WindowLimit: 1000},
		Entries:    entries,
		Schedules:  schedules,
		Holidays:   holidays,
	})
	require.NoError(t, err)
	t.Cleanup(eng.Close)

	handler := api.NewHandler(eng, schedules, holidays, entries)
	srv := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, eng: eng}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// monFriScheduleDTO rosters Mon-Fri 8h in both weeks.
func monFriScheduleDTO() api.ScheduleDTO {
	slot := api.DaySlotDTO{StartTime: "08:00", EndTime: "16:30", LunchMinutes: 30}
	days := map[string]api.DaySlotDTO{
		"monday": slot, "tuesday": slot, "wednesday": slot, "thursday": slot, "friday": slot,
	}
	return api.ScheduleDTO{
		ID:   "mon-fri",
		Name: "Standard",
		Weeks: map[string]api.WeekDTO{
			"1": {Days: days},
			"2": {Days: days},
		},
	}
}

// =============================================================================
// END-TO-END FLOW
// =============================================================================

func TestAPI_RecalculateFlow(t *testing.T) {
	// GIVEN: a schedule and a 10h entry on an 8h Wednesday
	// WHEN:  recalculating over the API
	// THEN:  2h of TOIL shows in the summary and the record listing
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPut, "/api/users/u1/schedule", monFriScheduleDTO())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = ts.do(t, http.MethodPost, "/api/users/u1/entries", api.EntriesRequest{
		Entries: []api.EntryDTO{{ID: "e1", Date: "2024-01-03", Hours: 10}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = ts.do(t, http.MethodPost, "/api/users/u1/recalculate", api.RecalculateRequest{Date: "2024-01-03"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := decode[api.SummaryDTO](t, resp)

	assert.Equal(t, "u1", summary.UserID)
	assert.Equal(t, "2024-01", summary.MonthYear)
	assert.InDelta(t, 2.0, summary.Accrued, 0.0001)
	assert.InDelta(t, 2.0, summary.Remaining, 0.0001)

	resp = ts.do(t, http.MethodGet, "/api/users/u1/records?month=2024-01", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	records := decode[[]api.RecordDTO](t, resp)
	require.Len(t, records, 1)
	assert.Equal(t, "2024-01-03", records[0].Date)
	assert.InDelta(t, 2.0, records[0].Hours, 0.0001)
}

func TestAPI_UsageFlow(t *testing.T) {
	ts := newTestServer(t)

	ts.do(t, http.MethodPut, "/api/users/u1/schedule", monFriScheduleDTO()).Body.Close()
	ts.do(t, http.MethodPost, "/api/users/u1/entries", api.EntriesRequest{
		Entries: []api.EntryDTO{{ID: "e1", Date: "2024-01-06", Hours: 4}}, // Saturday
	}).Body.Close()
	ts.do(t, http.MethodPost, "/api/users/u1/recalculate", api.RecalculateRequest{Date: "2024-01-06"}).Body.Close()

	resp := ts.do(t, http.MethodPost, "/api/users/u1/usage", api.UsageRequest{
		Date: "2024-01-10", Hours: 1.5, EntryID: "toil-1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	summary := decode[api.SummaryDTO](t, resp)

	assert.InDelta(t, 4.0, summary.Accrued, 0.0001)
	assert.InDelta(t, 1.5, summary.Used, 0.0001)
	assert.InDelta(t, 2.5, summary.Remaining, 0.0001)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestAPI_MissingScheduleIs404(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/api/users/ghost/recalculate", api.RecalculateRequest{Date: "2024-01-03"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_DisabledCalculationsAre429(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPut, "/api/users/u1/schedule", monFriScheduleDTO()).Body.Close()

	resp := ts.do(t, http.MethodPost, "/api/admin/calculations/disable", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = ts.do(t, http.MethodPost, "/api/users/u1/recalculate", api.RecalculateRequest{Date: "2024-01-03"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	resp.Body.Close()

	ts.do(t, http.MethodPost, "/api/admin/calculations/resume", nil).Body.Close()
	resp = ts.do(t, http.MethodPost, "/api/users/u1/recalculate", api.RecalculateRequest{Date: "2024-01-03"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestAPI_BadInputIs400(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/api/users/u1/recalculate", api.RecalculateRequest{Date: "not-a-date"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = ts.do(t, http.MethodPost, "/api/users/u1/usage", api.UsageRequest{Date: "2024-01-10", Hours: -1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = ts.do(t, http.MethodGet, "/api/users/u1/summary?month=March", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

// =============================================================================
// ADMIN
// =============================================================================

func TestAPI_DedupAndHealth(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/api/admin/dedup", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	counts := decode[map[string]int](t, resp)
	assert.Equal(t, 0, counts["voided"])

	resp = ts.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
