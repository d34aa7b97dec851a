package rest

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/pennant/internal/ingest"
	"github.com/fortuna/pennant/internal/platform/logging"
)

func TestBackfillRequest(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/backfill",
		`{"start_date":"2025-03-28","end_date":"2025-04-03","mode":"replace"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	job := decodeBody(t, rec)["job"].(map[string]interface{})
	assert.EqualValues(t, 7, job["job_id"])
	assert.Equal(t, "2025-03-28", job["start_date"])
	assert.Equal(t, "2025-04-03", job["end_date"])
	assert.Equal(t, "replace", job["mode"])
	assert.Equal(t, "queued", job["status_message"])
	assert.Equal(t, "replace", f.queue.req.Mode)
}

func TestBackfillRequest_SingleDate(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/backfill", `{"start_date":"2025-05-05"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, f.queue.req.StartDate, f.queue.req.EndDate)
}

func TestBackfillRequest_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"start_date":`},
		{"missing start", `{"end_date":"2025-04-03"}`},
		{"bad date", `{"start_date":"2025/03/28"}`},
		{"bad mode", `{"start_date":"2025-03-28","mode":"overwrite"}`},
		{"end before start", `{"start_date":"2025-04-03","end_date":"2025-03-28"}`},
		{"range too long", `{"start_date":"2023-01-01","end_date":"2025-01-01"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			rec := f.do(t, http.MethodPost, "/api/v1/backfill", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestBackfillStatusAndJob(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/v1/backfill/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "idle", body["status"])
	assert.Len(t, body["history"], 1)

	rec = f.do(t, http.MethodGet, "/api/v1/backfill/7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "running", decodeBody(t, rec)["job"].(map[string]interface{})["status"])

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/backfill/8", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/backfill/abc", "").Code)
}

func TestScheduler(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/v1/scheduler/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["enabled"])

	rec = f.do(t, http.MethodPost, "/api/v1/scheduler/ingest", `{"date":"2025-06-30"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC), f.sched.date)
	assert.Equal(t, ingest.ModeMerge, f.sched.mode)

	assert.Equal(t, http.StatusBadRequest,
		f.do(t, http.MethodPost, "/api/v1/scheduler/ingest", `{"date":"2025-06-30","mode":"x"}`).Code)
}

func TestScheduler_Disabled(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	router := NewRouter(f.handler, NewBackfillHandler(f.queue, nil), logging.NewNop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/scheduler/ingest", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/scheduler/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["enabled"])
}

func TestCORSMiddleware(t *testing.T) {
	t.Parallel()

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })

	h := CORSMiddleware([]string{"https://pennant.example"})(next)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/standings", nil)
	req.Header.Set("Origin", "https://pennant.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://pennant.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/standings", nil)
	req.Header.Set("Origin", "https://other.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	CORSMiddleware([]string{"*"})(next).ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	t.Parallel()

	h := RecoveryMiddleware(logging.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
