package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/charitybot/api/handler"
	"github.com/use-agent/charitybot/api/middleware"
	"github.com/use-agent/charitybot/cache"
	"github.com/use-agent/charitybot/config"
	"github.com/use-agent/charitybot/models"
	"github.com/use-agent/charitybot/results"
)

const testKey = "test-key"

// fakeDispatcher returns a record for every identifier except those in drop.
// A run containing an identifier in fail is rejected with that error.
type fakeDispatcher struct {
	drop map[string]bool
	fail map[string]error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, ids []string, _ int, extra ...results.Sink) (*results.Table, error) {
	for _, id := range ids {
		if err := f.fail[id]; err != nil {
			return nil, err
		}
	}
	table := results.NewTable()
	for _, id := range ids {
		if f.drop[id] {
			continue
		}
		rec := models.NewCharityRecord(id)
		table.Append(rec)
		for _, s := range extra {
			_ = s.Write(rec)
		}
	}
	return table, nil
}

func (f *fakeDispatcher) ActiveWorkers() int { return 0 }

func newTestRouter(t *testing.T, rl config.RateLimitConfig) (*gin.Engine, *handler.Runs) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Server.Mode = gin.TestMode
	cfg.Auth.APIKeys = []string{testKey}

	d := &fakeDispatcher{
		drop: map[string]bool{"33000000000": true},
		fail: map[string]error{
			"44000000000": models.NewExtractError(models.ErrCodeInvalidInput, "worker count must be at least 1", nil),
			"55000000000": errors.New("collector closed"),
		},
	}
	records := cache.New(100, time.Hour)
	runs := handler.NewRuns(d, records, nil, handler.RunDefaults{Workers: 2})
	t.Cleanup(func() { _ = runs.Shutdown(context.Background()) })

	r := NewRouter(cfg, Deps{
		Runs:       runs,
		Dispatcher: d,
		Records:    records,
		Limiters:   middleware.NewLimiters(rl),
		Gatherer:   prometheus.NewRegistry(),
		StartTime:  time.Now(),
	})
	return r, runs
}

func do(r http.Handler, method, path, body string, authed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+testKey)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthIsOpen(t *testing.T) {
	r, _ := newTestRouter(t, config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100})
	w := do(r, http.MethodGet, "/api/v1/health", "", false)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, 10, resp.WorkerPool.MaxWorkers)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/metrics", "", false).Code)
}

func TestRunsRequireAuth(t *testing.T) {
	r, _ := newTestRouter(t, config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100})
	w := do(r, http.MethodPost, "/api/v1/runs", `{"abns":["1"]}`, false)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.ErrCodeUnauthorized, resp.Error.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/x", nil)
	req.Header.Set("X-API-Key", "wrong")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPostRunValidation(t *testing.T) {
	r, _ := newTestRouter(t, config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100})
	for _, body := range []string{`{}`, `{"abns":[]}`, `{"abns":["  ", ""]}`, `{"abns":["1"],"workers":0.5}`, `not json`} {
		w := do(r, http.MethodPost, "/api/v1/runs", body, true)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestRunLifecycle(t *testing.T) {
	r, _ := newTestRouter(t, config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100})

	body, _ := json.Marshal(models.RunRequest{ABNs: []string{"11000000000", "22000000000.0", "33000000000"}})
	w := do(r, http.MethodPost, "/api/v1/runs", string(body), true)
	require.Equal(t, http.StatusAccepted, w.Code)

	var started models.RunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	assert.Equal(t, models.RunProcessing, started.Status)
	assert.Equal(t, 3, started.Total)

	var status models.RunStatusResponse
	require.Eventually(t, func() bool {
		w := do(r, http.MethodGet, "/api/v1/runs/"+started.ID, "", true)
		if w.Code != http.StatusOK {
			return false
		}
		_ = json.Unmarshal(w.Body.Bytes(), &status)
		return status.Status != models.RunProcessing
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, models.RunPartial, status.Status)
	assert.Equal(t, 2, status.Completed)
	assert.Equal(t, []string{"33000000000"}, status.Missing)
	assert.Len(t, status.Records, 2)

	w = do(r, http.MethodGet, "/api/v1/runs/"+started.ID+"?records=false", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"records"`)

	w = do(r, http.MethodGet, "/api/v1/records/22000000000", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	var rec models.RecordResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "22000000000", rec.Record.ABN)
	assert.True(t, rec.Record.NonReporting)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/v1/records/33000000000", "", true).Code)
}

func TestRejectedRunReportsError(t *testing.T) {
	r, _ := newTestRouter(t, config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100})

	tests := []struct {
		abn      string
		wantCode string
	}{
		{"44000000000", models.ErrCodeInvalidInput},
		{"55000000000", models.ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			body, _ := json.Marshal(models.RunRequest{ABNs: []string{tt.abn}})
			w := do(r, http.MethodPost, "/api/v1/runs", string(body), true)
			require.Equal(t, http.StatusAccepted, w.Code)

			var started models.RunResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))

			var status models.RunStatusResponse
			require.Eventually(t, func() bool {
				w := do(r, http.MethodGet, "/api/v1/runs/"+started.ID, "", true)
				_ = json.Unmarshal(w.Body.Bytes(), &status)
				return status.Status != models.RunProcessing
			}, 2*time.Second, 10*time.Millisecond)

			assert.Equal(t, models.RunFailed, status.Status)
			require.NotNil(t, status.Error)
			assert.Equal(t, tt.wantCode, status.Error.Code)
		})
	}
}

func TestUnknownRun(t *testing.T) {
	r, _ := newTestRouter(t, config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100})
	w := do(r, http.MethodGet, "/api/v1/runs/run-missing", "", true)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.True(t, bytes.Contains(w.Body.Bytes(), []byte(models.ErrCodeNotFound)))
}

func TestRateLimit(t *testing.T) {
	r, _ := newTestRouter(t, config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/v1/runs/a", "", true).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodGet, "/api/v1/runs/a", "", true).Code)
}
