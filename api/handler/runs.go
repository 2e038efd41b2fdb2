package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/use-agent/charitybot/cache"
	"github.com/use-agent/charitybot/models"
	"github.com/use-agent/charitybot/results"
	"github.com/use-agent/charitybot/source"
	"github.com/use-agent/charitybot/webhook"
)

// Dispatcher runs one extraction over a list of identifiers.
type Dispatcher interface {
	Dispatch(ctx context.Context, ids []string, workers int, extra ...results.Sink) (*results.Table, error)
	ActiveWorkers() int
}

// RunDefaults fill in what a run request leaves out.
type RunDefaults struct {
	Workers       int
	WebhookURL    string
	WebhookSecret string
}

// run guards one job; the dispatcher's collector updates it while the
// status endpoint reads it.
type run struct {
	mu  sync.Mutex
	job models.RunJob
}

func (r *run) status(withRecords bool) models.RunStatusResponse {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp := models.RunStatusResponse{
		ID:        r.job.ID,
		Status:    r.job.Status,
		Total:     len(r.job.ABNs),
		Completed: r.job.Completed,
		Missing:   r.job.Missing,
		Error:     r.job.Error,
	}
	if withRecords {
		resp.Records = r.job.Records
	}
	return resp
}

// Runs executes and tracks background runs.
type Runs struct {
	dispatcher Dispatcher
	records    *cache.Cache
	webhooks   *webhook.Sender
	defaults   RunDefaults

	jobs   sync.Map // id -> *run
	active atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRuns creates a run tracker. records and webhooks may be nil.
func NewRuns(d Dispatcher, records *cache.Cache, webhooks *webhook.Sender, defaults RunDefaults) *Runs {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runs{
		dispatcher: d,
		records:    records,
		webhooks:   webhooks,
		defaults:   defaults,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start registers a run and executes it in the background.
func (rs *Runs) Start(req models.RunRequest) models.RunResponse {
	workers := req.Workers
	if workers <= 0 {
		workers = rs.defaults.Workers
	}
	job := models.RunJob{
		ID:            "run-" + uuid.NewString(),
		Status:        models.RunProcessing,
		ABNs:          req.ABNs,
		Workers:       workers,
		CreatedAt:     time.Now().Unix(),
		WebhookURL:    req.WebhookURL,
		WebhookSecret: req.WebhookSecret,
	}
	if job.WebhookURL == "" {
		job.WebhookURL = rs.defaults.WebhookURL
		job.WebhookSecret = rs.defaults.WebhookSecret
	}

	r := &run{job: job}
	rs.jobs.Store(job.ID, r)
	rs.active.Add(1)
	rs.wg.Add(1)
	go func() {
		defer rs.wg.Done()
		defer rs.active.Add(-1)
		rs.execute(r)
	}()

	return models.RunResponse{ID: job.ID, Status: job.Status, Total: len(job.ABNs)}
}

// Get returns a snapshot of a run.
func (rs *Runs) Get(id string, withRecords bool) (models.RunStatusResponse, bool) {
	v, ok := rs.jobs.Load(id)
	if !ok {
		return models.RunStatusResponse{}, false
	}
	return v.(*run).status(withRecords), true
}

// Active returns the number of runs still executing.
func (rs *Runs) Active() int {
	return int(rs.active.Load())
}

// Sweep forgets finished runs older than maxAge, checking every interval
// until ctx is done.
func (rs *Runs) Sweep(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rs.forgetBefore(time.Now().Add(-maxAge).Unix())
		}
	}
}

func (rs *Runs) forgetBefore(cutoff int64) {
	rs.jobs.Range(func(key, value any) bool {
		r := value.(*run)
		r.mu.Lock()
		stale := r.job.Status != models.RunProcessing && r.job.CreatedAt < cutoff
		r.mu.Unlock()
		if stale {
			rs.jobs.Delete(key)
		}
		return true
	})
}

// Shutdown cancels running extractions and waits for them to wind down.
func (rs *Runs) Shutdown(ctx context.Context) error {
	rs.cancel()
	done := make(chan struct{})
	go func() {
		rs.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (rs *Runs) execute(r *run) {
	r.mu.Lock()
	id, ids, workers := r.job.ID, r.job.ABNs, r.job.Workers
	r.mu.Unlock()

	progress := results.SinkFunc(func(models.CharityRecord) error {
		r.mu.Lock()
		r.job.Completed++
		r.mu.Unlock()
		return nil
	})
	sinks := []results.Sink{progress}
	if rs.records != nil {
		sinks = append(sinks, rs.records)
	}

	start := time.Now()
	table, err := rs.dispatcher.Dispatch(rs.ctx, ids, workers, sinks...)

	r.mu.Lock()
	switch {
	case err != nil:
		r.job.Status = models.RunFailed
		r.job.Error = models.DetailOf(err)
		slog.Error("run rejected", "id", id, "error", err)
	default:
		cov := results.CheckCoverage(ids, table)
		r.job.Records = table.Records()
		r.job.Missing = cov.Missing
		r.job.Completed = cov.Output
		switch {
		case cov.Output == 0:
			r.job.Status = models.RunFailed
		case !cov.Complete():
			r.job.Status = models.RunPartial
		default:
			r.job.Status = models.RunCompleted
		}
	}
	job := r.job
	r.mu.Unlock()

	slog.Info("run finished",
		"id", id,
		"status", job.Status,
		"records", job.Completed,
		"missing", len(job.Missing),
		"total", len(ids),
		"duration", time.Since(start).Round(time.Millisecond),
	)

	if job.WebhookURL != "" && rs.webhooks != nil {
		rs.webhooks.DeliverWithRetry(rs.ctx, job.WebhookURL, job.WebhookSecret, &webhook.Event{
			Type:      webhook.EventRunCompleted,
			RunID:     id,
			Timestamp: time.Now().Unix(),
			Data:      r.status(false),
		})
	}
}

// PostRun returns a handler for POST /api/v1/runs.
func PostRun(rs *Runs) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.RunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortError(c, http.StatusBadRequest, models.ErrCodeInvalidInput, err.Error())
			return
		}

		ids := make([]string, 0, len(req.ABNs))
		for _, abn := range req.ABNs {
			if id := source.Normalize(abn); id != "" {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			abortError(c, http.StatusBadRequest, models.ErrCodeInvalidInput, "abns contains no identifiers")
			return
		}
		req.ABNs = ids

		c.JSON(http.StatusAccepted, rs.Start(req))
	}
}

// GetRun returns a handler for GET /api/v1/runs/:id.
// Records are included unless ?records=false.
func GetRun(rs *Runs) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp, ok := rs.Get(c.Param("id"), c.DefaultQuery("records", "true") != "false")
		if !ok {
			abortError(c, http.StatusNotFound, models.ErrCodeNotFound, "run not found")
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func abortError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{
		Error: &models.ErrorDetail{Code: code, Message: message},
	})
}
