package engine

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/charitybot/metrics"
	"github.com/use-agent/charitybot/models"
	"github.com/use-agent/charitybot/results"
)

// Dispatcher fans a list of identifiers out to parallel workers and gathers
// their records into one Table.
type Dispatcher struct {
	newSession SessionFactory
	extract    ExtractFunc

	sinks        []results.Sink
	recordBuffer int
	rps          float64
	burst        int
	metrics      *metrics.Metrics

	active atomic.Int64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSinks forwards every record to each sink as it is collected.
// Sink errors are logged and do not stop the run.
func WithSinks(sinks ...results.Sink) Option {
	return func(d *Dispatcher) { d.sinks = append(d.sinks, sinks...) }
}

// WithRecordBuffer sets the capacity of the worker-to-collector channel.
func WithRecordBuffer(n int) Option {
	return func(d *Dispatcher) { d.recordBuffer = max(0, n) }
}

// WithThrottle limits each worker to rps navigations per second.
func WithThrottle(rps float64, burst int) Option {
	return func(d *Dispatcher) {
		d.rps = rps
		d.burst = burst
	}
}

// WithMetrics records worker and record metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher creates a Dispatcher whose workers open sessions with
// newSession and turn identifiers into records with extract.
func NewDispatcher(newSession SessionFactory, extract ExtractFunc, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		newSession: newSession,
		extract:    extract,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ActiveWorkers returns the number of workers currently running across all
// Dispatch calls.
func (d *Dispatcher) ActiveWorkers() int {
	return int(d.active.Load())
}

// Dispatch partitions ids into workers chunks, runs one worker per chunk and
// returns once every worker and the collector have finished.
//
// Records go to the dispatcher's sinks and then to extra, which only
// applies to this call.
//
// Worker failures never surface here: a failed worker simply contributes
// fewer records. The only error is an invalid worker count.
func (d *Dispatcher) Dispatch(ctx context.Context, ids []string, workers int, extra ...results.Sink) (*results.Table, error) {
	chunks, err := Partition(ids, workers)
	if err != nil {
		return nil, err
	}

	sinks := append(slices.Clip(d.sinks), extra...)
	start := time.Now()
	table := results.NewTable()
	records := make(chan models.CharityRecord, d.recordBuffer)

	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for rec := range records {
			table.Append(rec)
			for _, sink := range sinks {
				if err := sink.Write(rec); err != nil {
					slog.Warn("sink write failed", "abn", rec.ABN, "error", err)
				}
			}
		}
	}()

	var wg sync.WaitGroup
	for i, chunk := range chunks {
		w := &worker{
			id:         i,
			chunk:      chunk,
			newSession: d.newSession,
			extract:    d.extract,
			limiter:    NewLimiter(d.rps, d.burst),
			metrics:    d.metrics,
			out:        records,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.active.Add(1)
			defer d.active.Add(-1)
			w.run(ctx)
		}()
	}

	wg.Wait()
	close(records)
	<-collected

	slog.Info("dispatch finished",
		"identifiers", len(ids),
		"workers", workers,
		"records", table.Len(),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return table, nil
}
