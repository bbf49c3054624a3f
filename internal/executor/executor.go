// Package executor adapts the driver's native async calls into a
// single bounded-concurrency, optionally rate-capped execution
// surface. It never retries on its own: recoverable failures
// are the driver's responsibility, and anything the driver reports as
// unrecoverable is surfaced to the caller immediately.
//
// The semaphore-over-channel worker-pool shape follows the source
// replicator's habit of bounding fan-out with a small buffered
// channel; golang.org/x/time/rate supplies the per-second cap, the
// same role its own executor.maxPerSecond setting played.
package executor

import (
	"context"
	"runtime"

	"golang.org/x/time/rate"

	"bulkcore/internal/driver"
	"bulkcore/internal/metrics"
	"bulkcore/internal/statement"
)

// Config bounds executor concurrency and throughput.
type Config struct {
	// MaxInFlight is the total number of statements/batches allowed to
	// be in flight at once, across all callers sharing this Executor.
	// Zero or a negative value selects DefaultConfig's bound.
	MaxInFlight int

	// MaxPerSecond rate-caps dispatch; zero disables capping.
	MaxPerSecond float64
}

// DefaultConfig returns the default bound of 32 statements/batches in
// flight in total, with no rate cap.
func DefaultConfig() Config {
	perCore := 32
	return Config{MaxInFlight: max32(perCore, perCore/runtime.NumCPU())}
}

func max32(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Executor bounds how many statements/batches are concurrently in
// flight against a Driver and, optionally, caps dispatch rate.
type Executor struct {
	drv     driver.Driver
	sem     chan struct{}
	limiter *rate.Limiter
	tap     *metrics.Tap
}

// New builds an Executor over drv. tap may be nil to disable metrics.
func New(drv driver.Driver, cfg Config, tap *metrics.Tap) *Executor {
	if cfg.MaxInFlight <= 0 {
		cfg = DefaultConfig()
	}
	e := &Executor{drv: drv, sem: make(chan struct{}, cfg.MaxInFlight), tap: tap}
	if cfg.MaxPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.MaxPerSecond), max32(1, int(cfg.MaxPerSecond)))
	}
	return e
}

func (e *Executor) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	select {
	case e.sem <- struct{}{}:
		if e.tap != nil {
			e.tap.InFlight.Inc()
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) release() {
	if e.tap != nil {
		e.tap.InFlight.Dec()
	}
	<-e.sem
}

// Execute runs a single statement, blocking until a concurrency slot
// is available and the driver reports a terminal Result (or ctx is
// cancelled).
func (e *Executor) Execute(ctx context.Context, stmt statement.Statement) (driver.Result, error) {
	if err := e.acquire(ctx); err != nil {
		return driver.Result{}, err
	}
	defer e.release()

	ch, err := e.drv.ExecuteAsync(ctx, stmt)
	if err != nil {
		return driver.Result{Statement: stmt, Err: err}, nil
	}
	select {
	case res := <-ch:
		e.observe(res)
		return res, nil
	case <-ctx.Done():
		return driver.Result{}, ctx.Err()
	}
}

// ExecuteBatch runs one batch through the same bounded slot pool.
func (e *Executor) ExecuteBatch(ctx context.Context, batch statement.Batch) (driver.Result, error) {
	if len(batch.Statements) == 1 {
		return e.Execute(ctx, batch.Statements[0])
	}
	if err := e.acquire(ctx); err != nil {
		return driver.Result{}, err
	}
	defer e.release()

	ch, err := e.drv.ExecuteBatchAsync(ctx, batch)
	if err != nil {
		return driver.Result{Batch: &batch, Err: err}, nil
	}
	select {
	case res := <-ch:
		e.observe(res)
		return res, nil
	case <-ctx.Done():
		return driver.Result{}, ctx.Err()
	}
}

func (e *Executor) observe(res driver.Result) {
	if e.tap == nil {
		return
	}
	e.tap.ExecLatency.Observe(res.Meta.Latency.Seconds())
	for range res.Meta.Warnings {
		e.tap.WarningsTotal.Inc()
	}
}

// Classify exposes driver.Classify so callers needn't import the
// driver package solely for failure classification.
func Classify(err error) driver.Classification { return driver.Classify(err) }
