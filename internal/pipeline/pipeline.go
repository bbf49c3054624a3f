// Package pipeline implements the orchestrator: stage composition
// (read → monitor totals → count totals → monitor failed records →
// handle failed records → map to statement → monitor failed
// statements → handle unmappable statements → optional batch →
// execute → handle query warnings → handle failed writes → record
// successful positions → termination handler), under one of two
// scheduling regimes, for both the load and unload directions.
//
// The stage chain is driven by one coordinating loop per resource or
// window, with each stage's outcome reported rather than panicked on;
// a bounded pool of concurrent workers runs that same chain across
// resources/windows using golang.org/x/sync/errgroup for pool-wide
// cancellation.
package pipeline

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"bulkcore/internal/batcher"
	"bulkcore/internal/connector"
	"bulkcore/internal/driver"
	"bulkcore/internal/executor"
	"bulkcore/internal/logmanager"
	"bulkcore/internal/metrics"
	"bulkcore/internal/record"
	"bulkcore/internal/statement"
)

// Direction selects which half of the mirrored stage graph runs: load
// writes to the database, unload reads from it.
type Direction int

const (
	Load Direction = iota
	Unload
)

// DefaultResourceThreshold is the resource count at or above which the
// orchestrator uses thread-per-resource scheduling instead of
// parallel-windowed scheduling.
const DefaultResourceThreshold = 4

// DefaultWindowSize is the record count per window under the
// parallel-windowed regime.
const DefaultWindowSize = 256

// Mapper converts one record into a statement. A non-nil error marks
// the record as unmappable (handled by unmappable_statements_handler
// on load, unmappable_records_handler on unload).
type Mapper func(rec record.Record) (statement.Statement, error)

// Config bounds an Orchestrator's concurrency and batching behavior.
type Config struct {
	// Workers bounds how many resources/windows are processed
	// concurrently. Zero selects runtime.NumCPU(): a fixed-size worker
	// pool sized to the CPU cores available.
	Workers int

	// ResourceThreshold overrides DefaultResourceThreshold.
	ResourceThreshold int

	// WindowSize overrides DefaultWindowSize.
	WindowSize int

	// Batch, when non-nil, enables statement batching with this
	// configuration. Nil disables batching: every statement executes
	// on its own.
	Batch *batcher.Config

	Executor executor.Config
	DryRun   bool
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.ResourceThreshold <= 0 {
		c.ResourceThreshold = DefaultResourceThreshold
	}
	if c.WindowSize <= 0 {
		c.WindowSize = DefaultWindowSize
	}
	return c
}

// Orchestrator ties a connector, a driver, a mapper, and the log
// manager into one runnable pipeline.
type Orchestrator struct {
	cfg       Config
	conn      connector.Connector
	drv       driver.Driver
	mapper    Mapper
	log       *logmanager.Manager
	exec      *executor.Executor
	tap       *metrics.Tap
	direction Direction
}

// New builds an Orchestrator. When cfg.DryRun is set, drv is wrapped
// with driver.DryRun before use: dry-run is a driver decorator, not a
// special case in the stage graph below.
func New(cfg Config, conn connector.Connector, drv driver.Driver, mapper Mapper, log *logmanager.Manager, tap *metrics.Tap, direction Direction) *Orchestrator {
	cfg = cfg.withDefaults()
	if cfg.DryRun {
		drv = driver.DryRun(drv)
	}
	return &Orchestrator{
		cfg:       cfg,
		conn:      conn,
		drv:       drv,
		mapper:    mapper,
		log:       log,
		exec:      executor.New(drv, cfg.Executor, tap),
		tap:       tap,
		direction: direction,
	}
}

// mappingCategory returns the unmappable-statement category for this
// orchestrator's direction; load and unload write to distinct files.
func (o *Orchestrator) mappingCategory() logmanager.Category {
	if o.direction == Unload {
		return logmanager.CategoryMappingUnload
	}
	return logmanager.CategoryMappingLoad
}

// Run executes the full load/unload pipeline to completion, or until
// the log manager's error threshold trips or ctx is cancelled.
// Scheduling regime is chosen from the connector's estimated resource
// count: thread-per-resource when the count is unknown (zero, treated
// as large) or at or above cfg.ResourceThreshold, parallel-windowed
// otherwise.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.conn.Init(ctx); err != nil {
		return fmt.Errorf("pipeline: connector init: %w", err)
	}

	count := o.conn.EstimatedResourceCount()
	if count == 0 || count >= o.cfg.ResourceThreshold {
		return o.runThreadPerResource(ctx)
	}
	return o.runParallelWindowed(ctx)
}

func (o *Orchestrator) runThreadPerResource(ctx context.Context) error {
	streams, err := o.conn.ReadByResource(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: connector read: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)
	for rs := range streams {
		rs := rs
		g.Go(func() error {
			return o.drainResource(gctx, rs.Resource, rs.Records)
		})
	}
	return g.Wait()
}

func (o *Orchestrator) runParallelWindowed(ctx context.Context) error {
	flat, err := o.conn.Read(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: connector read: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)

	for {
		window := make([]record.Record, 0, o.cfg.WindowSize)
	collect:
		for len(window) < o.cfg.WindowSize {
			select {
			case rec, ok := <-flat:
				if !ok {
					break collect
				}
				window = append(window, rec)
			case <-gctx.Done():
				return g.Wait()
			}
		}
		if len(window) == 0 {
			break
		}
		w := window
		g.Go(func() error {
			return o.drainWindow(gctx, w)
		})
		if len(w) < o.cfg.WindowSize {
			break
		}
	}
	return g.Wait()
}

// drainResource processes one resource's record stream strictly in
// arrival order.
func (o *Orchestrator) drainResource(ctx context.Context, resource string, records <-chan record.Record) error {
	b := o.newBatcher()
	for {
		select {
		case rec, ok := <-records:
			if !ok {
				return o.flushAndWait(ctx, b)
			}
			if err := o.handle(ctx, b, rec); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// drainWindow processes one flat window; ordering across windows is
// not guaranteed, matching the parallel-windowed regime's contract.
func (o *Orchestrator) drainWindow(ctx context.Context, window []record.Record) error {
	b := o.newBatcher()
	for _, rec := range window {
		if err := o.handle(ctx, b, rec); err != nil {
			return err
		}
	}
	return o.flushAndWait(ctx, b)
}

func (o *Orchestrator) newBatcher() *batcher.Batcher {
	if o.cfg.Batch == nil {
		return nil
	}
	return batcher.New(*o.cfg.Batch)
}

// handle runs one record through monitor-totals → (failed-record
// handling | map → unmappable-statement handling) → optional batch →
// execute → result handling.
func (o *Orchestrator) handle(ctx context.Context, b *batcher.Batcher, rec record.Record) error {
	o.log.CountTotal(1)
	if o.tap != nil {
		o.tap.RecordsTotal.WithLabelValues(rec.Resource).Inc()
	}

	if rec.IsError() {
		return o.log.RecordFailedRecord(logmanager.CategoryConnector, rec)
	}

	stmt, err := o.mapper(rec)
	if err != nil {
		return o.log.RecordUnmappableStatement(o.mappingCategory(), rec, err)
	}

	if b == nil {
		return o.executeAndRecord(ctx, statement.Batch{Statements: []statement.Statement{stmt}})
	}
	for _, batch := range b.Add(stmt) {
		if err := o.executeAndRecord(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) flushAndWait(ctx context.Context, b *batcher.Batcher) error {
	if b == nil {
		return nil
	}
	for _, batch := range b.Flush() {
		if err := o.executeAndRecord(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

// executeAndRecord runs one batch (singleton or not) through the
// executor and feeds its result to the log manager. An unrecoverable
// driver failure propagates immediately, bypassing the error
// threshold entirely; a recoverable failure is logged and counted
// like any other error.
func (o *Orchestrator) executeAndRecord(ctx context.Context, batch statement.Batch) error {
	if o.tap != nil {
		o.tap.BatchSize.Observe(float64(len(batch.Statements)))
	}
	res, err := o.exec.ExecuteBatch(ctx, batch)
	if err != nil {
		return err // context cancellation or a transport-level dispatch failure
	}
	if res.Err != nil && driver.Classify(res.Err) == driver.Unrecoverable {
		return res.Err
	}
	return o.log.RecordResult(o.direction == Unload, res)
}

// ResourceCounts maps a resource URI to its observed record count,
// returned by RunCount.
type ResourceCounts map[string]int64

// RunCount implements the count verb: read plus monitor-totals only,
// no mapping or execution. tap may be nil to disable metrics.
func RunCount(ctx context.Context, conn connector.Connector, workers int, tap *metrics.Tap) (ResourceCounts, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if err := conn.Init(ctx); err != nil {
		return nil, fmt.Errorf("pipeline: connector init: %w", err)
	}
	streams, err := conn.ReadByResource(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: connector read: %w", err)
	}

	counts := make(ResourceCounts)
	type result struct {
		resource string
		n        int64
	}
	resultsCh := make(chan result)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	done := make(chan struct{})
	go func() {
		for r := range resultsCh {
			counts[r.resource] = r.n
		}
		close(done)
	}()

	for rs := range streams {
		rs := rs
		g.Go(func() error {
			var n int64
			for {
				select {
				case _, ok := <-rs.Records:
					if !ok {
						select {
						case resultsCh <- result{resource: rs.Resource, n: n}:
						case <-gctx.Done():
							return gctx.Err()
						}
						return nil
					}
					n++
					if tap != nil {
						tap.RecordsTotal.WithLabelValues(rs.Resource).Inc()
					}
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		})
	}
	werr := g.Wait()
	close(resultsCh)
	<-done
	if werr != nil {
		return nil, werr
	}
	return counts, nil
}

// Shutdown releases resources in a fixed sequence: metrics require no
// flush (the tap is passive), the log manager is flushed and closed
// first so positions.txt reflects everything processed, then the
// connector, then the driver/session. The scheduler and executor hold
// no resources beyond what Run already waits on, so there is nothing
// further to release for either.
func (o *Orchestrator) Shutdown() error {
	var errs []error
	if o.log != nil {
		if err := o.log.Close(); err != nil {
			errs = append(errs, fmt.Errorf("log manager: %w", err))
		}
	}
	if err := o.conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("connector: %w", err))
	}
	if err := o.drv.Close(); err != nil {
		errs = append(errs, fmt.Errorf("driver session: %w", err))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("pipeline: shutdown errors: %v", errs)
}
