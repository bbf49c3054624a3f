// Package logmanager implements the log manager: a set of
// stage-shaped handlers, each the identity function on success and a
// side-effecting sink on failure, writing bad-record files, structured
// error logs, and the aggregated position file, and enforcing
// independent error thresholds for data errors and query warnings.
//
// File writing uses a mutex-guarded handle, lazily opened on first
// write, plus an atomic temp-file-then-rename write for the small
// aggregate files (positions.txt, effective-settings.log) that are
// rewritten wholesale rather than appended to.
package logmanager

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"bulkcore/internal/driver"
	"bulkcore/internal/position"
	"bulkcore/internal/record"
	"bulkcore/internal/statement"
	"bulkcore/internal/threshold"
)

// Category names one of the independently-thresholded error classes.
type Category string

const (
	CategoryConnector      Category = "connector"
	CategoryMappingLoad    Category = "mapping_load"
	CategoryMappingUnload  Category = "mapping_unload"
	CategoryWrite          Category = "write"
	CategoryRead           Category = "read"
	CategoryCAS            Category = "cas"
	CategoryQueryWarning   Category = "query_warning"
)

// maxLoggedQueryWarnings caps how many query warnings are echoed to
// the logger per run; past this count a single suppression message
// replaces further per-warning lines, though counting (and threshold
// evaluation) continues unaffected.
const maxLoggedQueryWarnings = 2

// bad-record / error-log file names.
const (
	fileConnectorBad = "connector.bad"
	fileMappingBad   = "mapping.bad"
	fileLoadBad      = "load.bad"
	filePaxosBad     = "paxos.bad"

	fileConnectorErrors = "connector-errors.log"
	fileMappingErrors   = "mapping-errors.log"
	fileLoadErrors      = "load-errors.log"
	filePaxosErrors     = "paxos-errors.log"

	filePositions        = "positions.txt"
	fileOperationLog      = "operation.log"
	fileEffectiveSettings = "effective-settings.log"
)

// TooManyErrors is returned by RecordFailedRecord,
// RecordUnmappableStatement and RecordResult once a configured
// threshold has tripped, and is the trigger for cooperative
// pipeline cancellation.
type TooManyErrors struct {
	Category Category
	Message  string
}

func (e *TooManyErrors) Error() string { return e.Message }

// Warner is the narrow logging surface the log manager needs to emit
// query-warning lines; *logger.Logger satisfies it.
type Warner interface {
	Warnf(format string, args ...any)
}

// Config configures per-category thresholds. A zero-value Category
// threshold defaults to threshold.NewUnlimited().
type Config struct {
	Dir string // operation directory, e.g. <executionId>/

	DataErrors     threshold.Threshold // governs connector/mapping/write/read/cas categories jointly
	QueryWarnings  threshold.Threshold // governs CategoryQueryWarning independently

	Logger Warner // optional; receives WARN lines for query warnings
}

// Manager is the log manager. One Manager is created per run and
// shared by every pipeline worker.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	files    map[string]*os.File
	counters map[Category]int64
	total    int64 // total items observed by the total-items counter stage

	warnings         int64
	warnSuppressed   bool

	positions *position.Tracker

	abortOnce sync.Once
	abortErr  error
}

// New builds a Manager rooted at cfg.Dir, creating the directory if
// needed.
func New(cfg Config) (*Manager, error) {
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("logmanager: create operation dir: %w", err)
	}
	if cfg.DataErrors == (threshold.Threshold{}) {
		cfg.DataErrors = threshold.NewUnlimited()
	}
	if cfg.QueryWarnings == (threshold.Threshold{}) {
		cfg.QueryWarnings = threshold.NewUnlimited()
	}
	return &Manager{
		cfg:       cfg,
		files:     make(map[string]*os.File),
		counters:  make(map[Category]int64),
		positions: position.New(),
	}, nil
}

func (m *Manager) path(name string) string { return filepath.Join(m.cfg.Dir, name) }

// fileFor lazily opens (append mode) the named file under the
// operation directory, reusing the handle across calls.
func (m *Manager) fileFor(name string) (*os.File, error) {
	if f, ok := m.files[name]; ok {
		return f, nil
	}
	f, err := os.OpenFile(m.path(name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("logmanager: open %s: %w", name, err)
	}
	m.files[name] = f
	return f, nil
}

func badAndErrorFiles(cat Category) (bad, errs string) {
	switch cat {
	case CategoryConnector:
		return fileConnectorBad, fileConnectorErrors
	case CategoryMappingLoad, CategoryMappingUnload:
		return fileMappingBad, fileMappingErrors
	case CategoryWrite, CategoryRead:
		return fileLoadBad, fileLoadErrors
	case CategoryCAS:
		return filePaxosBad, filePaxosErrors
	default:
		return "", ""
	}
}

// writeRaw appends a raw record's source text verbatim to the bad file.
func (m *Manager) writeRaw(name string, source string) error {
	if source == "" {
		return nil
	}
	f, err := m.fileFor(name)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f, source)
	return err
}

// writeErrorEntry appends one structured, multi-line error-log entry.
func (m *Manager) writeErrorEntry(name, resource string, position int64, source string, cause error) error {
	f, err := m.fileFor(name)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(f, "Resource: %s\nPosition: %d\nSource: %s\nMessage: %s\nTimestamp: %s\n\n",
		resource, position, sourceOrDash(source), causeChain(cause), time.Now().UTC().Format(time.RFC3339))
	return err
}

func sourceOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// causeChain renders an error and its wrapped chain, one "caused by"
// per level, for verbose multi-cause rendering in malformed-record
// entries.
func causeChain(err error) string {
	if err == nil {
		return "-"
	}
	msg := err.Error()
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		if inner := u.Unwrap(); inner != nil {
			return msg + "\nCaused by: " + causeChain(inner)
		}
	}
	return msg
}

func (m *Manager) abort(cat Category, msg string) error {
	m.abortOnce.Do(func() {
		m.abortErr = &TooManyErrors{Category: cat, Message: msg}
	})
	return m.abortErr
}

// Aborted reports the threshold-trip error recorded by the first
// category to cross its threshold, or nil if none has.
func (m *Manager) Aborted() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.abortErr
}

// dataErrorTotal sums every data-error category's counter: connector,
// mapping, write, read, and cas all share one data-error threshold.
func (m *Manager) dataErrorTotal() int64 {
	var sum int64
	for cat, n := range m.counters {
		if cat != CategoryQueryWarning {
			sum += n
		}
	}
	return sum
}

// RecordFailedRecord handles a record the connector or a mapper
// flagged as errored: it writes the bad source line (if any) plus a
// structured error-log entry, counts it, and checks the data-error
// threshold. Used by failed_records_handler, unmappable_records_handler.
func (m *Manager) RecordFailedRecord(cat Category, rec record.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.abortErr; err != nil {
		return err
	}

	bad, errs := badAndErrorFiles(cat)
	if err := m.writeRaw(bad, rec.Source); err != nil {
		return err
	}
	if err := m.writeErrorEntry(errs, rec.Resource, rec.Position, rec.Source, rec.Err()); err != nil {
		return err
	}
	m.counters[cat]++
	m.positions.Record(rec.Resource, rec.Position)

	if m.cfg.DataErrors.Exceeded(m.dataErrorTotal(), m.total) {
		return m.abort(cat, m.cfg.DataErrors.Message())
	}
	return nil
}

// RecordUnmappableStatement handles a statement the mapper could not
// construct, logging it against the record it failed to map.
func (m *Manager) RecordUnmappableStatement(cat Category, rec record.Record, cause error) error {
	return m.RecordFailedRecord(cat, record.NewError(rec.Resource, rec.Position, rec.Source, cause))
}

// RecordResult handles one driver Result: successful single-statement
// and batch results record their constituent positions; CAS batches
// with WasApplied == false are treated as a CAS failure per statement;
// failed results are logged and counted under CategoryWrite/Read.
func (m *Manager) RecordResult(readDirection bool, res driver.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.abortErr; err != nil {
		return err
	}

	cat := CategoryWrite
	if readDirection {
		cat = CategoryRead
	}

	stmts := res.Batch
	var list []statement.Statement
	if stmts != nil {
		list = stmts.Statements
	} else {
		list = []statement.Statement{res.Statement}
	}

	if res.Err != nil {
		bad, errs := badAndErrorFiles(cat)
		for _, s := range list {
			if s.IsMapped() {
				rec := s.Record()
				if err := m.writeRaw(bad, rec.Source); err != nil {
					return err
				}
				if err := m.writeErrorEntry(errs, rec.Resource, rec.Position, rec.Source, res.Err); err != nil {
					return err
				}
				m.positions.Record(rec.Resource, rec.Position)
			}
			m.counters[cat]++
		}
		if m.cfg.DataErrors.Exceeded(m.dataErrorTotal(), m.total) {
			return m.abort(cat, m.cfg.DataErrors.Message())
		}
		return nil
	}

	for _, w := range res.Meta.Warnings {
		m.warnings++
		if m.cfg.Logger != nil {
			switch {
			case m.warnings <= maxLoggedQueryWarnings:
				m.cfg.Logger.Warnf("query warning: %s", w)
			case !m.warnSuppressed:
				m.cfg.Logger.Warnf("the maximum number of logged query warnings (%d) has been reached; subsequent warnings will not be logged", maxLoggedQueryWarnings)
				m.warnSuppressed = true
			}
		}
		if m.cfg.QueryWarnings.Exceeded(m.warnings, m.total) {
			return m.abort(CategoryQueryWarning, m.cfg.QueryWarnings.Message())
		}
	}

	if stmts != nil && !res.Meta.WasApplied {
		for _, s := range list {
			if !s.IsMapped() {
				continue
			}
			rec := s.Record()
			if err := m.writeRaw(filePaxosBad, rec.Source); err != nil {
				return err
			}
			if err := m.writeErrorEntry(filePaxosErrors, rec.Resource, rec.Position, rec.Source, fmt.Errorf("conditional update was not applied")); err != nil {
				return err
			}
			m.counters[CategoryCAS]++
			m.positions.Record(rec.Resource, rec.Position)
		}
		if m.cfg.DataErrors.Exceeded(m.dataErrorTotal(), m.total) {
			return m.abort(CategoryCAS, m.cfg.DataErrors.Message())
		}
		return nil
	}

	for _, s := range list {
		if !s.IsMapped() {
			continue
		}
		rec := s.Record()
		m.positions.Record(rec.Resource, rec.Position)
	}
	return nil
}

// CountTotal feeds the total-items counter stage: every record seen,
// success or failure, increments the denominator used by ratio
// thresholds.
func (m *Manager) CountTotal(n int64) {
	m.mu.Lock()
	m.total += n
	m.mu.Unlock()
}

// WritePositions renders the position tracker's current state to
// positions.txt, atomically (temp file + rename).
func (m *Manager) WritePositions() error {
	m.mu.Lock()
	rendered := m.positions.Render()
	m.mu.Unlock()
	return atomicWrite(m.path(filePositions), []byte(rendered))
}

// WriteEffectiveSettings renders the fully resolved configuration used
// for this run, for audit purposes.
func (m *Manager) WriteEffectiveSettings(yaml string) error {
	return atomicWrite(m.path(fileEffectiveSettings), []byte(yaml))
}

// Logf appends one timestamped line to operation.log, the run's
// top-level narrative log (start/stop, scheduling regime chosen,
// threshold trips, shutdown sequence).
func (m *Manager) Logf(format string, args ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := m.fileFor(fileOperationLog)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(f, "%s %s\n", time.Now().UTC().Format(time.RFC3339), fmt.Sprintf(format, args...))
	return err
}

// Totals returns a snapshot of every category's counter plus the
// overall total seen, for the CLI's final summary line.
func (m *Manager) Totals() (errors map[Category]int64, warnings, total int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	errors = make(map[Category]int64, len(m.counters))
	for k, v := range m.counters {
		errors[k] = v
	}
	return errors, m.warnings, m.total
}

// Close flushes positions, then closes every open file handle.
func (m *Manager) Close() error {
	if err := m.WritePositions(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for _, f := range m.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// atomicWrite writes data to path via a temp file plus rename so a
// crash mid-write never leaves a truncated file at path.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("logmanager: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("logmanager: rename temp file: %w", err)
	}
	return nil
}
