package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"bulkcore/internal/batcher"
	"bulkcore/internal/connector"
	"bulkcore/internal/driver/memdriver"
	"bulkcore/internal/logmanager"
	"bulkcore/internal/record"
	"bulkcore/internal/statement"
	"bulkcore/internal/threshold"
)

func simpleMapper(rec record.Record) (statement.Statement, error) {
	v, ok := rec.Get("id")
	if !ok {
		return statement.Statement{}, fmt.Errorf("missing id field")
	}
	return statement.NewMapped("INSERT INTO t (id) VALUES (?)", []any{v}, 8,
		statement.RoutingInfo{Token: int64(fmt.Sprint(v)[0])}, rec), nil
}

func fixtureOf(resource string, n int) connector.ResourceInput {
	rows := make([][]connector.Field, n)
	for i := range rows {
		rows[i] = []connector.Field{{Name: "id", Index: 0, Value: i + 1}}
	}
	return connector.ResourceInput{Resource: resource, Rows: rows}
}

func TestRunLoadSucceedsEndToEnd(t *testing.T) {
	conn := connector.NewFixture([]connector.ResourceInput{fixtureOf("file:///a.csv", 5)}, nil)
	drv := memdriver.New("n1", "n2", "n3")
	log, err := logmanager.New(logmanager.Config{Dir: t.TempDir(), DataErrors: threshold.NewUnlimited()})
	if err != nil {
		t.Fatalf("logmanager.New: %v", err)
	}

	o := New(Config{Workers: 2}, conn, drv, simpleMapper, log, nil, Load)
	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	errs, _, total := log.Totals()
	if total != 5 {
		t.Fatalf("expected 5 records counted, got %d", total)
	}
	for cat, n := range errs {
		if n != 0 {
			t.Fatalf("expected no errors, got %d for %s", n, cat)
		}
	}
}

func TestRunLoadAbortsOnThreshold(t *testing.T) {
	ri := connector.ResourceInput{
		Resource: "file:///b.csv",
		Rows:     [][]connector.Field{{{Name: "id", Index: 0, Value: 1}}, {{Name: "id", Index: 0, Value: 2}}},
		Errors:   map[int64]error{1: errors.New("malformed")},
		Sources:  map[int64]string{1: "bad,line"},
	}
	conn := connector.NewFixture([]connector.ResourceInput{ri}, nil)
	drv := memdriver.New("n1")
	log, err := logmanager.New(logmanager.Config{Dir: t.TempDir(), DataErrors: threshold.NewAbsolute(0)})
	if err != nil {
		t.Fatalf("logmanager.New: %v", err)
	}

	o := New(Config{Workers: 1}, conn, drv, simpleMapper, log, nil, Load)
	err = o.Run(context.Background())
	if err == nil {
		t.Fatalf("expected threshold abort")
	}
	var tme *logmanager.TooManyErrors
	if !errors.As(err, &tme) {
		t.Fatalf("expected TooManyErrors, got %v", err)
	}
}

func TestRunLoadWithBatchingGroupsStatements(t *testing.T) {
	conn := connector.NewFixture([]connector.ResourceInput{fixtureOf("file:///c.csv", 10)}, nil)
	drv := memdriver.New("n1")
	log, err := logmanager.New(logmanager.Config{Dir: t.TempDir(), DataErrors: threshold.NewUnlimited()})
	if err != nil {
		t.Fatalf("logmanager.New: %v", err)
	}
	bc := batcher.DefaultConfig()
	o := New(Config{Workers: 1, Batch: &bc}, conn, drv, simpleMapper, log, nil, Load)

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if drv.CallCount() == 0 {
		t.Fatalf("expected at least one driver call")
	}
}

func TestDryRunNeverCallsDriver(t *testing.T) {
	conn := connector.NewFixture([]connector.ResourceInput{fixtureOf("file:///d.csv", 4)}, nil)
	drv := memdriver.New("n1")
	log, err := logmanager.New(logmanager.Config{Dir: t.TempDir(), DataErrors: threshold.NewUnlimited()})
	if err != nil {
		t.Fatalf("logmanager.New: %v", err)
	}
	o := New(Config{Workers: 1, DryRun: true}, conn, drv, simpleMapper, log, nil, Load)
	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if drv.CallCount() != 0 {
		t.Fatalf("expected dry-run to never call the underlying driver, got %d calls", drv.CallCount())
	}
}

func TestRunCountDoesNotMapOrExecute(t *testing.T) {
	conn := connector.NewFixture([]connector.ResourceInput{fixtureOf("file:///e.csv", 7)}, nil)
	counts, err := RunCount(context.Background(), conn, 2, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts["file:///e.csv"] != 7 {
		t.Fatalf("expected 7, got %d", counts["file:///e.csv"])
	}
}
