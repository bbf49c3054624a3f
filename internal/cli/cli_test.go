package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"bulkcore/internal/config"
	"bulkcore/internal/connector"
	"bulkcore/internal/driver"
	"bulkcore/internal/driver/memdriver"
	"bulkcore/internal/pipeline"
	"bulkcore/internal/record"
	"bulkcore/internal/statement"
)

func writeCfg(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "bulkloader.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func testDeps() Deps {
	return Deps{
		Connectors: func(name string, settings map[string]any) (connector.Connector, error) {
			return connector.NewFixture([]connector.ResourceInput{
				{Resource: "r1", Rows: [][]connector.Field{
					{{Name: "id", Value: int64(1)}},
					{{Name: "id", Value: int64(2)}},
				}},
			}, nil), nil
		},
		Drivers: func(cfg *config.Config) (driver.Driver, error) {
			return memdriver.New("n1"), nil
		},
		Mappers: func(cfg *config.Config) (pipeline.Mapper, error) {
			return func(rec record.Record) (statement.Statement, error) {
				return statement.NewSimple("INSERT INTO t (id) VALUES (?)", []any{rec.Position}, 8, statement.RoutingInfo{}), nil
			}, nil
		},
	}
}

func runConfigBody(operationDir string) string {
	return `
engine:
  executionId: run-1
log:
  directory: ` + operationDir + `
schema:
  keyspace: ks1
  table: t1
connector:
  name: fixture
`
}

func TestFmtElapsedFormatsHoursMinutesSeconds(t *testing.T) {
	got := fmtElapsed((3*3600 + 5*60 + 9) * time.Second)
	if got != "03:05:09" {
		t.Fatalf("expected 03:05:09, got %q", got)
	}
}

func TestParseCommonAcceptsShortAndLongFlags(t *testing.T) {
	f, err := parseCommon("load", []string{"-f", "cfg.yaml", "batch.enabled=true"})
	if err != nil {
		t.Fatalf("parseCommon: %v", err)
	}
	if f.configPath != "cfg.yaml" {
		t.Fatalf("expected configPath cfg.yaml, got %q", f.configPath)
	}
	if len(f.overrides) != 1 || f.overrides[0] != "batch.enabled=true" {
		t.Fatalf("expected positional override preserved, got %+v", f.overrides)
	}

	f, err = parseCommon("load", []string{"--config", "long.yaml"})
	if err != nil {
		t.Fatalf("parseCommon: %v", err)
	}
	if f.configPath != "long.yaml" {
		t.Fatalf("expected configPath long.yaml from --config, got %q", f.configPath)
	}
}

func TestCommonFlagsAsOverridesIncludesExecutionIDAndDryRun(t *testing.T) {
	f := commonFlags{executionID: "run-9", dryRun: true, connector: "csv"}
	got := f.asOverrides()
	want := map[string]bool{
		"engine.executionId=run-9": true,
		"engine.dryRun=true":       true,
		"connector.name=csv":       true,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d overrides, got %+v", len(want), got)
	}
	for _, kv := range got {
		if !want[kv] {
			t.Fatalf("unexpected override %q", kv)
		}
	}
}

func TestExecuteRejectsUnknownVerb(t *testing.T) {
	code := Execute([]string{"frobnicate"}, Deps{})
	if code != ExitConfigError {
		t.Fatalf("expected ExitConfigError, got %d", code)
	}
}

func TestExecuteWithNoArgsPrintsUsage(t *testing.T) {
	code := Execute(nil, Deps{})
	if code != ExitConfigError {
		t.Fatalf("expected ExitConfigError, got %d", code)
	}
}

func TestExecuteHelpSucceeds(t *testing.T) {
	if code := Execute([]string{"help"}, Deps{}); code != ExitSuccess {
		t.Fatalf("expected ExitSuccess, got %d", code)
	}
}

func TestRunVerbRequiresConfigFlag(t *testing.T) {
	code := runVerb(pipeline.Load, nil, Deps{})
	if code != ExitConfigError {
		t.Fatalf("expected ExitConfigError when -f is missing, got %d", code)
	}
}

func TestRunVerbEndToEndSucceeds(t *testing.T) {
	opDir := t.TempDir()
	path := writeCfg(t, runConfigBody(opDir))
	code := runVerb(pipeline.Load, []string{"-f", path}, testDeps())
	if code != ExitSuccess {
		t.Fatalf("expected ExitSuccess, got %d", code)
	}
}
