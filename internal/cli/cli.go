// Package cli implements verb dispatch for the bulkloader binary:
// load, unload, and count, each parsed with its own flag.FlagSet,
// exiting with explicit exit codes.
package cli

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bulkcore/internal/batcher"
	"bulkcore/internal/config"
	"bulkcore/internal/connector"
	"bulkcore/internal/driver"
	"bulkcore/internal/executor"
	"bulkcore/internal/logger"
	"bulkcore/internal/logmanager"
	"bulkcore/internal/metrics"
	"bulkcore/internal/pipeline"
	"bulkcore/internal/threshold"
)

// Exit codes returned by Execute.
const (
	ExitSuccess             = 0
	ExitCompletedWithErrors = 1
	ExitConfigError         = 2
	ExitAbortedByThreshold  = 3
)

// ConnectorFactory builds a Connector for a given name and opaque
// settings map. Real connector plugins live outside this module; the
// binary wires in whichever factory its build registers. Tests supply
// a factory backed by connector.Fixture.
type ConnectorFactory func(name string, settings map[string]any) (connector.Connector, error)

// DriverFactory builds a Driver for a run. The real CQL driver is an
// out-of-scope collaborator; production builds of this binary inject
// one, tests inject memdriver.
type DriverFactory func(cfg *config.Config) (driver.Driver, error)

// MapperFactory builds the record→statement Mapper for a run's schema
// configuration; schema mapping/reshaping itself lives outside this
// module, so this, too, is injected.
type MapperFactory func(cfg *config.Config) (pipeline.Mapper, error)

// Deps bundles the collaborators Execute needs to build and run a
// pipeline; main wires in the real connector/driver/mapper factories.
type Deps struct {
	Connectors ConnectorFactory
	Drivers    DriverFactory
	Mappers    MapperFactory
}

// Execute dispatches CLI subcommands and returns the process exit
// code.
func Execute(args []string, deps Deps) int {
	log.SetFlags(log.LstdFlags | log.Lmsgprefix)
	log.SetPrefix("[bulkloader] ")

	if len(args) == 0 {
		printUsage()
		return ExitConfigError
	}

	switch args[0] {
	case "load":
		return runVerb(pipeline.Load, args[1:], deps)
	case "unload":
		return runVerb(pipeline.Unload, args[1:], deps)
	case "count":
		return runCount(args[1:], deps)
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		log.Printf("unknown subcommand: %s", args[0])
		printUsage()
		return ExitConfigError
	}
}

func printUsage() {
	fmt.Println(`bulkloader <verb> [flags] [dotted.key=value ...]

verbs:
  load     write records from a connector into the database
  unload   read records from the database into a connector
  count    report per-resource record counts only

flags:
  -f, --config <path>     configuration file (required)
      --executionId <id>  overrides engine.executionId
      --dryRun            overrides engine.dryRun
  -c, --connector <name>  overrides connector.name`)
}

type commonFlags struct {
	configPath  string
	executionID string
	dryRun      bool
	connector   string
	overrides   []string
}

func parseCommon(verb string, args []string) (commonFlags, error) {
	fs := flag.NewFlagSet(verb, flag.ContinueOnError)
	var f commonFlags
	fs.StringVar(&f.configPath, "config", "", "configuration file path (YAML)")
	fs.StringVar(&f.configPath, "f", "", "configuration file path (YAML)")
	fs.StringVar(&f.executionID, "executionId", "", "overrides engine.executionId")
	fs.BoolVar(&f.dryRun, "dryRun", false, "overrides engine.dryRun")
	fs.StringVar(&f.connector, "connector", "", "overrides connector.name")
	fs.StringVar(&f.connector, "c", "", "overrides connector.name")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	f.overrides = fs.Args()
	return f, nil
}

func (f commonFlags) asOverrides() []string {
	out := append([]string(nil), f.overrides...)
	if f.executionID != "" {
		out = append(out, "engine.executionId="+f.executionID)
	}
	if f.dryRun {
		out = append(out, "engine.dryRun=true")
	}
	if f.connector != "" {
		out = append(out, "connector.name="+f.connector)
	}
	return out
}

func runVerb(direction pipeline.Direction, args []string, deps Deps) int {
	verb := "load"
	if direction == pipeline.Unload {
		verb = "unload"
	}
	f, err := parseCommon(verb, args)
	if err != nil {
		if err == flag.ErrHelp {
			return ExitSuccess
		}
		return ExitConfigError
	}
	if f.configPath == "" {
		log.Println("the -f/--config flag is required")
		return ExitConfigError
	}

	cfg, err := config.Load(f.configPath, f.asOverrides())
	if err != nil {
		log.Printf("configuration error: %v", err)
		return ExitConfigError
	}

	lg, err := logger.New(cfg.Log.OperationDir, logger.LevelForVerbosity(cfg.Log.Verbosity))
	if err != nil {
		log.Printf("failed to initialize logger: %v", err)
		return ExitConfigError
	}
	defer lg.Close()

	logMgr, err := newLogManager(cfg, lg)
	if err != nil {
		lg.Errorf("failed to initialize log manager: %v", err)
		return ExitConfigError
	}
	if rendered, err := cfg.Render(); err == nil {
		_ = logMgr.WriteEffectiveSettings(rendered)
	}
	lg.Infof("starting %s run %s (operation directory: %s)", verb, cfg.Engine.ExecutionID, cfg.Log.OperationDir)

	conn, err := deps.Connectors(cfg.Connector.Name, cfg.Connector.Settings)
	if err != nil {
		lg.Errorf("failed to build connector %q: %v", cfg.Connector.Name, err)
		return ExitConfigError
	}
	drv, err := deps.Drivers(cfg)
	if err != nil {
		lg.Errorf("failed to build driver: %v", err)
		return ExitConfigError
	}
	mapper, err := deps.Mappers(cfg)
	if err != nil {
		lg.Errorf("failed to build mapper: %v", err)
		return ExitConfigError
	}

	orchCfg := pipeline.Config{
		DryRun:     cfg.Engine.DryRun,
		Executor:   executor.Config{MaxInFlight: cfg.Executor.MaxInFlight, MaxPerSecond: cfg.Executor.MaxPerSecond},
		Batch:      batchConfigFrom(cfg),
		WindowSize: cfg.Batch.BufferSize,
	}
	tap := metrics.New()
	o := pipeline.New(orchCfg, conn, drv, mapper, logMgr, tap, direction)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	runErr := o.Run(runCtx)
	shutdownErr := o.Shutdown()
	elapsed := time.Since(start)

	errCounts, warnings, total := logMgr.Totals()
	var errTotal int64
	for _, n := range errCounts {
		errTotal += n
	}

	return summarize(lg, runErr, shutdownErr, errTotal, warnings, total, elapsed, cfg.Log.OperationDir)
}

func runCount(args []string, deps Deps) int {
	f, err := parseCommon("count", args)
	if err != nil {
		if err == flag.ErrHelp {
			return ExitSuccess
		}
		return ExitConfigError
	}
	if f.configPath == "" {
		log.Println("the -f/--config flag is required")
		return ExitConfigError
	}
	cfg, err := config.Load(f.configPath, f.asOverrides())
	if err != nil {
		log.Printf("configuration error: %v", err)
		return ExitConfigError
	}
	conn, err := deps.Connectors(cfg.Connector.Name, cfg.Connector.Settings)
	if err != nil {
		log.Printf("failed to build connector %q: %v", cfg.Connector.Name, err)
		return ExitConfigError
	}

	tap := metrics.New()
	counts, err := pipeline.RunCount(context.Background(), conn, 0, tap)
	_ = conn.Close()
	if err != nil {
		log.Printf("count failed: %v", err)
		return ExitCompletedWithErrors
	}
	var total int64
	for resource, n := range counts {
		log.Printf("%s: %d", resource, n)
		total += n
	}
	log.Printf("total: %d", total)
	return ExitSuccess
}

func newLogManager(cfg *config.Config, lg *logger.Logger) (*logmanager.Manager, error) {
	dataErrors, err := threshold.Parse(cfg.Log.MaxErrors)
	if err != nil {
		return nil, err
	}
	queryWarnings, err := threshold.Parse(cfg.Log.MaxWarnings)
	if err != nil {
		return nil, err
	}
	return logmanager.New(logmanager.Config{
		Dir:           cfg.Log.OperationDir,
		DataErrors:    dataErrors,
		QueryWarnings: queryWarnings,
		Logger:        lg,
	})
}

func batchConfigFrom(cfg *config.Config) *batcher.Config {
	if !cfg.Batch.Enabled {
		return nil
	}
	mode := batcher.PartitionKey
	if cfg.Batch.Mode == "replicaSet" {
		mode = batcher.ReplicaSet
	}
	return &batcher.Config{
		Mode:               mode,
		MaxBatchStatements: cfg.Batch.MaxBatchStatements,
		MaxBatchSizeBytes:  cfg.Batch.MaxBatchSizeBytes,
	}
}

// summarize renders the one-line run summary and returns the matching
// exit code.
func summarize(lg *logger.Logger, runErr, shutdownErr error, errTotal, warnings, total int64, elapsed time.Duration, dir string) int {
	hms := fmtElapsed(elapsed)

	var tme *logmanager.TooManyErrors
	if asTooManyErrors(runErr, &tme) {
		lg.Errorf("aborted by threshold in %s: %s", hms, tme.Message)
		lg.Infof("operation directory: %s", dir)
		return ExitAbortedByThreshold
	}
	if runErr != nil {
		lg.Errorf("failed in %s: %v", hms, runErr)
		lg.Infof("operation directory: %s", dir)
		return ExitCompletedWithErrors
	}
	if shutdownErr != nil {
		lg.Errorf("completed with shutdown errors in %s: %v", hms, shutdownErr)
		return ExitCompletedWithErrors
	}
	if errTotal > 0 {
		lg.Warnf("completed with %d errors in %s", errTotal, hms)
		lg.Infof("operation directory: %s", dir)
		return ExitCompletedWithErrors
	}
	lg.Infof("completed successfully in %s (%d records, %d warnings)", hms, total, warnings)
	lg.Infof("operation directory: %s", dir)
	return ExitSuccess
}

func asTooManyErrors(err error, target **logmanager.TooManyErrors) bool {
	for err != nil {
		if tme, ok := err.(*logmanager.TooManyErrors); ok {
			*target = tme
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func fmtElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
