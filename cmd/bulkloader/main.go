package main

import (
	"fmt"
	"os"
	"strings"

	"bulkcore/internal/cli"
	"bulkcore/internal/config"
	"bulkcore/internal/connector"
	"bulkcore/internal/driver"
	"bulkcore/internal/driver/memdriver"
	"bulkcore/internal/pipeline"
	"bulkcore/internal/record"
	"bulkcore/internal/statement"
)

// buildConnector resolves connector.name to a concrete Connector. Real
// connector plugins (file/stdin/network) are out-of-scope collaborators;
// this binary ships only the in-memory fixture, useful for
// smoke-testing a configuration end to end.
func buildConnector(name string, settings map[string]any) (connector.Connector, error) {
	switch name {
	case "fixture":
		resource, _ := settings["resource"].(string)
		if resource == "" {
			resource = "fixture"
		}
		return connector.NewFixture([]connector.ResourceInput{{Resource: resource}}, nil), nil
	default:
		return nil, fmt.Errorf("no connector plugin registered for %q (connector implementations are external to this build)", name)
	}
}

// buildDriver resolves a Driver for the run. The real CQL driver is an
// out-of-scope collaborator; memdriver stands in as the reference/test
// driver for nodes named in connector.settings.nodes.
func buildDriver(cfg *config.Config) (driver.Driver, error) {
	nodes, _ := cfg.Connector.Settings["nodes"].(string)
	if nodes == "" {
		nodes = "n1"
	}
	return memdriver.New(strings.Split(nodes, ",")...), nil
}

// buildMapper resolves the record→statement Mapper for the run's
// schema configuration. Schema reshaping itself is out of scope for
// this binary; this default mapper renders every field into a
// positional INSERT against schema.table, good enough to exercise a
// pipeline end to end without a real mapping DSL.
func buildMapper(cfg *config.Config) (pipeline.Mapper, error) {
	if cfg.Schema.Query != "" {
		query := cfg.Schema.Query
		return func(rec record.Record) (statement.Statement, error) {
			values := make([]any, len(rec.Fields))
			for i, f := range rec.Fields {
				values[i] = f.Value
			}
			return statement.NewMapped(query, values, estimateSize(rec), statement.RoutingInfo{}, rec), nil
		}, nil
	}

	table := cfg.Schema.Keyspace + "." + cfg.Schema.Table
	return func(rec record.Record) (statement.Statement, error) {
		if len(rec.Fields) == 0 {
			return statement.Statement{}, fmt.Errorf("cmd/bulkloader: record at %s:%d has no fields to map", rec.Resource, rec.Position)
		}
		names := make([]string, len(rec.Fields))
		placeholders := make([]string, len(rec.Fields))
		values := make([]any, len(rec.Fields))
		for i, f := range rec.Fields {
			names[i] = f.Name
			placeholders[i] = "?"
			values[i] = f.Value
		}
		cql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(names, ", "), strings.Join(placeholders, ", "))
		return statement.NewMapped(cql, values, estimateSize(rec), statement.RoutingInfo{}, rec), nil
	}, nil
}

func estimateSize(rec record.Record) int {
	size := 0
	for _, f := range rec.Fields {
		size += len(fmt.Sprint(f.Value))
	}
	return size
}

func main() {
	code := cli.Execute(os.Args[1:], cli.Deps{
		Connectors: buildConnector,
		Drivers:    buildDriver,
		Mappers:    buildMapper,
	})
	os.Exit(code)
}
