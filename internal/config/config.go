// Package config implements the YAML configuration surface:
// engine/log/executor/batch/schema/connector settings, defaulting,
// validation, and dotted key=value CLI overrides. Decoding uses
// gopkg.in/yaml.v3 directly against tagged structs, walking the
// decoded yaml.Node tree to apply overrides before the final decode.
// The decode is not strict: keys that match no field are ignored.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EngineConfig controls pipeline identity and execution mode.
type EngineConfig struct {
	ExecutionID string `yaml:"executionId"`
	DryRun      bool   `yaml:"dryRun"`
}

// LogConfig controls the log manager.
type LogConfig struct {
	OperationDir string `yaml:"directory"`
	MaxErrors    string `yaml:"maxErrors"`        // "unlimited", an integer, or "N%"
	MaxWarnings  string `yaml:"maxQueryWarnings"` // same grammar as MaxErrors
	Verbosity    string `yaml:"verbosity"`        // "quiet", "normal", "verbose"
}

// ExecutorConfig controls the bounded in-flight executor.
type ExecutorConfig struct {
	MaxInFlight  int     `yaml:"maxInFlight"`
	MaxPerSecond float64 `yaml:"maxPerSecond"`
}

// BatchConfig controls statement batching. Mode is
// "partitionKey" or "replicaSet"; Enabled gates whether the
// orchestrator batches at all. BufferSize sets the parallel-windowed
// scheduling regime's record count per window.
type BatchConfig struct {
	Enabled            bool   `yaml:"enabled"`
	Mode               string `yaml:"mode"`
	MaxBatchStatements int    `yaml:"maxBatchStatements"`
	MaxBatchSizeBytes  int    `yaml:"maxBatchSizeBytes"`
	BufferSize         int    `yaml:"bufferSize"`
}

// SchemaConfig names the target/source table and its mapping.
type SchemaConfig struct {
	Keyspace string `yaml:"keyspace"`
	Table    string `yaml:"table"`
	Mapping  string `yaml:"mapping"`
	Query    string `yaml:"query"`
}

// ConnectorConfig is opaque, connector-specific settings passed
// through verbatim; the core never interprets these keys itself
// (connector plugins are external, interfaced-only collaborators).
type ConnectorConfig struct {
	Name     string         `yaml:"name"`
	Settings map[string]any `yaml:"settings"`
}

// Config is the root configuration document.
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Log       LogConfig       `yaml:"log"`
	Executor  ExecutorConfig  `yaml:"executor"`
	Batch     BatchConfig     `yaml:"batch"`
	Schema    SchemaConfig    `yaml:"schema"`
	Connector ConnectorConfig `yaml:"connector"`
}

// ValidationError collects every configuration problem found, so an
// operator gets one complete report instead of a single-issue loop.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid configuration:")
	for _, msg := range e.Errors {
		b.WriteString("\n  - ")
		b.WriteString(msg)
	}
	return b.String()
}

// Load reads path, applies dotted overrides, defaults, and validates
// the result.
func Load(path string, overrides []string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if len(root.Content) == 0 {
		root.Kind = yaml.DocumentNode
		root.Content = []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}
	}

	for _, ov := range overrides {
		if err := applyOverride(root.Content[0], ov); err != nil {
			return nil, fmt.Errorf("config: override %q: %w", ov, err)
		}
	}

	var cfg Config
	if err := root.Content[0].Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyOverride sets key=value (key is a dotted path, e.g.
// "executor.maxInFlight=256") on the decoded yaml.Node tree, creating
// intermediate mapping nodes as needed.
func applyOverride(doc *yaml.Node, kv string) error {
	parts := strings.SplitN(kv, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("expected key=value, got %q", kv)
	}
	path := strings.Split(parts[0], ".")
	value := parts[1]

	node := doc
	for i, segment := range path {
		if node.Kind != yaml.MappingNode {
			node.Kind = yaml.MappingNode
			node.Tag = "!!map"
			node.Content = nil
		}
		_, child := findOrCreateKey(node, segment)
		if i == len(path)-1 {
			child.Kind = yaml.ScalarNode
			child.Tag = scalarTag(value)
			child.Value = value
			return nil
		}
		node = child
	}
	return nil
}

func findOrCreateKey(mapping *yaml.Node, key string) (*yaml.Node, *yaml.Node) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i], mapping.Content[i+1]
		}
	}
	keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
	valNode := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	mapping.Content = append(mapping.Content, keyNode, valNode)
	return keyNode, valNode
}

func scalarTag(value string) string {
	if value == "true" || value == "false" {
		return "!!bool"
	}
	if _, err := strconv.ParseInt(value, 10, 64); err == nil {
		return "!!int"
	}
	if _, err := strconv.ParseFloat(value, 64); err == nil {
		return "!!float"
	}
	return "!!str"
}

// ApplyDefaults fills the zero-valued log and executor fields, and the
// batch fields when batching is enabled, with their defaults.
// engine.executionId gets no default: Validate rejects an empty one.
func (c *Config) ApplyDefaults() {
	if c.Log.OperationDir == "" {
		c.Log.OperationDir = c.Engine.ExecutionID
	}
	if c.Log.MaxErrors == "" {
		c.Log.MaxErrors = "unlimited"
	}
	if c.Log.MaxWarnings == "" {
		c.Log.MaxWarnings = "unlimited"
	}
	if c.Log.Verbosity == "" {
		c.Log.Verbosity = "normal"
	}
	if c.Executor.MaxInFlight <= 0 {
		c.Executor.MaxInFlight = 32
	}
	if c.Batch.Enabled {
		if c.Batch.Mode == "" {
			c.Batch.Mode = "partitionKey"
		}
		if c.Batch.MaxBatchStatements <= 0 {
			c.Batch.MaxBatchStatements = 32
		}
		if c.Batch.MaxBatchSizeBytes <= 0 {
			c.Batch.MaxBatchSizeBytes = 65536
		}
	}
}

// Validate reports every configuration problem at once via
// ValidationError, rather than failing on the first one found.
func (c *Config) Validate() error {
	var errs []string
	if c.Engine.ExecutionID == "" {
		errs = append(errs, "engine.executionId is required")
	}
	if c.Schema.Keyspace == "" {
		errs = append(errs, "schema.keyspace is required")
	}
	if c.Schema.Table == "" && c.Schema.Query == "" {
		errs = append(errs, "one of schema.table or schema.query is required")
	}
	if c.Connector.Name == "" {
		errs = append(errs, "connector.name is required")
	}
	switch c.Batch.Mode {
	case "", "partitionKey", "replicaSet":
	default:
		errs = append(errs, fmt.Sprintf("batch.mode %q is not one of partitionKey, replicaSet", c.Batch.Mode))
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// Render serializes c back to YAML, for effective-settings.log.
func (c *Config) Render() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("config: render: %w", err)
	}
	return string(data), nil
}
