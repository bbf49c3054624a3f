package connector

import (
	"context"

	"bulkcore/internal/record"
)

// ResourceInput is one resource's worth of fixture rows for Fixture.
type ResourceInput struct {
	Resource string
	Rows     [][]Field // either Field.Name or Field.Index must be set per column
	Errors   map[int64]error // position -> decode failure, rows in Rows are skipped for those positions
	Sources  map[int64]string
}

// Field names a fixture column.
type Field struct {
	Name  string
	Index int
	Value any
}

// Fixture is an in-memory Connector used by orchestrator and
// component tests. It is not a production connector: real connector
// plugins are external, interfaced-only collaborators.
type Fixture struct {
	resources []ResourceInput
	features  map[Feature]bool
	metadata  []FieldMetadata
}

// NewFixture builds a fixture connector over the given resources.
func NewFixture(resources []ResourceInput, metadata []FieldMetadata, features ...Feature) *Fixture {
	fm := make(map[Feature]bool, len(features))
	for _, f := range features {
		fm[f] = true
	}
	return &Fixture{resources: resources, features: fm, metadata: metadata}
}

func (f *Fixture) Init(ctx context.Context) error  { return nil }
func (f *Fixture) Close() error                    { return nil }
func (f *Fixture) Supports(feat Feature) bool       { return f.features[feat] }
func (f *Fixture) RecordMetadata() []FieldMetadata  { return f.metadata }
func (f *Fixture) EstimatedResourceCount() int      { return len(f.resources) }

func (f *Fixture) recordsFor(ri ResourceInput) []record.Record {
	out := make([]record.Record, 0, len(ri.Rows)+len(ri.Errors))
	for i, row := range ri.Rows {
		pos := int64(i + 1)
		if cause, isErr := ri.Errors[pos]; isErr {
			out = append(out, record.NewError(ri.Resource, pos, ri.Sources[pos], cause))
			continue
		}
		fields := make([]record.Field, len(row))
		for j, col := range row {
			fields[j] = record.Field{Name: col.Name, Index: col.Index, Value: col.Value}
		}
		out = append(out, record.NewOK(ri.Resource, pos, ri.Sources[pos], fields))
	}
	return out
}

func (f *Fixture) Read(ctx context.Context) (<-chan record.Record, error) {
	ch := make(chan record.Record)
	go func() {
		defer close(ch)
		for _, ri := range f.resources {
			for _, rec := range f.recordsFor(ri) {
				select {
				case ch <- rec:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

func (f *Fixture) ReadByResource(ctx context.Context) (<-chan ResourceStream, error) {
	out := make(chan ResourceStream)
	go func() {
		defer close(out)
		for _, ri := range f.resources {
			recs := f.recordsFor(ri)
			ch := make(chan record.Record)
			rs := ResourceStream{Resource: ri.Resource, Records: ch}
			select {
			case out <- rs:
			case <-ctx.Done():
				close(ch)
				return
			}
			go func(recs []record.Record) {
				defer close(ch)
				for _, rec := range recs {
					select {
					case ch <- rec:
					case <-ctx.Done():
						return
					}
				}
			}(recs)
		}
	}()
	return out, nil
}
