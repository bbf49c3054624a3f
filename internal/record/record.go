// Package record defines the Record type that flows through the
// streaming pipeline between a connector and the mapper.
package record

import "fmt"

// Field is a single named or indexed value carried by a Record.
// Name is empty for purely indexed records; Index is -1 when the
// connector only exposes named fields.
type Field struct {
	Name  string
	Index int
	Value any
}

// Record is an ordered tuple of fields carrying a provenance triple.
// Records are immutable after emission: callers must not mutate
// Fields or any other exported state once a Record has been handed to
// a pipeline stage.
type Record struct {
	Resource string // source/sink URI this record came from
	Position int64  // 1-based monotonic position within Resource
	Source   string // original source-line text, if available

	Fields []Field // empty for error records

	err error // non-nil marks this as an error record
}

// NewOK builds a successfully-decoded record.
func NewOK(resource string, position int64, source string, fields []Field) Record {
	return Record{Resource: resource, Position: position, Source: source, Fields: fields}
}

// NewError builds a record representing a decode failure. Per the
// data model, an error record carries a cause and may carry source
// text, but never carries fields.
func NewError(resource string, position int64, source string, cause error) Record {
	if cause == nil {
		cause = fmt.Errorf("record: unspecified error at %s:%d", resource, position)
	}
	return Record{Resource: resource, Position: position, Source: source, err: cause}
}

// IsError reports whether this record represents a connector-side
// decode failure rather than a usable value.
func (r Record) IsError() bool { return r.err != nil }

// Err returns the decode failure, or nil for an ok record.
func (r Record) Err() error { return r.err }

// HasSource reports whether original source text is available. A
// missing source means the bad file gets no line for this record,
// even though it is still logged and positioned.
func (r Record) HasSource() bool { return r.Source != "" }

// Get returns the named field's value and whether it was present.
func (r Record) Get(name string) (any, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// GetIndexed returns the value at the given index and whether it was
// present.
func (r Record) GetIndexed(index int) (any, bool) {
	for _, f := range r.Fields {
		if f.Index == index {
			return f.Value, true
		}
	}
	return nil, false
}
