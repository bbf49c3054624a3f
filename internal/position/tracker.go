// Package position implements the per-resource contiguous-range
// position tracker used to render positions.txt. It is a leaf
// component: no dependency on any other core package.
package position

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Range is a closed interval [Lo, Hi] of positions whose terminal
// outcome has been observed.
type Range struct {
	Lo, Hi int64
}

// Tracker maintains, per resource URI, a sorted, non-overlapping set
// of integer intervals. It is safe for concurrent use; each resource
// is guarded independently so one hot resource never blocks another.
type Tracker struct {
	mu        sync.Mutex
	resources map[string]*bucket
}

type bucket struct {
	mu     sync.Mutex
	ranges []Range // sorted, disjoint
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{resources: make(map[string]*bucket)}
}

func (t *Tracker) bucketFor(resource string) *bucket {
	t.mu.Lock()
	b, ok := t.resources[resource]
	if !ok {
		b = &bucket{}
		t.resources[resource] = b
	}
	t.mu.Unlock()
	return b
}

// Record inserts pos into resource's interval set, merging with any
// adjacent or overlapping interval. O(log n) via binary search over
// the sorted slice, with an O(n) shift on insert — acceptable since
// runs of contiguous positions collapse to a single interval in the
// common case.
func (t *Tracker) Record(resource string, pos int64) {
	b := t.bucketFor(resource)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ranges = insert(b.ranges, pos)
}

func insert(ranges []Range, pos int64) []Range {
	i := sort.Search(len(ranges), func(i int) bool { return ranges[i].Lo > pos })

	// Check whether pos already falls inside the interval before i.
	if i > 0 && ranges[i-1].Hi >= pos {
		return ranges // already recorded
	}

	mergeLeft := i > 0 && ranges[i-1].Hi == pos-1
	mergeRight := i < len(ranges) && ranges[i].Lo == pos+1

	switch {
	case mergeLeft && mergeRight:
		ranges[i-1].Hi = ranges[i].Hi
		return append(ranges[:i], ranges[i+1:]...)
	case mergeLeft:
		ranges[i-1].Hi = pos
		return ranges
	case mergeRight:
		ranges[i].Lo = pos
		return ranges
	default:
		out := make([]Range, 0, len(ranges)+1)
		out = append(out, ranges[:i]...)
		out = append(out, Range{Lo: pos, Hi: pos})
		out = append(out, ranges[i:]...)
		return out
	}
}

// Ranges returns a copy of the current ranges for resource, in
// ascending order.
func (t *Tracker) Ranges(resource string) []Range {
	b := t.bucketFor(resource)
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Range, len(b.ranges))
	copy(out, b.ranges)
	return out
}

// Resources returns the set of resource URIs seen so far, sorted.
func (t *Tracker) Resources() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.resources))
	for r := range t.resources {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// WriteLines renders positions.txt's contents: one
// "<resource>:<lo>[-<hi>]" line per range, resources in ascending
// lexical order and ranges ascending within a resource.
func (t *Tracker) WriteLines() []string {
	var lines []string
	for _, resource := range t.Resources() {
		for _, r := range t.Ranges(resource) {
			if r.Lo == r.Hi {
				lines = append(lines, fmt.Sprintf("%s:%d", resource, r.Lo))
			} else {
				lines = append(lines, fmt.Sprintf("%s:%d-%d", resource, r.Lo, r.Hi))
			}
		}
	}
	return lines
}

// Render is a convenience wrapper returning WriteLines joined by "\n"
// with a trailing newline, ready to write to positions.txt.
func (t *Tracker) Render() string {
	lines := t.WriteLines()
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
