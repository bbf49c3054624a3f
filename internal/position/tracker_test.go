package position

import (
	"reflect"
	"testing"
)

func TestInsertMerges(t *testing.T) {
	tr := New()
	for _, p := range []int64{5, 1, 2, 3, 10, 9, 4} {
		tr.Record("f1", p)
	}
	got := tr.Ranges("f1")
	want := []Range{{1, 5}, {9, 10}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestDisjointAndSorted(t *testing.T) {
	tr := New()
	tr.Record("f1", 1)
	tr.Record("f1", 100)
	tr.Record("f1", 50)
	got := tr.Ranges("f1")
	want := []Range{{1, 1}, {50, 50}, {100, 100}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestDuplicateRecordIsNoop(t *testing.T) {
	tr := New()
	tr.Record("f1", 1)
	tr.Record("f1", 2)
	tr.Record("f1", 1)
	got := tr.Ranges("f1")
	want := []Range{{1, 2}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestWriteLines(t *testing.T) {
	tr := New()
	tr.Record("file:///f1.csv", 1)
	tr.Record("file:///f2.csv", 5)
	tr.Record("file:///f2.csv", 6)
	got := tr.WriteLines()
	want := []string{"file:///f1.csv:1", "file:///f2.csv:5-6"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestPerResourceIndependentLocking(t *testing.T) {
	tr := New()
	done := make(chan struct{})
	go func() {
		for i := int64(1); i <= 1000; i++ {
			tr.Record("a", i)
		}
		close(done)
	}()
	for i := int64(1); i <= 1000; i++ {
		tr.Record("b", i)
	}
	<-done
	if len(tr.Ranges("a")) != 1 || len(tr.Ranges("b")) != 1 {
		t.Fatalf("expected single contiguous range per resource")
	}
}
