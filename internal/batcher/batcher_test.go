package batcher

import (
	"testing"

	"bulkcore/internal/statement"
)

func stmt(token int64, size int) statement.Statement {
	return statement.NewSimple("INSERT ...", nil, size, statement.RoutingInfo{Token: token})
}

func TestFlushOnMaxStatements(t *testing.T) {
	b := New(Config{Mode: PartitionKey, MaxBatchStatements: 3, MaxBatchSizeBytes: 1 << 20})
	var out []statement.Batch
	for i := 0; i < 3; i++ {
		out = append(out, b.Add(stmt(1, 10))...)
	}
	if len(out) != 1 || len(out[0].Statements) != 3 {
		t.Fatalf("expected one flushed batch of 3, got %v", out)
	}
	if b.Pending() != 0 {
		t.Fatalf("expected no pending groups after flush")
	}
}

func TestFlushOnMaxSize(t *testing.T) {
	b := New(Config{Mode: PartitionKey, MaxBatchStatements: 100, MaxBatchSizeBytes: 20})
	out := b.Add(stmt(1, 10))
	if len(out) != 0 {
		t.Fatalf("should not flush yet")
	}
	out = b.Add(stmt(1, 15))
	if len(out) != 1 {
		t.Fatalf("expected flush once size bound crossed")
	}
}

func TestEveryStatementAppearsExactlyOnce(t *testing.T) {
	b := New(Config{Mode: PartitionKey, MaxBatchStatements: 2, MaxBatchSizeBytes: 1 << 20})
	var all []statement.Batch
	for i := int64(0); i < 10; i++ {
		all = append(all, b.Add(stmt(i%3, 1))...)
	}
	all = append(all, b.Flush()...)

	count := 0
	for _, batch := range all {
		count += len(batch.Statements)
		if len(batch.Statements) > 2 {
			t.Fatalf("batch exceeds MaxBatchStatements: %d", len(batch.Statements))
		}
	}
	if count != 10 {
		t.Fatalf("expected 10 statements total across batches, got %d", count)
	}
}

func TestFlushOrderIsInsertionOrderOfFirstElement(t *testing.T) {
	b := New(Config{Mode: PartitionKey, MaxBatchStatements: 100, MaxBatchSizeBytes: 1 << 20})
	b.Add(stmt(2, 1))
	b.Add(stmt(1, 1))
	b.Add(stmt(2, 1))
	out := b.Flush()
	if len(out) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(out))
	}
	// group for token 2 was seen first, so it must flush first.
	if out[0].Statements[0].Routing.Token != 2 {
		t.Fatalf("expected first flushed batch to be the first-seen group")
	}
}

func TestSameGroupSharesRoutingUnderMode(t *testing.T) {
	b := New(Config{Mode: ReplicaSet, MaxBatchStatements: 100, MaxBatchSizeBytes: 1 << 20})
	s1 := statement.NewSimple("a", nil, 1, statement.RoutingInfo{ReplicaSet: "n1,n2"})
	s2 := statement.NewSimple("b", nil, 1, statement.RoutingInfo{ReplicaSet: "n1,n2"})
	s3 := statement.NewSimple("c", nil, 1, statement.RoutingInfo{ReplicaSet: "n3,n4"})
	b.Add(s1)
	b.Add(s2)
	b.Add(s3)
	out := b.Flush()
	for _, batch := range out {
		rs := batch.Statements[0].Routing.ReplicaSet
		for _, s := range batch.Statements {
			if s.Routing.ReplicaSet != rs {
				t.Fatalf("batch mixes replica sets: %v", batch)
			}
		}
	}
}
