package memdriver

import (
	"context"
	"errors"
	"testing"

	"bulkcore/internal/statement"
)

func TestExecuteAsyncSucceedsByDefault(t *testing.T) {
	d := New("n1", "n2", "n3")
	ch, err := d.ExecuteAsync(context.Background(), statement.NewSimple("INSERT ...", nil, 4, statement.RoutingInfo{RoutingKey: []byte("k1")}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res := <-ch
	if !res.Succeeded() {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if d.CallCount() != 1 {
		t.Fatalf("expected 1 call recorded, got %d", d.CallCount())
	}
}

func TestFailureInjectorSurfacesOnResult(t *testing.T) {
	want := errors.New("injected")
	d := New("n1").WithFailureInjector(func(statement.Statement) error { return want })
	ch, _ := d.ExecuteAsync(context.Background(), statement.NewSimple("x", nil, 1, statement.RoutingInfo{}))
	res := <-ch
	if res.Succeeded() {
		t.Fatalf("expected injected failure to surface")
	}
}

func TestReplicasReturnsAllNodesWithDistinctPrimary(t *testing.T) {
	d := New("n1", "n2", "n3")
	token := d.TokenFor([]byte("partition-key"))
	replicas := d.Replicas(token)
	if len(replicas) != 3 {
		t.Fatalf("expected 3 replicas, got %d", len(replicas))
	}
	seen := map[string]bool{}
	for _, r := range replicas {
		if seen[r.HostID] {
			t.Fatalf("duplicate replica %s", r.HostID)
		}
		seen[r.HostID] = true
	}
}

func TestTokenForIsDeterministic(t *testing.T) {
	d := New("n1", "n2")
	a := d.TokenFor([]byte("same-key"))
	b := d.TokenFor([]byte("same-key"))
	if a != b {
		t.Fatalf("expected TokenFor to be deterministic for the same routing key")
	}
}
