package driver

import (
	"context"

	"bulkcore/internal/statement"
)

// dryRunDriver short-circuits execution: every statement or batch is
// mapped to a synthetic, always-successful result without touching
// the wrapped driver, so mapping can be validated without reaching
// the cluster.
type dryRunDriver struct {
	inner Driver
}

// DryRun wraps a Driver so that ExecuteAsync/ExecuteBatchAsync never
// issue a real call; Prepare, TokenFor and Replicas still delegate,
// since the batcher and mapper need real routing/prepare behavior to
// validate mapping end to end.
func DryRun(inner Driver) Driver {
	return &dryRunDriver{inner: inner}
}

func (d *dryRunDriver) Prepare(ctx context.Context, cql string) (PreparedStatement, error) {
	return d.inner.Prepare(ctx, cql)
}

func (d *dryRunDriver) ExecuteAsync(ctx context.Context, stmt statement.Statement) (<-chan Result, error) {
	ch := make(chan Result, 1)
	ch <- Result{Statement: stmt, Meta: ExecMeta{WasApplied: true}}
	close(ch)
	return ch, nil
}

func (d *dryRunDriver) ExecuteBatchAsync(ctx context.Context, batch statement.Batch) (<-chan Result, error) {
	ch := make(chan Result, 1)
	b := batch
	ch <- Result{Batch: &b, Meta: ExecMeta{WasApplied: true}}
	close(ch)
	return ch, nil
}

func (d *dryRunDriver) TokenFor(routingKey []byte) Token { return d.inner.TokenFor(routingKey) }
func (d *dryRunDriver) Replicas(t Token) []Node           { return d.inner.Replicas(t) }
func (d *dryRunDriver) Close() error                      { return d.inner.Close() }
