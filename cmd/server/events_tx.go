package main

import (
	"context"
	"database/sql"
	"time"

	dErrors "esocial/pkg/domain-errors"
	"esocial/pkg/platform/tx"
)

const defaultEventsTxTimeout = 5 * time.Second

// eventsPostgresTx runs lifecycle transactions bounded by timeout unless the
// caller already carries a deadline.
type eventsPostgresTx struct {
	runner  *tx.Runner
	timeout time.Duration
}

func newEventsPostgresTx(db *sql.DB, timeout time.Duration) *eventsPostgresTx {
	if timeout <= 0 {
		timeout = defaultEventsTxTimeout
	}
	return &eventsPostgresTx{runner: tx.NewRunner(db), timeout: timeout}
}

func (t *eventsPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	return t.runner.RunInTx(ctx, fn)
}
