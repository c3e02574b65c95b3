package repositories

import "context"

// TxFn runs with a transaction bound to its context; every repository call
// inside picks it up through GetExecutor.
type TxFn func(ctx context.Context) error

// TransactionManager scopes multi-table writes, such as payment ingestion,
// to a single commit.
type TransactionManager interface {
	// ExecTx executes a function within a transaction
	ExecTx(ctx context.Context, fn TxFn) error
}
