package outbound

import (
	"context"
)

// TransactionPort runs a unit of work atomically.
type TransactionPort interface {
	// RunInTransaction executes fn within a database transaction. Adapters called with the
	// context passed to fn take part in the transaction. Nested calls join the outer one.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
