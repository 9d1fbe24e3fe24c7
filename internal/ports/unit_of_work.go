package ports

import "context"

// Tx is an opaque transaction handle owned by the persistence adapter (a *gorm.DB).
type Tx interface{}

// UnitOfWork runs fn in a transaction: an error rolls back, nil commits.
// No collaborator call may be made from inside fn.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type txKey struct{}

func WithTxContext(ctx context.Context, tx Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func TxFromContext(ctx context.Context) Tx {
	return ctx.Value(txKey{})
}

// InTx reports whether ctx already carries a transaction.
func InTx(ctx context.Context) bool {
	return TxFromContext(ctx) != nil
}
