package database

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// WithTx returns a context carrying the transaction handle. Stores resolve
// their connection through FromContext, so every store call made with this
// context joins the same transaction.
func WithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// FromContext returns the transaction carried by the context, or the
// fallback connection when none is present.
func FromContext(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return fallback
}

// Detach strips any carried transaction. Work dispatched to outlive the
// request, such as async audit writes, must not reference a transaction that
// has already committed or rolled back.
func Detach(ctx context.Context) context.Context {
	return context.WithValue(ctx, txKey{}, (*gorm.DB)(nil))
}

// TxManager runs service operations inside one storage transaction so a
// security-sensitive mutation and its audit append commit or roll back
// together. Nested calls join the enclosing transaction through a savepoint.
type TxManager struct {
	db *gorm.DB
}

func NewTxManager(db *gorm.DB) *TxManager {
	return &TxManager{db: db}
}

func (m *TxManager) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	db := FromContext(ctx, m.db)
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(WithTx(ctx, tx))
	})
}
