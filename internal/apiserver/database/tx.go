package database

import (
	"context"

	"gorm.io/gorm"
)

type txCtxKey struct{}

// txFrom returns the transaction opened by Transaction, if any
func txFrom(ctx context.Context) (*gorm.DB, bool) {
	tx, ok := ctx.Value(txCtxKey{}).(*gorm.DB)
	return tx, ok && tx != nil
}

func withTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txCtxKey{}, tx)
}

// conn picks the handle a query runs on: the surrounding transaction when
// Transaction put one in ctx, otherwise db scoped to ctx
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := txFrom(ctx); ok {
		return tx
	}
	return db.WithContext(ctx)
}
