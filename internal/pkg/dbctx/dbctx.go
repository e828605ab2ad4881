// Package dbctx threads an optional GORM transaction next to a request
// context, so repo methods run inside a caller's transaction when there is one.
package dbctx

import (
	"context"

	"gorm.io/gorm"
)

type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

func New(ctx context.Context) Context {
	return Context{Ctx: ctx}
}

// WithTx returns a copy of c bound to tx.
func (c Context) WithTx(tx *gorm.DB) Context {
	c.Tx = tx
	return c
}

// InTx reports whether c carries a transaction.
func (c Context) InTx() bool {
	return c.Tx != nil
}

// DB returns the transaction, or fallback outside one, scoped to c.Ctx.
func (c Context) DB(fallback *gorm.DB) *gorm.DB {
	db := c.Tx
	if db == nil {
		db = fallback
	}
	if c.Ctx == nil {
		return db
	}
	return db.WithContext(c.Ctx)
}
