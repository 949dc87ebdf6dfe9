package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context carries the request context into a repo call. Tx, when set, is used
// instead of the repo's own handle so several calls can share a transaction.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// Of wraps ctx with no transaction.
func Of(ctx context.Context) Context {
	return Context{Ctx: ctx}
}
