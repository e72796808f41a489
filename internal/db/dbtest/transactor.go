// Package dbtest provides test doubles for the db package.
package dbtest

import (
	"context"

	"github.com/vasiliy-maslov/storefront/internal/db"
)

// Transactor runs fn directly with a nil DBTX and counts the calls.
// Repositories in unit tests are mocks, so the handle is never used.
type Transactor struct {
	Calls int
	// Err, when set, is returned instead of running fn.
	Err error
}

func (t *Transactor) WithinTx(ctx context.Context, fn db.TxFunc) error {
	t.Calls++
	if t.Err != nil {
		return t.Err
	}
	return fn(ctx, nil)
}
