package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an infra-defined transaction handle (pgx.Tx for Postgres).
// Repositories accept nil and fall back to the pool.
type Tx interface{}

// NoTX runs a repository call directly on the pool.
var NoTX Tx

// TransactionManager runs fn inside one database transaction, committing when
// fn returns nil and rolling back otherwise. Use-case code passes tx straight
// through to repositories and never inspects it.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
