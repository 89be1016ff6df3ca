package repository

import (
	"context"
	"errors"

	"github.com/cloo-solutions/knowtext/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// mapPgError translates constraint violations into domain errors.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		return domain.ErrKnowledgeTextAlreadyExists
	case pgForeignKeyViolation:
		return domain.ErrParentNotFound
	case pgCheckViolation:
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "constraint "+pgErr.ConstraintName+" violated", err)
	}
	return err
}
