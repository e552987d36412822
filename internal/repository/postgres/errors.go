package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ndrama/panel-server/internal/model"
)

const (
	sqlStateUniqueViolation = "23505"
	sqlStateCheckViolation  = "23514"
)

// translateError maps driver errors onto model errors, wrapping everything
// else with op for context.
func translateError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateUniqueViolation:
			return fmt.Errorf("%w: %s", model.ErrConflict, pgErr.ConstraintName)
		case sqlStateCheckViolation:
			return fmt.Errorf("%w: %s", model.ErrValidation, pgErr.ConstraintName)
		}
	}

	return fmt.Errorf("failed to %s: %w", op, err)
}
