package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/flashcards-ai-queue/internal/domain"
)

// SQLSTATE codes the archive distinguishes.
const (
	uniqueViolationCode  = "23505"
	checkViolationCode   = "23514"
	notNullViolationCode = "23502"
)

// ErrArchive wraps database failures that have no domain meaning.
var ErrArchive = errors.New("job archive failure")

// MapError translates a database error for the archive's callers. A missing
// row becomes domain.ErrJobNotFound, constraint failures on a job row become
// domain.ErrValidation, and anything else wraps ErrArchive. The driver error
// is kept in the message for logs only.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrJobNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolationCode:
			return fmt.Errorf("%w: duplicate request id: %v", ErrArchive, err)
		case checkViolationCode:
			return fmt.Errorf(
				"%w: check constraint violation (%s): %v",
				domain.ErrValidation,
				pgErr.ConstraintName,
				err,
			)
		case notNullViolationCode:
			return fmt.Errorf(
				"%w: not null violation (%s): %v",
				domain.ErrValidation,
				pgErr.ColumnName,
				err,
			)
		}
	}

	return fmt.Errorf("%w: %v", ErrArchive, err)
}
