package sqlstore

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"github.com/conduit-lang/entitycore/internal/orm/store"
)

// ConvertDBError maps driver-specific errors onto store errors. Constraint
// violations and serialization failures become store.ErrConflict; anything
// else is returned unchanged.
func ConvertDBError(err error) error {
	if err == nil {
		return nil
	}

	// PostgreSQL errors (pgx)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23503", "23514", "23502": // unique, foreign key, check, not null
			return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.Message)
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.Message)
		}
		return err
	}

	// SQLite errors
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code {
		case sqlite3.ErrConstraint, sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%w: %s", store.ErrConflict, liteErr.Error())
		}
	}

	return err
}
