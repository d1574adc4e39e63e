package httpkit

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL SQLSTATE codes the repositories react to.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation reports a unique constraint violation, such as a
// duplicate render id.
func IsUniqueViolation(err error) bool { return pgCode(err) == pgUniqueViolation }

// IsForeignKeyViolation reports a reference to a missing row, such as a
// render pointing at an unknown asset.
func IsForeignKeyViolation(err error) bool { return pgCode(err) == pgForeignKeyViolation }
