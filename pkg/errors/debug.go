package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// LogFields flattens err into structured log fields: the typed code, every
// link of the wrap chain, and driver diagnostics when a database error is
// present.
func LogFields(err error) map[string]any {
	if err == nil {
		return nil
	}
	var chain []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T: %v", e, e))
	}
	fields := map[string]any{
		"error":       err.Error(),
		"error_code":  CodeOf(err),
		"error_chain": chain,
	}

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	var liteErr sqlite3.Error
	switch {
	case errors.As(err, &pgxErr):
		fields["pg_code"] = pgxErr.Code
		fields["pg_constraint"] = pgxErr.ConstraintName
		fields["pg_table"] = pgxErr.TableName
		fields["pg_detail"] = pgxErr.Detail
	case errors.As(err, &pqErr):
		fields["pg_code"] = string(pqErr.Code)
		fields["pg_constraint"] = pqErr.Constraint
		fields["pg_table"] = pqErr.Table
		fields["pg_detail"] = pqErr.Detail
	case errors.As(err, &liteErr):
		fields["sqlite_code"] = int(liteErr.Code)
		fields["sqlite_extended_code"] = int(liteErr.ExtendedCode)
	}
	return fields
}
