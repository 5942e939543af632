package internal

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// rowQuerier is satisfied by both *sql.DB and *sql.Tx
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// inTx runs fn inside a single transaction. Commit-or-nothing: if fn fails,
// everything it wrote (including movement and audit rows) is rolled back.
// Transient storage failures are retried once; domain errors are not, since
// they reflect caller input or current state.
func (s *Server) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	err := s.runTxOnce(ctx, fn)
	if err != nil && isTransient(err) {
		err = s.runTxOnce(ctx, fn)
	}
	return err
}

func (s *Server) runTxOnce(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// isTransient reports whether an error looks like a recoverable storage
// fault rather than a caller or domain problem
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if err == driver.ErrBadConn || err == sql.ErrConnDone {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure and deadlock_detected
		if pgErr.Code == "40001" || pgErr.Code == "40P01" {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "i/o timeout")
}
