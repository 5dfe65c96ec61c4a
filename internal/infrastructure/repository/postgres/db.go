package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/care-assistant/internal/core/domain"
	"github.com/kirillkom/care-assistant/internal/core/ports"
)

const schemaLockKey int64 = 2026031001

var _ ports.RecordStore = (*RecordRepository)(nil)

// RecordRepository stores calls, triage records, appointments and tasks.
type RecordRepository struct {
	db *sql.DB
}

func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *RecordRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS calls (
	id TEXT PRIMARY KEY,
	patient_name TEXT NOT NULL,
	phone_number TEXT NOT NULL DEFAULT '',
	channel TEXT NOT NULL DEFAULT '',
	transcript TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	last_contact_at TIMESTAMPTZ NOT NULL,
	resolved_at TIMESTAMPTZ,
	recall_count INTEGER NOT NULL DEFAULT 0,
	triage_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_calls_recall ON calls(last_contact_at) WHERE status = 'open' AND resolved_at IS NULL;

CREATE TABLE IF NOT EXISTS triage_records (
	id TEXT PRIMARY KEY,
	call_id TEXT NOT NULL DEFAULT '',
	conversation_id TEXT NOT NULL DEFAULT '',
	complaint TEXT NOT NULL,
	urgency TEXT NOT NULL,
	disposition TEXT NOT NULL,
	appointment_id TEXT NOT NULL DEFAULT '',
	check_in_at TIMESTAMPTZ,
	check_in_completed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_triage_check_in ON triage_records(check_in_at) WHERE check_in_completed_at IS NULL;

CREATE TABLE IF NOT EXISTS appointments (
	id TEXT PRIMARY KEY,
	call_id TEXT NOT NULL DEFAULT '',
	triage_id TEXT NOT NULL DEFAULT '',
	conversation_id TEXT NOT NULL DEFAULT '',
	patient_name TEXT NOT NULL DEFAULT '',
	reason TEXT NOT NULL,
	scheduled_at TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL,
	check_in_at TIMESTAMPTZ,
	check_in_completed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_appointments_check_in ON appointments(check_in_at) WHERE check_in_completed_at IS NULL;

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	conversation_id TEXT NOT NULL DEFAULT '',
	call_id TEXT NOT NULL DEFAULT '',
	details TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	due_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_pending ON tasks(due_at) WHERE status = 'open';
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// storeError wraps err for operation, tagging connection-level failures as
// domain.ErrStoreUnavailable.
func storeError(operation string, err error) error {
	if isUnavailable(err) {
		return domain.WrapError(domain.ErrStoreUnavailable, operation, err)
	}
	return fmt.Errorf("%s: %w", operation, err)
}

func notFound(operation, kind, id string) error {
	return domain.WrapError(domain.ErrRecordNotFound, operation, fmt.Errorf("%s not found: id=%s", kind, id))
}

func isUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08":
			// connection_exception class
			return true
		case pgErr.Code == "57P01", pgErr.Code == "57P02", pgErr.Code == "57P03", pgErr.Code == "53300":
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func execAffectingOne(ctx context.Context, db *sql.DB, operation, kind, id, query string, args ...any) error {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return storeError(operation, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return storeError(operation+" rows affected", err)
	}
	if rows == 0 {
		return notFound(operation, kind, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}
