package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/kirillkom/care-assistant/internal/core/ports"
)

const SchedulerLockKey int64 = 2026031002

var _ ports.RunLock = (*AdvisoryRunLock)(nil)

// AdvisoryRunLock holds a session-level advisory lock on a dedicated
// connection for the duration of a scheduler run.
type AdvisoryRunLock struct {
	db  *sql.DB
	key int64
}

func NewAdvisoryRunLock(db *sql.DB, key int64) *AdvisoryRunLock {
	return &AdvisoryRunLock{db: db, key: key}
}

func (l *AdvisoryRunLock) TryAcquire(ctx context.Context) (func(), bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, false, storeError("open lock connection", err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, l.key).Scan(&acquired); err != nil {
		_ = conn.Close()
		return nil, false, storeError("try advisory lock", err)
	}
	if !acquired {
		_ = conn.Close()
		return nil, false, nil
	}

	release := func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = conn.ExecContext(unlockCtx, `SELECT pg_advisory_unlock($1)`, l.key)
		_ = conn.Close()
	}
	return release, true, nil
}
