package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/kirillkom/care-assistant/internal/core/domain"
)

// QueryDueRecalls returns open calls whose last contact is strictly older
// than interval at now.
func (r *RecordRepository) QueryDueRecalls(ctx context.Context, now time.Time, interval time.Duration) ([]domain.Call, error) {
	if interval <= 0 {
		return []domain.Call{}, nil
	}
	return r.queryCalls(ctx, "query due recalls", `
SELECT `+callColumns+`
FROM calls
WHERE status = $1 AND resolved_at IS NULL AND last_contact_at < $2
ORDER BY last_contact_at, id
`, string(domain.CallStatusOpen), now.Add(-interval))
}

func (r *RecordRepository) QueryDueCheckIns(ctx context.Context, now time.Time) ([]domain.CheckIn, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT 'triage' AS kind, id, check_in_at
FROM triage_records
WHERE check_in_at IS NOT NULL AND check_in_completed_at IS NULL AND check_in_at <= $1
UNION ALL
SELECT 'appointment' AS kind, id, check_in_at
FROM appointments
WHERE status <> $2 AND check_in_at IS NOT NULL AND check_in_completed_at IS NULL AND check_in_at <= $1
ORDER BY check_in_at, id
`, now, string(domain.AppointmentCancelled))
	if err != nil {
		return nil, storeError("query due check-ins", err)
	}
	defer rows.Close()

	out := make([]domain.CheckIn, 0)
	for rows.Next() {
		var checkIn domain.CheckIn
		var kind string
		if err := rows.Scan(&kind, &checkIn.RecordID, &checkIn.CheckInAt); err != nil {
			return nil, storeError("scan due check-in", err)
		}
		checkIn.Kind = domain.RecordKind(kind)
		out = append(out, checkIn)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate due check-ins", err)
	}
	return out, nil
}

func (r *RecordRepository) QueryPendingTasks(ctx context.Context, now time.Time) ([]domain.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+taskColumns+`
FROM tasks
WHERE status = $1 AND completed_at IS NULL AND (due_at IS NULL OR due_at <= $2)
ORDER BY created_at, id
`, string(domain.TaskStatusOpen), now)
	if err != nil {
		return nil, storeError("query pending tasks", err)
	}
	defer rows.Close()

	out := make([]domain.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, storeError("scan task", err)
		}
		out = append(out, task)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate tasks", err)
	}
	return out, nil
}

// MarkCompleted records that the scheduler acted on the record. Calls are
// resolved; triage records and appointments have their check-in completed;
// tasks are closed.
func (r *RecordRepository) MarkCompleted(ctx context.Context, id string, kind domain.RecordKind, at time.Time) error {
	switch kind {
	case domain.RecordCall:
		return r.ResolveCall(ctx, id, at)
	case domain.RecordTriage:
		return execAffectingOne(ctx, r.db, "complete triage check-in", "triage record", id, `
UPDATE triage_records
SET check_in_completed_at = $2, updated_at = $2
WHERE id = $1
`, id, at)
	case domain.RecordAppointment:
		return execAffectingOne(ctx, r.db, "complete appointment check-in", "appointment", id, `
UPDATE appointments
SET check_in_completed_at = $2, updated_at = $2
WHERE id = $1
`, id, at)
	case domain.RecordTask:
		return execAffectingOne(ctx, r.db, "complete task", "task", id, `
UPDATE tasks
SET status = $2, completed_at = $3, updated_at = $3
WHERE id = $1
`, id, string(domain.TaskStatusCompleted), at)
	default:
		return domain.WrapError(domain.ErrInvalidInput, "mark completed", fmt.Errorf("unsupported record kind %q", kind))
	}
}
