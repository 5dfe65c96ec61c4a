package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/kirillkom/care-assistant/internal/core/domain"
)

const callColumns = `id, patient_name, phone_number, channel, transcript, status, last_contact_at, resolved_at, recall_count, triage_id, created_at, updated_at`

func (r *RecordRepository) CreateCall(ctx context.Context, call *domain.Call) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO calls (`+callColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`,
		call.ID, call.PatientName, call.PhoneNumber, call.Channel, call.Transcript, string(call.Status),
		call.LastContactAt, call.ResolvedAt, call.RecallCount, call.TriageID, call.CreatedAt, call.UpdatedAt,
	)
	if err != nil {
		return storeError("insert call", err)
	}
	return nil
}

func (r *RecordRepository) GetCall(ctx context.Context, id string) (*domain.Call, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+callColumns+`
FROM calls
WHERE id = $1
`, id)
	call, err := scanCall(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("get call", "call", id)
		}
		return nil, storeError("get call", err)
	}
	return &call, nil
}

func (r *RecordRepository) ListCalls(ctx context.Context) ([]domain.Call, error) {
	return r.queryCalls(ctx, "list calls", `
SELECT `+callColumns+`
FROM calls
ORDER BY created_at DESC, id
`)
}

func (r *RecordRepository) RecordRecall(ctx context.Context, id string, at time.Time) error {
	return execAffectingOne(ctx, r.db, "record recall", "call", id, `
UPDATE calls
SET last_contact_at = $2, recall_count = recall_count + 1, updated_at = $2
WHERE id = $1
`, id, at)
}

func (r *RecordRepository) ResolveCall(ctx context.Context, id string, at time.Time) error {
	return execAffectingOne(ctx, r.db, "resolve call", "call", id, `
UPDATE calls
SET status = $2, resolved_at = COALESCE(resolved_at, $3), updated_at = $3
WHERE id = $1
`, id, string(domain.CallStatusResolved), at)
}

func (r *RecordRepository) queryCalls(ctx context.Context, operation, query string, args ...any) ([]domain.Call, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError(operation, err)
	}
	defer rows.Close()

	out := make([]domain.Call, 0)
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, storeError("scan call", err)
		}
		out = append(out, call)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate calls", err)
	}
	return out, nil
}

func scanCall(row rowScanner) (domain.Call, error) {
	var call domain.Call
	var status string
	err := row.Scan(
		&call.ID,
		&call.PatientName,
		&call.PhoneNumber,
		&call.Channel,
		&call.Transcript,
		&status,
		&call.LastContactAt,
		&call.ResolvedAt,
		&call.RecallCount,
		&call.TriageID,
		&call.CreatedAt,
		&call.UpdatedAt,
	)
	if err != nil {
		return domain.Call{}, err
	}
	call.Status = domain.CallStatus(status)
	return call, nil
}
