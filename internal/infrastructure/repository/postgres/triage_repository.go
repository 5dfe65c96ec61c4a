package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/kirillkom/care-assistant/internal/core/domain"
)

const triageColumns = `id, call_id, conversation_id, complaint, urgency, disposition, appointment_id, check_in_at, check_in_completed_at, created_at, updated_at`

// CreateTriageRecord inserts the record and links it from its call, when the
// call has no triage yet.
func (r *RecordRepository) CreateTriageRecord(ctx context.Context, record *domain.TriageRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("begin triage tx", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO triage_records (`+triageColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
		record.ID, record.CallID, record.ConversationID, record.Complaint, string(record.Urgency), record.Disposition,
		record.AppointmentID, record.CheckInAt, record.CheckInCompletedAt, record.CreatedAt, record.UpdatedAt,
	); err != nil {
		return storeError("insert triage record", err)
	}

	if record.CallID != "" {
		if _, err := tx.ExecContext(ctx, `
UPDATE calls
SET triage_id = $2, updated_at = $3
WHERE id = $1 AND triage_id = ''
`, record.CallID, record.ID, record.UpdatedAt); err != nil {
			return storeError("link call triage", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeError("commit triage tx", err)
	}
	return nil
}

func (r *RecordRepository) GetTriageRecord(ctx context.Context, id string) (*domain.TriageRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+triageColumns+`
FROM triage_records
WHERE id = $1
`, id)
	record, err := scanTriage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("get triage record", "triage record", id)
		}
		return nil, storeError("get triage record", err)
	}
	return &record, nil
}

func (r *RecordRepository) ListTriageRecords(ctx context.Context) ([]domain.TriageRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+triageColumns+`
FROM triage_records
ORDER BY created_at DESC, id
`)
	if err != nil {
		return nil, storeError("list triage records", err)
	}
	defer rows.Close()

	out := make([]domain.TriageRecord, 0)
	for rows.Next() {
		record, err := scanTriage(rows)
		if err != nil {
			return nil, storeError("scan triage record", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate triage records", err)
	}
	return out, nil
}

func scanTriage(row rowScanner) (domain.TriageRecord, error) {
	var record domain.TriageRecord
	var urgency string
	err := row.Scan(
		&record.ID,
		&record.CallID,
		&record.ConversationID,
		&record.Complaint,
		&urgency,
		&record.Disposition,
		&record.AppointmentID,
		&record.CheckInAt,
		&record.CheckInCompletedAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return domain.TriageRecord{}, err
	}
	record.Urgency = domain.Urgency(urgency)
	return record, nil
}
