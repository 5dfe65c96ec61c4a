package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/kirillkom/care-assistant/internal/core/domain"
)

const appointmentColumns = `id, call_id, triage_id, conversation_id, patient_name, reason, scheduled_at, status, check_in_at, check_in_completed_at, created_at, updated_at`

// CreateAppointment inserts the appointment and links it from its triage
// record, when one is set.
func (r *RecordRepository) CreateAppointment(ctx context.Context, appointment *domain.Appointment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("begin appointment tx", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO appointments (`+appointmentColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`,
		appointment.ID, appointment.CallID, appointment.TriageID, appointment.ConversationID, appointment.PatientName,
		appointment.Reason, appointment.ScheduledAt, string(appointment.Status), appointment.CheckInAt,
		appointment.CheckInCompletedAt, appointment.CreatedAt, appointment.UpdatedAt,
	); err != nil {
		return storeError("insert appointment", err)
	}

	if appointment.TriageID != "" {
		if _, err := tx.ExecContext(ctx, `
UPDATE triage_records
SET appointment_id = $2, updated_at = $3
WHERE id = $1
`, appointment.TriageID, appointment.ID, appointment.UpdatedAt); err != nil {
			return storeError("link triage appointment", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeError("commit appointment tx", err)
	}
	return nil
}

func (r *RecordRepository) GetAppointment(ctx context.Context, id string) (*domain.Appointment, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+appointmentColumns+`
FROM appointments
WHERE id = $1
`, id)
	appointment, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("get appointment", "appointment", id)
		}
		return nil, storeError("get appointment", err)
	}
	return &appointment, nil
}

func (r *RecordRepository) ListAppointments(ctx context.Context) ([]domain.Appointment, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+appointmentColumns+`
FROM appointments
ORDER BY scheduled_at, id
`)
	if err != nil {
		return nil, storeError("list appointments", err)
	}
	defer rows.Close()

	out := make([]domain.Appointment, 0)
	for rows.Next() {
		appointment, err := scanAppointment(rows)
		if err != nil {
			return nil, storeError("scan appointment", err)
		}
		out = append(out, appointment)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate appointments", err)
	}
	return out, nil
}

func scanAppointment(row rowScanner) (domain.Appointment, error) {
	var appointment domain.Appointment
	var status string
	err := row.Scan(
		&appointment.ID,
		&appointment.CallID,
		&appointment.TriageID,
		&appointment.ConversationID,
		&appointment.PatientName,
		&appointment.Reason,
		&appointment.ScheduledAt,
		&status,
		&appointment.CheckInAt,
		&appointment.CheckInCompletedAt,
		&appointment.CreatedAt,
		&appointment.UpdatedAt,
	)
	if err != nil {
		return domain.Appointment{}, err
	}
	appointment.Status = domain.AppointmentStatus(status)
	return appointment, nil
}
