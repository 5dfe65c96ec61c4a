package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/kirillkom/care-assistant/internal/core/domain"
)

const taskColumns = `id, kind, conversation_id, call_id, details, status, due_at, completed_at, created_at, updated_at`

func (r *RecordRepository) CreateTask(ctx context.Context, task *domain.Task) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO tasks (`+taskColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`, task.ID, task.Kind, task.ConversationID, task.CallID, task.Details, string(task.Status), task.DueAt, task.CompletedAt, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return storeError("create task", err)
	}
	return nil
}

func (r *RecordRepository) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+taskColumns+`
FROM tasks
WHERE id = $1
`, id)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("get task", "task", id)
		}
		return nil, storeError("get task", err)
	}
	return &task, nil
}

func scanTask(row rowScanner) (domain.Task, error) {
	var task domain.Task
	var status string
	err := row.Scan(
		&task.ID,
		&task.Kind,
		&task.ConversationID,
		&task.CallID,
		&task.Details,
		&status,
		&task.DueAt,
		&task.CompletedAt,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return domain.Task{}, err
	}
	task.Status = domain.TaskStatus(status)
	return task, nil
}
