package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/care-assistant/internal/core/domain"
	"github.com/kirillkom/care-assistant/internal/core/ports"
)

var _ ports.CallIntake = (*CallIntakeUseCase)(nil)

type CallIntakeUseCase struct {
	calls ports.CallStore
	now   func() time.Time
}

func NewCallIntakeUseCase(calls ports.CallStore, now func() time.Time) *CallIntakeUseCase {
	if now == nil {
		now = time.Now
	}
	return &CallIntakeUseCase{calls: calls, now: now}
}

func (uc *CallIntakeUseCase) RecordCall(ctx context.Context, input domain.CallInput) (*domain.Call, error) {
	name := strings.TrimSpace(input.PatientName)
	if name == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "record call", errors.New("patient_name is required"))
	}
	channel := strings.TrimSpace(input.Channel)
	if channel == "" {
		channel = "phone"
	}
	now := uc.now().UTC()
	call := &domain.Call{
		ID:            uuid.NewString(),
		PatientName:   name,
		PhoneNumber:   strings.TrimSpace(input.PhoneNumber),
		Channel:       channel,
		Transcript:    strings.TrimSpace(input.Transcript),
		Status:        domain.CallStatusOpen,
		LastContactAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := uc.calls.CreateCall(ctx, call); err != nil {
		return nil, fmt.Errorf("create call: %w", err)
	}
	return call, nil
}

func (uc *CallIntakeUseCase) ResolveCall(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.WrapError(domain.ErrInvalidInput, "resolve call", errors.New("call id is required"))
	}
	if err := uc.calls.ResolveCall(ctx, id, uc.now().UTC()); err != nil {
		return fmt.Errorf("resolve call: %w", err)
	}
	return nil
}
