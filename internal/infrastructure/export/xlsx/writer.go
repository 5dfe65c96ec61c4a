package xlsx

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/care-assistant/internal/core/domain"
)

const (
	SheetCalls        = "Calls"
	SheetTriage       = "Triage"
	SheetAppointments = "Appointments"
	SheetStats        = "Stats"
)

const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// WriteCommandCentre renders the view as a workbook with one sheet per
// record type and a summary sheet.
func WriteCommandCentre(w io.Writer, view *domain.CommandCentreView) error {
	if view == nil {
		return fmt.Errorf("write command centre workbook: nil view")
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetCalls); err != nil {
		return fmt.Errorf("rename default sheet: %w", err)
	}
	for _, name := range []string{SheetTriage, SheetAppointments, SheetStats} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	if err := writeRows(f, SheetCalls, callRows(view.Calls)); err != nil {
		return err
	}
	if err := writeRows(f, SheetTriage, triageRows(view.Triage)); err != nil {
		return err
	}
	if err := writeRows(f, SheetAppointments, appointmentRows(view.Appointments)); err != nil {
		return err
	}
	if err := writeRows(f, SheetStats, statsRows(view)); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func callRows(calls []domain.Call) [][]any {
	rows := [][]any{{"id", "patient_name", "phone_number", "channel", "status", "last_contact_at", "recall_count", "triage_id"}}
	for _, c := range calls {
		rows = append(rows, []any{c.ID, c.PatientName, c.PhoneNumber, c.Channel, string(c.Status), formatTime(c.LastContactAt), c.RecallCount, c.TriageID})
	}
	return rows
}

func triageRows(records []domain.TriageRecord) [][]any {
	rows := [][]any{{"id", "call_id", "urgency", "complaint", "disposition", "appointment_id", "check_in_at", "check_in_completed_at"}}
	for _, t := range records {
		rows = append(rows, []any{t.ID, t.CallID, string(t.Urgency), t.Complaint, t.Disposition, t.AppointmentID, formatTimePtr(t.CheckInAt), formatTimePtr(t.CheckInCompletedAt)})
	}
	return rows
}

func appointmentRows(appointments []domain.Appointment) [][]any {
	rows := [][]any{{"id", "call_id", "triage_id", "patient_name", "reason", "scheduled_at", "status", "check_in_at"}}
	for _, a := range appointments {
		rows = append(rows, []any{a.ID, a.CallID, a.TriageID, a.PatientName, a.Reason, formatTime(a.ScheduledAt), string(a.Status), formatTimePtr(a.CheckInAt)})
	}
	return rows
}

func statsRows(view *domain.CommandCentreView) [][]any {
	s := view.Stats
	rows := [][]any{
		{"metric", "value"},
		{"generated_at", formatTime(view.GeneratedAt)},
		{"calls", s.Calls},
		{"open_calls", s.OpenCalls},
		{"due_recalls", s.DueRecalls},
		{"triage_records", s.TriageRecords},
		{"due_check_ins", s.DueCheckIns},
		{"appointments", s.Appointments},
		{"upcoming_appointments", s.UpcomingAppointments},
	}
	urgencies := make([]string, 0, len(s.ByUrgency))
	for u := range s.ByUrgency {
		urgencies = append(urgencies, string(u))
	}
	sort.Strings(urgencies)
	for _, u := range urgencies {
		rows = append(rows, []any{"urgency_" + u, s.ByUrgency[domain.Urgency(u)]})
	}
	return rows
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
