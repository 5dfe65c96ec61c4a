package xlsx

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/care-assistant/internal/core/domain"
)

func TestWriteCommandCentreProducesAllSheets(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	checkIn := now.Add(4 * time.Hour)
	view := &domain.CommandCentreView{
		GeneratedAt: now,
		Calls:       []domain.Call{{ID: "call-1", PatientName: "Ada", Status: domain.CallStatusOpen, LastContactAt: now, RecallCount: 2}},
		Triage:      []domain.TriageRecord{{ID: "triage-1", CallID: "call-1", Urgency: domain.UrgencyEmergency, Complaint: "chest pain", CheckInAt: &checkIn}},
		Stats: domain.CommandCentreStats{
			Calls:     1,
			OpenCalls: 1,
			ByUrgency: map[domain.Urgency]int{domain.UrgencyEmergency: 1, domain.UrgencyRoutine: 0},
		},
	}

	var buf bytes.Buffer
	if err := WriteCommandCentre(&buf, view); err != nil {
		t.Fatalf("WriteCommandCentre() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	want := []string{SheetCalls, SheetTriage, SheetAppointments, SheetStats}
	if len(sheets) != len(want) {
		t.Fatalf("expected sheets %v, got %v", want, sheets)
	}
	for i := range want {
		if sheets[i] != want[i] {
			t.Fatalf("expected sheets %v, got %v", want, sheets)
		}
	}

	calls, err := f.GetRows(SheetCalls)
	if err != nil {
		t.Fatalf("GetRows(calls) error = %v", err)
	}
	if len(calls) != 2 || calls[1][0] != "call-1" || calls[1][5] != "2026-03-10T09:00:00Z" || calls[1][6] != "2" {
		t.Fatalf("unexpected call rows %v", calls)
	}

	triage, err := f.GetRows(SheetTriage)
	if err != nil {
		t.Fatalf("GetRows(triage) error = %v", err)
	}
	if triage[1][2] != "emergency" || triage[1][6] != "2026-03-10T13:00:00Z" {
		t.Fatalf("unexpected triage rows %v", triage)
	}

	appointments, err := f.GetRows(SheetAppointments)
	if err != nil {
		t.Fatalf("GetRows(appointments) error = %v", err)
	}
	if len(appointments) != 1 {
		t.Fatalf("expected only the header row, got %v", appointments)
	}

	stats, err := f.GetRows(SheetStats)
	if err != nil {
		t.Fatalf("GetRows(stats) error = %v", err)
	}
	last := stats[len(stats)-1]
	if last[0] != "urgency_routine" || last[1] != "0" {
		t.Fatalf("expected sorted urgency rows at the end, got %v", stats)
	}
}

func TestWriteCommandCentreRejectsNilView(t *testing.T) {
	if err := WriteCommandCentre(&bytes.Buffer{}, nil); err == nil {
		t.Fatalf("expected error for nil view")
	}
}
