package domain

import "time"

type NodeKind string

const (
	NodeCall        NodeKind = "call"
	NodeTriage      NodeKind = "triage"
	NodeAppointment NodeKind = "appointment"
)

type EdgeKind string

const (
	EdgeCallTriage        EdgeKind = "call_triage"
	EdgeTriageAppointment EdgeKind = "triage_appointment"
	EdgeCallAppointment   EdgeKind = "call_appointment"
)

type GraphNode struct {
	ID         string            `json:"id"`
	Kind       NodeKind          `json:"kind"`
	Label      string            `json:"label"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type GraphEdge struct {
	Kind EdgeKind `json:"kind"`
	From string   `json:"from"`
	To   string   `json:"to"`
}

type CommandCentreStats struct {
	Calls                int             `json:"calls"`
	OpenCalls            int             `json:"open_calls"`
	TriageRecords        int             `json:"triage_records"`
	Appointments         int             `json:"appointments"`
	UpcomingAppointments int             `json:"upcoming_appointments"`
	DueRecalls           int             `json:"due_recalls"`
	DueCheckIns          int             `json:"due_check_ins"`
	ByUrgency            map[Urgency]int `json:"by_urgency"`
}

// CommandCentreView is rebuilt from store contents on every request.
type CommandCentreView struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Nodes       []GraphNode        `json:"nodes"`
	Edges       []GraphEdge        `json:"edges"`
	Stats       CommandCentreStats `json:"stats"`

	Calls        []Call         `json:"-"`
	Triage       []TriageRecord `json:"-"`
	Appointments []Appointment  `json:"-"`
}
