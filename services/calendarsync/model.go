package calendarsync

import (
	"time"
)

const (
	StatusRequested = "requested"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// Appointment is the slice of the appointment record that syncing needs.
// The appointment subsystem itself lives elsewhere.
type Appointment struct {
	UID          string    `json:"uid"`
	UserUID      string    `json:"userUID"`
	CustomerName string    `json:"customerName"`
	EmployeeName string    `json:"employeeName"`
	ServiceName  string    `json:"serviceName"`
	Notes        string    `json:"notes"`
	StartsAt     time.Time `json:"startsAt"`
	EndsAt       time.Time `json:"endsAt"`
	Status       string    `json:"status"`
}

// EventRef remembers which provider event an appointment was synced to.
type EventRef struct {
	AppointmentUID string
	UserUID        string
	EventID        string
	LastSyncedAt   time.Time
}

type SyncResponse struct {
	EventID string `json:"eventID"`
}
