package calendarapi

import (
	"context"
	"time"
)

// EventRequest is the provider-facing shape of a calendar event.
type EventRequest struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
}

//go:generate mockgen -source=client.go -package calendarapi -destination client_mock.go Client
type Client interface {
	Insert(c context.Context, accessToken string, event EventRequest) (string, error)
	Update(c context.Context, accessToken string, eventID string, event EventRequest) error
	Delete(c context.Context, accessToken string, eventID string) error
}
