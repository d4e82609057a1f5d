package googleauth

import (
	"fmt"

	"github.com/agendly/bookingbackend/services/googleauth/gateway"
)

const (
	ScopeLabelIdentity = "identity"
	ScopeLabelCalendar = "calendar"
)

type StartRequest struct {
	ScopeLabel string `form:"scope"`
	UserUID    string `form:"userUID"`
	ReturnURL  string `form:"returnURL"`
}

// CallbackResult is the payload delivered to the opener window. Raw errors
// never cross this boundary.
type CallbackResult struct {
	Success        bool   `json:"success"`
	Error          string `json:"error,omitempty"`
	UserUID        string `json:"userUID,omitempty"`
	SubjectUID     string `json:"subjectUID,omitempty"`
	Email          string `json:"email,omitempty"`
	Name           string `json:"name,omitempty"`
	CalendarLinked bool   `json:"calendarLinked"`

	returnURL string
}

type StatusResponse struct {
	UserUID        string `json:"userUID"`
	CalendarLinked bool   `json:"calendarLinked"`
	ScopeVersion   string `json:"scopeVersion,omitempty"`
}

func resolveScopeLabel(label string) ([]string, error) {
	switch label {
	case "", ScopeLabelIdentity:
		return gateway.BaselineScopes(), nil
	case ScopeLabelCalendar:
		return append(gateway.BaselineScopes(), gateway.ScopeCalendar), nil
	default:
		return nil, fmt.Errorf("unknown scope label '%s'", label)
	}
}
