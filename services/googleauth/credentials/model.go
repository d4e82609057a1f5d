package credentials

import (
	"time"
)

const (
	StatusLinked       = "linked"
	StatusDisconnected = "disconnected"
)

// IdentityCredential is keyed by the external account's stable subject id.
// It survives a calendar unlink.
type IdentityCredential struct {
	SubjectUID   string
	UserUID      string
	Email        string
	Name         string
	Picture      string
	IDToken      string `datastore:",noindex"`
	AccessToken  string `datastore:",noindex"`
	RefreshToken string `datastore:",noindex"`
	Scopes       []string
	ScopeVersion string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	LastUpdated  time.Time
}

// CalendarCredential is keyed by the internal user id: at most one per user.
type CalendarCredential struct {
	UserUID         string
	SubjectUID      string
	AccessToken     string `datastore:",noindex"`
	RefreshToken    string `datastore:",noindex"`
	Scopes          []string
	ScopeVersion    string
	ExpiresAt       time.Time
	Status          string
	FailureCount    int
	LastHealthCheck time.Time
	CreatedAt       time.Time
	LastUpdated     time.Time
}

func (cc CalendarCredential) IsLinked() bool {
	return cc.Status == StatusLinked && cc.RefreshToken != ""
}

// UserLinkFlags is the denormalized projection read by dashboards: no join
// against the calendar credential needed.
type UserLinkFlags struct {
	UserUID        string
	CalendarLinked bool
	ScopeVersion   string
	LastChanged    time.Time
}
