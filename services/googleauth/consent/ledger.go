package consent

import (
	"context"
	"fmt"
	"time"

	"github.com/agendly/bookingbackend/lib/mylog"
	"github.com/agendly/bookingbackend/lib/mystore"
	"github.com/agendly/bookingbackend/lib/mytime"
	"github.com/agendly/bookingbackend/lib/myuuid"
)

const (
	KindIdentityGranted       = "identity_granted"
	KindCalendarGranted       = "calendar_granted"
	KindCalendarDenied        = "calendar_denied"
	KindCalendarRevoked       = "calendar_revoked"
	KindCalendarHealthFailure = "calendar_health_failure"
)

// ConsentEvent is an audit record. Rows are only ever inserted.
type ConsentEvent struct {
	UID        string
	UserUID    string
	SubjectUID string
	Kind       string
	Scopes     []string
	Metadata   string `datastore:",noindex"`
	CreatedAt  time.Time
}

type Ledger struct {
	eventStore mystore.Store[ConsentEvent]
	nower      mytime.Nower
	uuider     myuuid.UUIDer
	logger     mylog.Logger
}

func NewLedger(eventStore mystore.Store[ConsentEvent], nower mytime.Nower, uuider myuuid.UUIDer) *Ledger {
	return &Ledger{
		eventStore: eventStore,
		nower:      nower,
		uuider:     uuider,
		logger:     mylog.New("consent"),
	}
}

// Append inserts the event. There is deliberately no update or delete.
func (l *Ledger) Append(c context.Context, event ConsentEvent) (ConsentEvent, error) {
	event.UID = l.uuider.Create()
	event.CreatedAt = l.nower.Now()

	err := l.eventStore.Put(c, event.UID, event)
	if err != nil {
		return ConsentEvent{}, fmt.Errorf("error storing consent event %s: %s", event.UID, err)
	}

	l.logger.Log(c, event.UID, mylog.SeverityInfo, "Appended consent event %s (user %s, subject %s)", event.Kind, event.UserUID, event.SubjectUID)

	return event, nil
}

// List returns all recorded events: test and admin support only.
func (l *Ledger) List(c context.Context) ([]ConsentEvent, error) {
	return l.eventStore.List(c)
}
