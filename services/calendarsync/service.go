package calendarsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agendly/bookingbackend/lib/mylog"
	"github.com/agendly/bookingbackend/lib/mystore"
	"github.com/agendly/bookingbackend/lib/mytime"
	"github.com/agendly/bookingbackend/services/calendarsync/calendarapi"
	"github.com/agendly/bookingbackend/services/googleauth/credentials"
	"github.com/agendly/bookingbackend/services/googleauth/gateway"
)

var (
	// ErrNotConfirmed indicates the appointment is not in confirmed status:
	// only confirmed appointments are ever synced.
	ErrNotConfirmed = errors.New("appointment is not confirmed")

	// ErrNotLinked indicates the user has no usable calendar credential.
	ErrNotLinked = errors.New("calendar is not linked")

	// ErrScopeNotGranted indicates the stored credential lacks the calendar
	// scope: the link is stale and needs re-consent.
	ErrScopeNotGranted = errors.New("calendar scope not granted")

	// ErrNeverSynced indicates no provider event is known for the appointment.
	ErrNeverSynced = errors.New("appointment was never synced")
)

// An access token this close to expiry is refreshed before use.
const expiryBuffer = 2 * time.Minute

type Service struct {
	credStore       *credentials.Store
	providerGateway gateway.Gateway
	calendarClient  calendarapi.Client
	refStore        mystore.Store[EventRef]
	nower           mytime.Nower
	logger          mylog.Logger
}

func NewService(credStore *credentials.Store, providerGateway gateway.Gateway, calendarClient calendarapi.Client, refStore mystore.Store[EventRef], nower mytime.Nower) *Service {
	return &Service{
		credStore:       credStore,
		providerGateway: providerGateway,
		calendarClient:  calendarClient,
		refStore:        refStore,
		nower:           nower,
		logger:          mylog.New("calendarsync"),
	}
}

// CreateEvent pushes a confirmed appointment into the user's calendar.
// Preconditions short-circuit before any provider call is made. None of
// these operations retry: the caller decides what a failure means.
func (s *Service) CreateEvent(c context.Context, appointment Appointment) (string, error) {
	if appointment.Status != StatusConfirmed {
		return "", ErrNotConfirmed
	}

	accessToken, err := s.freshAccessToken(c, appointment.UserUID)
	if err != nil {
		return "", err
	}

	eventID, err := s.calendarClient.Insert(c, accessToken, eventFromAppointment(appointment))
	if err != nil {
		return "", fmt.Errorf("error creating calendar event for appointment %s: %s", appointment.UID, err)
	}

	s.logger.Log(c, appointment.UID, mylog.SeverityInfo, "Created calendar event %s for appointment %s (user %s)", eventID, appointment.UID, appointment.UserUID)

	// losing the ref only costs a later update/delete, not the sync itself
	err = s.refStore.Put(c, appointment.UID, EventRef{
		AppointmentUID: appointment.UID,
		UserUID:        appointment.UserUID,
		EventID:        eventID,
		LastSyncedAt:   s.nower.Now(),
	})
	if err != nil {
		s.logger.Log(c, appointment.UID, mylog.SeverityWarn, "Error storing event ref of appointment %s: %s", appointment.UID, err)
	}

	return eventID, nil
}

// UpdateEvent reworks the previously synced event. An already-synced
// appointment is by definition confirmed, so no confirmation check here.
func (s *Service) UpdateEvent(c context.Context, appointment Appointment) error {
	ref, exists, err := s.refStore.Get(c, appointment.UID)
	if err != nil {
		return fmt.Errorf("error fetching event ref of appointment %s: %s", appointment.UID, err)
	}
	if !exists {
		return ErrNeverSynced
	}

	accessToken, err := s.freshAccessToken(c, appointment.UserUID)
	if err != nil {
		return err
	}

	err = s.calendarClient.Update(c, accessToken, ref.EventID, eventFromAppointment(appointment))
	if err != nil {
		return fmt.Errorf("error updating calendar event %s: %s", ref.EventID, err)
	}

	err = s.refStore.Put(c, appointment.UID, EventRef{
		AppointmentUID: appointment.UID,
		UserUID:        appointment.UserUID,
		EventID:        ref.EventID,
		LastSyncedAt:   s.nower.Now(),
	})
	if err != nil {
		s.logger.Log(c, appointment.UID, mylog.SeverityWarn, "Error storing event ref of appointment %s: %s", appointment.UID, err)
	}

	return nil
}

func (s *Service) DeleteEvent(c context.Context, appointment Appointment) error {
	ref, exists, err := s.refStore.Get(c, appointment.UID)
	if err != nil {
		return fmt.Errorf("error fetching event ref of appointment %s: %s", appointment.UID, err)
	}
	if !exists {
		return ErrNeverSynced
	}

	accessToken, err := s.freshAccessToken(c, appointment.UserUID)
	if err != nil {
		return err
	}

	err = s.calendarClient.Delete(c, accessToken, ref.EventID)
	if err != nil {
		return fmt.Errorf("error deleting calendar event %s: %s", ref.EventID, err)
	}

	err = s.refStore.Delete(c, appointment.UID)
	if err != nil {
		s.logger.Log(c, appointment.UID, mylog.SeverityWarn, "Error deleting event ref of appointment %s: %s", appointment.UID, err)
	}

	return nil
}

// freshAccessToken enforces the link/scope preconditions and refreshes the
// access token when it is about to expire, persisting the refreshed token.
func (s *Service) freshAccessToken(c context.Context, userUID string) (string, error) {
	cred, exists, err := s.credStore.Status(c, userUID)
	if err != nil {
		return "", fmt.Errorf("error fetching calendar credential of user %s: %s", userUID, err)
	}
	if !exists || !cred.IsLinked() {
		return "", ErrNotLinked
	}
	if !gateway.ContainsScope(cred.Scopes, gateway.ScopeCalendar) {
		return "", ErrScopeNotGranted
	}

	if s.nower.Now().Add(expiryBuffer).Before(cred.ExpiresAt) {
		return cred.AccessToken, nil
	}

	resp, err := s.providerGateway.RefreshAccessToken(c, cred.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("error refreshing access token of user %s: %s", userUID, err)
	}

	cred.AccessToken = resp.AccessToken
	cred.RefreshToken = resp.RefreshToken
	cred.ExpiresAt = s.nower.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)

	_, err = s.credStore.UpsertCalendar(c, cred)
	if err != nil {
		s.logger.Log(c, userUID, mylog.SeverityWarn, "Error storing refreshed credential of user %s: %s", userUID, err)
	}

	return resp.AccessToken, nil
}

func eventFromAppointment(appointment Appointment) calendarapi.EventRequest {
	description := fmt.Sprintf("Customer: %s\nEmployee: %s", appointment.CustomerName, appointment.EmployeeName)
	if appointment.Notes != "" {
		description += "\nNotes: " + appointment.Notes
	}

	return calendarapi.EventRequest{
		Summary:     fmt.Sprintf("%s - %s", appointment.ServiceName, appointment.CustomerName),
		Description: description,
		Start:       appointment.StartsAt,
		End:         appointment.EndsAt,
	}
}
