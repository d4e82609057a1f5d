package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/agendly/bookingbackend/lib/mylog"
	"github.com/agendly/bookingbackend/lib/mystore"
	"github.com/agendly/bookingbackend/lib/mytime"
	"github.com/agendly/bookingbackend/lib/myvault"
)

// ErrMissingRefreshToken indicates that a calendar link was attempted while
// neither the incoming update nor the stored credential carries a refresh
// token. A calendar link without one can never be refreshed unattended.
var ErrMissingRefreshToken = errors.New("no refresh token available for calendar credential")

type Store struct {
	identityVault myvault.VaultReadWriter[IdentityCredential]
	calendarStore mystore.Store[CalendarCredential]
	flagStore     mystore.Store[UserLinkFlags]
	nower         mytime.Nower
	logger        mylog.Logger
}

func NewStore(identityVault myvault.VaultReadWriter[IdentityCredential], calendarStore mystore.Store[CalendarCredential], flagStore mystore.Store[UserLinkFlags], nower mytime.Nower) *Store {
	return &Store{
		identityVault: identityVault,
		calendarStore: calendarStore,
		flagStore:     flagStore,
		nower:         nower,
		logger:        mylog.New("credentials"),
	}
}

// UpsertIdentity overwrites the identity credential for the subject. Tokens
// and scopes always reflect the latest authorization.
func (s *Store) UpsertIdentity(c context.Context, cred IdentityCredential) (IdentityCredential, error) {
	if cred.SubjectUID == "" {
		return IdentityCredential{}, fmt.Errorf("identity credential without subject")
	}

	now := s.nower.Now()

	existing, exists, err := s.identityVault.Get(c, cred.SubjectUID)
	if err != nil {
		return IdentityCredential{}, fmt.Errorf("error fetching identity credential %s: %s", cred.SubjectUID, err)
	}

	cred.Scopes = NormalizeScopes(cred.Scopes)
	cred.ScopeVersion = ComputeScopeVersion(cred.Scopes)
	cred.LastUpdated = now
	if exists {
		cred.CreatedAt = existing.CreatedAt
	} else {
		cred.CreatedAt = now
	}

	err = s.identityVault.Put(c, cred.SubjectUID, cred)
	if err != nil {
		return IdentityCredential{}, fmt.Errorf("error storing identity credential %s: %s", cred.SubjectUID, err)
	}

	s.logger.Log(c, cred.SubjectUID, mylog.SeverityInfo, "Stored identity credential for subject %s (user %s)", cred.SubjectUID, cred.UserUID)

	return cred, nil
}

func (s *Store) GetIdentity(c context.Context, subjectUID string) (IdentityCredential, bool, error) {
	return s.identityVault.Get(c, subjectUID)
}

// UpsertCalendar stores the calendar credential for a user. A refresh token
// absent from the update keeps the previously stored one; if neither side has
// one the upsert fails with ErrMissingRefreshToken. Every successful upsert
// resets the failure count and marks the credential linked.
func (s *Store) UpsertCalendar(c context.Context, cred CalendarCredential) (CalendarCredential, error) {
	if cred.UserUID == "" {
		return CalendarCredential{}, fmt.Errorf("calendar credential without user")
	}

	now := s.nower.Now()

	err := s.calendarStore.RunInTransaction(c, func(c context.Context) error {
		existing, exists, err := s.calendarStore.Get(c, cred.UserUID)
		if err != nil {
			return fmt.Errorf("error fetching calendar credential %s: %s", cred.UserUID, err)
		}

		if cred.RefreshToken == "" && exists {
			cred.RefreshToken = existing.RefreshToken
		}
		if cred.RefreshToken == "" {
			return ErrMissingRefreshToken
		}

		if exists {
			cred.CreatedAt = existing.CreatedAt
		} else {
			cred.CreatedAt = now
		}
		cred.Scopes = NormalizeScopes(cred.Scopes)
		cred.ScopeVersion = ComputeScopeVersion(cred.Scopes)
		cred.Status = StatusLinked
		cred.FailureCount = 0
		cred.LastUpdated = now

		err = s.calendarStore.Put(c, cred.UserUID, cred)
		if err != nil {
			return fmt.Errorf("error storing calendar credential %s: %s", cred.UserUID, err)
		}

		return nil
	})
	if err != nil {
		return CalendarCredential{}, err
	}

	s.logger.Log(c, cred.UserUID, mylog.SeverityInfo, "Stored calendar credential for user %s (subject %s)", cred.UserUID, cred.SubjectUID)

	return cred, nil
}

// MarkUnlinked drops the tokens and flips the credential to disconnected.
// Absence of a credential is not an error.
func (s *Store) MarkUnlinked(c context.Context, userUID string) error {
	now := s.nower.Now()

	err := s.calendarStore.RunInTransaction(c, func(c context.Context) error {
		existing, exists, err := s.calendarStore.Get(c, userUID)
		if err != nil {
			return fmt.Errorf("error fetching calendar credential %s: %s", userUID, err)
		}
		if !exists {
			return nil
		}

		existing.AccessToken = ""
		existing.RefreshToken = ""
		existing.Status = StatusDisconnected
		existing.FailureCount = 0
		existing.LastUpdated = now

		err = s.calendarStore.Put(c, userUID, existing)
		if err != nil {
			return fmt.Errorf("error storing calendar credential %s: %s", userUID, err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Log(c, userUID, mylog.SeverityInfo, "Marked calendar credential of user %s as unlinked", userUID)

	return nil
}

// RecordRefreshFailure is pure bookkeeping: the caller decides whether the
// new count crosses the escalation threshold and passes the resulting status.
func (s *Store) RecordRefreshFailure(c context.Context, userUID string, newCount int, status string) error {
	now := s.nower.Now()

	return s.calendarStore.RunInTransaction(c, func(c context.Context) error {
		existing, exists, err := s.calendarStore.Get(c, userUID)
		if err != nil {
			return fmt.Errorf("error fetching calendar credential %s: %s", userUID, err)
		}
		if !exists {
			return fmt.Errorf("calendar credential %s not found", userUID)
		}

		existing.FailureCount = newCount
		existing.Status = status
		existing.LastHealthCheck = now
		existing.LastUpdated = now

		err = s.calendarStore.Put(c, userUID, existing)
		if err != nil {
			return fmt.Errorf("error storing calendar credential %s: %s", userUID, err)
		}

		return nil
	})
}

func (s *Store) Status(c context.Context, userUID string) (CalendarCredential, bool, error) {
	return s.calendarStore.Get(c, userUID)
}

// ListLinked returns at most batchSize credentials that are currently linked
// and carry a refresh token.
func (s *Store) ListLinked(c context.Context, batchSize int) ([]CalendarCredential, error) {
	creds, err := s.calendarStore.Query(c, []mystore.Filter{
		{Field: "Status", Compare: "=", Value: StatusLinked},
	}, "LastHealthCheck")
	if err != nil {
		return nil, fmt.Errorf("error querying linked calendar credentials: %s", err)
	}

	// The in-memory store does not apply filters: select in code as well.
	linked := make([]CalendarCredential, 0, batchSize)
	for _, cred := range creds {
		if !cred.IsLinked() {
			continue
		}
		linked = append(linked, cred)
		if len(linked) == batchSize {
			break
		}
	}

	return linked, nil
}

func (s *Store) SetLinkedFlag(c context.Context, userUID string, linked bool, scopeVersion string) error {
	err := s.flagStore.Put(c, userUID, UserLinkFlags{
		UserUID:        userUID,
		CalendarLinked: linked,
		ScopeVersion:   scopeVersion,
		LastChanged:    s.nower.Now(),
	})
	if err != nil {
		return fmt.Errorf("error storing link flags of user %s: %s", userUID, err)
	}

	return nil
}

func (s *Store) GetLinkFlags(c context.Context, userUID string) (UserLinkFlags, bool, error) {
	return s.flagStore.Get(c, userUID)
}
