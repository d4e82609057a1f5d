package credentials

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/agendly/bookingbackend/lib/mystore"
	"github.com/agendly/bookingbackend/lib/mytime"
	"github.com/agendly/bookingbackend/services/googleauth/gateway"
)

func TestUpsertCalendarCreatesLinkedCredential(t *testing.T) {
	c := context.TODO()
	s, cleanup := setup(t, c)
	defer cleanup()

	stored, err := s.UpsertCalendar(c, CalendarCredential{
		UserUID:      "user_123",
		SubjectUID:   "google|111",
		AccessToken:  "my_access_token",
		RefreshToken: "my_refresh_token",
		Scopes:       []string{gateway.ScopeCalendar, gateway.ScopeCalendar, gateway.ScopeEmail},
	})
	assert.NoError(t, err)
	assert.Equal(t, StatusLinked, stored.Status)
	assert.Equal(t, 0, stored.FailureCount)
	assert.Equal(t, []string{gateway.ScopeCalendar, gateway.ScopeEmail}, stored.Scopes)
	assert.True(t, stored.IsLinked())
}

func TestUpsertCalendarPreservesRefreshToken(t *testing.T) {
	c := context.TODO()
	s, cleanup := setup(t, c)
	defer cleanup()

	_, err := s.UpsertCalendar(c, CalendarCredential{
		UserUID:      "user_123",
		RefreshToken: "my_refresh_token",
		AccessToken:  "old_access_token",
	})
	assert.NoError(t, err)

	// refresh responses typically omit the refresh token
	stored, err := s.UpsertCalendar(c, CalendarCredential{
		UserUID:     "user_123",
		AccessToken: "new_access_token",
	})
	assert.NoError(t, err)
	assert.Equal(t, "my_refresh_token", stored.RefreshToken)
	assert.Equal(t, "new_access_token", stored.AccessToken)
}

func TestUpsertCalendarWithoutAnyRefreshToken(t *testing.T) {
	c := context.TODO()
	s, cleanup := setup(t, c)
	defer cleanup()

	_, err := s.UpsertCalendar(c, CalendarCredential{
		UserUID:     "user_123",
		AccessToken: "my_access_token",
	})
	assert.ErrorIs(t, err, ErrMissingRefreshToken)

	_, exists, err := s.Status(c, "user_123")
	assert.NoError(t, err)
	assert.False(t, exists)
}

func TestUpsertCalendarResetsFailureCount(t *testing.T) {
	c := context.TODO()
	s, cleanup := setup(t, c)
	defer cleanup()

	_, err := s.UpsertCalendar(c, CalendarCredential{
		UserUID:      "user_123",
		RefreshToken: "my_refresh_token",
	})
	assert.NoError(t, err)

	err = s.RecordRefreshFailure(c, "user_123", 1, StatusLinked)
	assert.NoError(t, err)

	stored, err := s.UpsertCalendar(c, CalendarCredential{
		UserUID:     "user_123",
		AccessToken: "new_access_token",
	})
	assert.NoError(t, err)
	assert.Equal(t, 0, stored.FailureCount)
	assert.Equal(t, StatusLinked, stored.Status)
}

func TestMarkUnlinked(t *testing.T) {
	c := context.TODO()
	s, cleanup := setup(t, c)
	defer cleanup()

	_, err := s.UpsertCalendar(c, CalendarCredential{
		UserUID:      "user_123",
		AccessToken:  "my_access_token",
		RefreshToken: "my_refresh_token",
	})
	assert.NoError(t, err)

	err = s.MarkUnlinked(c, "user_123")
	assert.NoError(t, err)

	stored, exists, err := s.Status(c, "user_123")
	assert.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, StatusDisconnected, stored.Status)
	assert.Empty(t, stored.RefreshToken)
	assert.Empty(t, stored.AccessToken)
	assert.False(t, stored.IsLinked())

	// unlinking an unknown user is not an error
	err = s.MarkUnlinked(c, "user_without_credential")
	assert.NoError(t, err)
}

func TestListLinkedHonorsBatchSize(t *testing.T) {
	c := context.TODO()
	s, cleanup := setup(t, c)
	defer cleanup()

	for _, userUID := range []string{"user_1", "user_2", "user_3"} {
		_, err := s.UpsertCalendar(c, CalendarCredential{
			UserUID:      userUID,
			RefreshToken: "my_refresh_token",
		})
		assert.NoError(t, err)
	}
	err := s.MarkUnlinked(c, "user_2")
	assert.NoError(t, err)

	linked, err := s.ListLinked(c, 10)
	assert.NoError(t, err)
	assert.Len(t, linked, 2)

	linked, err = s.ListLinked(c, 1)
	assert.NoError(t, err)
	assert.Len(t, linked, 1)
}

func TestUpsertIdentity(t *testing.T) {
	c := context.TODO()
	s, cleanup := setup(t, c)
	defer cleanup()

	stored, err := s.UpsertIdentity(c, IdentityCredential{
		SubjectUID:  "google|111",
		UserUID:     "user_123",
		Email:       "marc@home.nl",
		AccessToken: "my_access_token",
		Scopes:      []string{gateway.ScopeEmail, gateway.ScopeOpenID, gateway.ScopeEmail},
	})
	assert.NoError(t, err)
	assert.Equal(t, []string{gateway.ScopeEmail, gateway.ScopeOpenID}, stored.Scopes)
	assert.Equal(t, ComputeScopeVersion([]string{gateway.ScopeOpenID, gateway.ScopeEmail}), stored.ScopeVersion)

	fetched, exists, err := s.GetIdentity(c, "google|111")
	assert.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "marc@home.nl", fetched.Email)
}

func TestSetLinkedFlag(t *testing.T) {
	c := context.TODO()
	s, cleanup := setup(t, c)
	defer cleanup()

	err := s.SetLinkedFlag(c, "user_123", true, "abc123")
	assert.NoError(t, err)

	flags, exists, err := s.GetLinkFlags(c, "user_123")
	assert.NoError(t, err)
	assert.True(t, exists)
	assert.True(t, flags.CalendarLinked)
	assert.Equal(t, "abc123", flags.ScopeVersion)
}

func setup(t *testing.T, c context.Context) (*Store, func()) {
	ctrl := gomock.NewController(t)

	identityVault, identityCleanup, err := mystore.NewInMemoryStore[IdentityCredential](c)
	assert.NoError(t, err)
	calendarStore, calendarCleanup, err := mystore.NewInMemoryStore[CalendarCredential](c)
	assert.NoError(t, err)
	flagStore, flagCleanup, err := mystore.NewInMemoryStore[UserLinkFlags](c)
	assert.NoError(t, err)

	nower := mytime.NewMockNower(ctrl)
	nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()

	cleanup := func() {
		identityCleanup()
		calendarCleanup()
		flagCleanup()
		ctrl.Finish()
	}

	return NewStore(identityVault, calendarStore, flagStore, nower), cleanup
}
