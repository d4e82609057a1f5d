package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/agendly/bookingbackend/lib/mystore"
	"github.com/agendly/bookingbackend/lib/mytime"
)

type fixedRandomer struct {
	values []string
	index  int
}

func (r *fixedRandomer) Create() (string, error) {
	value := r.values[r.index%len(r.values)]
	r.index++
	return value, nil
}

func TestSessionSingleUse(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	c := context.TODO()
	negotiator, nower := setup(t, ctrl)

	nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()

	token, err := negotiator.Create(c, AuthSession{
		ScopeLabel: "calendar",
		UserUID:    "user-1",
		ReturnURL:  "http://localhost:8888/settings",
	})
	assert.NoError(t, err)
	assert.Equal(t, "aaaa:bbbb", token)

	sess, ok := negotiator.Consume(c, token)
	assert.True(t, ok)
	assert.Equal(t, "calendar", sess.ScopeLabel)
	assert.Equal(t, "user-1", sess.UserUID)
	assert.Equal(t, "http://localhost:8888/settings", sess.ReturnURL)

	// replay of the same token must fail
	_, ok = negotiator.Consume(c, token)
	assert.False(t, ok)
}

func TestSessionNonceMismatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	c := context.TODO()
	negotiator, nower := setup(t, ctrl)

	nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()

	_, err := negotiator.Create(c, AuthSession{ScopeLabel: "identity"})
	assert.NoError(t, err)

	_, ok := negotiator.Consume(c, "aaaa:wrong")
	assert.False(t, ok)

	// a failed attempt must not destroy the session
	_, ok = negotiator.Consume(c, "aaaa:bbbb")
	assert.True(t, ok)
}

func TestSessionMalformedToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	c := context.TODO()
	negotiator, nower := setup(t, ctrl)

	nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()

	for _, token := range []string{"", "noseparator", ":", "aaaa:", ":bbbb", "a:b:c"} {
		_, ok := negotiator.Consume(c, token)
		assert.False(t, ok, "token %q", token)
	}
}

func TestSessionExpiry(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	c := context.TODO()
	negotiator, nower := setup(t, ctrl)

	nower.EXPECT().Now().Return(mytime.ExampleTime)
	token, err := negotiator.Create(c, AuthSession{ScopeLabel: "identity"})
	assert.NoError(t, err)

	// just past the TTL
	nower.EXPECT().Now().Return(mytime.ExampleTime.Add(TTL + time.Second)).AnyTimes()

	_, ok := negotiator.Consume(c, token)
	assert.False(t, ok)
}

func TestSessionLazyPrune(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	c := context.TODO()

	sessionStore, cleanup, err := mystore.NewInMemoryStore[AuthSession](c)
	assert.NoError(t, err)
	defer cleanup()

	nower := mytime.NewMockNower(ctrl)
	randomer := &fixedRandomer{values: []string{"s1", "n1", "s2", "n2"}}
	negotiator := NewNegotiator(sessionStore, nower, randomer)

	nower.EXPECT().Now().Return(mytime.ExampleTime)
	_, err = negotiator.Create(c, AuthSession{ScopeLabel: "identity"})
	assert.NoError(t, err)

	// creating a new session past the TTL sweeps the old one away
	nower.EXPECT().Now().Return(mytime.ExampleTime.Add(TTL + time.Minute)).AnyTimes()
	_, err = negotiator.Create(c, AuthSession{ScopeLabel: "identity"})
	assert.NoError(t, err)

	remaining, err := sessionStore.List(c)
	assert.NoError(t, err)
	assert.Len(t, remaining, 1)
	assert.Equal(t, "s2", remaining[0].UID)
}

func setup(t *testing.T, ctrl *gomock.Controller) (*Negotiator, *mytime.MockNower) {
	c := context.TODO()

	sessionStore, _, err := mystore.NewInMemoryStore[AuthSession](c)
	assert.NoError(t, err)

	nower := mytime.NewMockNower(ctrl)
	randomer := &fixedRandomer{values: []string{"aaaa", "bbbb"}}

	return NewNegotiator(sessionStore, nower, randomer), nower
}
