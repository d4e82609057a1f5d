package googleauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"fmt"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/agendly/bookingbackend/lib/mypublisher"
	"github.com/agendly/bookingbackend/lib/myrandom"
	"github.com/agendly/bookingbackend/lib/mystore"
	"github.com/agendly/bookingbackend/lib/mytime"
	"github.com/agendly/bookingbackend/lib/myuuid"
	"github.com/agendly/bookingbackend/services/googleauth/consent"
	"github.com/agendly/bookingbackend/services/googleauth/credentials"
	"github.com/agendly/bookingbackend/services/googleauth/gateway"
	"github.com/agendly/bookingbackend/services/googleauth/profile"
	"github.com/agendly/bookingbackend/services/googleauth/session"
)

func TestStartCalendarRequiresAuthenticatedRequester(t *testing.T) {
	c := context.TODO()
	f, cleanup := setup(t, c)
	defer cleanup()

	httpResp := f.postForm("/auth/google/start", url.Values{
		"scope": {ScopeLabelCalendar},
	})

	assert.Equal(t, http.StatusForbidden, httpResp.Code)
	assert.Contains(t, httpResp.Body.String(), "authenticated requester")
}

func TestStartWithoutConfiguration(t *testing.T) {
	c := context.TODO()
	f, cleanup := setupWithConfig(t, c, Config{})
	defer cleanup()

	httpResp := f.postForm("/auth/google/start", url.Values{
		"scope": {ScopeLabelIdentity},
	})

	assert.Equal(t, http.StatusServiceUnavailable, httpResp.Code)
}

func TestStartWithUnknownScopeLabel(t *testing.T) {
	c := context.TODO()
	f, cleanup := setup(t, c)
	defer cleanup()

	httpResp := f.postForm("/auth/google/start", url.Values{
		"scope": {"drive"},
	})

	assert.Equal(t, http.StatusBadRequest, httpResp.Code)
}

func TestFullCalendarConnect(t *testing.T) {
	c := context.TODO()
	f, cleanup := setup(t, c)
	defer cleanup()

	f.providerGateway.EXPECT().ComposeAuthURL(gomock.Any(), gomock.Any()).DoAndReturn(
		func(c context.Context, req gateway.ComposeAuthURLRequest) (string, error) {
			assert.Equal(t, "http://localhost:8888/auth/google/callback", req.CompletionURL)
			assert.Contains(t, req.Scopes, gateway.ScopeCalendar)
			return "https://accounts.google.com/o/oauth2/v2/auth?state=" + url.QueryEscape(req.State), nil
		})
	f.providerGateway.EXPECT().ExchangeCode(gomock.Any(), "my_code", "http://localhost:8888/auth/google/callback").Return(gateway.TokenResponse{
		TokenType:    "Bearer",
		ExpiresIn:    3600,
		AccessToken:  "my_access_token",
		RefreshToken: "my_refresh_token",
		IDToken:      "my_id_token",
		Scope:        strings.Join([]string{gateway.ScopeOpenID, gateway.ScopeEmail, gateway.ScopeProfile, gateway.ScopeCalendar}, " "),
	}, nil)
	f.profileResolver.EXPECT().Resolve(gomock.Any(), "my_access_token").Return(profile.Profile{
		SubjectUID: "google|111",
		Email:      "marc@home.nl",
		Name:       "Marc",
	}, nil)
	f.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	// step 1: start redirects to the provider with the session token as state
	httpResp := f.postForm("/auth/google/start", url.Values{
		"scope":     {ScopeLabelCalendar},
		"userUID":   {"user_123"},
		"returnURL": {"http://localhost:3000/settings"},
	})
	assert.Equal(t, http.StatusSeeOther, httpResp.Code)

	location, err := url.Parse(httpResp.Header().Get("Location"))
	assert.NoError(t, err)
	state := location.Query().Get("state")
	assert.NotEmpty(t, state)

	// step 2: callback links identity and calendar
	httpResp = f.get("/auth/google/callback?code=my_code&state=" + url.QueryEscape(state))
	assert.Equal(t, http.StatusOK, httpResp.Code)
	assert.Contains(t, httpResp.Body.String(), `"success":true`)
	assert.Contains(t, httpResp.Body.String(), `"calendarLinked":true`)

	identity, exists, err := f.credStore.GetIdentity(c, "google|111")
	assert.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "user_123", identity.UserUID)
	assert.Equal(t, "marc@home.nl", identity.Email)

	calendar, exists, err := f.credStore.Status(c, "user_123")
	assert.NoError(t, err)
	assert.True(t, exists)
	assert.True(t, calendar.IsLinked())
	assert.Equal(t, "my_refresh_token", calendar.RefreshToken)

	events, err := f.ledger.List(c)
	assert.NoError(t, err)
	kinds := []string{}
	for _, event := range events {
		kinds = append(kinds, event.Kind)
	}
	assert.Contains(t, kinds, consent.KindIdentityGranted)
	assert.Contains(t, kinds, consent.KindCalendarGranted)

	// step 3: the status endpoint reflects the link
	httpResp = f.get("/auth/google/status?userUID=user_123")
	assert.Equal(t, http.StatusOK, httpResp.Code)
	assert.Contains(t, httpResp.Body.String(), `"calendarLinked": true`)

	// step 4: a replayed callback finds no session
	httpResp = f.get("/auth/google/callback?code=my_code&state=" + url.QueryEscape(state))
	assert.Equal(t, http.StatusOK, httpResp.Code)
	assert.Contains(t, httpResp.Body.String(), "invalid session")
	assert.Contains(t, httpResp.Body.String(), `"success":false`)
}

func TestCallbackWithProviderDenial(t *testing.T) {
	c := context.TODO()
	f, cleanup := setup(t, c)
	defer cleanup()

	f.providerGateway.EXPECT().ComposeAuthURL(gomock.Any(), gomock.Any()).DoAndReturn(
		func(c context.Context, req gateway.ComposeAuthURLRequest) (string, error) {
			return "https://accounts.google.com/o/oauth2/v2/auth?state=" + url.QueryEscape(req.State), nil
		})

	httpResp := f.postForm("/auth/google/start", url.Values{
		"scope":   {ScopeLabelCalendar},
		"userUID": {"user_123"},
	})
	assert.Equal(t, http.StatusSeeOther, httpResp.Code)
	location, err := url.Parse(httpResp.Header().Get("Location"))
	assert.NoError(t, err)
	state := location.Query().Get("state")

	httpResp = f.get("/auth/google/callback?error=access_denied&state=" + url.QueryEscape(state))
	assert.Equal(t, http.StatusOK, httpResp.Code)
	assert.Contains(t, httpResp.Body.String(), `"success":false`)
	assert.Contains(t, httpResp.Body.String(), "denied")

	events, err := f.ledger.List(c)
	assert.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, consent.KindCalendarDenied, events[0].Kind)

	// no credentials written
	_, exists, err := f.credStore.Status(c, "user_123")
	assert.NoError(t, err)
	assert.False(t, exists)
}

func TestUnlink(t *testing.T) {
	c := context.TODO()
	f, cleanup := setup(t, c)
	defer cleanup()

	_, err := f.credStore.UpsertCalendar(c, credentials.CalendarCredential{
		UserUID:      "user_123",
		SubjectUID:   "google|111",
		RefreshToken: "my_refresh_token",
		Scopes:       []string{gateway.ScopeCalendar},
	})
	assert.NoError(t, err)
	f.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	httpResp := f.postForm("/auth/google/unlink", url.Values{
		"userUID": {"user_123"},
	})
	assert.Equal(t, http.StatusOK, httpResp.Code)

	cred, _, err := f.credStore.Status(c, "user_123")
	assert.NoError(t, err)
	assert.Equal(t, credentials.StatusDisconnected, cred.Status)

	events, err := f.ledger.List(c)
	assert.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, consent.KindCalendarRevoked, events[0].Kind)
}

type fixture struct {
	router          *mux.Router
	credStore       *credentials.Store
	ledger          *consent.Ledger
	providerGateway *gateway.MockGateway
	profileResolver *profile.MockResolver
	publisher       *mypublisher.MockPublisher
}

func (f fixture) postForm(path string, values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	recorder := httptest.NewRecorder()
	f.router.ServeHTTP(recorder, req)
	return recorder
}

func (f fixture) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	recorder := httptest.NewRecorder()
	f.router.ServeHTTP(recorder, req)
	return recorder
}

func setup(t *testing.T, c context.Context) (fixture, func()) {
	return setupWithConfig(t, c, Config{
		ClientID:       "my_client_id",
		ClientSecret:   "my_client_secret",
		CallbackURL:    "http://localhost:8888/auth/google/callback",
		AllowedOrigins: []string{"http://localhost:3000"},
	})
}

func setupWithConfig(t *testing.T, c context.Context, config Config) (fixture, func()) {
	ctrl := gomock.NewController(t)

	sessionStore, sessionCleanup, err := mystore.NewInMemoryStore[session.AuthSession](c)
	assert.NoError(t, err)
	identityVault, identityCleanup, err := mystore.NewInMemoryStore[credentials.IdentityCredential](c)
	assert.NoError(t, err)
	calendarStore, calendarCleanup, err := mystore.NewInMemoryStore[credentials.CalendarCredential](c)
	assert.NoError(t, err)
	flagStore, flagCleanup, err := mystore.NewInMemoryStore[credentials.UserLinkFlags](c)
	assert.NoError(t, err)
	eventStore, eventCleanup, err := mystore.NewInMemoryStore[consent.ConsentEvent](c)
	assert.NoError(t, err)

	nower := mytime.NewMockNower(ctrl)
	nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()
	uuidCount := 0
	uuider := myuuid.NewMockUUIDer(ctrl)
	uuider.EXPECT().Create().DoAndReturn(func() string {
		uuidCount++
		return fmt.Sprintf("my_uuid_%d", uuidCount)
	}).AnyTimes()

	negotiator := session.NewNegotiator(sessionStore, nower, myrandom.RealStringer{})
	credStore := credentials.NewStore(identityVault, calendarStore, flagStore, nower)
	ledger := consent.NewLedger(eventStore, nower, uuider)
	providerGateway := gateway.NewMockGateway(ctrl)
	profileResolver := profile.NewMockResolver(ctrl)
	publisher := mypublisher.NewMockPublisher(ctrl)
	publisher.EXPECT().CreateTopic(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	svc := NewService(config, negotiator, providerGateway, profileResolver, credStore, ledger, publisher, nower)
	router := mux.NewRouter()
	err = svc.RegisterEndpoints(c, router)
	assert.NoError(t, err)

	cleanup := func() {
		sessionCleanup()
		identityCleanup()
		calendarCleanup()
		flagCleanup()
		eventCleanup()
		ctrl.Finish()
	}

	return fixture{
		router:          router,
		credStore:       credStore,
		ledger:          ledger,
		providerGateway: providerGateway,
		profileResolver: profileResolver,
		publisher:       publisher,
	}, cleanup
}
