package gateway

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComposeAuthURLIdentityOnly(t *testing.T) {
	c := context.TODO()
	g := newTestGateway(t, c)

	authURL, err := g.ComposeAuthURL(c, ComposeAuthURLRequest{
		CompletionURL: "http://localhost:8888/auth/google/callback",
		Scopes:        []string{},
		State:         "abc:def",
	})
	assert.NoError(t, err)

	u, err := url.Parse(authURL)
	assert.NoError(t, err)
	values := u.Query()

	assert.Equal(t, "my_client_id", values.Get("client_id"))
	assert.Equal(t, "code", values.Get("response_type"))
	assert.Equal(t, "abc:def", values.Get("state"))
	assert.Equal(t, "http://localhost:8888/auth/google/callback", values.Get("redirect_uri"))

	// baseline identity scopes are always present
	scopes := strings.Fields(values.Get("scope"))
	assert.Contains(t, scopes, ScopeOpenID)
	assert.Contains(t, scopes, ScopeEmail)
	assert.Contains(t, scopes, ScopeProfile)

	// no calendar scope: no offline access, no forced consent
	assert.Empty(t, values.Get("access_type"))
	assert.Empty(t, values.Get("prompt"))
}

func TestComposeAuthURLWithCalendarScope(t *testing.T) {
	c := context.TODO()
	g := newTestGateway(t, c)

	authURL, err := g.ComposeAuthURL(c, ComposeAuthURLRequest{
		CompletionURL: "http://localhost:8888/auth/google/callback",
		Scopes:        []string{ScopeCalendar, ScopeCalendar, ScopeEmail},
		State:         "abc:def",
	})
	assert.NoError(t, err)

	u, err := url.Parse(authURL)
	assert.NoError(t, err)
	values := u.Query()

	scopes := strings.Fields(values.Get("scope"))
	assert.Contains(t, scopes, ScopeCalendar)

	// duplicates collapsed
	assert.Len(t, scopes, 4)

	assert.Equal(t, "offline", values.Get("access_type"))
	assert.Equal(t, "consent select_account", values.Get("prompt"))
}

func TestUnionScopesIsDeterministic(t *testing.T) {
	first := UnionScopes([]string{ScopeCalendar, ScopeEmail, ScopeCalendar})
	second := UnionScopes([]string{ScopeEmail, ScopeCalendar})

	assert.Equal(t, first, second)
}

func TestGrantedScopes(t *testing.T) {
	resp := TokenResponse{Scope: ScopeOpenID + " " + ScopeCalendar}
	assert.Equal(t, []string{ScopeOpenID, ScopeCalendar}, resp.GrantedScopes())

	assert.Empty(t, TokenResponse{}.GrantedScopes())
}

func newTestGateway(t *testing.T, c context.Context) *googleGateway {
	g, err := New(c, "my_client_id", "my_client_secret", GoogleEndpoints())
	assert.NoError(t, err)
	return g
}
