package profile

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveAgainstUserinfoEndpoint(t *testing.T) {
	c := context.TODO()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer my_access_token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"sub":"google|111","email":"marc@home.nl","name":"Marc","picture":"http://pic"}`)
	}))
	defer server.Close()

	resolver := NewResolver()
	resolver.userinfoURL = server.URL

	prof, err := resolver.Resolve(c, "my_access_token")
	assert.NoError(t, err)
	assert.Equal(t, "google|111", prof.SubjectUID)
	assert.Equal(t, "marc@home.nl", prof.Email)
	assert.Equal(t, "Marc", prof.Name)
}

func TestResolveRejectsProfileWithoutSubject(t *testing.T) {
	c := context.TODO()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"email":"marc@home.nl"}`)
	}))
	defer server.Close()

	resolver := NewResolver()
	resolver.userinfoURL = server.URL

	_, err := resolver.Resolve(c, "my_access_token")
	assert.Error(t, err)
}

func TestResolveFirstFallsBack(t *testing.T) {
	c := context.TODO()

	prof, source, err := ResolveFirst(c, []Strategy{
		{
			Name: "id_token",
			Resolve: func(c context.Context) (Profile, error) {
				return Profile{}, fmt.Errorf("no identity token on response")
			},
		},
		{
			Name: "userinfo",
			Resolve: func(c context.Context) (Profile, error) {
				return Profile{SubjectUID: "google|111"}, nil
			},
		},
	})
	assert.NoError(t, err)
	assert.Equal(t, "userinfo", source)
	assert.Equal(t, "google|111", prof.SubjectUID)
}

func TestResolveFirstAllStrategiesFail(t *testing.T) {
	c := context.TODO()

	_, _, err := ResolveFirst(c, []Strategy{
		{
			Name: "id_token",
			Resolve: func(c context.Context) (Profile, error) {
				return Profile{}, fmt.Errorf("no identity token on response")
			},
		},
	})
	assert.ErrorIs(t, err, ErrProfileUnavailable)
}

func TestResolveFirstWithoutStrategies(t *testing.T) {
	_, _, err := ResolveFirst(context.TODO(), nil)
	assert.ErrorIs(t, err, ErrProfileUnavailable)
}
