package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrProfileUnavailable indicates that every resolution strategy failed:
// no credentials may be persisted for such an authorization attempt.
var ErrProfileUnavailable = errors.New("profile could not be resolved")

const (
	googleUserinfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

	httpClientTimeout = 5 * time.Second
)

type Profile struct {
	SubjectUID string `json:"sub"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Picture    string `json:"picture"`
}

//go:generate mockgen -source=profile.go -package profile -destination resolver_mock.go Resolver
type Resolver interface {
	Resolve(c context.Context, accessToken string) (Profile, error)
}

type googleResolver struct {
	userinfoURL string
}

func NewResolver() *googleResolver {
	return &googleResolver{
		userinfoURL: googleUserinfoURL,
	}
}

func (r googleResolver) Resolve(c context.Context, accessToken string) (Profile, error) {
	httpReq, err := http.NewRequestWithContext(c, http.MethodGet, r.userinfoURL, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("error creating profile request: %s", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("Accept", "application/json")

	httpClient := &http.Client{
		Timeout: httpClientTimeout,
	}
	httpResp, err := httpClient.Do(httpReq)
	if err != nil {
		return Profile{}, fmt.Errorf("error fetching profile: %s", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != 200 {
		return Profile{}, fmt.Errorf("error fetching profile: http status %d", httpResp.StatusCode)
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Profile{}, fmt.Errorf("error reading profile response: %s", err)
	}

	prof := Profile{}
	err = json.Unmarshal(respBody, &prof)
	if err != nil {
		return Profile{}, fmt.Errorf("error parsing profile response: %s", err)
	}

	if prof.SubjectUID == "" {
		return Profile{}, fmt.Errorf("profile response carried no subject")
	}

	return prof, nil
}

// Strategy is one way of obtaining the external account's profile.
type Strategy struct {
	Name    string
	Resolve func(c context.Context) (Profile, error)
}

// ResolveFirst tries each strategy in order and returns the first profile
// obtained. The order of the strategies is the fallback policy.
func ResolveFirst(c context.Context, strategies []Strategy) (Profile, string, error) {
	var lastErr error
	for _, strategy := range strategies {
		prof, err := strategy.Resolve(c)
		if err == nil {
			return prof, strategy.Name, nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return Profile{}, "", fmt.Errorf("%w: %s", ErrProfileUnavailable, lastErr)
	}

	return Profile{}, "", ErrProfileUnavailable
}
