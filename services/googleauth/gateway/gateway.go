package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// ErrTokenExchange indicates that the provider rejected the authorization code
// or returned neither an access token nor an identity token.
var ErrTokenExchange = errors.New("token exchange with provider failed")

type Endpoints struct {
	AuthURL  string
	TokenURL string
	JWKSURL  string
	Issuer   string
}

func GoogleEndpoints() Endpoints {
	return Endpoints{
		AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL: "https://oauth2.googleapis.com/token",
		JWKSURL:  "https://www.googleapis.com/oauth2/v3/certs",
		Issuer:   "https://accounts.google.com",
	}
}

type ComposeAuthURLRequest struct {
	CompletionURL string
	Scopes        []string
	State         string
}

type TokenResponse struct {
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	AccessToken  string `json:"access_token"`
	Scope        string `json:"scope"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
}

// GrantedScopes returns the scope set the provider reports on the response.
func (r TokenResponse) GrantedScopes() []string {
	return strings.Fields(r.Scope)
}

// IdentityClaims are the verified claims of an identity token.
type IdentityClaims struct {
	SubjectUID string
	Email      string
	Name       string
	Picture    string
}

//go:generate mockgen -source=gateway.go -package gateway -destination gateway_mock.go Gateway
type Gateway interface {
	ComposeAuthURL(c context.Context, req ComposeAuthURLRequest) (string, error)
	ExchangeCode(c context.Context, code string, completionURL string) (TokenResponse, error)
	RefreshAccessToken(c context.Context, refreshToken string) (TokenResponse, error)
	VerifyIDToken(c context.Context, idToken string, audience string) (IdentityClaims, error)
}

type googleGateway struct {
	clientID     string
	clientSecret string
	endpoints    Endpoints
	jwks         *jwk.Cache
	httpClient   *httpGatewayClient
}

func New(c context.Context, clientID string, clientSecret string, endpoints Endpoints) (*googleGateway, error) {
	jwks := jwk.NewCache(c)
	err := jwks.Register(endpoints.JWKSURL, jwk.WithMinRefreshInterval(15*time.Minute))
	if err != nil {
		return nil, fmt.Errorf("error registering provider jwks url: %s", err)
	}

	return &googleGateway{
		clientID:     clientID,
		clientSecret: clientSecret,
		endpoints:    endpoints,
		jwks:         jwks,
		httpClient:   newHTTPClient(),
	}, nil
}

func (g googleGateway) ComposeAuthURL(c context.Context, req ComposeAuthURLRequest) (string, error) {
	u, err := url.Parse(g.endpoints.AuthURL)
	if err != nil {
		return "", err
	}

	scopes := UnionScopes(req.Scopes)

	values := url.Values{
		"client_id":     []string{g.clientID},
		"redirect_uri":  []string{req.CompletionURL},
		"response_type": []string{"code"},
		"scope":         []string{strings.Join(scopes, " ")},
		"state":         []string{req.State},
	}

	// A refresh token is only needed (and only issued) for unattended calendar
	// access. Forcing consent makes the provider re-issue one even for an
	// account that consented before.
	if ContainsScope(scopes, ScopeCalendar) {
		values.Set("access_type", "offline")
		values.Set("prompt", "consent select_account")
	}

	u.RawQuery = values.Encode()

	return u.String(), nil
}

func (g googleGateway) ExchangeCode(c context.Context, code string, completionURL string) (TokenResponse, error) {
	requestBody := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {completionURL},
		"client_id":     {g.clientID},
		"client_secret": {g.clientSecret},
	}.Encode()

	httpRespCode, respBody, err := g.httpClient.SendForm(c, g.endpoints.TokenURL, []byte(requestBody))
	if err != nil {
		return TokenResponse{}, fmt.Errorf("%w: %s", ErrTokenExchange, err)
	}

	if httpRespCode != 200 {
		return TokenResponse{}, fmt.Errorf("%w: http status %d", ErrTokenExchange, httpRespCode)
	}

	resp := TokenResponse{}
	err = json.Unmarshal(respBody, &resp)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("%w: error parsing response: %s", ErrTokenExchange, err)
	}

	if resp.AccessToken == "" && resp.IDToken == "" {
		return TokenResponse{}, fmt.Errorf("%w: response carried neither access token nor identity token", ErrTokenExchange)
	}

	return resp, nil
}

func (g googleGateway) RefreshAccessToken(c context.Context, refreshToken string) (TokenResponse, error) {
	requestBody := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {g.clientID},
		"client_secret": {g.clientSecret},
	}.Encode()

	httpRespCode, respBody, err := g.httpClient.SendForm(c, g.endpoints.TokenURL, []byte(requestBody))
	if err != nil {
		return TokenResponse{}, err
	}

	if httpRespCode != 200 {
		return TokenResponse{}, fmt.Errorf("error refreshing token: http status %d", httpRespCode)
	}

	resp := TokenResponse{}
	err = json.Unmarshal(respBody, &resp)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("error parsing refresh response: %s", err)
	}

	return resp, nil
}

func (g googleGateway) VerifyIDToken(c context.Context, idToken string, audience string) (IdentityClaims, error) {
	keySet, err := g.jwks.Get(c, g.endpoints.JWKSURL)
	if err != nil {
		return IdentityClaims{}, fmt.Errorf("error fetching provider keys: %s", err)
	}

	token, err := jwt.Parse([]byte(idToken),
		jwt.WithKeySet(keySet),
		jwt.WithIssuer(g.endpoints.Issuer),
		jwt.WithAudience(audience),
		jwt.WithValidate(true))
	if err != nil {
		return IdentityClaims{}, fmt.Errorf("error verifying identity token: %s", err)
	}

	claims := IdentityClaims{
		SubjectUID: token.Subject(),
	}
	if email, ok := token.Get("email"); ok {
		claims.Email, _ = email.(string)
	}
	if name, ok := token.Get("name"); ok {
		claims.Name, _ = name.(string)
	}
	if picture, ok := token.Get("picture"); ok {
		claims.Picture, _ = picture.(string)
	}

	return claims, nil
}
