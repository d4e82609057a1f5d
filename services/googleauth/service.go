package googleauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agendly/bookingbackend/lib/myerrors"
	"github.com/agendly/bookingbackend/lib/mylog"
	"github.com/agendly/bookingbackend/lib/mypublisher"
	"github.com/agendly/bookingbackend/lib/mytime"
	"github.com/agendly/bookingbackend/services/googleauth/authevents"
	"github.com/agendly/bookingbackend/services/googleauth/consent"
	"github.com/agendly/bookingbackend/services/googleauth/credentials"
	"github.com/agendly/bookingbackend/services/googleauth/gateway"
	"github.com/agendly/bookingbackend/services/googleauth/profile"
	"github.com/agendly/bookingbackend/services/googleauth/session"
)

type service struct {
	config          Config
	negotiator      *session.Negotiator
	providerGateway gateway.Gateway
	profileResolver profile.Resolver
	credStore       *credentials.Store
	ledger          *consent.Ledger
	publisher       mypublisher.Publisher
	nower           mytime.Nower
	logger          mylog.Logger
}

func newService(config Config, negotiator *session.Negotiator, providerGateway gateway.Gateway, profileResolver profile.Resolver, credStore *credentials.Store, ledger *consent.Ledger, pub mypublisher.Publisher, nower mytime.Nower) *service {
	return &service{
		config:          config,
		negotiator:      negotiator,
		providerGateway: providerGateway,
		profileResolver: profileResolver,
		credStore:       credStore,
		ledger:          ledger,
		publisher:       pub,
		nower:           nower,
		logger:          mylog.New("googleauth"),
	}
}

func (s *service) CreateTopics(c context.Context) error {
	err := s.publisher.CreateTopic(c, authevents.TopicName)
	if err != nil {
		return fmt.Errorf("error creating topic %s: %s", authevents.TopicName, err)
	}

	return nil
}

// completionURL resolves a path-only callback configuration against the host
// the request came in on, so one deployment artifact serves every environment.
func (s *service) completionURL(currentHostname string) string {
	if strings.HasPrefix(s.config.CallbackURL, "/") {
		return currentHostname + s.config.CallbackURL
	}

	return s.config.CallbackURL
}

func (s *service) start(c context.Context, req StartRequest, currentHostname string) (string, error) {
	err := s.config.Validate()
	if err != nil {
		return "", myerrors.NewUnavailableError(err)
	}

	scopes, err := resolveScopeLabel(req.ScopeLabel)
	if err != nil {
		return "", myerrors.NewInvalidInputError(err)
	}

	// Calendar access is granted to a specific user account: an anonymous
	// requester has nothing to bind the credential to.
	if req.ScopeLabel == ScopeLabelCalendar && req.UserUID == "" {
		return "", myerrors.NewAuthenticationError(fmt.Errorf("calendar authorization requires an authenticated requester"))
	}

	token, err := s.negotiator.Create(c, session.AuthSession{
		ScopeLabel: req.ScopeLabel,
		Scopes:     scopes,
		UserUID:    req.UserUID,
		ReturnURL:  req.ReturnURL,
	})
	if err != nil {
		return "", myerrors.NewInternalError(fmt.Errorf("error creating session: %s", err))
	}

	authURL, err := s.providerGateway.ComposeAuthURL(c, gateway.ComposeAuthURLRequest{
		CompletionURL: s.completionURL(currentHostname),
		Scopes:        scopes,
		State:         token,
	})
	if err != nil {
		return "", myerrors.NewInternalError(fmt.Errorf("error composing auth url: %s", err))
	}

	s.logger.Log(c, req.UserUID, mylog.SeverityInfo, "Started authorization (label %q) for user %q", req.ScopeLabel, req.UserUID)

	return authURL, nil
}

func (s *service) handleCallback(c context.Context, code string, state string, providerError string, currentHostname string) CallbackResult {
	sess, ok := s.negotiator.Consume(c, state)
	if !ok {
		return CallbackResult{Success: false, Error: "invalid session"}
	}

	result := CallbackResult{
		UserUID:   sess.UserUID,
		returnURL: sess.ReturnURL,
	}

	calendarRequested := sess.ScopeLabel == ScopeLabelCalendar

	if providerError != "" {
		s.logger.Log(c, sess.UID, mylog.SeverityWarn, "Provider reported %q on callback of session %s", providerError, sess.UID)
		if calendarRequested {
			s.appendEvent(c, consent.ConsentEvent{
				UserUID:  sess.UserUID,
				Kind:     consent.KindCalendarDenied,
				Scopes:   sess.Scopes,
				Metadata: fmt.Sprintf(`{"providerError":%q}`, providerError),
			})
		}
		result.Error = "authorization was denied"
		return result
	}

	if code == "" {
		result.Error = "authorization code missing"
		return result
	}

	tokenResp, err := s.providerGateway.ExchangeCode(c, code, s.completionURL(currentHostname))
	if err != nil {
		s.logger.Log(c, sess.UID, mylog.SeverityError, "Token exchange of session %s failed: %s", sess.UID, err)
		result.Error = "token exchange failed"
		return result
	}

	prof, profileSource, err := s.resolveProfile(c, tokenResp)
	if err != nil {
		s.logger.Log(c, sess.UID, mylog.SeverityError, "Profile resolution of session %s failed: %s", sess.UID, err)
		result.Error = "profile could not be resolved"
		return result
	}

	now := s.nower.Now()
	grantedScopes := credentials.NormalizeScopes(tokenResp.GrantedScopes())
	expiresAt := now.Add(time.Duration(tokenResp.ExpiresIn) * time.Second)

	_, err = s.credStore.UpsertIdentity(c, credentials.IdentityCredential{
		SubjectUID:   prof.SubjectUID,
		UserUID:      sess.UserUID,
		Email:        prof.Email,
		Name:         prof.Name,
		Picture:      prof.Picture,
		IDToken:      tokenResp.IDToken,
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		Scopes:       grantedScopes,
		ExpiresAt:    expiresAt,
	})
	if err != nil {
		s.logger.Log(c, sess.UID, mylog.SeverityError, "Error storing identity credential of session %s: %s", sess.UID, err)
		result.Error = "could not store credentials"
		return result
	}

	s.appendEvent(c, consent.ConsentEvent{
		UserUID:    sess.UserUID,
		SubjectUID: prof.SubjectUID,
		Kind:       consent.KindIdentityGranted,
		Scopes:     grantedScopes,
		Metadata:   fmt.Sprintf(`{"profileSource":%q}`, profileSource),
	})

	result.Success = true
	result.SubjectUID = prof.SubjectUID
	result.Email = prof.Email
	result.Name = prof.Name

	if calendarRequested {
		result.CalendarLinked, result.Error = s.linkCalendar(c, sess, prof, tokenResp, grantedScopes, expiresAt)
	}

	s.logger.Log(c, sess.UID, mylog.SeverityInfo, "Completed authorization of session %s (user %q, subject %s, calendar linked: %t)",
		sess.UID, sess.UserUID, prof.SubjectUID, result.CalendarLinked)

	return result
}

// linkCalendar stores the calendar credential. An identity link that already
// succeeded stands regardless of the outcome here.
func (s *service) linkCalendar(c context.Context, sess session.AuthSession, prof profile.Profile, tokenResp gateway.TokenResponse, grantedScopes []string, expiresAt time.Time) (bool, string) {
	if !gateway.ContainsScope(grantedScopes, gateway.ScopeCalendar) {
		s.appendEvent(c, consent.ConsentEvent{
			UserUID:    sess.UserUID,
			SubjectUID: prof.SubjectUID,
			Kind:       consent.KindCalendarDenied,
			Scopes:     grantedScopes,
			Metadata:   `{"reason":"scope_not_granted"}`,
		})
		s.publishConnectCompleted(c, sess.UserUID, prof.SubjectUID, grantedScopes, false, "calendar scope not granted")
		return false, "calendar access was not granted"
	}

	stored, err := s.credStore.UpsertCalendar(c, credentials.CalendarCredential{
		UserUID:      sess.UserUID,
		SubjectUID:   prof.SubjectUID,
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		Scopes:       grantedScopes,
		ExpiresAt:    expiresAt,
	})
	if err != nil {
		s.logger.Log(c, sess.UID, mylog.SeverityError, "Error storing calendar credential of session %s: %s", sess.UID, err)

		reason := "could not store calendar credential"
		if errors.Is(err, credentials.ErrMissingRefreshToken) {
			reason = "no refresh token was issued"
			s.appendEvent(c, consent.ConsentEvent{
				UserUID:    sess.UserUID,
				SubjectUID: prof.SubjectUID,
				Kind:       consent.KindCalendarDenied,
				Scopes:     grantedScopes,
				Metadata:   `{"reason":"missing_refresh_token"}`,
			})
		}
		s.publishConnectCompleted(c, sess.UserUID, prof.SubjectUID, grantedScopes, false, reason)
		return false, reason
	}

	err = s.credStore.SetLinkedFlag(c, sess.UserUID, true, stored.ScopeVersion)
	if err != nil {
		s.logger.Log(c, sess.UID, mylog.SeverityError, "Error setting link flag of user %s: %s", sess.UserUID, err)
	}

	s.appendEvent(c, consent.ConsentEvent{
		UserUID:    sess.UserUID,
		SubjectUID: prof.SubjectUID,
		Kind:       consent.KindCalendarGranted,
		Scopes:     grantedScopes,
	})
	s.publishConnectCompleted(c, sess.UserUID, prof.SubjectUID, grantedScopes, true, "")

	return true, ""
}

// resolveProfile prefers the live userinfo call and falls back to the claims
// of a locally verified identity token.
func (s *service) resolveProfile(c context.Context, tokenResp gateway.TokenResponse) (profile.Profile, string, error) {
	return profile.ResolveFirst(c, []profile.Strategy{
		{
			Name: "userinfo",
			Resolve: func(c context.Context) (profile.Profile, error) {
				if tokenResp.AccessToken == "" {
					return profile.Profile{}, fmt.Errorf("no access token on response")
				}
				return s.profileResolver.Resolve(c, tokenResp.AccessToken)
			},
		},
		{
			Name: "id_token",
			Resolve: func(c context.Context) (profile.Profile, error) {
				if tokenResp.IDToken == "" {
					return profile.Profile{}, fmt.Errorf("no identity token on response")
				}
				claims, err := s.providerGateway.VerifyIDToken(c, tokenResp.IDToken, s.config.ClientID)
				if err != nil {
					return profile.Profile{}, err
				}
				return profile.Profile{
					SubjectUID: claims.SubjectUID,
					Email:      claims.Email,
					Name:       claims.Name,
					Picture:    claims.Picture,
				}, nil
			},
		},
	})
}

func (s *service) unlink(c context.Context, userUID string) error {
	if userUID == "" {
		return myerrors.NewInvalidInputError(fmt.Errorf("missing userUID"))
	}

	cred, exists, err := s.credStore.Status(c, userUID)
	if err != nil {
		return myerrors.NewInternalError(fmt.Errorf("error fetching calendar credential: %s", err))
	}

	err = s.credStore.MarkUnlinked(c, userUID)
	if err != nil {
		return myerrors.NewInternalError(fmt.Errorf("error unlinking: %s", err))
	}

	err = s.credStore.SetLinkedFlag(c, userUID, false, "")
	if err != nil {
		return myerrors.NewInternalError(fmt.Errorf("error clearing link flag: %s", err))
	}

	if !exists {
		return nil
	}

	s.appendEvent(c, consent.ConsentEvent{
		UserUID:    userUID,
		SubjectUID: cred.SubjectUID,
		Kind:       consent.KindCalendarRevoked,
		Scopes:     cred.Scopes,
	})

	err = s.publisher.Publish(c, authevents.TopicName, authevents.CalendarDisconnected{
		UserUID:    userUID,
		SubjectUID: cred.SubjectUID,
		Reason:     "unlinked by user",
	})
	if err != nil {
		s.logger.Log(c, userUID, mylog.SeverityWarn, "Error publishing disconnect event for user %s: %s", userUID, err)
	}

	return nil
}

func (s *service) status(c context.Context, userUID string) (StatusResponse, error) {
	if userUID == "" {
		return StatusResponse{}, myerrors.NewInvalidInputError(fmt.Errorf("missing userUID"))
	}

	flags, exists, err := s.credStore.GetLinkFlags(c, userUID)
	if err != nil {
		return StatusResponse{}, myerrors.NewInternalError(fmt.Errorf("error fetching link flags: %s", err))
	}
	if !exists {
		return StatusResponse{UserUID: userUID}, nil
	}

	return StatusResponse{
		UserUID:        userUID,
		CalendarLinked: flags.CalendarLinked,
		ScopeVersion:   flags.ScopeVersion,
	}, nil
}

func (s *service) appendEvent(c context.Context, event consent.ConsentEvent) {
	_, err := s.ledger.Append(c, event)
	if err != nil {
		s.logger.Log(c, event.UserUID, mylog.SeverityError, "Error appending %s consent event: %s", event.Kind, err)
	}
}

func (s *service) publishConnectCompleted(c context.Context, userUID string, subjectUID string, scopes []string, success bool, errorMessage string) {
	err := s.publisher.Publish(c, authevents.TopicName, authevents.CalendarConnectCompleted{
		UserUID:      userUID,
		SubjectUID:   subjectUID,
		Scopes:       scopes,
		Success:      success,
		ErrorMessage: errorMessage,
	})
	if err != nil {
		s.logger.Log(c, userUID, mylog.SeverityWarn, "Error publishing connect event for user %s: %s", userUID, err)
	}
}
