package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agendly/bookingbackend/lib/mylog"
	"github.com/agendly/bookingbackend/lib/myrandom"
	"github.com/agendly/bookingbackend/lib/mystore"
	"github.com/agendly/bookingbackend/lib/mytime"
)

const (
	// TTL is the maximum lifetime of an authorization session, consumed or not.
	TTL = 10 * time.Minute

	tokenSeparator = ":"
)

// AuthSession binds a client-initiated authorization request to its eventual callback.
type AuthSession struct {
	UID        string
	Nonce      string
	ScopeLabel string
	Scopes     []string
	UserUID    string
	SubjectUID string
	ReturnURL  string
	CreatedAt  time.Time
}

type Negotiator struct {
	sessionStore mystore.Store[AuthSession]
	nower        mytime.Nower
	randomer     myrandom.Stringer
	logger       mylog.Logger
}

func NewNegotiator(sessionStore mystore.Store[AuthSession], nower mytime.Nower, randomer myrandom.Stringer) *Negotiator {
	return &Negotiator{
		sessionStore: sessionStore,
		nower:        nower,
		randomer:     randomer,
		logger:       mylog.New("session"),
	}
}

// Create stores a new session and returns its opaque token "<uid>:<nonce>".
// Sessions older than the TTL are pruned before insertion.
func (n *Negotiator) Create(c context.Context, meta AuthSession) (string, error) {
	uid, err := n.randomer.Create()
	if err != nil {
		return "", fmt.Errorf("error creating session uid: %s", err)
	}
	nonce, err := n.randomer.Create()
	if err != nil {
		return "", fmt.Errorf("error creating session nonce: %s", err)
	}

	now := n.nower.Now()

	meta.UID = uid
	meta.Nonce = nonce
	meta.CreatedAt = now

	err = n.sessionStore.RunInTransaction(c, func(c context.Context) error {
		n.pruneExpired(c, now)

		return n.sessionStore.Put(c, uid, meta)
	})
	if err != nil {
		return "", fmt.Errorf("error storing session: %s", err)
	}

	return uid + tokenSeparator + nonce, nil
}

// Consume looks up the session bound to the token and deletes it.
// The second return value is false when the token is malformed, unknown,
// expired or replayed: callers cannot (and must not) tell these apart.
func (n *Negotiator) Consume(c context.Context, token string) (AuthSession, bool) {
	parts := strings.Split(token, tokenSeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return AuthSession{}, false
	}
	uid, nonce := parts[0], parts[1]

	found := AuthSession{}
	consumed := false
	err := n.sessionStore.RunInTransaction(c, func(c context.Context) error {
		sess, exists, err := n.sessionStore.Get(c, uid)
		if err != nil {
			return err
		}
		if !exists {
			return nil
		}
		if sess.Nonce != nonce {
			return nil
		}
		if n.nower.Now().After(sess.CreatedAt.Add(TTL)) {
			return n.sessionStore.Delete(c, uid)
		}

		err = n.sessionStore.Delete(c, uid)
		if err != nil {
			return err
		}

		found = sess
		consumed = true

		return nil
	})
	if err != nil {
		n.logger.Log(c, uid, mylog.SeverityWarn, "Error consuming session: %s", err)
		return AuthSession{}, false
	}

	return found, consumed
}

func (n *Negotiator) pruneExpired(c context.Context, now time.Time) {
	sessions, err := n.sessionStore.List(c)
	if err != nil {
		n.logger.Log(c, "", mylog.SeverityWarn, "Error listing sessions for pruning: %s", err)
		return
	}

	for _, sess := range sessions {
		if now.After(sess.CreatedAt.Add(TTL)) {
			err = n.sessionStore.Delete(c, sess.UID)
			if err != nil {
				n.logger.Log(c, sess.UID, mylog.SeverityWarn, "Error pruning session: %s", err)
			}
		}
	}
}
