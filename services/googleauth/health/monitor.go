package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/agendly/bookingbackend/lib/myhttp"
	"github.com/agendly/bookingbackend/lib/mylog"
	"github.com/agendly/bookingbackend/lib/mypublisher"
	"github.com/agendly/bookingbackend/lib/mytime"
	"github.com/agendly/bookingbackend/services/googleauth/authevents"
	"github.com/agendly/bookingbackend/services/googleauth/consent"
	"github.com/agendly/bookingbackend/services/googleauth/credentials"
	"github.com/agendly/bookingbackend/services/googleauth/gateway"
)

// SweepStats summarizes one monitor run.
type SweepStats struct {
	Swept        int `json:"swept"`
	Refreshed    int `json:"refreshed"`
	Failed       int `json:"failed"`
	Disconnected int `json:"disconnected"`
}

// Monitor periodically refreshes linked calendar credentials so a broken
// refresh token is noticed before a user tries to sync an appointment.
type Monitor struct {
	credStore        *credentials.Store
	providerGateway  gateway.Gateway
	ledger           *consent.Ledger
	publisher        mypublisher.Publisher
	nower            mytime.Nower
	interval         time.Duration
	batchSize        int
	failureThreshold int
	logger           mylog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewMonitor(credStore *credentials.Store, providerGateway gateway.Gateway, ledger *consent.Ledger, publisher mypublisher.Publisher, nower mytime.Nower, interval time.Duration, batchSize int, failureThreshold int) *Monitor {
	return &Monitor{
		credStore:        credStore,
		providerGateway:  providerGateway,
		ledger:           ledger,
		publisher:        publisher,
		nower:            nower,
		interval:         interval,
		batchSize:        batchSize,
		failureThreshold: failureThreshold,
		logger:           mylog.New("healthmonitor"),
		stop:             make(chan struct{}),
		done:             make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called or the context ends.
func (m *Monitor) Start(c context.Context) {
	go func() {
		defer close(m.done)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.logger.Log(c, "", mylog.SeverityInfo, "Health monitor started (interval %s, batch %d, threshold %d)", m.interval, m.batchSize, m.failureThreshold)

		for {
			select {
			case <-c.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				_, err := m.RunOnce(c)
				if err != nil {
					m.logger.Log(c, "", mylog.SeverityError, "Health sweep failed: %s", err)
				}
			}
		}
	}()
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	<-m.done
}

// RunOnce sweeps one bounded batch of linked credentials. A failing credential
// never aborts the rest of the batch.
func (m *Monitor) RunOnce(c context.Context) (SweepStats, error) {
	stats := SweepStats{}

	creds, err := m.credStore.ListLinked(c, m.batchSize)
	if err != nil {
		return stats, fmt.Errorf("error listing linked credentials: %s", err)
	}

	for _, cred := range creds {
		stats.Swept++

		resp, err := m.providerGateway.RefreshAccessToken(c, cred.RefreshToken)
		if err != nil {
			stats.Failed++
			disconnected := m.handleRefreshFailure(c, cred, err)
			if disconnected {
				stats.Disconnected++
			}
			continue
		}

		stats.Refreshed++
		m.handleRefreshSuccess(c, cred, resp)
	}

	m.logger.Log(c, "", mylog.SeverityInfo, "Health sweep done: %d swept, %d refreshed, %d failed, %d disconnected",
		stats.Swept, stats.Refreshed, stats.Failed, stats.Disconnected)

	return stats, nil
}

func (m *Monitor) handleRefreshSuccess(c context.Context, cred credentials.CalendarCredential, resp gateway.TokenResponse) {
	cred.AccessToken = resp.AccessToken
	cred.ExpiresAt = m.nower.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	cred.LastHealthCheck = m.nower.Now()

	// the refresh response rarely carries a new refresh token: the upsert
	// keeps the stored one and resets the failure count
	cred.RefreshToken = resp.RefreshToken

	_, err := m.credStore.UpsertCalendar(c, cred)
	if err != nil {
		m.logger.Log(c, cred.UserUID, mylog.SeverityError, "Error storing refreshed credential of user %s: %s", cred.UserUID, err)
		return
	}

	err = m.publisher.Publish(c, authevents.TopicName, authevents.TokenRefreshCompleted{
		UserUID: cred.UserUID,
	})
	if err != nil {
		m.logger.Log(c, cred.UserUID, mylog.SeverityWarn, "Error publishing refresh event for user %s: %s", cred.UserUID, err)
	}
}

func (m *Monitor) handleRefreshFailure(c context.Context, cred credentials.CalendarCredential, refreshErr error) bool {
	newCount := cred.FailureCount + 1
	escalate := newCount >= m.failureThreshold

	m.logger.Log(c, cred.UserUID, mylog.SeverityWarn, "Refresh of user %s failed (%d of %d): %s", cred.UserUID, newCount, m.failureThreshold, refreshErr)

	status := credentials.StatusLinked
	if escalate {
		status = credentials.StatusDisconnected
	}
	err := m.credStore.RecordRefreshFailure(c, cred.UserUID, newCount, status)
	if err != nil {
		m.logger.Log(c, cred.UserUID, mylog.SeverityError, "Error recording refresh failure of user %s: %s", cred.UserUID, err)
		return false
	}

	if !escalate {
		return false
	}

	err = m.credStore.SetLinkedFlag(c, cred.UserUID, false, "")
	if err != nil {
		m.logger.Log(c, cred.UserUID, mylog.SeverityError, "Error clearing link flag of user %s: %s", cred.UserUID, err)
	}

	_, err = m.ledger.Append(c, consent.ConsentEvent{
		UserUID:    cred.UserUID,
		SubjectUID: cred.SubjectUID,
		Kind:       consent.KindCalendarHealthFailure,
		Scopes:     cred.Scopes,
		Metadata:   fmt.Sprintf(`{"failureCount":%d}`, newCount),
	})
	if err != nil {
		m.logger.Log(c, cred.UserUID, mylog.SeverityError, "Error appending health-failure event for user %s: %s", cred.UserUID, err)
	}

	err = m.publisher.Publish(c, authevents.TopicName, authevents.CalendarHealthCheckFailed{
		UserUID:      cred.UserUID,
		FailureCount: newCount,
		Disconnected: true,
	})
	if err != nil {
		m.logger.Log(c, cred.UserUID, mylog.SeverityWarn, "Error publishing health-failure event for user %s: %s", cred.UserUID, err)
	}

	return true
}

// RegisterEndpoints exposes the sweep as a cron-compatible trigger.
func (m *Monitor) RegisterEndpoints(c context.Context, router *mux.Router) {
	router.HandleFunc("/auth/google/health/run", m.runPage()).Methods("GET", "POST")
}

func (m *Monitor) runPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := r.Context()
		responseWriter := myhttp.NewWriter(m.logger)

		stats, err := m.RunOnce(c)
		if err != nil {
			responseWriter.WriteError(c, w, 1, err)
			return
		}

		responseWriter.Write(c, w, http.StatusOK, stats)
	}
}
