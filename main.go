package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"github.com/agendly/bookingbackend/lib/mypublisher"
	"github.com/agendly/bookingbackend/lib/mypubsub"
	"github.com/agendly/bookingbackend/lib/myqueue"
	"github.com/agendly/bookingbackend/lib/myrandom"
	"github.com/agendly/bookingbackend/lib/mystore"
	"github.com/agendly/bookingbackend/lib/mytime"
	"github.com/agendly/bookingbackend/lib/myuuid"
	"github.com/agendly/bookingbackend/lib/myvault"
	"github.com/agendly/bookingbackend/services/calendarsync"
	"github.com/agendly/bookingbackend/services/calendarsync/calendarapi"
	"github.com/agendly/bookingbackend/services/googleauth"
	"github.com/agendly/bookingbackend/services/googleauth/consent"
	"github.com/agendly/bookingbackend/services/googleauth/credentials"
	"github.com/agendly/bookingbackend/services/googleauth/gateway"
	"github.com/agendly/bookingbackend/services/googleauth/health"
	"github.com/agendly/bookingbackend/services/googleauth/profile"
	"github.com/agendly/bookingbackend/services/googleauth/session"
)

func main() {
	c := context.Background()

	config, err := googleauth.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading configuration: %s", err)
	}

	nower := mytime.RealNower{}
	uuider := myuuid.RealUUIDer{}
	randomer := myrandom.RealStringer{}

	router := mux.NewRouter()

	sessionStore, sessionStoreCleanup, err := mystore.New[session.AuthSession](c)
	if err != nil {
		log.Fatalf("Error creating session store: %s", err)
	}
	defer sessionStoreCleanup()

	identityVault, identityVaultCleanup, err := myvault.New[credentials.IdentityCredential](c)
	if err != nil {
		log.Fatalf("Error creating identity vault: %s", err)
	}
	defer identityVaultCleanup()

	calendarStore, calendarStoreCleanup, err := mystore.New[credentials.CalendarCredential](c)
	if err != nil {
		log.Fatalf("Error creating calendar-credential store: %s", err)
	}
	defer calendarStoreCleanup()

	flagStore, flagStoreCleanup, err := mystore.New[credentials.UserLinkFlags](c)
	if err != nil {
		log.Fatalf("Error creating link-flag store: %s", err)
	}
	defer flagStoreCleanup()

	consentStore, consentStoreCleanup, err := mystore.New[consent.ConsentEvent](c)
	if err != nil {
		log.Fatalf("Error creating consent-event store: %s", err)
	}
	defer consentStoreCleanup()

	refStore, refStoreCleanup, err := mystore.New[calendarsync.EventRef](c)
	if err != nil {
		log.Fatalf("Error creating event-ref store: %s", err)
	}
	defer refStoreCleanup()

	pubsub, pubsubCleanup, err := mypubsub.New(c)
	if err != nil {
		log.Fatalf("Error creating pubsub: %s", err)
	}
	defer pubsubCleanup()

	queue, queueCleanup, err := myqueue.New(c)
	if err != nil {
		log.Fatalf("Error creating task queue: %s", err)
	}
	defer queueCleanup()

	publisher, publisherCleanup, err := mypublisher.New(c, pubsub, queue, nower)
	if err != nil {
		log.Fatalf("Error creating publisher: %s", err)
	}
	defer publisherCleanup()
	publisher.RegisterEndpoints(c, router)

	providerGateway, err := gateway.New(c, config.ClientID, config.ClientSecret, gateway.GoogleEndpoints())
	if err != nil {
		log.Fatalf("Error creating provider gateway: %s", err)
	}

	negotiator := session.NewNegotiator(sessionStore, nower, randomer)
	credStore := credentials.NewStore(identityVault, calendarStore, flagStore, nower)
	ledger := consent.NewLedger(consentStore, nower, uuider)
	profileResolver := profile.NewResolver()

	authService := googleauth.NewService(config, negotiator, providerGateway, profileResolver, credStore, ledger, publisher, nower)
	err = authService.RegisterEndpoints(c, router)
	if err != nil {
		log.Fatalf("Error registering googleauth endpoints: %s", err)
	}

	monitor := health.NewMonitor(credStore, providerGateway, ledger, publisher, nower,
		config.HealthSweepInterval, config.HealthSweepBatchSize, config.HealthFailureThreshold)
	monitor.RegisterEndpoints(c, router)
	monitor.Start(c)
	defer monitor.Stop()

	syncService := calendarsync.NewService(credStore, providerGateway, calendarapi.NewHTTPClient(), refStore, nower)
	calendarsync.NewWebService(syncService).RegisterEndpoints(c, router)

	startWebServerBlocking(router)
}

func startWebServerBlocking(router *mux.Router) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Starting webserver on port %s (try http://localhost:%s)", port, port)
	err := http.ListenAndServe(fmt.Sprintf(":%s", port), router)
	if err != nil {
		log.Fatalf("Error starting webserver on port %s: %s", port, err)
	}
}
