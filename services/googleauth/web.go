package googleauth

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/go-playground/form/v4"
	"github.com/gorilla/mux"

	"github.com/agendly/bookingbackend/lib/mycontext"
	"github.com/agendly/bookingbackend/lib/myerrors"
	"github.com/agendly/bookingbackend/lib/myhttp"
	"github.com/agendly/bookingbackend/lib/mylog"
	"github.com/agendly/bookingbackend/lib/mypublisher"
	"github.com/agendly/bookingbackend/lib/mytime"
	"github.com/agendly/bookingbackend/services/googleauth/consent"
	"github.com/agendly/bookingbackend/services/googleauth/credentials"
	"github.com/agendly/bookingbackend/services/googleauth/gateway"
	"github.com/agendly/bookingbackend/services/googleauth/profile"
	"github.com/agendly/bookingbackend/services/googleauth/session"
)

type webService struct {
	service     *service
	logger      mylog.Logger
	formDecoder *form.Decoder
}

func NewService(config Config, negotiator *session.Negotiator, providerGateway gateway.Gateway, profileResolver profile.Resolver, credStore *credentials.Store, ledger *consent.Ledger, pub mypublisher.Publisher, nower mytime.Nower) *webService {
	return &webService{
		service:     newService(config, negotiator, providerGateway, profileResolver, credStore, ledger, pub, nower),
		logger:      mylog.New("googleauth"),
		formDecoder: form.NewDecoder(),
	}
}

func (s *webService) RegisterEndpoints(c context.Context, router *mux.Router) error {
	router.HandleFunc("/auth/google/start", s.startPage()).Methods("POST")
	router.HandleFunc("/auth/google/callback", s.callbackPage()).Methods("GET")
	router.HandleFunc("/auth/google/unlink", s.unlinkPage()).Methods("POST")
	router.HandleFunc("/auth/google/status", s.statusPage()).Methods("GET")

	err := s.service.CreateTopics(c)
	if err != nil {
		return err
	}

	return nil
}

//go:embed templates
var templateFolder embed.FS
var (
	popupPageTemplate *template.Template
)

func init() {
	popupPageTemplate = template.Must(template.ParseFS(templateFolder, "templates/popup.html"))
}

func (s *webService) startPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		err := r.ParseForm()
		if err != nil {
			errorWriter.WriteError(c, w, 1, myerrors.NewInvalidInputError(err))
			return
		}

		req := StartRequest{}
		err = s.formDecoder.Decode(&req, r.Form)
		if err != nil {
			errorWriter.WriteError(c, w, 1, myerrors.NewInvalidInputError(err))
			return
		}

		authURL, err := s.service.start(c, req, myhttp.HostnameWithScheme(r))
		if err != nil {
			errorWriter.WriteError(c, w, 1, err)
			return
		}

		http.Redirect(w, r, authURL, http.StatusSeeOther)
	}
}

type popupPage struct {
	Result    CallbackResult
	ReturnURL string
	Origins   []string
}

func (s *webService) callbackPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		code := r.URL.Query().Get("code")
		state := r.URL.Query().Get("state")
		providerError := r.URL.Query().Get("error")

		result := s.service.handleCallback(c, code, state, providerError, myhttp.HostnameWithScheme(r))

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		err := popupPageTemplate.Execute(w, popupPage{
			Result:    result,
			ReturnURL: result.returnURL,
			Origins:   s.service.config.AllowedOrigins,
		})
		if err != nil {
			errorWriter.WriteError(c, w, 1, myerrors.NewInternalError(fmt.Errorf("error rendering popup: %s", err)))
			return
		}
	}
}

func (s *webService) unlinkPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		err := r.ParseForm()
		if err != nil {
			errorWriter.WriteError(c, w, 1, myerrors.NewInvalidInputError(err))
			return
		}

		userUID := r.FormValue("userUID")
		err = s.service.unlink(c, userUID)
		if err != nil {
			errorWriter.WriteError(c, w, 2, err)
			return
		}

		errorWriter.Write(c, w, http.StatusOK, myhttp.SuccessResponse{Message: "unlinked"})
	}
}

func (s *webService) statusPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		resp, err := s.service.status(c, r.URL.Query().Get("userUID"))
		if err != nil {
			errorWriter.WriteError(c, w, 1, err)
			return
		}

		errorWriter.Write(c, w, http.StatusOK, resp)
	}
}
