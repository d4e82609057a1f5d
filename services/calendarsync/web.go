package calendarsync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/agendly/bookingbackend/lib/mycontext"
	"github.com/agendly/bookingbackend/lib/myerrors"
	"github.com/agendly/bookingbackend/lib/myhttp"
	"github.com/agendly/bookingbackend/lib/mylog"
)

type webService struct {
	service *Service
	logger  mylog.Logger
}

func NewWebService(service *Service) *webService {
	return &webService{
		service: service,
		logger:  mylog.New("calendarsync"),
	}
}

func (s *webService) RegisterEndpoints(c context.Context, router *mux.Router) {
	router.HandleFunc("/calendarsync/events", s.createEventPage()).Methods("POST")
	router.HandleFunc("/calendarsync/events", s.updateEventPage()).Methods("PUT")
	router.HandleFunc("/calendarsync/events", s.deleteEventPage()).Methods("DELETE")
}

func (s *webService) createEventPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		appointment, err := parseAppointment(r)
		if err != nil {
			errorWriter.WriteError(c, w, 1, myerrors.NewInvalidInputError(err))
			return
		}

		eventID, err := s.service.CreateEvent(c, appointment)
		if err != nil {
			errorWriter.WriteError(c, w, 2, toHTTPError(err))
			return
		}

		errorWriter.Write(c, w, http.StatusOK, SyncResponse{EventID: eventID})
	}
}

func (s *webService) updateEventPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		appointment, err := parseAppointment(r)
		if err != nil {
			errorWriter.WriteError(c, w, 1, myerrors.NewInvalidInputError(err))
			return
		}

		err = s.service.UpdateEvent(c, appointment)
		if err != nil {
			errorWriter.WriteError(c, w, 2, toHTTPError(err))
			return
		}

		errorWriter.Write(c, w, http.StatusOK, myhttp.SuccessResponse{Message: "updated"})
	}
}

func (s *webService) deleteEventPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		appointment, err := parseAppointment(r)
		if err != nil {
			errorWriter.WriteError(c, w, 1, myerrors.NewInvalidInputError(err))
			return
		}

		err = s.service.DeleteEvent(c, appointment)
		if err != nil {
			errorWriter.WriteError(c, w, 2, toHTTPError(err))
			return
		}

		errorWriter.Write(c, w, http.StatusOK, myhttp.SuccessResponse{Message: "deleted"})
	}
}

func parseAppointment(r *http.Request) (Appointment, error) {
	appointment := Appointment{}
	err := json.NewDecoder(r.Body).Decode(&appointment)
	if err != nil {
		return Appointment{}, err
	}
	if appointment.UID == "" {
		return Appointment{}, errors.New("missing appointment uid")
	}
	if appointment.UserUID == "" {
		return Appointment{}, errors.New("missing userUID")
	}

	return appointment, nil
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrNotConfirmed), errors.Is(err, ErrNotLinked), errors.Is(err, ErrScopeNotGranted):
		return myerrors.NewInvalidInputError(err)
	case errors.Is(err, ErrNeverSynced):
		return myerrors.NewNotFoundError(err)
	default:
		return myerrors.NewInternalError(err)
	}
}
