package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/cockroachdb/errors"

	"github.com/you/go-jobsity-booking/internal/booking"
	"github.com/you/go-jobsity-booking/internal/offers"
	"github.com/you/go-jobsity-booking/internal/providers"
	"github.com/you/go-jobsity-booking/internal/service"
)

const maxBody = 1 << 20

type destinationView struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Label string `json:"label"`
}

type searchResponse struct {
	Criteria providers.SearchCriteria `json:"criteria"`
	Offers   []offers.View            `json:"offers"`
	Message  string                   `json:"message,omitempty"`
	Session  booking.Session          `json:"session"`
}

type sessionResponse struct {
	Session booking.Session `json:"session"`
	Warning string          `json:"warning,omitempty"`
}

type selectFlightRequest struct {
	Index int `json:"index"`
}

type seatsRequest struct {
	Seats []string `json:"seats"`
}

type passengersRequest struct {
	Passengers []booking.Passenger `json:"passengers"`
}

// Routes registers the booking flow on mux.
func Routes(mux *http.ServeMux, svc *service.BookingService, logger *slog.Logger) {
	mux.HandleFunc("GET /destinations", DestinationsHandler(svc))
	mux.HandleFunc("POST /flights/search", SearchHandler(svc, logger))
	mux.HandleFunc("GET /flights", ResultsHandler(svc, logger))
	mux.HandleFunc("GET /booking", SessionHandler(svc, logger))
	mux.HandleFunc("POST /booking/flight", SelectFlightHandler(svc, logger))
	mux.HandleFunc("POST /booking/seats", SeatsHandler(svc, logger))
	mux.HandleFunc("POST /booking/passengers", PassengersHandler(svc, logger))
	mux.HandleFunc("POST /booking/complete", CompleteHandler(svc, logger))
	mux.HandleFunc("POST /booking/reset", ResetHandler(svc, logger))
}

func DestinationsHandler(svc *service.BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ds := svc.Destinations()
		out := make([]destinationView, 0, len(ds))
		for _, d := range ds {
			out = append(out, destinationView{Code: d.Code, Name: d.Name, Label: d.String()})
		}
		writeJSON(w, http.StatusOK, map[string]any{"destinations": out})
	}
}

func SearchHandler(svc *service.BookingService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c providers.SearchCriteria
		if !decode(w, r, &c) {
			return
		}
		res, s, err := svc.Search(r.Context(), c)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		resp := searchResponse{Criteria: res.Criteria, Offers: res.Views, Session: s}
		if len(res.Views) == 0 {
			resp.Message = "No flights were found for the selected criteria."
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func ResultsHandler(svc *service.BookingService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.Results()
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"criteria": res.Criteria, "offers": res.Views})
	}
}

func SessionHandler(svc *service.BookingService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := svc.Session()
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse{Session: s})
	}
}

func SelectFlightHandler(svc *service.BookingService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req selectFlightRequest
		if !decode(w, r, &req) {
			return
		}
		respond(w, logger)(svc.SelectFlight(req.Index))
	}
}

func SeatsHandler(svc *service.BookingService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req seatsRequest
		if !decode(w, r, &req) {
			return
		}
		respond(w, logger)(svc.ConfirmSeats(req.Seats))
	}
}

func PassengersHandler(svc *service.BookingService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req passengersRequest
		if !decode(w, r, &req) {
			return
		}
		respond(w, logger)(svc.SubmitPassengers(req.Passengers))
	}
}

func CompleteHandler(svc *service.BookingService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := svc.Complete(r.Context())
		if errors.Is(err, service.ErrNotification) {
			writeJSON(w, http.StatusOK, sessionResponse{Session: s, Warning: err.Error()})
			return
		}
		respond(w, logger)(s, err)
	}
}

func ResetHandler(svc *service.BookingService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respond(w, logger)(svc.Reset())
	}
}

func respond(w http.ResponseWriter, logger *slog.Logger) func(booking.Session, error) {
	return func(s booking.Session, err error) {
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse{Session: s})
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad json: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps the error taxonomy onto HTTP. Session-facing errors are
// contract violations by the client and read as "cannot proceed".
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, providers.ErrInvalidCriteria):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrNoSession):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrUnknownOffer):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, booking.ErrInvalidSeat),
		errors.Is(err, booking.ErrInvalidPassenger):
		return http.StatusUnprocessableEntity, "cannot proceed: " + err.Error()
	case errors.Is(err, booking.ErrInvalidTransition),
		errors.Is(err, booking.ErrSeatCountMismatch),
		errors.Is(err, booking.ErrPassengerCountMismatch),
		errors.Is(err, booking.ErrInvalidPassengerCount):
		return http.StatusConflict, "cannot proceed: " + err.Error()
	case errors.Is(err, providers.ErrAuth):
		return http.StatusBadGateway, "flight provider authentication failed"
	case errors.Is(err, providers.ErrNetwork):
		return http.StatusGatewayTimeout, "flight provider unreachable"
	case errors.Is(err, providers.ErrSearch),
		errors.Is(err, providers.ErrDataFormat):
		return http.StatusBadGateway, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
