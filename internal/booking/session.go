// Package booking holds the state of one in-progress booking and the rules
// for moving it from flight selection to a completed reservation.
package booking

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/you/go-jobsity-booking/internal/providers"
)

const (
	MinPassengers = 1
	MaxPassengers = 10
)

type State string

const (
	StateSearching              State = "searching"
	StateFlightSelected         State = "flight_selected"
	StateSeatsConfirmed         State = "seats_confirmed"
	StatePassengerInfoCollected State = "passenger_info_collected"
	StateComplete               State = "complete"
)

var (
	ErrInvalidTransition      = errors.New("invalid booking transition")
	ErrSeatCountMismatch      = errors.New("seat count does not match passenger count")
	ErrPassengerCountMismatch = errors.New("passenger record count does not match passenger count")
	ErrInvalidSeat            = errors.New("invalid seat selection")
	ErrInvalidPassenger       = errors.New("invalid passenger record")
	ErrInvalidPassengerCount  = errors.New("passenger count out of range")
)

var validate = validator.New()

type Passenger struct {
	FirstName      string `json:"first_name" validate:"required"`
	LastName       string `json:"last_name" validate:"required"`
	Email          string `json:"email" validate:"required,email"`
	DateOfBirth    string `json:"date_of_birth,omitempty" validate:"omitempty,datetime=2006-01-02"`
	DocumentNumber string `json:"document_number,omitempty"`
}

// Session is the booking in progress for one search. It is owned by a
// single caller and does no locking; a rejected transition leaves it
// unchanged.
type Session struct {
	ID         string                 `json:"id"`
	State      State                  `json:"state"`
	Passengers int                    `json:"passengers"`
	Flight     *providers.FlightOffer `json:"flight,omitempty"`
	Seats      []string               `json:"seats,omitempty"`
	Travelers  []Passenger            `json:"travelers,omitempty"`
	Reference  string                 `json:"reference,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

func New(passengers int) (*Session, error) {
	if passengers < MinPassengers || passengers > MaxPassengers {
		return nil, errors.Wrapf(ErrInvalidPassengerCount, "got %d, want %d..%d", passengers, MinPassengers, MaxPassengers)
	}
	return &Session{
		ID:         uuid.New().String(),
		State:      StateSearching,
		Passengers: passengers,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

func (s *Session) expect(op string, want State) error {
	if s.State != want {
		return errors.Wrapf(ErrInvalidTransition, "%s: session is %s, want %s", op, s.State, want)
	}
	return nil
}

func (s *Session) SelectFlight(offer providers.FlightOffer) error {
	if err := s.expect("select flight", StateSearching); err != nil {
		return err
	}
	s.Flight = &offer
	s.State = StateFlightSelected
	return nil
}

// ConfirmSeats stores one seat per passenger, in passenger order.
func (s *Session) ConfirmSeats(seatIDs []string) error {
	if err := s.expect("confirm seats", StateFlightSelected); err != nil {
		return err
	}
	if len(seatIDs) != s.Passengers {
		return errors.Wrapf(ErrSeatCountMismatch, "got %d seats for %d passengers", len(seatIDs), s.Passengers)
	}
	seats := make([]string, len(seatIDs))
	seen := make(map[string]struct{}, len(seatIDs))
	for i, id := range seatIDs {
		id = strings.ToUpper(strings.TrimSpace(id))
		if id == "" {
			return errors.Wrapf(ErrInvalidSeat, "seat %d is blank", i+1)
		}
		if _, dup := seen[id]; dup {
			return errors.Wrapf(ErrInvalidSeat, "seat %s selected twice", id)
		}
		seen[id] = struct{}{}
		seats[i] = id
	}
	s.Seats = seats
	s.State = StateSeatsConfirmed
	return nil
}

func (s *Session) CollectPassengerInfo(records []Passenger) error {
	if err := s.expect("collect passenger info", StateSeatsConfirmed); err != nil {
		return err
	}
	if len(records) != s.Passengers {
		return errors.Wrapf(ErrPassengerCountMismatch, "got %d records for %d passengers", len(records), s.Passengers)
	}
	for i, p := range records {
		if err := validate.Struct(p); err != nil {
			return errors.Mark(errors.Wrapf(err, "passenger %d", i+1), ErrInvalidPassenger)
		}
	}
	s.Travelers = append([]Passenger(nil), records...)
	s.State = StatePassengerInfoCollected
	return nil
}

// Complete finalizes the booking and assigns its reference.
func (s *Session) Complete() error {
	if err := s.expect("complete", StatePassengerInfoCollected); err != nil {
		return err
	}
	s.Reference = strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	s.State = StateComplete
	return nil
}

// Reset returns the session to searching with every selection cleared.
func (s *Session) Reset() {
	s.State = StateSearching
	s.Flight = nil
	s.Seats = nil
	s.Travelers = nil
	s.Reference = ""
}

// Snapshot returns a copy safe to hand to renderers.
func (s *Session) Snapshot() Session {
	c := *s
	if s.Flight != nil {
		f := *s.Flight
		c.Flight = &f
	}
	c.Seats = append([]string(nil), s.Seats...)
	c.Travelers = append([]Passenger(nil), s.Travelers...)
	return c
}

// LeadPassenger is the first passenger record, if collected.
func (s *Session) LeadPassenger() (Passenger, bool) {
	if len(s.Travelers) == 0 {
		return Passenger{}, false
	}
	return s.Travelers[0], true
}
