package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/you/go-jobsity-booking/internal/booking"
	"github.com/you/go-jobsity-booking/internal/offers"
	"github.com/you/go-jobsity-booking/internal/providers"
)

var (
	ErrNoSession    = errors.New("no booking in progress")
	ErrUnknownOffer = errors.New("no such offer in the last search")
	ErrNotification = errors.New("booking confirmation could not be sent")
)

type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// BookingService drives the single active booking. The HTTP server calls it
// from many goroutines, so access to the session goes through mu; the
// session itself never locks.
type BookingService struct {
	search       *SearchService
	notifier     Notifier
	destinations []providers.Destination
	logger       *slog.Logger

	mu      sync.Mutex
	session *booking.Session
	result  SearchResult
}

func NewBookingService(search *SearchService, notifier Notifier, destinations []providers.Destination, logger *slog.Logger) *BookingService {
	return &BookingService{
		search:       search,
		notifier:     notifier,
		destinations: destinations,
		logger:       logger,
	}
}

func (b *BookingService) Destinations() []providers.Destination {
	return append([]providers.Destination(nil), b.destinations...)
}

// Search runs a flight search and starts a fresh session for its
// passenger count. A failed search keeps the previous session.
func (b *BookingService) Search(ctx context.Context, c providers.SearchCriteria) (SearchResult, booking.Session, error) {
	res, err := b.search.Search(ctx, c)
	if err != nil {
		return SearchResult{}, booking.Session{}, err
	}
	s, err := booking.New(res.Criteria.Passengers)
	if err != nil {
		return SearchResult{}, booking.Session{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.session = s
	b.result = res
	b.logger.Info("booking session started", "session", s.ID, "passengers", s.Passengers, "offers", len(res.Offers))
	return res, s.Snapshot(), nil
}

// Results returns the offers the current session was started from.
func (b *BookingService) Results() (SearchResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return SearchResult{}, ErrNoSession
	}
	return b.result, nil
}

func (b *BookingService) Session() (booking.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return booking.Session{}, ErrNoSession
	}
	return b.session.Snapshot(), nil
}

// SelectFlight picks an offer by its 1-based display number.
func (b *BookingService) SelectFlight(number int) (booking.Session, error) {
	return b.transition("select flight", func(s *booking.Session) error {
		if number < 1 || number > len(b.result.Offers) {
			return errors.Wrapf(ErrUnknownOffer, "offer %d of %d", number, len(b.result.Offers))
		}
		return s.SelectFlight(b.result.Offers[number-1])
	})
}

func (b *BookingService) ConfirmSeats(seatIDs []string) (booking.Session, error) {
	return b.transition("confirm seats", func(s *booking.Session) error {
		return s.ConfirmSeats(seatIDs)
	})
}

func (b *BookingService) SubmitPassengers(records []booking.Passenger) (booking.Session, error) {
	return b.transition("collect passenger info", func(s *booking.Session) error {
		return s.CollectPassengerInfo(records)
	})
}

// Complete finalizes the booking and mails the lead passenger. A mail
// failure is reported as ErrNotification; the booking stays complete.
func (b *BookingService) Complete(ctx context.Context) (booking.Session, error) {
	var dicts providers.Dictionaries
	snap, err := b.transition("complete", func(s *booking.Session) error {
		dicts = b.result.Dictionaries
		return s.Complete()
	})
	if err != nil {
		return snap, err
	}

	lead, ok := snap.LeadPassenger()
	if !ok {
		return snap, nil
	}
	subject := "Flight booking confirmed - " + snap.Reference
	if err := b.notifier.Send(ctx, lead.Email, subject, confirmationBody(snap, dicts)); err != nil {
		b.logger.Error("booking confirmation email failed", "session", snap.ID, "error", err)
		return snap, errors.Mark(errors.Wrap(err, "confirmation email"), ErrNotification)
	}
	return snap, nil
}

func (b *BookingService) Reset() (booking.Session, error) {
	return b.transition("reset", func(s *booking.Session) error {
		s.Reset()
		return nil
	})
}

func (b *BookingService) transition(op string, fn func(*booking.Session) error) (booking.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return booking.Session{}, ErrNoSession
	}
	if err := fn(b.session); err != nil {
		b.logger.Warn("booking transition rejected", "op", op, "session", b.session.ID, "state", b.session.State, "error", err)
		return b.session.Snapshot(), err
	}
	b.logger.Info("booking transition", "op", op, "session", b.session.ID, "state", b.session.State)
	return b.session.Snapshot(), nil
}

func confirmationBody(s booking.Session, dicts providers.Dictionaries) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Your booking %s is confirmed.\n\n", s.Reference)
	if s.Flight != nil {
		v := offers.Describe(*s.Flight, dicts)
		fmt.Fprintf(&sb, "Total price: %s %s\n", v.Price, v.Currency)
		fmt.Fprintf(&sb, "Duration: %s\n", v.Duration)
		fmt.Fprintf(&sb, "Stops: %d\n\n", v.Stops)
		for _, seg := range v.Segments {
			fmt.Fprintf(&sb, "  - %s to %s, %s %s, departs %s\n", seg.From, seg.To, seg.Airline, seg.FlightNo, seg.DepartureAt)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Passengers:\n")
	for i, p := range s.Travelers {
		seat := ""
		if i < len(s.Seats) {
			seat = s.Seats[i]
		}
		fmt.Fprintf(&sb, "  %d. %s %s, seat %s\n", i+1, p.FirstName, p.LastName, seat)
	}
	return sb.String()
}
