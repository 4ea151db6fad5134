// Package offers collapses duplicate flight offers and turns them into the
// records the booking screens render.
package offers

import (
	"strings"

	"github.com/you/go-jobsity-booking/internal/providers"
)

const (
	UnknownAirline  = "Unknown Airline"
	UnknownAircraft = "Unknown Aircraft"
)

// Key identifies equivalent offers: same grand total, same first-itinerary
// duration and the same ordered airport pairs on that itinerary.
type Key struct {
	Price    string
	Duration string
	Route    string
}

func KeyOf(o providers.FlightOffer) Key {
	k := Key{Price: o.Price.GrandTotal}
	if len(o.Itineraries) == 0 {
		return k
	}
	first := o.Itineraries[0]
	k.Duration = first.Duration

	var b strings.Builder
	for i, s := range first.Segments {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(s.Departure.IATACode)
		b.WriteByte('>')
		b.WriteString(s.Arrival.IATACode)
	}
	k.Route = b.String()
	return k
}

// Dedupe keeps the first offer for each Key, in provider order.
func Dedupe(in []providers.FlightOffer) []providers.FlightOffer {
	seen := make(map[Key]struct{}, len(in))
	out := make([]providers.FlightOffer, 0, len(in))
	for _, o := range in {
		k := KeyOf(o)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, o)
	}
	return out
}

type Amenity struct {
	Name       string `json:"name"`
	Chargeable bool   `json:"chargeable"`
}

type SegmentView struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Airline     string `json:"airline"`
	Aircraft    string `json:"aircraft"`
	FlightNo    string `json:"flight_no,omitempty"`
	DepartureAt string `json:"departure_at"`
	Duration    string `json:"duration"`
	DurationMin int    `json:"duration_min"`
}

// View is the display record of one offer.
type View struct {
	Number      int           `json:"number"`
	OfferID     string        `json:"offer_id"`
	Price       string        `json:"price"`
	Currency    string        `json:"currency"`
	Duration    string        `json:"duration"`
	DurationMin int           `json:"duration_min"`
	Stops       int           `json:"stops"`
	CheckedBags int           `json:"checked_bags"`
	Amenities   []Amenity     `json:"amenities"`
	Segments    []SegmentView `json:"segments"`
}

// Describe builds the display record. Missing bags or amenities yield zero
// and an empty list; unknown codes resolve to placeholders.
func Describe(o providers.FlightOffer, dicts providers.Dictionaries) View {
	v := View{
		OfferID:   o.ID,
		Price:     o.Price.GrandTotal,
		Currency:  o.Price.Currency,
		Amenities: []Amenity{},
		Segments:  []SegmentView{},
	}

	if len(o.Itineraries) > 0 {
		first := o.Itineraries[0]
		v.Duration = first.Duration
		v.DurationMin = providers.DurationMinutes(first.Duration)
		if n := len(first.Segments); n > 0 {
			v.Stops = n - 1
		}
	}

	if len(o.TravelerPricings) > 0 && len(o.TravelerPricings[0].FareDetailsBySegment) > 0 {
		fare := o.TravelerPricings[0].FareDetailsBySegment[0]
		if fare.IncludedCheckedBags != nil {
			v.CheckedBags = fare.IncludedCheckedBags.Quantity
		}
		for _, a := range fare.Amenities {
			v.Amenities = append(v.Amenities, Amenity{Name: a.Description, Chargeable: a.IsChargeable})
		}
	}

	for _, it := range o.Itineraries {
		for _, s := range it.Segments {
			v.Segments = append(v.Segments, SegmentView{
				From:        s.Departure.IATACode,
				To:          s.Arrival.IATACode,
				Airline:     lookup(dicts.Carriers, s.CarrierCode, UnknownAirline),
				Aircraft:    lookup(dicts.Aircraft, s.Aircraft.Code, UnknownAircraft),
				FlightNo:    s.CarrierCode + s.Number,
				DepartureAt: s.Departure.At,
				Duration:    s.Duration,
				DurationMin: providers.DurationMinutes(s.Duration),
			})
		}
	}
	return v
}

// DescribeAll numbers the offers from 1 in the order given.
func DescribeAll(in []providers.FlightOffer, dicts providers.Dictionaries) []View {
	out := make([]View, 0, len(in))
	for i, o := range in {
		v := Describe(o, dicts)
		v.Number = i + 1
		out = append(out, v)
	}
	return out
}

func lookup(m map[string]string, code, fallback string) string {
	if name, ok := m[code]; ok && name != "" {
		return name
	}
	return fallback
}
