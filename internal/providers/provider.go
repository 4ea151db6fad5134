package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// SearchCriteria is what the user submits from the search form.
type SearchCriteria struct {
	Origin        string `json:"origin" validate:"required,len=3,alpha,uppercase"`
	Destination   string `json:"destination" validate:"required,len=3,alpha,uppercase,nefield=Origin"`
	DepartureDate string `json:"departure_date" validate:"required,datetime=2006-01-02"`
	ReturnDate    string `json:"return_date" validate:"required,datetime=2006-01-02"`
	Passengers    int    `json:"passengers" validate:"min=1,max=10"`
}

// Normalize upper-cases the location codes and trims whitespace.
func (c SearchCriteria) Normalize() SearchCriteria {
	c.Origin = strings.ToUpper(strings.TrimSpace(c.Origin))
	c.Destination = strings.ToUpper(strings.TrimSpace(c.Destination))
	c.DepartureDate = strings.TrimSpace(c.DepartureDate)
	c.ReturnDate = strings.TrimSpace(c.ReturnDate)
	return c
}

// Validate reports every problem with the criteria as ErrInvalidCriteria.
func (c SearchCriteria) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Mark(errors.Wrap(err, "search criteria"), ErrInvalidCriteria)
	}
	dep, _ := time.Parse(time.DateOnly, c.DepartureDate)
	ret, _ := time.Parse(time.DateOnly, c.ReturnDate)
	if ret.Before(dep) {
		return errors.Mark(
			errors.Newf("search criteria: return date %s is before departure date %s", c.ReturnDate, c.DepartureDate),
			ErrInvalidCriteria)
	}
	return nil
}

// Key identifies the criteria in caches and logs.
func (c SearchCriteria) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s|%d", c.Origin, c.Destination, c.DepartureDate, c.ReturnDate, c.Passengers)
}

type Destination struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

func (d Destination) String() string {
	return d.Code + " - " + d.Name
}

type Price struct {
	Currency   string `json:"currency" validate:"required"`
	Total      string `json:"total,omitempty"`
	GrandTotal string `json:"grandTotal" validate:"required"`
}

type Endpoint struct {
	IATACode string `json:"iataCode" validate:"required"`
	Terminal string `json:"terminal,omitempty"`
	At       string `json:"at,omitempty"`
}

type Aircraft struct {
	Code string `json:"code" validate:"required"`
}

type Segment struct {
	ID            string   `json:"id,omitempty"`
	Departure     Endpoint `json:"departure"`
	Arrival       Endpoint `json:"arrival"`
	CarrierCode   string   `json:"carrierCode" validate:"required"`
	Number        string   `json:"number,omitempty"`
	Aircraft      Aircraft `json:"aircraft"`
	Duration      string   `json:"duration" validate:"required"`
	NumberOfStops int      `json:"numberOfStops"`
}

type Itinerary struct {
	Duration string    `json:"duration" validate:"required"`
	Segments []Segment `json:"segments" validate:"required,min=1,dive"`
}

type CheckedBags struct {
	Quantity   int    `json:"quantity"`
	Weight     int    `json:"weight,omitempty"`
	WeightUnit string `json:"weightUnit,omitempty"`
}

type Amenity struct {
	Description  string `json:"description"`
	IsChargeable bool   `json:"isChargeable"`
	AmenityType  string `json:"amenityType,omitempty"`
}

type FareDetail struct {
	SegmentID           string       `json:"segmentId,omitempty"`
	Cabin               string       `json:"cabin,omitempty"`
	IncludedCheckedBags *CheckedBags `json:"includedCheckedBags,omitempty"`
	Amenities           []Amenity    `json:"amenities,omitempty"`
}

type TravelerPricing struct {
	TravelerID           string       `json:"travelerId,omitempty"`
	TravelerType         string       `json:"travelerType,omitempty"`
	FareDetailsBySegment []FareDetail `json:"fareDetailsBySegment"`
}

// FlightOffer is one priced proposal as returned by the provider. The
// validate tags list the fields the rest of the system relies on.
type FlightOffer struct {
	ID               string            `json:"id"`
	Price            Price             `json:"price"`
	Itineraries      []Itinerary       `json:"itineraries" validate:"required,min=1,dive"`
	TravelerPricings []TravelerPricing `json:"travelerPricings,omitempty"`
}

// Dictionaries are the lookup tables delivered alongside search results.
type Dictionaries struct {
	Carriers   map[string]string `json:"carriers,omitempty"`
	Aircraft   map[string]string `json:"aircraft,omitempty"`
	Currencies map[string]string `json:"currencies,omitempty"`
	Locations  map[string]struct {
		CityCode    string `json:"cityCode"`
		CountryCode string `json:"countryCode"`
	} `json:"locations,omitempty"`
}

type SearchResponse struct {
	Offers       []FlightOffer `json:"data" validate:"dive"`
	Dictionaries Dictionaries  `json:"dictionaries"`
}

// FlightSearcher is the part of the provider client the services need.
type FlightSearcher interface {
	SearchFlights(ctx context.Context, criteria SearchCriteria) (SearchResponse, error)
}
