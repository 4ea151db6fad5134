package providers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sosodev/duration"
	"golang.org/x/sync/errgroup"

	"github.com/you/go-jobsity-booking/internal/config"
)

const maxErrorBody = 64 << 10

var _ FlightSearcher = (*Amadeus)(nil)

// Amadeus talks to the Amadeus self-service API. The bearer token is cached
// on the instance: absent until the first successful Authenticate, reused
// until it expires or a request comes back 401.
type Amadeus struct {
	host          string
	authPath      string
	searchPath    string
	locationsPath string
	client        *http.Client
	id            string
	secret        string
	maxResults    int
	keywords      []string
	pageLimit     int
	logger        *slog.Logger

	mu      sync.Mutex
	tok     string
	expires time.Time
}

func NewAmadeus(cfg *config.Config, logger *slog.Logger) *Amadeus {
	keywords := cfg.Keywords
	if len(keywords) == 0 {
		keywords = []string{"A"}
	}
	return &Amadeus{host: cfg.AmadeusURL,
		authPath:      "/v1/security/oauth2/token",
		searchPath:    "/v2/shopping/flight-offers",
		locationsPath: "/v1/reference-data/locations",
		id:            cfg.AmadeusID,
		secret:        cfg.AmadeusKey,
		maxResults:    cfg.MaxResults,
		keywords:      keywords,
		pageLimit:     cfg.PageLimit,
		client:        &http.Client{Timeout: cfg.HTTPTimeout},
		logger:        logger,
	}
}

// Authenticate exchanges the client credentials for a bearer token.
func (a *Amadeus) Authenticate(ctx context.Context) error {
	if a.id == "" || a.secret == "" {
		return errors.Mark(errors.New("amadeus credentials missing"), ErrAuth)
	}
	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", a.id)
	data.Set("client_secret", a.secret)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.host+a.authPath, strings.NewReader(data.Encode()))
	if err != nil {
		return errors.Wrap(err, "amadeus token: build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := a.client.Do(req)
	if err != nil {
		return networkError(err, "amadeus token")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.Mark(statusError("amadeus token", resp), ErrAuth)
	}
	var tr struct {
		AccessToken string `json:"access_token" validate:"required"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return formatError(err, "amadeus token")
	}
	if err := validate.Struct(tr); err != nil {
		return formatError(err, "amadeus token")
	}

	a.mu.Lock()
	a.tok = tr.AccessToken
	a.expires = time.Time{}
	if tr.ExpiresIn > 0 {
		a.expires = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	a.mu.Unlock()

	a.logger.Debug("amadeus token acquired", "expires_in", tr.ExpiresIn)
	return nil
}

func (a *Amadeus) cachedToken() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tok == "" {
		return "", false
	}
	if !a.expires.IsZero() && !time.Now().Before(a.expires.Add(-10*time.Second)) {
		return "", false
	}
	return a.tok, true
}

func (a *Amadeus) token(ctx context.Context) (string, error) {
	if tok, ok := a.cachedToken(); ok {
		return tok, nil
	}
	if err := a.Authenticate(ctx); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tok, nil
}

func (a *Amadeus) dropToken() {
	a.mu.Lock()
	a.tok = ""
	a.expires = time.Time{}
	a.mu.Unlock()
}

// SearchFlights queries flight offers for the criteria. Criteria are expected
// to be validated by the caller.
func (a *Amadeus) SearchFlights(ctx context.Context, c SearchCriteria) (SearchResponse, error) {
	q := url.Values{}
	q.Set("originLocationCode", c.Origin)
	q.Set("destinationLocationCode", c.Destination)
	q.Set("departureDate", c.DepartureDate)
	q.Set("returnDate", c.ReturnDate)
	q.Set("adults", strconv.Itoa(c.Passengers))
	q.Set("max", strconv.Itoa(a.maxResults))

	var out SearchResponse
	if err := a.get(ctx, "amadeus search", a.searchPath, q, ErrSearch, &out); err != nil {
		return SearchResponse{}, err
	}
	a.logger.Debug("amadeus search done", "criteria", c.Key(), "offers", len(out.Offers))
	return out, nil
}

type locationsResponse struct {
	Data *[]struct {
		IATACode string `json:"iataCode"`
		Name     string `json:"name"`
		SubType  string `json:"subType"`
	} `json:"data" validate:"required"`
}

// GetDestinations lists airports and cities for the configured keywords,
// always including the fallback set, sorted by code without duplicates.
func (a *Amadeus) GetDestinations(ctx context.Context) ([]Destination, error) {
	var mu sync.Mutex
	var found []Destination
	g, gctx := errgroup.WithContext(ctx)

	for _, kw := range a.keywords {
		g.Go(func() error {
			q := url.Values{}
			q.Set("subType", "AIRPORT,CITY")
			q.Set("keyword", kw)
			q.Set("page[limit]", strconv.Itoa(a.pageLimit))

			var lr locationsResponse
			if err := a.get(gctx, "amadeus locations", a.locationsPath, q, ErrNetwork, &lr); err != nil {
				return err
			}
			ds := make([]Destination, 0, len(*lr.Data))
			for _, loc := range *lr.Data {
				if loc.IATACode == "" || loc.Name == "" {
					continue
				}
				ds = append(ds, Destination{Code: loc.IATACode, Name: loc.Name})
			}
			mu.Lock()
			found = append(found, ds...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return MergeDestinations(found, FallbackDestinations()), nil
}

// FallbackDestinations keeps the origin/destination lists usable when the
// provider returns nothing useful.
func FallbackDestinations() []Destination {
	return []Destination{
		{Code: "LIS", Name: "Lisbon"},
		{Code: "OPO", Name: "Porto"},
		{Code: "FNC", Name: "Funchal"},
	}
}

// MergeDestinations unions the lists by code; the first name seen for a code
// wins. The result is sorted by code.
func MergeDestinations(lists ...[]Destination) []Destination {
	seen := make(map[string]struct{})
	var out []Destination
	for _, list := range lists {
		for _, d := range list {
			if _, ok := seen[d.Code]; ok {
				continue
			}
			seen[d.Code] = struct{}{}
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// get performs an authenticated GET and decodes a validated JSON body into
// out. Non-2xx responses other than 401 are marked with rejected.
func (a *Amadeus) get(ctx context.Context, op, path string, q url.Values, rejected error, out any) error {
	tok, err := a.token(ctx)
	if err != nil {
		return err
	}

	u := a.host + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.Wrapf(err, "%s: build request", op)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return networkError(err, op)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		a.dropToken()
		return errors.Mark(statusError(op, resp), ErrAuth)
	case resp.StatusCode >= 300:
		return errors.Mark(statusError(op, resp), rejected)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return formatError(err, op)
	}
	if err := validate.Struct(out); err != nil {
		return formatError(err, op)
	}
	return nil
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// ParseDuration parses ISO-8601 durations such as PT2H10M or P1DT2H.
func ParseDuration(s string) (time.Duration, error) {
	d, err := duration.Parse(s)
	if err != nil {
		return 0, errors.Wrapf(err, "parse duration %q", s)
	}
	return d.ToTimeDuration(), nil
}

// DurationMinutes is ParseDuration in whole minutes, 0 when s is not a
// valid duration.
func DurationMinutes(s string) int {
	d, err := ParseDuration(s)
	if err != nil {
		return 0
	}
	return int(d.Minutes())
}
