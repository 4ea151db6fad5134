package httpx

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/go-jobsity-booking/internal/booking"
	"github.com/you/go-jobsity-booking/internal/providers"
	"github.com/you/go-jobsity-booking/internal/service"
)

type stubSearcher struct {
	resp providers.SearchResponse
	err  error
}

func (s stubSearcher) SearchFlights(context.Context, providers.SearchCriteria) (providers.SearchResponse, error) {
	return s.resp, s.err
}

type stubNotifier struct {
	to  []string
	err error
}

func (n *stubNotifier) Send(_ context.Context, to, _, _ string) error {
	n.to = append(n.to, to)
	return n.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func offer(id, price string) providers.FlightOffer {
	return providers.FlightOffer{
		ID:    id,
		Price: providers.Price{Currency: "EUR", GrandTotal: price},
		Itineraries: []providers.Itinerary{{
			Duration: "PT10H",
			Segments: []providers.Segment{{
				Departure:   providers.Endpoint{IATACode: "LIS", At: "2025-06-01T10:00:00"},
				Arrival:     providers.Endpoint{IATACode: "JFK"},
				CarrierCode: "TP",
				Aircraft:    providers.Aircraft{Code: "332"},
				Duration:    "PT10H",
			}},
		}},
	}
}

func newMux(searcher providers.FlightSearcher, notifier service.Notifier) (*http.ServeMux, *service.SearchService) {
	search := service.NewSearchService(searcher, 0, discardLogger())
	svc := service.NewBookingService(search, notifier, providers.FallbackDestinations(), discardLogger())
	mux := http.NewServeMux()
	Routes(mux, svc, discardLogger())
	return mux, search
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, rd))
	var out map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), "body of %s %s", method, path)
	return rec.Code, out
}

func state(out map[string]any) string {
	s, _ := out["session"].(map[string]any)
	st, _ := s["state"].(string)
	return st
}

const searchBody = `{"origin":"LIS","destination":"JFK","departure_date":"2025-06-01","return_date":"2025-06-10","passengers":2}`

func TestBookingFlowOverHTTP(t *testing.T) {
	notifier := &stubNotifier{}
	mux, _ := newMux(stubSearcher{resp: providers.SearchResponse{Offers: []providers.FlightOffer{
		offer("1", "500.00"), offer("2", "450.00"), offer("3", "500.00"),
	}}}, notifier)

	code, out := do(t, mux, http.MethodGet, "/booking", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, out = do(t, mux, http.MethodPost, "/flights/search", searchBody)
	require.Equal(t, http.StatusOK, code, out)
	assert.Len(t, out["offers"], 2)
	assert.Equal(t, "searching", state(out))

	code, out = do(t, mux, http.MethodGet, "/flights", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out["offers"], 2)

	code, _ = do(t, mux, http.MethodPost, "/booking/seats", `{"seats":["12A","12B"]}`)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = do(t, mux, http.MethodPost, "/booking/flight", `{"index":5}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, out = do(t, mux, http.MethodPost, "/booking/flight", `{"index":1}`)
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, "flight_selected", state(out))

	code, out = do(t, mux, http.MethodPost, "/booking/seats", `{"seats":["12A"]}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, out["error"], "cannot proceed")

	code, out = do(t, mux, http.MethodPost, "/booking/seats", `{"seats":["12A","12B"]}`)
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, "seats_confirmed", state(out))

	code, _ = do(t, mux, http.MethodPost, "/booking/passengers",
		`{"passengers":[{"first_name":"Ana","last_name":"Silva","email":"nope"},{"first_name":"Rui","last_name":"Costa","email":"rui@example.com"}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, out = do(t, mux, http.MethodPost, "/booking/passengers",
		`{"passengers":[{"first_name":"Ana","last_name":"Silva","email":"ana@example.com"},{"first_name":"Rui","last_name":"Costa","email":"rui@example.com"}]}`)
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, "passenger_info_collected", state(out))

	code, out = do(t, mux, http.MethodPost, "/booking/complete", "")
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, "complete", state(out))
	assert.Nil(t, out["warning"])
	assert.Equal(t, []string{"ana@example.com"}, notifier.to)

	code, out = do(t, mux, http.MethodPost, "/booking/reset", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "searching", state(out))
}

func TestCompleteWithMailFailureWarns(t *testing.T) {
	notifier := &stubNotifier{err: errors.New("smtp down")}
	mux, _ := newMux(stubSearcher{resp: providers.SearchResponse{Offers: []providers.FlightOffer{offer("1", "1.00")}}}, notifier)

	steps := []struct{ path, body string }{
		{"/flights/search", strings.Replace(searchBody, `"passengers":2`, `"passengers":1`, 1)},
		{"/booking/flight", `{"index":1}`},
		{"/booking/seats", `{"seats":["1A"]}`},
		{"/booking/passengers", `{"passengers":[{"first_name":"Ana","last_name":"Silva","email":"ana@example.com"}]}`},
	}
	for _, s := range steps {
		code, out := do(t, mux, http.MethodPost, s.path, s.body)
		require.Equal(t, http.StatusOK, code, "%s: %v", s.path, out)
	}

	code, out := do(t, mux, http.MethodPost, "/booking/complete", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "complete", state(out))
	assert.Contains(t, out["warning"], "smtp down")
}

func TestSearchErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		body string
		want int
	}{
		{"bad json", nil, `{"origin":`, http.StatusBadRequest},
		{"unknown field", nil, `{"from":"LIS"}`, http.StatusBadRequest},
		{"invalid criteria", nil, `{"origin":"LIS","destination":"LIS","departure_date":"2025-06-01","return_date":"2025-06-10","passengers":1}`, http.StatusBadRequest},
		{"auth", errors.Mark(errors.New("401"), providers.ErrAuth), searchBody, http.StatusBadGateway},
		{"network", errors.Mark(errors.New("dial"), providers.ErrNetwork), searchBody, http.StatusGatewayTimeout},
		{"search", errors.Mark(errors.New("400"), providers.ErrSearch), searchBody, http.StatusBadGateway},
		{"format", errors.Mark(errors.New("json"), providers.ErrDataFormat), searchBody, http.StatusBadGateway},
		{"other", errors.New("boom"), searchBody, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux, _ := newMux(stubSearcher{err: tc.err}, &stubNotifier{})
			code, out := do(t, mux, http.MethodPost, "/flights/search", tc.body)
			assert.Equal(t, tc.want, code, out)
			assert.NotEmpty(t, out["error"])
		})
	}
}

func TestStatusFor_SessionErrors(t *testing.T) {
	for _, err := range []error{
		booking.ErrInvalidTransition,
		errors.Wrap(booking.ErrSeatCountMismatch, "got 1"),
		booking.ErrPassengerCountMismatch,
	} {
		code, msg := statusFor(err)
		assert.Equal(t, http.StatusConflict, code)
		assert.True(t, strings.HasPrefix(msg, "cannot proceed"))
	}
}

func TestDestinations(t *testing.T) {
	mux, _ := newMux(stubSearcher{}, &stubNotifier{})
	code, out := do(t, mux, http.MethodGet, "/destinations", "")
	require.Equal(t, http.StatusOK, code)
	list := out["destinations"].([]any)
	require.Len(t, list, 3)
	assert.Equal(t, "LIS - Lisbon", list[0].(map[string]any)["label"])
}

func TestWatchHandler(t *testing.T) {
	_, search := newMux(stubSearcher{resp: providers.SearchResponse{Offers: []providers.FlightOffer{offer("1", "500.00")}}}, &stubNotifier{})
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/{origin}/{destination}", WatchHandler(search, 20*time.Millisecond, []string{"*"}, discardLogger()))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/lis/jfk?departure=2025-06-01&return=2025-06-10&passengers=2"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 2; i++ {
		var upd watchUpdate
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, conn.ReadJSON(&upd))
		assert.Equal(t, "LIS", upd.Criteria.Origin)
		require.Len(t, upd.Offers, 1)
		assert.Equal(t, "500.00", upd.Offers[0].Price)
	}
}

func TestWatchHandler_RejectsBadCriteria(t *testing.T) {
	_, search := newMux(stubSearcher{}, &stubNotifier{})
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/{origin}/{destination}", WatchHandler(search, time.Second, []string{"*"}, discardLogger()))

	code, out := do(t, mux, http.MethodGet, "/ws/LIS/JFK?departure=2025-06-01", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.NotEmpty(t, out["error"])

	code, _ = do(t, mux, http.MethodGet, "/ws/LIS/JFK?departure=2025-06-01&return=2025-06-02&passengers=x", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestNewCORS(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	cases := []struct {
		name    string
		allowed []string
		origin  string
		want    string
	}{
		{"none configured", nil, "https://evil.example", ""},
		{"listed", []string{"https://book.example.com"}, "https://book.example.com", "https://book.example.com"},
		{"not listed", []string{"https://book.example.com"}, "https://evil.example", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/destinations", nil)
			req.Header.Set("Origin", tc.origin)
			rec := httptest.NewRecorder()
			NewCORS(tc.allowed).Handler(ok).ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
		})
	}
}

func TestUpgraderCheckOrigin(t *testing.T) {
	check := newUpgrader(nil).CheckOrigin

	req := httptest.NewRequest(http.MethodGet, "http://book.example.com/ws/LIS/JFK", nil)
	assert.True(t, check(req), "no origin header")

	req.Header.Set("Origin", "http://book.example.com")
	assert.True(t, check(req), "same host")

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))
	assert.True(t, newUpgrader([]string{"https://evil.example"}).CheckOrigin(req))
}
