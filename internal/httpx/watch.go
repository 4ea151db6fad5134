package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/you/go-jobsity-booking/internal/offers"
	"github.com/you/go-jobsity-booking/internal/providers"
	"github.com/you/go-jobsity-booking/internal/service"
)

type watchUpdate struct {
	Criteria providers.SearchCriteria `json:"criteria"`
	Offers   []offers.View            `json:"offers"`
	At       time.Time                `json:"at"`
}

// NewCORS allows the listed front-end origins to call the API. With no
// origins configured cross-origin requests are refused.
func NewCORS(origins []string) *cors.Cors {
	opts := cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}
	if len(origins) == 0 {
		opts.AllowOriginFunc = func(string) bool { return false }
	}
	return cors.New(opts)
}

func newUpgrader(origins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || slices.Contains(origins, "*") || slices.Contains(origins, origin) {
				return true
			}
			u, err := url.Parse(origin)
			return err == nil && strings.EqualFold(u.Host, r.Host)
		},
	}
}

// WatchHandler streams fresh offers for a route over a websocket every
// interval until the client goes away or the search fails:
// /ws/{origin}/{destination}?departure=YYYY-MM-DD&return=YYYY-MM-DD&passengers=N
func WatchHandler(svc *service.SearchService, every time.Duration, origins []string, logger *slog.Logger) http.HandlerFunc {
	upgrader := newUpgrader(origins)
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		passengers := 1
		if p := q.Get("passengers"); p != "" {
			n, err := strconv.Atoi(p)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "passengers must be a number"})
				return
			}
			passengers = n
		}
		c := providers.SearchCriteria{
			Origin:        r.PathValue("origin"),
			Destination:   r.PathValue("destination"),
			DepartureDate: q.Get("departure"),
			ReturnDate:    q.Get("return"),
			Passengers:    passengers,
		}.Normalize()
		if err := c.Validate(); err != nil {
			writeError(w, logger, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		// A hijacked connection does not cancel r.Context(); the read loop
		// notices the client going away.
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			res, err := svc.Search(ctx, c)
			if err != nil {
				_, msg := statusFor(err)
				_ = conn.WriteJSON(map[string]string{"error": msg})
				return
			}
			if err := conn.WriteJSON(watchUpdate{Criteria: res.Criteria, Offers: res.Views, At: time.Now().UTC()}); err != nil {
				logger.Debug("websocket write failed", "error", err)
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}
}
