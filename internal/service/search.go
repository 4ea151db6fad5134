package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/you/go-jobsity-booking/internal/offers"
	"github.com/you/go-jobsity-booking/internal/providers"
)

type SearchResult struct {
	Criteria     providers.SearchCriteria `json:"criteria"`
	Views        []offers.View            `json:"offers"`
	Offers       []providers.FlightOffer  `json:"-"`
	Dictionaries providers.Dictionaries   `json:"-"`
}

type cacheEntry struct {
	value     SearchResult
	expiresAt time.Time
}

// SearchService validates criteria, queries the provider and normalizes the
// offers. Results are cached per criteria for cacheTTL; zero disables it.
type SearchService struct {
	searcher providers.FlightSearcher
	cache    map[string]cacheEntry
	mu       sync.RWMutex
	cacheTTL time.Duration
	logger   *slog.Logger
}

func NewSearchService(searcher providers.FlightSearcher, ttl time.Duration, logger *slog.Logger) *SearchService {
	return &SearchService{
		searcher: searcher,
		cache:    make(map[string]cacheEntry),
		cacheTTL: ttl,
		logger:   logger,
	}
}

func (s *SearchService) Search(ctx context.Context, c providers.SearchCriteria) (SearchResult, error) {
	c = c.Normalize()
	if err := c.Validate(); err != nil {
		return SearchResult{}, err
	}

	key := c.Key()
	s.mu.RLock()
	if ce, ok := s.cache[key]; ok && time.Now().Before(ce.expiresAt) {
		s.mu.RUnlock()
		s.logger.Debug("search cache hit", "criteria", key)
		return ce.value, nil
	}
	s.mu.RUnlock()

	resp, err := s.searcher.SearchFlights(ctx, c)
	if err != nil {
		s.logger.Warn("flight search failed", "criteria", key, "error", err)
		return SearchResult{}, err
	}

	unique := offers.Dedupe(resp.Offers)
	res := SearchResult{
		Criteria:     c,
		Views:        offers.DescribeAll(unique, resp.Dictionaries),
		Offers:       unique,
		Dictionaries: resp.Dictionaries,
	}
	s.logger.Info("flight search done", "criteria", key, "raw", len(resp.Offers), "unique", len(unique))

	if s.cacheTTL > 0 {
		s.store(key, res)
	}
	return res, nil
}

// store caches res and drops every entry that has already expired.
func (s *SearchService) store(key string, res SearchResult) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, ce := range s.cache {
		if !now.Before(ce.expiresAt) {
			delete(s.cache, k)
		}
	}
	s.cache[key] = cacheEntry{value: res, expiresAt: now.Add(s.cacheTTL)}
}
