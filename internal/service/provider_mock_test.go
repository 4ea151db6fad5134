package service

import (
	"context"
	"sync/atomic"

	"github.com/you/go-jobsity-booking/internal/providers"
)

// ProviderMock is a scripted FlightSearcher for tests.
type ProviderMock struct {
	response  providers.SearchResponse
	err       error
	callCount *int32
	last      *providers.SearchCriteria
}

func (p ProviderMock) SearchFlights(ctx context.Context, c providers.SearchCriteria) (providers.SearchResponse, error) {
	if p.callCount != nil {
		atomic.AddInt32(p.callCount, 1)
	}
	if p.last != nil {
		*p.last = c
	}
	if p.err != nil {
		return providers.SearchResponse{}, p.err
	}
	if err := ctx.Err(); err != nil {
		return providers.SearchResponse{}, err
	}
	return p.response, nil
}
