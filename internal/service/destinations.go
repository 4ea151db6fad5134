package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/you/go-jobsity-booking/internal/providers"
)

type DestinationLister interface {
	GetDestinations(ctx context.Context) ([]providers.Destination, error)
}

// LoadDestinations asks the provider for destinations once, bounded by
// timeout. On failure the fallback set is returned so the lists stay usable.
func LoadDestinations(ctx context.Context, src DestinationLister, timeout time.Duration, logger *slog.Logger) []providers.Destination {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ds, err := src.GetDestinations(ctx)
	if err != nil {
		logger.Error("failed to fetch destinations, using fallback set", "error", err)
		return providers.FallbackDestinations()
	}
	logger.Info("destinations loaded", "count", len(ds))
	return ds
}
