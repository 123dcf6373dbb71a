// Package location captures a best-effort device position for a
// transaction being confirmed. Capture is two-phase: a cached position
// is used when one exists, otherwise a single bounded fresh request is
// made. The result only ever races to fill an optional field; nothing
// in the pipeline waits for it.
package location

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"mpesa-capture/internal/domain"
)

// FreshFixTimeout bounds the fresh-position request of the second phase.
const FreshFixTimeout = 5 * time.Second

// Provider supplies device positions.
type Provider interface {
	// LastKnown returns a cached position immediately, if one exists.
	LastKnown() (domain.Location, bool)

	// Acquire obtains exactly one fresh position, honoring ctx for
	// cancellation and deadline.
	Acquire(ctx context.Context) (domain.Location, error)
}

// Capture runs the two-phase policy and hands the first position
// obtained to apply. It returns without calling apply when no position
// could be captured before ctx or the fresh-fix timeout expired.
// Callers that must not block run Capture on its own goroutine.
func Capture(ctx context.Context, p Provider, timeout time.Duration, apply func(domain.Location), log zerolog.Logger) {
	if loc, ok := p.LastKnown(); ok {
		log.Debug().Float64("lat", loc.Latitude).Float64("lng", loc.Longitude).Msg("Using cached location")
		apply(loc)
		return
	}

	if timeout <= 0 {
		timeout = FreshFixTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	loc, err := p.Acquire(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("No location captured")
		return
	}
	log.Debug().Float64("lat", loc.Latitude).Float64("lng", loc.Longitude).Msg("Fresh location captured")
	apply(loc)
}
