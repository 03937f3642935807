package store

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RunJanitor removes crops older than ttl every interval until ctx is done.
// A zero ttl or interval disables expiry and returns immediately.
func RunJanitor(ctx context.Context, s Store, ttl, interval time.Duration, log zerolog.Logger) {
	if ttl <= 0 || interval <= 0 {
		log.Debug().Msg("Signature crop expiry disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		sweep(ctx, s, ttl, log)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func sweep(ctx context.Context, s Store, ttl time.Duration, log zerolog.Logger) {
	removed, err := s.Cleanup(ctx, time.Now().Add(-ttl))
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Msg("Signature crop cleanup failed")
		}
		return
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Dur("ttl", ttl).Msg("Expired signature crops removed")
	}
}
