package sweeper

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"botrelay/internal/model"
	"botrelay/internal/registry"
	"botrelay/internal/relay"
)

const DefaultInterval = 60 * time.Second

// Sender delivers commands to the worker.
type Sender interface {
	Send(cmd relay.Command) error
}

// Sweeper demotes authorized sessions whose expiry has passed and tells the
// worker to stop them.
type Sweeper struct {
	registry *registry.Registry
	sender   Sender
	interval time.Duration
	now      func() time.Time
}

type Options struct {
	Interval time.Duration
	// Now defaults to the registry's clock.
	Now func() time.Time
}

func New(r *registry.Registry, sender Sender, opts Options) *Sweeper {
	s := &Sweeper{registry: r, sender: sender, interval: opts.Interval, now: opts.Now}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.now == nil {
		s.now = r.Now
	}
	return s
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				log.Error().Err(err).Str("component", "sweeper").Msg("sweep failed")
			}
		}
	}
}

// Sweep runs one pass and returns the ids it expired. A failed stop for one
// session is logged and does not affect the rest.
func (s *Sweeper) Sweep(ctx context.Context) ([]string, error) {
	now := s.now()
	candidates, err := s.registry.ListExpired(ctx, now)
	if err != nil {
		return nil, errors.Wrap(err, "list expired sessions")
	}

	expired := make([]string, 0, len(candidates))
	for _, cand := range candidates {
		logger := log.With().Str("component", "sweeper").Str("session_id", cand.ID).Logger()

		_, changed, err := s.registry.Expire(ctx, cand.ID, now)
		if err != nil {
			if !errors.Is(err, model.ErrNotFound) {
				logger.Error().Err(err).Msg("expire failed")
			}
			continue
		}
		if !changed {
			continue
		}
		expired = append(expired, cand.ID)
		logger.Info().Msg("session expired")

		if err := s.sender.Send(relay.StopBot{SessionID: cand.ID}); err != nil {
			logger.Warn().Err(err).Msg("stop command not delivered")
		}
	}
	return expired, nil
}
