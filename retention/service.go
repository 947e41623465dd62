// Package retention ages soft-deleted resources out of the store. The purge
// task runs on an interval, computes a cutoff per registered type from its
// resolved retention policy and removes rows in bounded batches. It is
// idempotent by construction: re-running over an already purged range removes
// nothing.
package retention

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/resourcedb/resourcedb"
	"github.com/resourcedb/resourcedb/backend"
	"github.com/resourcedb/resourcedb/typecache"
)

// Service is the background purge task.
type Service struct {
	config   Config
	log      *zap.Logger
	router   *backend.Router
	types    *typecache.Cache
	registry resourcedb.TypeRegistry

	clock   clock.Clock
	limiter *rate.Limiter

	wg   sync.WaitGroup
	done chan struct{}
}

// Option configures a Service.
type Option func(*Service)

// WithClock substitutes the wall clock for tests.
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// NewService returns a configured retention purge service.
func NewService(config Config, logger *zap.Logger, router *backend.Router, types *typecache.Cache, registry resourcedb.TypeRegistry, opts ...Option) *Service {
	s := &Service{
		config:   config.WithDefaults(),
		log:      logger,
		router:   router,
		types:    types,
		registry: registry,
		clock:    clock.New(),
		// pace batches so a large backlog cannot monopolize the store
		limiter: rate.NewLimiter(rate.Limit(10), 1),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open starts retention policy enforcement.
func (s *Service) Open() error {
	if !s.config.Enabled {
		return nil
	}

	s.log.Info("Starting retention purge service",
		zap.Duration("check_interval", time.Duration(s.config.CheckInterval)),
		zap.Int("batch_size", s.config.BatchSize))

	s.wg.Add(1)
	go s.run()
	return nil
}

// Close stops retention policy enforcement.
func (s *Service) Close() error {
	if !s.config.Enabled {
		return nil
	}
	close(s.done)
	s.wg.Wait()
	return nil
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := s.clock.Ticker(time.Duration(s.config.CheckInterval))
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.PurgeCycle(context.Background()); err != nil {
				s.log.Warn("retention purge cycle finished with errors", zap.Error(err))
			}
		}
	}
}

// PurgeCycle runs one full purge pass: every registered type, then the
// idempotency record sweep. A failing type or batch is logged and the cycle
// moves on; the accumulated errors come back to the caller.
func (s *Service) PurgeCycle(ctx context.Context) error {
	typeIDs, err := s.registry.ListTypes(ctx)
	if err != nil {
		return err
	}

	now := s.clock.Now().UTC()

	var errs error
	for _, typ := range typeIDs {
		if s.interrupted() {
			return errs
		}
		if err := s.purgeType(ctx, typ, now); err != nil {
			s.log.Warn("unable to purge type", zap.String("resource_type", typ), zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}

	for _, b := range s.router.Backends() {
		sweeper, ok := b.(backend.IdempotencySweeper)
		if !ok {
			continue
		}
		if err := s.sweep(ctx, sweeper, now); err != nil {
			s.log.Warn("unable to sweep idempotency records", zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

func (s *Service) purgeType(ctx context.Context, typ string, now time.Time) error {
	cfg, err := s.types.Config(ctx, typ)
	if err != nil {
		return err
	}

	days := s.config.DefaultRetentionDays
	if cfg.DeletedResourceRetentionDays != nil {
		days = *cfg.DeletedResourceRetentionDays
	}
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)

	b := s.router.For(resourcedb.TypePattern(typ))
	total := 0
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		n, err := b.PurgeDeletedBefore(ctx, typ, cutoff, s.config.BatchSize)
		if err != nil {
			// per-batch failures do not halt the cycle
			return err
		}
		total += n
		if n < s.config.BatchSize || s.interrupted() {
			break
		}
	}

	if total > 0 {
		s.log.Info("purged soft-deleted resources",
			zap.String("resource_type", typ),
			zap.Int("count", total),
			zap.Time("cutoff", cutoff))
	}
	return nil
}

func (s *Service) sweep(ctx context.Context, sweeper backend.IdempotencySweeper, now time.Time) error {
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		n, err := sweeper.SweepIdempotency(ctx, now, s.config.BatchSize)
		if err != nil {
			return err
		}
		if n < s.config.BatchSize || s.interrupted() {
			return nil
		}
	}
}

// interrupted reports whether Close was called. Checked only between batches;
// a batch in flight always completes.
func (s *Service) interrupted() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
