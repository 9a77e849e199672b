package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// ErrSaveFailed is returned when the simulated store rejects a write.
var ErrSaveFailed = errors.New("database save failed")

// Store persists orders.
type Store interface {
	Save(ctx context.Context, order Order) error
}

// SimulatedStore stands in for a database: every save waits for a fixed
// delay and fails with a fixed probability.
type SimulatedStore struct {
	clock       clockz.Clock
	random      Rand
	logger      *zap.Logger
	delay       time.Duration
	failureRate float64
}

// StoreOption configures a SimulatedStore.
type StoreOption func(*SimulatedStore)

// WithStoreClock sets the clock the save delay is measured on.
func WithStoreClock(clock clockz.Clock) StoreOption {
	return func(s *SimulatedStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithStoreRand sets the source failures are drawn from.
func WithStoreRand(r Rand) StoreOption {
	return func(s *SimulatedStore) {
		if r != nil {
			s.random = r
		}
	}
}

// WithStoreLogger sets the store's logger.
func WithStoreLogger(logger *zap.Logger) StoreOption {
	return func(s *SimulatedStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSimulatedStore creates a store with the given delay and failure rate.
// failureRate is clamped to [0, 1].
func NewSimulatedStore(delay time.Duration, failureRate float64, opts ...StoreOption) *SimulatedStore {
	switch {
	case failureRate < 0:
		failureRate = 0
	case failureRate > 1:
		failureRate = 1
	}
	s := &SimulatedStore{
		clock:       clockz.RealClock,
		random:      globalRand{},
		logger:      zap.NewNop(),
		delay:       delay,
		failureRate: failureRate,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save waits out the delay, then succeeds or fails at random.
func (s *SimulatedStore) Save(ctx context.Context, order Order) error {
	if s.delay > 0 {
		select {
		case <-s.clock.After(s.delay):
		case <-ctx.Done():
			return fmt.Errorf("save order %s: %w", order.ID, ctx.Err())
		}
	}

	if s.random.Float64() < s.failureRate {
		s.logger.Warn("order save failed", zap.String("order_id", order.ID))
		return fmt.Errorf("save order %s: %w", order.ID, ErrSaveFailed)
	}

	s.logger.Debug("order saved", zap.String("order_id", order.ID))
	return nil
}
