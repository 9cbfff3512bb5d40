package repository

import (
	"context"
	"sync/atomic"
	"time"

	"crewclock/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverAckRepository prefers the primary (Redis) and falls back to
// memory while it is down, retrying the primary after a minute.
// Acknowledgements written during an outage are lost on restart, which
// only means a supervisor may see an already-reviewed alert again.
type FailoverAckRepository struct {
	primary   domain.AckRepository
	fallback  domain.AckRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverAckRepository(primary, fallback domain.AckRepository, logger *zerolog.Logger) *FailoverAckRepository {
	return &FailoverAckRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverAckRepository) Acknowledge(ctx context.Context, alertID string, at time.Time) error {
	if !r.isDown.Load() {
		err := r.primary.Acknowledge(ctx, alertID, at)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	if r.shouldRetryPrimary() {
		if err := r.primary.Acknowledge(ctx, alertID, at); err == nil {
			r.isDown.Store(false)
			return nil
		}
		r.lastCheck.Store(time.Now().UnixNano())
	}

	return r.fallback.Acknowledge(ctx, alertID, at)
}

func (r *FailoverAckRepository) AcknowledgedAt(ctx context.Context, alertID string) (*time.Time, error) {
	if !r.isDown.Load() {
		at, err := r.primary.AcknowledgedAt(ctx, alertID)
		if err == nil {
			return at, nil
		}
		r.markDown(err)
	}

	if r.shouldRetryPrimary() {
		at, err := r.primary.AcknowledgedAt(ctx, alertID)
		if err == nil {
			r.isDown.Store(false)
			return at, nil
		}
		r.lastCheck.Store(time.Now().UnixNano())
	}

	return r.fallback.AcknowledgedAt(ctx, alertID)
}

func (r *FailoverAckRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary ack repository failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverAckRepository) shouldRetryPrimary() bool {
	return r.isDown.Load() && time.Since(time.Unix(0, r.lastCheck.Load())) > time.Minute
}
