package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryAckRepository keeps acknowledgements in process memory. Used as
// the failover target when Redis is down and as the sole store in tests
// and single-node setups.
type MemoryAckRepository struct {
	acks sync.Map
}

func NewMemoryAckRepository() *MemoryAckRepository {
	return &MemoryAckRepository{}
}

func (r *MemoryAckRepository) Acknowledge(ctx context.Context, alertID string, at time.Time) error {
	r.acks.LoadOrStore(alertID, at)
	return nil
}

func (r *MemoryAckRepository) AcknowledgedAt(ctx context.Context, alertID string) (*time.Time, error) {
	val, ok := r.acks.Load(alertID)
	if !ok {
		return nil, nil
	}
	at := val.(time.Time)
	return &at, nil
}
