package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"crewclock/internal/domain"
	"crewclock/internal/events"
	"crewclock/internal/metrics"
	"crewclock/internal/models"

	"github.com/rs/zerolog"
)

var (
	// ErrSyncInProgress means another pass holds the single-flight lock.
	// The dropped trigger is fine: the next transition or timer tick
	// picks up whatever is still unsynced.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrOffline means the device has no reachability; nothing was attempted.
	ErrOffline = errors.New("device is offline")
)

// Engine drains the local action queue against the company server.
// Replay is strictly sequential in enqueue order, which keeps a
// clock-out behind its clock-in and a break-end behind its break-start
// without any session bookkeeping.
type Engine struct {
	queue   domain.ActionQueue
	remote  domain.RemoteStore
	monitor domain.Monitor
	events  domain.EventPublisher
	logger  zerolog.Logger

	retryPolicy   RetryPolicy
	retryInterval time.Duration

	inFlight sync.Mutex

	mu           sync.Mutex
	lastSyncAt   time.Time
	remaining    int
	failedPasses int
}

// Option adjusts Engine construction.
type Option func(*Engine)

// WithRetryInterval overrides the periodic pass cadence.
func WithRetryInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.retryInterval = d
		}
	}
}

// WithRetryPolicy overrides the backoff applied after failing passes.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(e *Engine) { e.retryPolicy = p }
}

// WithEvents publishes sync lifecycle events for the UI layer.
func WithEvents(bus domain.EventPublisher) Option {
	return func(e *Engine) { e.events = bus }
}

// New builds an engine with sane defaults.
func New(queue domain.ActionQueue, remote domain.RemoteStore, monitor domain.Monitor, logger *zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		queue:         queue,
		remote:        remote,
		monitor:       monitor,
		events:        events.NewEventBus(),
		retryInterval: 30 * time.Second,
		retryPolicy:   RetryPolicy{InitialDelay: 30 * time.Second, MaxDelay: 5 * time.Minute, BackoffFactor: 2},
	}
	if logger != nil {
		e.logger = logger.With().Str("component", "sync").Logger()
	} else {
		e.logger = zerolog.Nop()
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Status reports the last pass time and the remaining unsynced count
// for the UI badge.
func (e *Engine) Status() (lastSyncAt time.Time, remaining int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSyncAt, e.remaining
}

// Start runs the engine until ctx is done: one startup pass when
// unsynced items exist, a pass on every online edge, and a periodic
// pass that backs off while the server keeps failing.
func (e *Engine) Start(ctx context.Context) {
	unsubscribe := e.monitor.Subscribe(func() {
		go e.trigger(ctx, "online")
	}, nil)
	defer unsubscribe()

	if n, err := e.queue.CountUnsynced(ctx); err == nil && n > 0 {
		e.trigger(ctx, "startup")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(e.nextInterval()):
			e.trigger(ctx, "timer")
		}
	}
}

func (e *Engine) nextInterval() time.Duration {
	e.mu.Lock()
	failures := e.failedPasses
	e.mu.Unlock()
	if failures == 0 {
		return e.retryInterval
	}
	return e.retryPolicy.NextDelay(failures)
}

func (e *Engine) trigger(ctx context.Context, trigger string) {
	metrics.IncSyncPass(trigger)
	if _, err := e.SyncToServer(ctx); err != nil {
		if errors.Is(err, ErrOffline) || errors.Is(err, ErrSyncInProgress) {
			e.logger.Debug().Str("trigger", trigger).Err(err).Msg("sync pass skipped")
			return
		}
		e.logger.Error().Str("trigger", trigger).Err(err).Msg("sync pass error")
	}
}

// SyncToServer runs one sync pass. At most one pass is in flight; a
// concurrent call returns ErrSyncInProgress rather than queueing. There
// is no mid-pass cancellation beyond ctx: a pass is bounded by queue
// size and in-flight remote calls cannot be un-sent anyway.
func (e *Engine) SyncToServer(ctx context.Context) (models.SyncResult, error) {
	if !e.monitor.IsOnline() {
		return models.SyncResult{}, ErrOffline
	}
	if !e.inFlight.TryLock() {
		return models.SyncResult{}, ErrSyncInProgress
	}
	defer e.inFlight.Unlock()

	_ = e.events.PublishJSON(events.EventSyncStarted, nil)

	items, err := e.queue.ListUnsynced(ctx)
	if err != nil {
		// An unavailable local store means there is nothing durable to
		// sync until it recovers; never crash the pass over it.
		e.logger.Warn().Err(err).Msg("queue unavailable, nothing to sync")
		return models.SyncResult{}, nil
	}

	var result models.SyncResult
	// Local action id -> server id, for references synced earlier in
	// this same pass.
	idMap := make(map[string]string)

	for _, item := range items {
		if err := e.dispatch(ctx, item, idMap); err != nil {
			// A failing item must not block later items; a validation
			// rejection on a dependent action resolves itself once its
			// dependency syncs.
			e.logger.Warn().
				Str("kind", item.Kind).
				Str("action_id", item.ID).
				Err(err).
				Msg("replay failed, action stays queued")
			metrics.IncSyncAction(item.Kind, "failure")
			result.Failed++
			continue
		}
		if err := e.queue.MarkSynced(ctx, item.ID); err != nil {
			e.logger.Error().Str("action_id", item.ID).Err(err).Msg("mark synced failed")
		}
		metrics.IncSyncAction(item.Kind, "success")
		result.Succeeded++
	}

	if _, err := e.queue.PruneOld(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("prune failed")
	}

	remaining, err := e.queue.CountUnsynced(ctx)
	if err != nil {
		remaining = result.Failed
	}

	now := time.Now()
	e.mu.Lock()
	e.lastSyncAt = now
	e.remaining = remaining
	if result.Failed > 0 && result.Succeeded == 0 && len(items) > 0 {
		e.failedPasses++
	} else {
		e.failedPasses = 0
	}
	e.mu.Unlock()

	_ = e.events.PublishJSON(events.EventSyncCompleted, events.SyncEventPayload{
		Succeeded: result.Succeeded,
		Failed:    result.Failed,
		Remaining: remaining,
		At:        now,
	})

	return result, nil
}

// dispatch maps one queued action to its remote-write operation.
// Insert-style actions return a server id, which is written back into
// the stored payloads of later unsynced actions that still reference
// the local placeholder, so the mapping survives a partial pass.
func (e *Engine) dispatch(ctx context.Context, a models.QueuedAction, idMap map[string]string) error {
	switch a.Kind {
	case models.ActionClockIn:
		var p models.ClockInPayload
		if err := json.Unmarshal([]byte(a.Payload), &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		entryID, err := e.remote.CreateTimeEntry(ctx, p)
		if err != nil {
			return err
		}
		idMap[a.ID] = entryID
		e.rewriteReferences(ctx, a.ID, entryID)
		return nil

	case models.ActionClockOut:
		var p models.ClockOutPayload
		if err := json.Unmarshal([]byte(a.Payload), &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		if mapped, ok := idMap[p.TimeEntryID]; ok {
			p.TimeEntryID = mapped
		}
		return e.remote.CompleteTimeEntry(ctx, p)

	case models.ActionBreakStart:
		var p models.BreakStartPayload
		if err := json.Unmarshal([]byte(a.Payload), &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		if mapped, ok := idMap[p.TimeEntryID]; ok {
			p.TimeEntryID = mapped
		}
		breakID, err := e.remote.CreateBreak(ctx, p)
		if err != nil {
			return err
		}
		idMap[a.ID] = breakID
		e.rewriteReferences(ctx, a.ID, breakID)
		return nil

	case models.ActionBreakEnd:
		var p models.BreakEndPayload
		if err := json.Unmarshal([]byte(a.Payload), &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		if mapped, ok := idMap[p.BreakID]; ok {
			p.BreakID = mapped
		}
		return e.remote.CompleteBreak(ctx, p)

	default:
		return fmt.Errorf("unknown action kind: %s", a.Kind)
	}
}

// rewriteReferences durably substitutes a freshly minted server id for
// the local placeholder id in every later unsynced action. Reference
// fields are the only part of a payload that is ever mutated.
func (e *Engine) rewriteReferences(ctx context.Context, localID, serverID string) {
	items, err := e.queue.ListUnsynced(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("rewrite references: list failed")
		return
	}

	for _, item := range items {
		var (
			rewritten string
			matched   bool
		)
		switch item.Kind {
		case models.ActionClockOut:
			var p models.ClockOutPayload
			if json.Unmarshal([]byte(item.Payload), &p) != nil || p.TimeEntryID != localID {
				continue
			}
			p.TimeEntryID = serverID
			raw, err := json.Marshal(p)
			if err != nil {
				continue
			}
			rewritten, matched = string(raw), true
		case models.ActionBreakStart:
			var p models.BreakStartPayload
			if json.Unmarshal([]byte(item.Payload), &p) != nil || p.TimeEntryID != localID {
				continue
			}
			p.TimeEntryID = serverID
			raw, err := json.Marshal(p)
			if err != nil {
				continue
			}
			rewritten, matched = string(raw), true
		case models.ActionBreakEnd:
			var p models.BreakEndPayload
			if json.Unmarshal([]byte(item.Payload), &p) != nil || p.BreakID != localID {
				continue
			}
			p.BreakID = serverID
			raw, err := json.Marshal(p)
			if err != nil {
				continue
			}
			rewritten, matched = string(raw), true
		}
		if !matched {
			continue
		}
		if err := e.queue.RewritePayload(ctx, item.ID, rewritten); err != nil {
			e.logger.Warn().Str("action_id", item.ID).Err(err).Msg("rewrite references: update failed")
		}
	}
}
