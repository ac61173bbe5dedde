package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore remembers which property events were already applied.
// Implementations are safe for concurrent use.
type IdempotencyStore interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

// sweepEvery bounds how many marks a memory store takes between scans for
// expired ids.
const sweepEvery = 1024

// MemoryIdempotencyStore is the single-replica store: ids live in process
// memory for ttl.
type MemoryIdempotencyStore struct {
	ttl time.Duration
	now func() time.Time

	mu         sync.Mutex
	markedAt   map[string]time.Time
	sinceSweep int
}

// NewMemoryIdempotencyStore returns a store forgetting ids after ttl.
func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{ttl: ttl, now: time.Now, markedAt: map[string]time.Time{}}
}

// Seen reports whether eventID was marked less than ttl ago.
func (s *MemoryIdempotencyStore) Seen(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	at, ok := s.markedAt[eventID]
	if ok && s.expired(at) {
		delete(s.markedAt, eventID)
		return false, nil
	}
	return ok, nil
}

// Mark records eventID as applied.
func (s *MemoryIdempotencyStore) Mark(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.markedAt[eventID] = s.now()
	if s.sinceSweep++; s.sinceSweep >= sweepEvery {
		s.sinceSweep = 0
		for id, at := range s.markedAt {
			if s.expired(at) {
				delete(s.markedAt, id)
			}
		}
	}
	return nil
}

func (s *MemoryIdempotencyStore) expired(at time.Time) bool {
	return s.now().Sub(at) > s.ttl
}

// Len counts the ids held, expired ones not yet swept included.
func (s *MemoryIdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.markedAt)
}

// RedisIdempotencyStore shares applied ids between replicas as keys that
// expire after ttl.
type RedisIdempotencyStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisIdempotencyStore keys ids as prefix+eventID.
func NewRedisIdempotencyStore(client redis.Cmdable, prefix string, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, prefix: prefix, ttl: ttl}
}

// Seen implements IdempotencyStore.
func (s *RedisIdempotencyStore) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("look up event %s: %w", eventID, err)
	}
	return n == 1, nil
}

// Mark implements IdempotencyStore.
func (s *RedisIdempotencyStore) Mark(ctx context.Context, eventID string) error {
	if err := s.client.Set(ctx, s.prefix+eventID, time.Now().UTC().Format(time.RFC3339), s.ttl).Err(); err != nil {
		return fmt.Errorf("mark event %s: %w", eventID, err)
	}
	return nil
}

// IdempotentHandler drops redelivered events. An id is marked only once next
// has applied it, so a failed event is handled again on redelivery. Events
// without an id, and every event while the store is unreachable, go straight
// to next: applying a property change twice is harmless, losing it is not.
func IdempotentHandler(store IdempotencyStore, next Handler, logger *slog.Logger) Handler {
	return func(ctx context.Context, event *Event) error {
		if event.EventID == "" {
			return next(ctx, event)
		}
		log := logger.With(
			slog.String("event_id", event.EventID),
			slog.String("event_type", event.EventType),
		)

		seen, err := store.Seen(ctx, event.EventID)
		switch {
		case err != nil:
			log.WarnContext(ctx, "idempotency store lookup failed, processing anyway", slog.String("error", err.Error()))
		case seen:
			ConsumerMessagesDuplicate.WithLabelValues(event.EventType).Inc()
			log.DebugContext(ctx, "skipping duplicate event", slog.String("aggregate_id", event.AggregateID))
			return nil
		}

		if err := next(ctx, event); err != nil {
			return err
		}
		if err := store.Mark(ctx, event.EventID); err != nil {
			log.WarnContext(ctx, "failed to record event id", slog.String("error", err.Error()))
		}
		return nil
	}
}
