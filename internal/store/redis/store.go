package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/apicatalog/internal/domain"
)

const (
	// DefaultSnapshotTTL is the default TTL for container snapshots (48 hours)
	DefaultSnapshotTTL = 48 * time.Hour
	// DefaultStreamMaxLen caps the event stream (approximate trimming)
	DefaultStreamMaxLen = 10000
)

// ErrNotFound is returned when no snapshot exists for a container
var ErrNotFound = errors.New("container snapshot not found")

// Store publishes container events to Redis
type Store struct {
	client *redis.Client
	maxLen int64
	ttl    time.Duration
}

// NewStore creates a new Redis store. maxLen <= 0 selects DefaultStreamMaxLen.
func NewStore(client *redis.Client, maxLen int64) *Store {
	if maxLen <= 0 {
		maxLen = DefaultStreamMaxLen
	}
	return &Store{
		client: client,
		maxLen: maxLen,
		ttl:    DefaultSnapshotTTL,
	}
}

// StoredEvent is a container event read back from the stream
type StoredEvent struct {
	StreamID    string          `json:"streamId"`
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	ContainerID string          `json:"containerId"`
	Timestamp   time.Time       `json:"timestamp"`
	Container   json.RawMessage `json:"container"`
}

// PublishEvents appends events to the stream and refreshes the container snapshots (bulk operation)
func (s *Store) PublishEvents(ctx context.Context, events []domain.ContainerEvent) error {
	if len(events) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, e := range events {
		data, err := json.Marshal(e.Container)
		if err != nil {
			return fmt.Errorf("failed to marshal container %s: %w", e.Container.ID, err)
		}

		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: EventStreamKey(),
			MaxLen: s.maxLen,
			Approx: true,
			Values: map[string]any{
				"id":        e.ID,
				"type":      string(e.Type),
				"container": e.Container.ID,
				"timestamp": e.Timestamp.UTC().Format(time.RFC3339Nano),
				"payload":   data,
			},
		})

		key := ContainerKey(e.Container.ID)
		pipe.Set(ctx, key, data, s.ttl)
		pipe.SAdd(ctx, AllContainersKey(), e.Container.ID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish events: %w", err)
	}
	return nil
}

// History returns up to count events, newest first
func (s *Store) History(ctx context.Context, count int64) ([]StoredEvent, error) {
	msgs, err := s.client.XRevRangeN(ctx, EventStreamKey(), "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read event stream: %w", err)
	}

	out := make([]StoredEvent, 0, len(msgs))
	for _, msg := range msgs {
		ev := StoredEvent{
			StreamID:    msg.ID,
			ID:          field(msg.Values, "id"),
			Type:        field(msg.Values, "type"),
			ContainerID: field(msg.Values, "container"),
		}
		if ts, err := time.Parse(time.RFC3339Nano, field(msg.Values, "timestamp")); err == nil {
			ev.Timestamp = ts
		}
		if payload := field(msg.Values, "payload"); payload != "" {
			ev.Container = json.RawMessage(payload)
		}
		out = append(out, ev)
	}
	return out, nil
}

// GetContainer returns the last published snapshot of a container
func (s *Store) GetContainer(ctx context.Context, id string) (json.RawMessage, error) {
	data, err := s.client.Get(ctx, ContainerKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get container: %w", err)
	}
	return data, nil
}

// ContainerIDs returns the IDs of every container ever published
func (s *Store) ContainerIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, AllContainersKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get container IDs: %w", err)
	}
	return ids, nil
}

// DeleteContainer drops the snapshot of a container and forgets its ID. The stream is left untouched.
func (s *Store) DeleteContainer(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, ContainerKey(id))
	pipe.SRem(ctx, AllContainersKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete container %s: %w", id, err)
	}
	return nil
}

func field(values map[string]any, key string) string {
	switch v := values[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}
