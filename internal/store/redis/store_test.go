package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/apicatalog/internal/domain"
)

func newTestStore(t *testing.T, maxLen int64) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, maxLen), mr
}

func event(id string, typ domain.EventType, containerID string, at time.Time) domain.ContainerEvent {
	return domain.ContainerEvent{
		ID:   id,
		Type: typ,
		Container: &domain.Container{
			ID:        containerID,
			Title:     containerID + " tile",
			Status:    domain.ContainerUp,
			CreatedAt: at,
			UpdatedAt: at,
		},
		Timestamp: at,
	}
}

func TestPublishEventsAndHistory(t *testing.T) {
	s, _ := newTestStore(t, 0)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	err := s.PublishEvents(ctx, []domain.ContainerEvent{
		event("e1", domain.EventCreated, "demoapps", at),
		event("e2", domain.EventRenewed, "tools", at.Add(time.Second)),
	})
	if err != nil {
		t.Fatalf("PublishEvents: %v", err)
	}

	history, err := s.History(ctx, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history = %d events, want 2", len(history))
	}
	newest := history[0]
	if newest.ID != "e2" || newest.Type != "RENEWED" || newest.ContainerID != "tools" {
		t.Errorf("newest event = %+v", newest)
	}
	if !newest.Timestamp.Equal(at.Add(time.Second)) {
		t.Errorf("timestamp = %v", newest.Timestamp)
	}

	var payload map[string]any
	if err := json.Unmarshal(newest.Container, &payload); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if payload["title"] != "tools tile" {
		t.Errorf("payload title = %v", payload["title"])
	}
}

func TestPublishEventsStoresSnapshots(t *testing.T) {
	s, mr := newTestStore(t, 0)
	ctx := context.Background()
	at := time.Now()

	if err := s.PublishEvents(ctx, []domain.ContainerEvent{event("e1", domain.EventCreated, "demoapps", at)}); err != nil {
		t.Fatalf("PublishEvents: %v", err)
	}

	if _, err := s.GetContainer(ctx, "demoapps"); err != nil {
		t.Fatalf("GetContainer: %v", err)
	}
	if ttl := mr.TTL(ContainerKey("demoapps")); ttl != DefaultSnapshotTTL {
		t.Errorf("snapshot ttl = %v, want %v", ttl, DefaultSnapshotTTL)
	}
	ids, err := s.ContainerIDs(ctx)
	if err != nil || len(ids) != 1 || ids[0] != "demoapps" {
		t.Errorf("ContainerIDs = %v, %v", ids, err)
	}

	if _, err := s.GetContainer(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing snapshot err = %v, want ErrNotFound", err)
	}
}

func TestPublishEventsEmptyIsNoop(t *testing.T) {
	s, mr := newTestStore(t, 0)

	if err := s.PublishEvents(context.Background(), nil); err != nil {
		t.Fatalf("PublishEvents: %v", err)
	}
	if mr.Exists(EventStreamKey()) {
		t.Error("stream created by an empty publish")
	}
}

func TestPublishEventsFailsWhenRedisIsDown(t *testing.T) {
	s, mr := newTestStore(t, 0)
	mr.Close()

	err := s.PublishEvents(context.Background(), []domain.ContainerEvent{event("e1", domain.EventCreated, "demoapps", time.Now())})
	if err == nil {
		t.Fatal("expected an error with redis down")
	}
}

func TestDeleteContainer(t *testing.T) {
	s, mr := newTestStore(t, 0)
	ctx := context.Background()
	now := time.Now()

	events := []domain.ContainerEvent{
		event("e1", domain.EventCreated, "demoapps", now),
		event("e2", domain.EventCreated, "retired", now),
	}
	if err := s.PublishEvents(ctx, events); err != nil {
		t.Fatalf("PublishEvents: %v", err)
	}

	if err := s.DeleteContainer(ctx, "retired"); err != nil {
		t.Fatalf("DeleteContainer: %v", err)
	}
	if mr.Exists(ContainerKey("retired")) {
		t.Error("snapshot should be gone")
	}
	ids, err := s.ContainerIDs(ctx)
	if err != nil || len(ids) != 1 || ids[0] != "demoapps" {
		t.Errorf("ContainerIDs() = %v, %v", ids, err)
	}

	// the stream keeps the history of deleted containers
	history, err := s.History(ctx, 10)
	if err != nil || len(history) != 2 {
		t.Errorf("History() = %d events, %v", len(history), err)
	}
}
