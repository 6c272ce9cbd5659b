package scheduler

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/MrSnakeDoc/apicatalog/internal/domain"
)

type snapshots struct {
	ids     map[string]bool
	listErr error
	failOn  string
}

func (s *snapshots) ContainerIDs(context.Context) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *snapshots) DeleteContainer(_ context.Context, id string) error {
	if id == s.failOn {
		return errors.New("delete failed")
	}
	delete(s.ids, id)
	return nil
}

func TestGarbageCollectorCollect(t *testing.T) {
	containers, _ := newCaches(nil)
	if _, err := containers.CreateOrMerge("demoapps", instance("g1", "GREETER", "demoapps", domain.StatusUp)); err != nil {
		t.Fatalf("CreateOrMerge: %v", err)
	}

	store := &snapshots{ids: map[string]bool{"demoapps": true, "retired": true, "stuck": true}, failOn: "stuck"}
	gc := NewGarbageCollector(store, containers, nop(), 0)

	deleted, err := gc.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if !store.ids["demoapps"] || store.ids["retired"] || !store.ids["stuck"] {
		t.Errorf("remaining snapshots = %v", store.ids)
	}
}

func TestGarbageCollectorSkipsEmptyCache(t *testing.T) {
	containers, _ := newCaches(nil)
	store := &snapshots{ids: map[string]bool{"demoapps": true}}

	deleted, err := NewGarbageCollector(store, containers, nop(), 0).Collect(context.Background())
	if err != nil || deleted != 0 || !store.ids["demoapps"] {
		t.Errorf("deleted=%d err=%v ids=%v", deleted, err, store.ids)
	}
}

func TestGarbageCollectorListError(t *testing.T) {
	containers, _ := newCaches(nil)
	if _, err := containers.CreateOrMerge("demoapps", instance("g1", "GREETER", "demoapps", domain.StatusUp)); err != nil {
		t.Fatalf("CreateOrMerge: %v", err)
	}
	boom := errors.New("redis down")
	_, err := NewGarbageCollector(&snapshots{listErr: boom}, containers, nop(), 0).Collect(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}
