package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrSnakeDoc/apicatalog/internal/domain"
	"github.com/MrSnakeDoc/apicatalog/internal/logger"
)

// DefaultGCInterval is the default period between snapshot collections.
const DefaultGCInterval = time.Hour

// SnapshotStore holds the published container snapshots.
type SnapshotStore interface {
	ContainerIDs(ctx context.Context) ([]string, error)
	DeleteContainer(ctx context.Context, id string) error
}

// ContainerLookup is the part of the container cache the collector reads.
type ContainerLookup interface {
	GetByID(id string) (*domain.Container, bool)
	Count() int
}

// GarbageCollector drops published snapshots of containers that left the cache.
type GarbageCollector struct {
	store      SnapshotStore
	containers ContainerLookup
	logger     logger.Logger
	interval   time.Duration
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// NewGarbageCollector creates a new garbage collector
func NewGarbageCollector(
	store SnapshotStore,
	containers ContainerLookup,
	log logger.Logger,
	interval time.Duration,
) *GarbageCollector {
	if interval <= 0 {
		interval = DefaultGCInterval
	}

	return &GarbageCollector{
		store:      store,
		containers: containers,
		logger:     log,
		interval:   interval,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the periodic garbage collection process
func (gc *GarbageCollector) Start(ctx context.Context) error {
	ticker := time.NewTicker(gc.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := gc.Collect(ctx); err != nil {
					gc.logger.Warn("snapshot garbage collection failed", logger.Error(err))
				}
			case <-gc.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	gc.logger.Info("snapshot garbage collector started", logger.Duration("interval", gc.interval))
	return nil
}

// Stop stops the garbage collector
func (gc *GarbageCollector) Stop() {
	gc.stopOnce.Do(func() { close(gc.stopCh) })
}

// Collect deletes the snapshots of containers absent from the cache and returns how many went.
// An empty cache is left alone: it more likely means a degraded start than a registry with no tiles.
func (gc *GarbageCollector) Collect(ctx context.Context) (int, error) {
	if gc.containers.Count() == 0 {
		gc.logger.Debug("container cache empty, skipping snapshot collection")
		return 0, nil
	}

	ids, err := gc.store.ContainerIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list snapshots: %w", err)
	}

	deleted := 0
	for _, id := range ids {
		if _, ok := gc.containers.GetByID(id); ok {
			continue
		}
		if err := gc.store.DeleteContainer(ctx, id); err != nil {
			gc.logger.Warn("failed to delete container snapshot",
				logger.String("container", id),
				logger.Error(err))
			continue
		}
		gc.logger.Info("garbage collected container snapshot", logger.String("container", id))
		deleted++
	}

	if deleted == 0 {
		gc.logger.Debug("no snapshots to garbage collect", logger.Int("published", len(ids)))
	}
	return deleted, nil
}
