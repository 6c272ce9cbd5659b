package projector

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/apicatalog/internal/domain"
	"github.com/MrSnakeDoc/apicatalog/internal/logger"
)

// Source is the read side of the container cache.
type Source interface {
	GetAll() []*domain.Container
	GetByID(id string) (*domain.Container, bool)
	GetRecentlyUpdated(threshold time.Duration) []*domain.Container
}

// Publisher ships container events to downstream consumers.
type Publisher interface {
	PublishEvents(ctx context.Context, events []domain.ContainerEvent) error
}

// Projector turns the container cache into snapshots and change events.
// It only reads the cache.
type Projector struct {
	source    Source
	threshold time.Duration
	publisher Publisher
	logger    logger.Logger

	newID func() string
	now   func() time.Time
}

// New creates a projector. publisher may be nil, in which case Publish only builds events.
func New(source Source, threshold time.Duration, publisher Publisher, log logger.Logger) *Projector {
	return &Projector{
		source:    source,
		threshold: threshold,
		publisher: publisher,
		logger:    log,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// Snapshot returns every container.
func (p *Projector) Snapshot() []*domain.Container {
	return p.source.GetAll()
}

// Container returns one container.
func (p *Projector) Container(id string) (*domain.Container, bool) {
	return p.source.GetByID(id)
}

// RecentEvents returns one event per container updated within the threshold.
func (p *Projector) RecentEvents() []domain.ContainerEvent {
	recent := p.source.GetRecentlyUpdated(p.threshold)
	events := make([]domain.ContainerEvent, 0, len(recent))
	for _, c := range recent {
		events = append(events, p.event(c))
	}
	return events
}

// Events builds events for the given container ids. An id no longer in the
// cache yields a CANCELLED event carrying only the id.
func (p *Projector) Events(ids []string) []domain.ContainerEvent {
	events := make([]domain.ContainerEvent, 0, len(ids))
	for _, id := range ids {
		c, ok := p.source.GetByID(id)
		if !ok {
			events = append(events, domain.ContainerEvent{
				ID:        p.newID(),
				Type:      domain.EventCancelled,
				Container: &domain.Container{ID: id, Status: domain.ContainerDown},
				Timestamp: p.now(),
			})
			continue
		}
		events = append(events, p.event(c))
	}
	return events
}

// Publish sends the events of the given container ids to the publisher.
func (p *Projector) Publish(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	events := p.Events(ids)
	if p.publisher == nil {
		return nil
	}
	if err := p.publisher.PublishEvents(ctx, events); err != nil {
		return err
	}
	p.logger.Debug("container events published", logger.Int("count", len(events)))
	return nil
}

func (p *Projector) event(c *domain.Container) domain.ContainerEvent {
	return domain.ContainerEvent{
		ID:        p.newID(),
		Type:      domain.EventTypeFor(c),
		Container: c,
		Timestamp: c.UpdatedAt,
	}
}
