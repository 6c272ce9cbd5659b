package cache

import (
	"sync"
	"time"

	"github.com/MrSnakeDoc/apicatalog/internal/domain"
)

// Services holds the last-known raw registry view per service id,
// plus the watermark of the last processed delta.
type Services struct {
	mu         sync.RWMutex
	apps       map[string]*domain.Application // normalized service id -> application
	watermark  domain.Watermark
	lastUpdate time.Time
}

// NewServices creates an empty raw service cache.
func NewServices() *Services {
	return &Services{
		apps: make(map[string]*domain.Application),
	}
}

// GetAll returns a copy of every cached application keyed by service id.
func (s *Services) GetAll() map[string]*domain.Application {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*domain.Application, len(s.apps))
	for id, app := range s.apps {
		out[id] = app.Clone()
	}
	return out
}

// Get returns a copy of the application cached for serviceID.
func (s *Services) Get(serviceID string) (*domain.Application, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, ok := s.apps[domain.NormalizeServiceID(serviceID)]
	if !ok {
		return nil, false
	}
	return app.Clone(), true
}

// Update replaces the application cached for serviceID.
func (s *Services) Update(serviceID string, app *domain.Application) {
	cp := app.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.apps[domain.NormalizeServiceID(serviceID)] = cp
	s.lastUpdate = time.Now()
}

// Count returns the number of cached applications.
func (s *Services) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.apps)
}

// Watermark returns the watermark of the last processed delta.
func (s *Services) Watermark() domain.Watermark {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.watermark
}

// SetWatermark stores the watermark of the latest delta.
func (s *Services) SetWatermark(w domain.Watermark) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.watermark = w
}

// GetLastUpdate returns when an application was last written.
func (s *Services) GetLastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastUpdate
}
