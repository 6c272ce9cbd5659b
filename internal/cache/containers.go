package cache

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MrSnakeDoc/apicatalog/internal/domain"
)

var (
	// ErrContainerNotFound is returned when a service is added to an unknown container.
	ErrContainerNotFound = errors.New("container not found")
	// ErrMissingFamilyID is returned when an instance carries no product-family id.
	ErrMissingFamilyID = errors.New("instance has no product-family id")
)

// ApplicationLookup resolves the raw registry view of a service.
type ApplicationLookup interface {
	Get(serviceID string) (*domain.Application, bool)
}

// Containers is the catalog's aggregate view: product-family id -> container -> services.
//
// Every mutation happens under the write lock and leaves the invariants intact
// (no empty container, no service without instances) before the lock is released.
// Readers only ever receive deep copies with derived values computed.
type Containers struct {
	mu         sync.RWMutex
	containers map[string]*domain.Container // family id -> container
	apps       ApplicationLookup
	keys       domain.MetadataKeys
	urls       domain.URLTransformer
	now        func() time.Time
}

// Option configures a Containers cache.
type Option func(*Containers)

// WithClock overrides the time source used for container timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Containers) { c.now = now }
}

// NewContainers creates an empty aggregate cache. apps is consulted for liveness
// and SSO when derived values are computed; urls may be nil.
func NewContainers(apps ApplicationLookup, keys domain.MetadataKeys, urls domain.URLTransformer, opts ...Option) *Containers {
	c := &Containers{
		containers: make(map[string]*domain.Container),
		apps:       apps,
		keys:       keys,
		urls:       urls,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetAll returns every container, ordered by id.
func (c *Containers) GetAll() []*domain.Container {
	c.mu.RLock()
	out := make([]*domain.Container, 0, len(c.containers))
	for _, cont := range c.containers {
		out = append(out, cont.Clone())
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	for _, cont := range out {
		c.ComputeDerivedValues(cont)
	}
	return out
}

// GetByID returns the container for a product-family id.
func (c *Containers) GetByID(id string) (*domain.Container, bool) {
	c.mu.RLock()
	cont, ok := c.containers[id]
	if ok {
		cont = cont.Clone()
	}
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	c.ComputeDerivedValues(cont)
	return cont, true
}

// Count returns the number of containers.
func (c *Containers) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.containers)
}

// GetRecentlyUpdated returns containers updated within threshold of now, ordered by id.
func (c *Containers) GetRecentlyUpdated(threshold time.Duration) []*domain.Container {
	cutoff := c.now().Add(-threshold)

	c.mu.RLock()
	var out []*domain.Container
	for _, cont := range c.containers {
		if cont.UpdatedAt.After(cutoff) {
			out = append(out, cont.Clone())
		}
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	for _, cont := range out {
		c.ComputeDerivedValues(cont)
	}
	return out
}

// CreateOrMerge records inst in the container of familyID, creating the container on first sight.
//
// The instance joins the service with the same service id if there is one, otherwise
// a new service is added. Title, description and version are always taken from inst,
// and so is the home page of an existing service.
func (c *Containers) CreateOrMerge(familyID string, inst *domain.Instance) (*domain.Container, error) {
	if familyID == "" {
		return nil, fmt.Errorf("%w: instance %s", ErrMissingFamilyID, inst.InstanceID)
	}

	svc, err := domain.NewService(c.keys, inst, c.urls)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	now := c.now()
	cont, ok := c.containers[familyID]
	if !ok {
		cont = domain.NewContainer(familyID, now)
		c.containers[familyID] = cont
	}
	cont.Title = inst.Metadata[c.keys.FamilyTitle]
	cont.Description = inst.Metadata[c.keys.FamilyDescription]
	cont.Version = inst.Metadata[c.keys.FamilyVersion]

	// The gateway may have been located since the service was first built.
	if existing := cont.Service(svc); existing != nil && svc.HomePageURL != "" {
		existing.HomePageURL = svc.HomePageURL
	}
	if err := c.addServiceLocked(familyID, svc); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	cont.UpdatedAt = now
	out := cont.Clone()
	c.mu.Unlock()

	c.ComputeDerivedValues(out)
	return out, nil
}

// AddService merges svc into an existing container.
// It returns ErrContainerNotFound rather than creating the container.
func (c *Containers) AddService(familyID string, svc *domain.Service) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.addServiceLocked(familyID, svc.Clone()); err != nil {
		return err
	}
	c.containers[familyID].UpdatedAt = c.now()
	return nil
}

func (c *Containers) addServiceLocked(familyID string, svc *domain.Service) error {
	cont, ok := c.containers[familyID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrContainerNotFound, familyID)
	}

	existing := cont.Service(svc)
	if existing == nil {
		cont.PutService(svc)
		return nil
	}
	for _, id := range svc.InstanceIDs() {
		existing.AddInstance(id)
	}
	return nil
}

// RemoveInstance drops inst from the container of familyID.
//
// The service goes away with its last instance and the container with its last
// service. Unknown containers, services or instances are ignored.
func (c *Containers) RemoveInstance(familyID string, inst *domain.Instance) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cont, ok := c.containers[familyID]
	if !ok {
		return
	}

	key := &domain.Service{ServiceID: inst.ServiceID()}
	svc := cont.Service(key)
	if svc == nil || !svc.HasInstance(inst.InstanceID) {
		return
	}

	if svc.InstanceCount() == 1 {
		cont.DeleteService(key)
	} else {
		svc.RemoveInstance(inst.InstanceID)
	}

	if cont.ServiceCount() == 0 {
		delete(c.containers, familyID)
		return
	}
	cont.UpdatedAt = c.now()
}

// ComputeDerivedValues fills status, service counts and SSO of cont from the raw registry view.
//
// A service the raw view has not seen yet counts as active.
func (c *Containers) ComputeDerivedValues(cont *domain.Container) {
	total, active := 0, 0
	sso := true

	for _, svc := range cont.Services() {
		total++

		app, ok := c.apps.Get(svc.ServiceID)
		if !ok || len(app.Instances) == 0 {
			active++
			svc.Status = domain.StatusUp
			svc.SSOAllInstances = svc.SSO
			sso = sso && svc.SSO
			continue
		}

		if app.AnyUp() {
			active++
			svc.Status = domain.StatusUp
		} else {
			svc.Status = domain.StatusDown
		}

		all := true
		for _, inst := range app.Instances {
			if !c.keys.SSO(inst) {
				all = false
				break
			}
		}
		svc.SSOAllInstances = all
		sso = sso && all
	}

	cont.TotalServices = total
	cont.ActiveServices = active
	cont.Status = domain.StatusFor(active, total)
	cont.SSO = total > 0 && sso
}
