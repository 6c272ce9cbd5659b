package domain

import (
	"encoding/json"
	"sort"
	"time"
)

// ContainerStatus is the aggregate status of a catalog tile.
type ContainerStatus string

const (
	ContainerUp      ContainerStatus = "UP"
	ContainerDown    ContainerStatus = "DOWN"
	ContainerWarning ContainerStatus = "WARNING"
)

// StatusFor applies the tile status formula.
func StatusFor(active, total int) ContainerStatus {
	switch {
	case active == 0:
		return ContainerDown
	case active == total:
		return ContainerUp
	default:
		return ContainerWarning
	}
}

// Container is a catalog tile: the services sharing one product-family id.
//
// A container never exists without at least one service.
type Container struct {
	// ID is the product-family id.
	ID string `json:"id"`

	// Title, Description and Version come from whichever instance merged last.
	Title       string `json:"title"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// Derived on read.
	Status         ContainerStatus `json:"status"`
	TotalServices  int             `json:"totalServices"`
	ActiveServices int             `json:"activeServices"`
	SSO            bool            `json:"sso"`

	CreatedAt time.Time `json:"createdTimestamp"`
	UpdatedAt time.Time `json:"lastUpdatedTimestamp"`

	services map[string]*Service
}

// NewContainer creates an empty container. Callers must add a service before publishing it.
func NewContainer(id string, now time.Time) *Container {
	return &Container{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		services:  make(map[string]*Service),
	}
}

// Service returns the service equal to key, or nil.
func (c *Container) Service(key *Service) *Service {
	return c.services[key.Key()]
}

// ServiceByID returns the service with the given id, or nil.
func (c *Container) ServiceByID(serviceID string) *Service {
	return c.services[NormalizeServiceID(serviceID)]
}

// PutService adds svc, replacing any equal service.
func (c *Container) PutService(svc *Service) {
	if c.services == nil {
		c.services = make(map[string]*Service)
	}
	c.services[svc.Key()] = svc
}

// DeleteService removes the service equal to key.
func (c *Container) DeleteService(key *Service) {
	delete(c.services, key.Key())
}

// ServiceCount returns the number of services in the container.
func (c *Container) ServiceCount() int {
	return len(c.services)
}

// Services returns the services ordered by id.
func (c *Container) Services() []*Service {
	out := make([]*Service, 0, len(c.services))
	for _, svc := range c.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServiceID < out[j].ServiceID })
	return out
}

// Clone returns a deep copy of the container.
func (c *Container) Clone() *Container {
	cp := *c
	cp.services = make(map[string]*Service, len(c.services))
	for k, svc := range c.services {
		cp.services[k] = svc.Clone()
	}
	return &cp
}

// MarshalJSON includes the services.
func (c *Container) MarshalJSON() ([]byte, error) {
	type plain Container
	return json.Marshal(struct {
		*plain
		Services []*Service `json:"services"`
	}{
		plain:    (*plain)(c),
		Services: c.Services(),
	})
}
