package scheduler

import (
	"context"
	"sync"

	"github.com/MrSnakeDoc/apicatalog/internal/cache"
	"github.com/MrSnakeDoc/apicatalog/internal/domain"
	"github.com/MrSnakeDoc/apicatalog/internal/logger"
	"github.com/MrSnakeDoc/apicatalog/internal/registry"
)

var keys = domain.DefaultMetadataKeys()

type fakeRegistry struct {
	mu          sync.Mutex
	instances   map[string]*domain.Instance
	instanceErr []error // consumed one per GetInstance call
	full        *domain.Applications
	fullErr     error
	delta       *domain.Applications
	deltaErr    error

	instanceCalls int
	deltaCalls    int
}

func (f *fakeRegistry) GetInstance(_ context.Context, serviceID string) (*domain.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.instanceCalls++
	if len(f.instanceErr) > 0 {
		err := f.instanceErr[0]
		f.instanceErr = f.instanceErr[1:]
		if err != nil {
			return nil, err
		}
	}
	inst, ok := f.instances[domain.NormalizeServiceID(serviceID)]
	if !ok {
		return nil, registry.ErrNotFound
	}
	return inst.Clone(), nil
}

func (f *fakeRegistry) GetApplications(_ context.Context, deltaOnly bool) (*domain.Applications, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if deltaOnly {
		f.deltaCalls++
		if f.deltaErr != nil {
			return nil, f.deltaErr
		}
		return cloneApps(f.delta), nil
	}
	if f.fullErr != nil {
		return nil, f.fullErr
	}
	return cloneApps(f.full), nil
}

func (f *fakeRegistry) setDelta(d *domain.Applications) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delta = d
}

func (f *fakeRegistry) calls() (instance, delta int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.instanceCalls, f.deltaCalls
}

func cloneApps(a *domain.Applications) *domain.Applications {
	if a == nil {
		return &domain.Applications{}
	}
	out := &domain.Applications{Watermark: a.Watermark}
	for _, app := range a.Applications {
		out.Applications = append(out.Applications, app.Clone())
	}
	return out
}

type fakeGateway struct {
	mu      sync.Mutex
	ready   bool
	locates int
}

func (g *fakeGateway) Initialized() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ready
}

func (g *fakeGateway) Locate(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.locates++
	return registry.ErrNotFound
}

// transformer lets tests hook into service construction.
type transformer func(serviceID, rawURL string)

func (t transformer) TransformURL(serviceID, rawURL string, _ []domain.Route) string {
	t(serviceID, rawURL)
	return rawURL
}

func instance(id, app, family string, status domain.InstanceStatus, meta ...string) *domain.Instance {
	md := map[string]string{}
	if family != "" {
		md[keys.FamilyID] = family
		md[keys.FamilyTitle] = family + " tile"
	}
	for i := 0; i+1 < len(meta); i += 2 {
		md[meta[i]] = meta[i+1]
	}
	return &domain.Instance{
		InstanceID: id,
		AppName:    app,
		HostName:   "localhost",
		Port:       8080,
		Status:     status,
		Metadata:   md,
	}
}

func withAction(inst *domain.Instance, action domain.ActionType) *domain.Instance {
	inst.ActionType = action
	return inst
}

func apps(watermark string, list ...*domain.Application) *domain.Applications {
	return &domain.Applications{Applications: list, Watermark: domain.Watermark(watermark)}
}

func app(name string, instances ...*domain.Instance) *domain.Application {
	return &domain.Application{Name: name, Instances: instances}
}

func newCaches(urls domain.URLTransformer) (*cache.Containers, *cache.Services) {
	services := cache.NewServices()
	return cache.NewContainers(services, keys, urls), services
}

func nop() logger.Logger { return logger.NewNop() }
