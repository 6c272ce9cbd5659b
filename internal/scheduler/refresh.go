package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MrSnakeDoc/apicatalog/internal/cache"
	"github.com/MrSnakeDoc/apicatalog/internal/domain"
	"github.com/MrSnakeDoc/apicatalog/internal/logger"
	"github.com/MrSnakeDoc/apicatalog/internal/metrics"
	"github.com/MrSnakeDoc/apicatalog/internal/registry"
)

// Gateway is the connection state the refresh loop waits on before acting.
type Gateway interface {
	Initialized() bool
	Locate(ctx context.Context) error
}

// RefreshConfig holds the refresh loop settings.
type RefreshConfig struct {
	CatalogServiceID string
	InitialDelay     time.Duration
	Period           time.Duration
	WorkerTimeout    time.Duration
	EvictDeleted     bool // also drop DELETED instances from the caches
}

// Refresher applies registry deltas to the caches on a fixed schedule.
type Refresher struct {
	client     registry.Client
	gateway    Gateway
	containers *cache.Containers
	services   *cache.Services
	keys       domain.MetadataKeys
	cfg        RefreshConfig
	logger     logger.Logger
	measures   *metrics.Measures

	onChange func(ctx context.Context, changed []string)
	reseed   func(ctx context.Context) error

	stopCh        chan struct{}
	stopOnce      sync.Once
	manualTrigger <-chan struct{}
}

// NewRefresher creates a refresh loop. manualTrigger may be nil.
func NewRefresher(
	client registry.Client,
	gw Gateway,
	containers *cache.Containers,
	services *cache.Services,
	keys domain.MetadataKeys,
	cfg RefreshConfig,
	log logger.Logger,
	m *metrics.Measures,
	manualTrigger <-chan struct{},
) *Refresher {
	cfg.CatalogServiceID = domain.NormalizeServiceID(cfg.CatalogServiceID)
	return &Refresher{
		client:        client,
		gateway:       gw,
		containers:    containers,
		services:      services,
		keys:          keys,
		cfg:           cfg,
		logger:        log,
		measures:      m,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// OnChange registers fn to receive the container ids touched by each cycle.
func (r *Refresher) OnChange(fn func(ctx context.Context, changed []string)) {
	r.onChange = fn
}

// OnMissingCatalog registers fn to run when a tick finds the catalog absent
// from the raw cache, typically a single bootstrap attempt.
func (r *Refresher) OnMissingCatalog(fn func(ctx context.Context) error) {
	r.reseed = fn
}

// Start waits for the initial delay, then refreshes every period until Stop or ctx is done.
func (r *Refresher) Start(ctx context.Context) error {
	if r.cfg.Period <= 0 {
		return fmt.Errorf("refresh period must be > 0, got %v", r.cfg.Period)
	}
	if r.cfg.WorkerTimeout <= 0 {
		return fmt.Errorf("worker timeout must be > 0, got %v", r.cfg.WorkerTimeout)
	}

	go func() {
		delay := time.NewTimer(r.cfg.InitialDelay)
		defer delay.Stop()

		select {
		case <-delay.C:
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		}
		r.Refresh(ctx)

		ticker := time.NewTicker(r.cfg.Period)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.Refresh(ctx)
			case <-r.manualTrigger:
				r.logger.Info("manual refresh triggered")
				r.Refresh(ctx)
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	r.logger.Info("refresh loop scheduled",
		logger.Duration("initial_delay", r.cfg.InitialDelay),
		logger.Duration("period", r.cfg.Period),
		logger.Duration("worker_timeout", r.cfg.WorkerTimeout))
	return nil
}

// Stop stops the loop. A worker still running keeps going until it finishes.
func (r *Refresher) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Refresh runs one cycle and returns the ids of the containers it touched, sorted.
// Skipped, failed and timed-out cycles return nil.
func (r *Refresher) Refresh(ctx context.Context) []string {
	if !r.gateway.Initialized() {
		if err := r.gateway.Locate(ctx); err != nil {
			r.logger.Debug("gateway not located yet, skipping refresh", logger.Error(err))
		}
		r.cycle(metrics.SkippedOutcome)
		return nil
	}

	if _, ok := r.services.Get(r.cfg.CatalogServiceID); !ok {
		r.logger.Debug("catalog not in raw cache yet, skipping refresh",
			logger.String("catalog", r.cfg.CatalogServiceID))
		if r.reseed != nil {
			if err := r.reseed(ctx); err != nil {
				r.logger.Debug("reseed attempt failed", logger.Error(err))
			}
		}
		r.cycle(metrics.SkippedOutcome)
		return nil
	}

	delta, err := r.client.GetApplications(ctx, true)
	if err != nil {
		level := r.logger.Warn
		if errors.Is(err, registry.ErrUnavailable) {
			level = r.logger.Info
		}
		level("failed to fetch registry delta", logger.Error(err))
		r.cycle(metrics.FailureOutcome)
		return nil
	}

	var changed []string
	if len(delta.Applications) > 0 && delta.Watermark != r.services.Watermark() {
		changed = r.runWorker(ctx, delta)
	} else {
		r.cycle(metrics.UnchangedOutcome)
	}
	r.services.SetWatermark(delta.Watermark)

	if r.measures != nil {
		r.measures.Containers.Set(float64(r.containers.Count()))
	}
	if len(changed) > 0 && r.onChange != nil {
		r.onChange(ctx, changed)
	}
	return changed
}

// runWorker runs compareAndApply on its own goroutine and waits at most WorkerTimeout.
// A late worker is abandoned, not rolled back.
func (r *Refresher) runWorker(ctx context.Context, delta *domain.Applications) []string {
	start := time.Now()
	done := make(chan []string, 1)
	go func() {
		done <- r.compareAndApply(ctx, delta)
	}()

	timer := time.NewTimer(r.cfg.WorkerTimeout)
	defer timer.Stop()

	select {
	case changed := <-done:
		if r.measures != nil {
			r.measures.RefreshDuration.Observe(time.Since(start).Seconds())
		}
		r.cycle(metrics.SuccessOutcome)
		r.logger.Debug("registry delta applied",
			logger.String("watermark", string(delta.Watermark)),
			logger.Strings("containers", changed),
			logger.Duration("took", time.Since(start)))
		return changed
	case <-timer.C:
		r.cycle(metrics.TimeoutOutcome)
		r.logger.Warn("refresh worker timed out, abandoning cycle",
			logger.Duration("timeout", r.cfg.WorkerTimeout),
			logger.String("watermark", string(delta.Watermark)))
		return nil
	case <-ctx.Done():
		return nil
	}
}

// compareAndApply applies every instance of the API-enabled applications in delta.
// The first instance of an application decides whether the application is enabled.
func (r *Refresher) compareAndApply(ctx context.Context, delta *domain.Applications) []string {
	changed := make(map[string]struct{})

	for _, app := range delta.Applications {
		if len(app.Instances) == 0 {
			continue
		}
		if !r.keys.IsAPIEnabled(app.Instances[0]) {
			r.logger.Debug("api disabled, ignoring application", logger.String("app", app.Name))
			continue
		}

		for _, inst := range app.Instances {
			if ctx.Err() != nil {
				return sortedIDs(changed)
			}
			if id := r.applyInstance(delta, inst); id != "" {
				changed[id] = struct{}{}
			}
		}
	}
	return sortedIDs(changed)
}

// applyInstance merges one delta instance into both caches and returns the id of
// the container it touched, or "". Failures stay local to the instance.
func (r *Refresher) applyInstance(delta *domain.Applications, inst *domain.Instance) (touched string) {
	defer func() {
		if p := recover(); p != nil {
			r.instance(metrics.FailedAction)
			r.logger.Error("panic while applying instance",
				logger.String("instance", inst.InstanceID),
				logger.Any("panic", p))
			touched = ""
		}
	}()

	inst = inst.Clone()
	deleted := inst.ActionType == domain.ActionDeleted
	if deleted {
		inst.Status = domain.StatusDown
	}

	serviceID := inst.ServiceID()
	app, ok := r.services.Get(serviceID)
	if !ok || len(app.Instances) == 0 {
		app = delta.Find(serviceID).Clone()
	}
	if app == nil || len(app.Instances) == 0 {
		r.logger.Debug("no application known for instance, skipping",
			logger.String("instance", inst.InstanceID),
			logger.String("service", serviceID))
		return ""
	}

	app.Upsert(inst)
	if deleted && r.cfg.EvictDeleted {
		app.Remove(inst.InstanceID)
	}
	r.services.Update(serviceID, app)

	familyID := r.keys.FamilyOf(inst)
	switch {
	case inst.Status != domain.StatusDown:
		if familyID == "" {
			r.logger.Warn("instance has no product-family id, not added to any container",
				logger.String("instance", inst.InstanceID),
				logger.String("service", serviceID))
			r.instance(actionFor(inst))
			return ""
		}
		if _, err := r.containers.CreateOrMerge(familyID, inst); err != nil {
			r.instance(metrics.FailedAction)
			r.logger.Error("failed to update container",
				logger.String("instance", inst.InstanceID),
				logger.String("family", familyID),
				logger.Error(err))
			return ""
		}
		touched = familyID
	case deleted && r.cfg.EvictDeleted && familyID != "":
		r.containers.RemoveInstance(familyID, inst)
		touched = familyID
	}

	r.instance(actionFor(inst))
	return touched
}

func actionFor(inst *domain.Instance) string {
	switch inst.ActionType {
	case domain.ActionAdded:
		return metrics.AddedAction
	case domain.ActionDeleted:
		return metrics.DeletedAction
	default:
		return metrics.ModifiedAction
	}
}

func (r *Refresher) cycle(outcome string) {
	if r.measures != nil {
		r.measures.Cycle(outcome)
	}
}

func (r *Refresher) instance(action string) {
	if r.measures != nil {
		r.measures.Instance(action)
	}
}

func sortedIDs(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
