package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/apicatalog/internal/cache"
	"github.com/MrSnakeDoc/apicatalog/internal/domain"
	"github.com/MrSnakeDoc/apicatalog/internal/logger"
	"github.com/MrSnakeDoc/apicatalog/internal/metrics"
	"github.com/MrSnakeDoc/apicatalog/internal/registry"
	"github.com/MrSnakeDoc/apicatalog/internal/retry"
)

// Bootstrapper seeds both caches from a full registry snapshot at startup.
type Bootstrapper struct {
	client     registry.Client
	containers *cache.Containers
	services   *cache.Services
	keys       domain.MetadataKeys
	catalogID  string
	policy     retry.Policy
	logger     logger.Logger
	measures   *metrics.Measures

	done     atomic.Bool
	degraded atomic.Bool
}

// NewBootstrapper creates a bootstrapper. catalogID is the service id the catalog
// registers under; policy bounds the wait for it to show up.
func NewBootstrapper(
	client registry.Client,
	containers *cache.Containers,
	services *cache.Services,
	keys domain.MetadataKeys,
	catalogID string,
	policy retry.Policy,
	log logger.Logger,
	m *metrics.Measures,
) *Bootstrapper {
	return &Bootstrapper{
		client:     client,
		containers: containers,
		services:   services,
		keys:       keys,
		catalogID:  domain.NormalizeServiceID(catalogID),
		policy:     policy,
		logger:     log,
		measures:   m,
	}
}

// Initialize loads the registry into the caches.
//
// Missing catalog registration and malformed metadata are retried per the policy.
// The last attempt seeds what it can: instances with malformed metadata are skipped
// so they only cost their own tile. When retries run out the catalog keeps running
// on empty caches and Initialize returns nil; Degraded reports it. Any other failure
// is a *CannotRegisterError.
func (b *Bootstrapper) Initialize(ctx context.Context) error {
	start := time.Now()
	b.logger.Info("initializing catalog cache",
		logger.String("catalog", b.catalogID),
		logger.Int("max_attempts", b.policy.MaxAttempts))

	err := b.policy.Do(ctx, b.attempt, retryable, func(attempt int, wait time.Duration, err error) {
		b.record(metrics.RetryOutcome)
		b.logger.Info("catalog cache not ready, retrying",
			logger.Int("attempt", attempt),
			logger.Duration("wait", wait),
			logger.Error(err))
	})

	switch {
	case err == nil:
		b.record(metrics.SuccessOutcome)
		b.logger.Info("catalog cache initialized",
			logger.Int("containers", b.containers.Count()),
			logger.Int("services", b.services.Count()),
			logger.Duration("took", time.Since(start)))
	case errors.Is(err, retry.ErrExhausted):
		b.record(metrics.FailureOutcome)
		b.degraded.Store(true)
		b.logger.Warn("catalog cache initialization gave up, serving an empty catalog until the registry answers",
			logger.Error(err))
	case ctx.Err() != nil:
		return err
	default:
		b.record(metrics.FailureOutcome)
		return &CannotRegisterError{Err: err}
	}

	b.done.Store(true)
	return nil
}

// Reseed runs a single lenient bootstrap attempt. It clears the degraded flag on success.
func (b *Bootstrapper) Reseed(ctx context.Context) error {
	if err := b.load(ctx, false); err != nil {
		return err
	}
	if b.degraded.Swap(false) {
		b.logger.Info("catalog cache recovered from degraded start",
			logger.Int("containers", b.containers.Count()))
	}
	return nil
}

// Done reports whether Initialize has returned without a fatal error.
func (b *Bootstrapper) Done() bool { return b.done.Load() }

// Degraded reports whether the catalog started without registry data.
func (b *Bootstrapper) Degraded() bool { return b.degraded.Load() }

func (b *Bootstrapper) attempt(ctx context.Context, n int) error {
	return b.load(ctx, n < b.policy.MaxAttempts)
}

// load fetches the full registry and seeds the caches. In strict mode a single
// malformed instance fails the whole load before anything is written.
func (b *Bootstrapper) load(ctx context.Context, strict bool) error {
	if _, err := b.client.GetInstance(ctx, b.catalogID); err != nil {
		if errors.Is(err, registry.ErrNotFound) || errors.Is(err, registry.ErrUnavailable) {
			return fmt.Errorf("%w: %s: %w", ErrCatalogNotVisible, b.catalogID, err)
		}
		return err
	}

	apps, err := b.client.GetApplications(ctx, false)
	if err != nil {
		if errors.Is(err, registry.ErrUnavailable) {
			return fmt.Errorf("%w: %w", ErrCatalogNotVisible, err)
		}
		return err
	}

	// Validate everything first so a failed attempt leaves the caches untouched.
	malformed := make(map[string]struct{})
	for _, app := range apps.Applications {
		for _, inst := range app.Instances {
			if b.keys.FamilyOf(inst) == "" {
				continue
			}
			err := b.keys.Validate(inst)
			if err == nil {
				continue
			}
			if strict {
				return fmt.Errorf("%w: instance %s: %w", ErrMetadataMalformed, inst.InstanceID, err)
			}
			malformed[inst.InstanceID] = struct{}{}
			b.logger.Warn("skipping instance with malformed metadata",
				logger.String("instance", inst.InstanceID),
				logger.String("service", inst.ServiceID()),
				logger.Error(err))
		}
	}

	b.seed(apps, malformed)
	return nil
}

// seed fills both caches from apps. Instances in skip stay out of the containers
// but their applications still reach the raw cache.
func (b *Bootstrapper) seed(apps *domain.Applications, skip map[string]struct{}) {
	for _, app := range apps.Applications {
		if len(app.Instances) == 0 {
			continue
		}
		for _, inst := range app.Instances {
			familyID := b.keys.FamilyOf(inst)
			if familyID == "" {
				continue
			}
			if _, bad := skip[inst.InstanceID]; bad {
				continue
			}
			if _, err := b.containers.CreateOrMerge(familyID, inst); err != nil {
				b.logger.Warn("failed to add instance to catalog",
					logger.String("instance", inst.InstanceID),
					logger.String("family", familyID),
					logger.Error(err))
			}
		}
	}

	for _, app := range apps.Applications {
		if len(app.Instances) == 0 {
			continue
		}
		b.services.Update(app.Name, app)
	}

	if b.measures != nil {
		b.measures.Containers.Set(float64(b.containers.Count()))
	}
}

func (b *Bootstrapper) record(outcome string) {
	if b.measures != nil {
		b.measures.Bootstrap(outcome)
	}
}
