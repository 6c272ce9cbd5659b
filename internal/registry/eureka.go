package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/MrSnakeDoc/apicatalog/internal/domain"
	"github.com/MrSnakeDoc/apicatalog/internal/logger"
	"github.com/MrSnakeDoc/apicatalog/internal/metrics"
	"github.com/MrSnakeDoc/apicatalog/internal/utils"
)

const maxBodySize = 16 << 20

// BreakerConfig tunes the circuit breaker wrapped around registry calls.
type BreakerConfig struct {
	MaxRequests  uint32        // probes allowed while half-open
	Interval     time.Duration // closed-state counter reset period
	Timeout      time.Duration // open-state duration before probing
	MinRequests  uint32
	FailureRatio float64
}

// EurekaConfig configures the Eureka REST client.
type EurekaConfig struct {
	BaseURL    string // e.g. http://discovery:10011/eureka
	Timeout    time.Duration
	Breaker    BreakerConfig
	HTTPClient *http.Client
}

// Eureka reads the registry over the Eureka REST API.
type Eureka struct {
	base     string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[[]byte]
	log      logger.Logger
	measures *metrics.Measures
}

var _ Client = (*Eureka)(nil)

func NewEureka(cfg EurekaConfig, log logger.Logger, m *metrics.Measures) (*Eureka, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("registry base url is empty")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid registry base url %q: %w", base, err)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	e := &Eureka{base: base, http: hc, log: log, measures: m}
	e.breaker = gobreaker.NewCircuitBreaker[[]byte](e.settings(cfg.Breaker))
	return e, nil
}

func (e *Eureka) settings(cfg BreakerConfig) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "registry",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.log.Warn("registry circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
			if e.measures != nil {
				e.measures.BreakerState.Set(float64(to))
			}
		},
		// An unknown service is an answer, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
	}
}

// BreakerState reports the breaker state as closed, half-open or open.
func (e *Eureka) BreakerState() string {
	return e.breaker.State().String()
}

func (e *Eureka) GetApplications(ctx context.Context, deltaOnly bool) (*domain.Applications, error) {
	path := "/apps"
	if deltaOnly {
		path = "/apps/delta"
	}

	body, err := e.fetch(ctx, path)
	if err != nil {
		return nil, err
	}

	var env applicationsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return env.Applications.toDomain(), nil
}

func (e *Eureka) GetInstance(ctx context.Context, serviceID string) (*domain.Instance, error) {
	id := domain.NormalizeServiceID(serviceID)
	if id == "" {
		return nil, ErrNotFound
	}
	path := "/apps/" + url.PathEscape(strings.ToUpper(id))

	body, err := e.fetch(ctx, path)
	if err != nil {
		return nil, err
	}

	var env applicationEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	app := env.Application.toDomain()
	if len(app.Instances) == 0 {
		return nil, ErrNotFound
	}
	for _, inst := range app.Instances {
		if inst.Status == domain.StatusUp {
			return inst, nil
		}
	}
	return app.Instances[0], nil
}

func (e *Eureka) fetch(ctx context.Context, path string) ([]byte, error) {
	body, err := e.breaker.Execute(func() ([]byte, error) {
		return e.get(ctx, path)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return body, err
}

func (e *Eureka) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.base+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", ErrUnavailable, path, err)
	}
	defer utils.Close(resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: GET %s: status %d", ErrUnavailable, path, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrUnavailable, path, err)
	}
	return body, nil
}
