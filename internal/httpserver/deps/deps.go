package deps

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/MrSnakeDoc/apicatalog/internal/domain"
	"github.com/MrSnakeDoc/apicatalog/internal/logger"
	redisstore "github.com/MrSnakeDoc/apicatalog/internal/store/redis"
)

// Catalog is the read side served by the container endpoints.
type Catalog interface {
	Snapshot() []*domain.Container
	Container(id string) (*domain.Container, bool)
	RecentEvents() []domain.ContainerEvent
}

// RawServices is the raw registry view.
type RawServices interface {
	Get(serviceID string) (*domain.Application, bool)
	Count() int
	Watermark() domain.Watermark
	GetLastUpdate() time.Time
}

// Readiness reports the bootstrap state.
type Readiness interface {
	Done() bool
	Degraded() bool
}

// Breaker reports the registry circuit breaker state.
type Breaker interface {
	BreakerState() string
}

// EventHistory reads back published container events.
type EventHistory interface {
	History(ctx context.Context, count int64) ([]redisstore.StoredEvent, error)
}

type Deps struct {
	Logger       logger.Logger
	StartTime    time.Time
	Version      string
	Commit       string
	BuildDate    string
	GoVersion    string
	AllowedHosts []string // Host headers allowed to access the API
	AllowedCIDRS []string // IPs allowed to access probe and admin endpoints
	TrustProxy   bool     // true if running behind a trusted reverse proxy

	Catalog        Catalog
	Services       RawServices
	Bootstrap      Readiness
	Registry       Breaker
	ContainerCount func() int // number of cached containers

	RedisClient *redis.Client // nil when event publication is disabled
	Events      EventHistory  // nil when event publication is disabled

	Metrics http.Handler // Prometheus exposition, nil to disable /metrics

	RefreshTrigger chan<- struct{} // manual refresh of the registry delta
	RefreshLimiter *rate.Limiter   // throttles POST /refresh, nil for no limit

	RateLimitRPS   float64 // per-client limit on the catalog API, 0 disables
	RateLimitBurst int
}
