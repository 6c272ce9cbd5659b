package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrSnakeDoc/apicatalog/internal/domain"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Registry
	RegistryURL      string        // Eureka base URL (ex: http://discovery:10011/eureka)
	RegistryTimeout  time.Duration // per-request HTTP timeout
	CatalogServiceID string        // service id the catalog registers under
	GatewayServiceID string        // service id of the API gateway

	// Circuit breaker around registry calls
	BreakerMaxRequests  uint32        // probes allowed while half-open
	BreakerInterval     time.Duration // closed-state counter reset period (0 = never)
	BreakerTimeout      time.Duration // open-state duration before probing
	BreakerMinRequests  uint32        // requests before the failure ratio is considered
	BreakerFailureRatio float64       // trip when failures/requests reaches this ratio

	// Bootstrap
	RetryMaxAttempts int           // bootstrap attempts (default: 5)
	RetryDelay       time.Duration // wait between bootstrap attempts

	// Refresh loop
	RefreshInitialDelay time.Duration // wait before the first delta fetch
	RefreshPeriod       time.Duration // delta fetch period
	WorkerTimeout       time.Duration // ceiling for one apply cycle
	RecentThreshold     time.Duration // "recently updated" window for events
	EvictDeleted        bool          // drop DELETED instances instead of only marking them DOWN
	ManualRefreshEvery  time.Duration // min interval between POST /refresh triggers

	MetadataFile string              // optional YAML overriding metadata key names
	MetadataKeys domain.MetadataKeys // defaults merged with MetadataFile

	// Redis (optional, empty address = event publication disabled)
	RedisAddr           string        // ex: "localhost:6379"
	RedisUser           string        // optional
	RedisPassword       string        // optional
	RedisDB             int           // Redis DB number
	RedisDT             time.Duration // Redis dial timeout (ex: 5s)
	RedisRT             time.Duration // Redis read timeout (ex: 3s)
	RedisWT             time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait        time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout    time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize       int           // Redis connection pool size
	RedisConnectTimeout time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval  time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisMaxAttempts    int           // ping attempts before giving up
	RedisWarnThreshold  int           // warn after this many attempts
	EventStreamMaxLen   int64         // approximate cap of the event stream
	SnapshotGCInterval  time.Duration // period of the stale snapshot collector

	AllowedHosts []string // optional, restrict access to specific Host headers
	AllowedCIDRS []string // optional, restrict access to specific IP (e.g. "1.2.3.4, 5.6.7.8")
	TrustProxy   bool     // true => trust X-Forwarded-For headers

	RateLimitRPS   float64 // per-client requests per second on the API (0 = disabled)
	RateLimitBurst int     // per-client burst
}

func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      getenv("CATALOG_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("CATALOG_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("CATALOG_LOG_LEVEL", "info"),
		PrettyLog: mustBool("CATALOG_PRETTY_LOG", false),

		// Registry
		RegistryURL:      requireEnv("CATALOG_REGISTRY_URL"),
		RegistryTimeout:  mustDuration("CATALOG_REGISTRY_TIMEOUT", 10*time.Second),
		CatalogServiceID: getenv("CATALOG_SERVICE_ID", "apicatalog"),
		GatewayServiceID: getenv("CATALOG_GATEWAY_SERVICE_ID", "gateway"),

		BreakerMaxRequests:  uint32(getenvInt("CATALOG_BREAKER_MAX_REQUESTS", 1)),
		BreakerInterval:     mustDuration("CATALOG_BREAKER_INTERVAL", time.Minute),
		BreakerTimeout:      mustDuration("CATALOG_BREAKER_TIMEOUT", 30*time.Second),
		BreakerMinRequests:  uint32(getenvInt("CATALOG_BREAKER_MIN_REQUESTS", 5)),
		BreakerFailureRatio: getenvFloat("CATALOG_BREAKER_FAILURE_RATIO", 0.6),

		// Bootstrap
		RetryMaxAttempts: getenvInt("CATALOG_RETRY_MAX_ATTEMPTS", 5),
		RetryDelay:       mustDuration("CATALOG_RETRY_DELAY", 2*time.Second),

		// Refresh loop
		RefreshInitialDelay: mustDuration("CATALOG_REFRESH_INITIAL_DELAY", 10*time.Second),
		RefreshPeriod:       mustDuration("CATALOG_REFRESH_PERIOD", 30*time.Second),
		WorkerTimeout:       mustDuration("CATALOG_WORKER_TIMEOUT", 20*time.Second),
		RecentThreshold:     mustDuration("CATALOG_RECENT_THRESHOLD", 30*time.Second),
		EvictDeleted:        mustBool("CATALOG_EVICT_DELETED", false),
		ManualRefreshEvery:  mustDuration("CATALOG_MANUAL_REFRESH_INTERVAL", 10*time.Second),

		MetadataFile: getenv("CATALOG_METADATA_FILE", ""),

		// Redis settings
		RedisAddr:           getenv("CATALOG_REDIS_ADDR", ""),
		RedisUser:           getenv("CATALOG_REDIS_USERNAME", ""),
		RedisPassword:       getenv("CATALOG_REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("CATALOG_REDIS_DB", 0),
		RedisDT:             mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:             mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:             mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:        mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:    mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:       getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout: mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:  mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisMaxAttempts:    getenvInt("REDIS_MAX_ATTEMPTS", 10),
		RedisWarnThreshold:  getenvInt("REDIS_WARN_THRESHOLD", 3),
		EventStreamMaxLen:   int64(getenvInt("CATALOG_EVENT_STREAM_MAXLEN", 10000)),
		SnapshotGCInterval:  mustDuration("CATALOG_SNAPSHOT_GC_INTERVAL", time.Hour),

		// Access restrictions
		AllowedHosts: splitAndTrim(getenv("CATALOG_ALLOWED_HOSTS", "")),
		AllowedCIDRS: splitAndTrim(getenv("CATALOG_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("CATALOG_TRUST_PROXY", false),

		RateLimitRPS:   getenvFloat("CATALOG_RATE_LIMIT_RPS", 20),
		RateLimitBurst: getenvInt("CATALOG_RATE_LIMIT_BURST", 40),
	}

	keys, err := LoadMetadataKeys(cfg.MetadataFile)
	if err != nil {
		panic(fmt.Sprintf("❌ FATAL: %v", err))
	}
	cfg.MetadataKeys = keys

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("❌ FATAL: %v", err))
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		if cfgCopy.RedisPassword != "" {
			cfgCopy.RedisPassword = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// Validate checks the values the scheduler cannot run without.
func (c *Config) Validate() error {
	switch {
	case c.RetryMaxAttempts < 1:
		return fmt.Errorf("CATALOG_RETRY_MAX_ATTEMPTS must be >= 1, got %d", c.RetryMaxAttempts)
	case c.RefreshPeriod <= 0:
		return fmt.Errorf("CATALOG_REFRESH_PERIOD must be > 0, got %v", c.RefreshPeriod)
	case c.WorkerTimeout <= 0:
		return fmt.Errorf("CATALOG_WORKER_TIMEOUT must be > 0, got %v", c.WorkerTimeout)
	case c.RecentThreshold <= 0:
		return fmt.Errorf("CATALOG_RECENT_THRESHOLD must be > 0, got %v", c.RecentThreshold)
	case c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1:
		return fmt.Errorf("CATALOG_BREAKER_FAILURE_RATIO must be in (0,1], got %v", c.BreakerFailureRatio)
	}
	return nil
}

// RedisEnabled reports whether event publication to Redis is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// LoadMetadataKeys returns the default metadata keys, overridden by the YAML file at path if set.
func LoadMetadataKeys(path string) (domain.MetadataKeys, error) {
	keys := domain.DefaultMetadataKeys()
	if path == "" {
		return keys, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return keys, fmt.Errorf("failed to read metadata file %s: %w", path, err)
	}

	var override domain.MetadataKeys
	if err := yaml.Unmarshal(data, &override); err != nil {
		return keys, fmt.Errorf("failed to parse metadata file %s: %w", path, err)
	}
	return keys.Merge(override), nil
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
