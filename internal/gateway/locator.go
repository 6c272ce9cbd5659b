package gateway

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/MrSnakeDoc/apicatalog/internal/domain"
	"github.com/MrSnakeDoc/apicatalog/internal/logger"
	"github.com/MrSnakeDoc/apicatalog/internal/registry"
)

// Locator resolves the API gateway through the registry and rewrites
// service-local URLs into gateway-routed ones.
type Locator struct {
	client    registry.Client
	serviceID string
	log       logger.Logger

	mu     sync.RWMutex
	scheme string
	host   string
}

var _ domain.URLTransformer = (*Locator)(nil)

func NewLocator(client registry.Client, serviceID string, log logger.Logger) *Locator {
	return &Locator{
		client:    client,
		serviceID: domain.NormalizeServiceID(serviceID),
		log:       log,
	}
}

// Locate looks the gateway up and remembers its address. Once an address is
// known, failed lookups keep the previous one.
func (l *Locator) Locate(ctx context.Context) error {
	inst, err := l.client.GetInstance(ctx, l.serviceID)
	if err != nil {
		return fmt.Errorf("locate gateway %q: %w", l.serviceID, err)
	}

	scheme, host := "http", net.JoinHostPort(inst.HostName, strconv.Itoa(inst.Port))
	if inst.SecurePortEnabled {
		scheme, host = "https", net.JoinHostPort(inst.HostName, strconv.Itoa(inst.SecurePort))
	}

	l.mu.Lock()
	changed := l.scheme != scheme || l.host != host
	l.scheme, l.host = scheme, host
	l.mu.Unlock()

	if changed {
		l.log.Info("gateway located",
			logger.String("scheme", scheme),
			logger.String("host", host),
			logger.String("instance", inst.InstanceID),
		)
	}
	return nil
}

// Initialized reports whether the gateway address is known.
func (l *Locator) Initialized() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.host != ""
}

// Address returns the gateway scheme and host:port.
func (l *Locator) Address() (scheme, host string, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.scheme, l.host, l.host != ""
}

// TransformURL rewrites rawURL to <scheme>://<gateway>/<serviceID>/<gatewayUrl><rest>
// using the route whose serviceUrl is the longest prefix of the URL path.
// The URL is returned unchanged when the gateway is unknown or no route matches.
func (l *Locator) TransformURL(serviceID, rawURL string, routes []domain.Route) string {
	scheme, host, ok := l.Address()
	if !ok || len(routes) == 0 {
		return rawURL
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	var (
		best  domain.Route
		match string
		found bool
	)
	for _, r := range routes {
		prefix := "/" + strings.Trim(r.ServiceURL, "/")
		if !hasPathPrefix(path, prefix) {
			continue
		}
		if !found || len(prefix) > len(match) {
			best, match, found = r, prefix, true
		}
	}
	if !found {
		return rawURL
	}

	rest := path
	if match != "/" {
		rest = strings.TrimPrefix(path, match)
	}

	out := url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     "/" + domain.NormalizeServiceID(serviceID) + "/" + best.GatewayURL + rest,
		RawQuery: u.RawQuery,
		Fragment: u.Fragment,
	}
	return out.String()
}

// hasPathPrefix matches whole path segments only: /api matches /api/v1 but not /apis.
func hasPathPrefix(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}
