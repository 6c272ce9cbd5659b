package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrSnakeDoc/apicatalog/internal/domain"
	"github.com/MrSnakeDoc/apicatalog/internal/logger"
	"github.com/MrSnakeDoc/apicatalog/internal/metrics"
)

const fullPayload = `{
  "applications": {
    "versions__delta": "1",
    "apps__hashcode": "UP_3_",
    "application": [
      {
        "name": "DEMOAPPS",
        "instance": [
          {
            "instanceId": "host:demoapps:1",
            "app": "DEMOAPPS",
            "hostName": "host",
            "ipAddr": "10.0.0.1",
            "status": "UP",
            "homePageUrl": "https://host:10012/",
            "port": {"$": 10012, "@enabled": "false"},
            "securePort": {"$": 10013, "@enabled": "true"},
            "metadata": {"@class": "java.util.Collections$EmptyMap", "apiml.catalog.tile.id": "demoapps"}
          },
          {
            "instanceId": "host:demoapps:2",
            "app": "DEMOAPPS",
            "hostName": "host",
            "status": "DOWN",
            "port": {"$": 10014, "@enabled": true},
            "securePort": {"$": 0, "@enabled": false}
          }
        ]
      },
      {
        "name": "GATEWAY",
        "instance": {
          "instanceId": "gw:gateway:1",
          "hostName": "gw",
          "status": "UP",
          "port": {"$": 10010, "@enabled": "true"},
          "securePort": {"$": 10010, "@enabled": "true"}
        }
      }
    ]
  }
}`

const deltaPayload = `{
  "applications": {
    "apps__hashcode": "UP_2_",
    "application": {
      "name": "DEMOAPPS",
      "instance": [
        {"instanceId": "host:demoapps:2", "app": "DEMOAPPS", "status": "UP", "actionType": "MODIFIED"}
      ]
    }
  }
}`

const appPayload = `{
  "application": {
    "name": "GATEWAY",
    "instance": [
      {"instanceId": "gw:1", "hostName": "gw1", "status": "STARTING"},
      {"instanceId": "gw:2", "hostName": "gw2", "status": "UP"}
    ]
  }
}`

func newTestServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/eureka/apps", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			http.Error(w, "json only", http.StatusNotAcceptable)
			return
		}
		_, _ = w.Write([]byte(fullPayload))
	})
	mux.HandleFunc("/eureka/apps/delta", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(deltaPayload))
	})
	mux.HandleFunc("/eureka/apps/GATEWAY", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(appPayload))
	})
	mux.HandleFunc("/eureka/apps/BROKEN", func(w http.ResponseWriter, _ *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server, b BreakerConfig) *Eureka {
	t.Helper()
	if b.FailureRatio == 0 {
		b = BreakerConfig{MaxRequests: 1, Timeout: time.Minute, MinRequests: 100, FailureRatio: 1}
	}
	e, err := NewEureka(EurekaConfig{BaseURL: srv.URL + "/eureka/", Timeout: 2 * time.Second, Breaker: b}, logger.NewNop(), metrics.New())
	if err != nil {
		t.Fatalf("NewEureka: %v", err)
	}
	return e
}

func TestGetApplicationsFull(t *testing.T) {
	e := newTestClient(t, newTestServer(t, nil), BreakerConfig{})

	apps, err := e.GetApplications(context.Background(), false)
	if err != nil {
		t.Fatalf("GetApplications: %v", err)
	}
	if apps.Watermark != "UP_3_" {
		t.Errorf("watermark = %q, want UP_3_", apps.Watermark)
	}
	if len(apps.Applications) != 2 {
		t.Fatalf("applications = %d, want 2", len(apps.Applications))
	}

	demo := apps.Find("demoapps")
	if demo == nil || len(demo.Instances) != 2 {
		t.Fatalf("demoapps not decoded: %+v", demo)
	}
	first := demo.Instances[0]
	if first.Port != 10012 || first.SecurePort != 10013 || !first.SecurePortEnabled {
		t.Errorf("ports decoded wrong: %+v", first)
	}
	if _, ok := first.Metadata["@class"]; ok {
		t.Error("@class marker should be dropped from metadata")
	}
	if first.Metadata["apiml.catalog.tile.id"] != "demoapps" {
		t.Errorf("metadata = %v", first.Metadata)
	}
	if demo.Instances[1].SecurePortEnabled {
		t.Error("boolean @enabled=false decoded as true")
	}

	gw := apps.Find("GATEWAY")
	if gw == nil || len(gw.Instances) != 1 || gw.Instances[0].AppName != "GATEWAY" {
		t.Fatalf("single-object instance list not decoded: %+v", gw)
	}
}

func TestGetApplicationsDelta(t *testing.T) {
	e := newTestClient(t, newTestServer(t, nil), BreakerConfig{})

	apps, err := e.GetApplications(context.Background(), true)
	if err != nil {
		t.Fatalf("GetApplications: %v", err)
	}
	if len(apps.Applications) != 1 {
		t.Fatalf("applications = %d, want 1", len(apps.Applications))
	}
	inst := apps.Applications[0].Instances[0]
	if inst.ActionType != domain.ActionModified {
		t.Errorf("action = %q, want MODIFIED", inst.ActionType)
	}
}

func TestGetInstance(t *testing.T) {
	e := newTestClient(t, newTestServer(t, nil), BreakerConfig{})

	inst, err := e.GetInstance(context.Background(), "gateway")
	if err != nil {
		t.Fatalf("GetInstance: %v", err)
	}
	if inst.InstanceID != "gw:2" {
		t.Errorf("instance = %q, want the UP one (gw:2)", inst.InstanceID)
	}

	_, err = e.GetInstance(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("missing service err = %v, want ErrNotFound", err)
	}
}

func TestBreakerOpensOnFailures(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, &hits)
	e := newTestClient(t, srv, BreakerConfig{MaxRequests: 1, Timeout: time.Minute, MinRequests: 2, FailureRatio: 0.5})

	for i := 0; i < 2; i++ {
		if _, err := e.GetInstance(context.Background(), "broken"); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("err = %v, want ErrUnavailable", err)
		}
	}
	if e.BreakerState() != "open" {
		t.Fatalf("breaker state = %s, want open", e.BreakerState())
	}

	_, err := e.GetInstance(context.Background(), "broken")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("open breaker err = %v, want ErrUnavailable", err)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("backend hits = %d, want 2 (open breaker must short-circuit)", got)
	}
}

func TestNotFoundDoesNotTripBreaker(t *testing.T) {
	e := newTestClient(t, newTestServer(t, nil), BreakerConfig{MaxRequests: 1, Timeout: time.Minute, MinRequests: 1, FailureRatio: 0.1})

	for i := 0; i < 3; i++ {
		if _, err := e.GetInstance(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	}
	if e.BreakerState() != "closed" {
		t.Errorf("breaker state = %s, want closed", e.BreakerState())
	}
}

func TestNewEurekaRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "  ", "not a url"} {
		if _, err := NewEureka(EurekaConfig{BaseURL: raw}, logger.NewNop(), nil); err == nil {
			t.Errorf("NewEureka(%q) = nil error", raw)
		}
	}
}
