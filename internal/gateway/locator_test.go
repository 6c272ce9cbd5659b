package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/MrSnakeDoc/apicatalog/internal/cache"
	"github.com/MrSnakeDoc/apicatalog/internal/domain"
	"github.com/MrSnakeDoc/apicatalog/internal/logger"
	"github.com/MrSnakeDoc/apicatalog/internal/registry"
)

type fakeClient struct {
	inst *domain.Instance
	err  error
}

func (f *fakeClient) GetInstance(context.Context, string) (*domain.Instance, error) {
	return f.inst, f.err
}

func (f *fakeClient) GetApplications(context.Context, bool) (*domain.Applications, error) {
	return &domain.Applications{}, nil
}

func located(t *testing.T) *Locator {
	t.Helper()
	l := NewLocator(&fakeClient{inst: &domain.Instance{
		InstanceID:        "gw:1",
		HostName:          "gateway.example",
		Port:              10010,
		SecurePort:        10010,
		SecurePortEnabled: true,
	}}, "GATEWAY", logger.NewNop())
	if err := l.Locate(context.Background()); err != nil {
		t.Fatalf("Locate: %v", err)
	}
	return l
}

func TestLocate(t *testing.T) {
	l := NewLocator(&fakeClient{err: registry.ErrNotFound}, "gateway", logger.NewNop())
	if err := l.Locate(context.Background()); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("Locate err = %v, want ErrNotFound", err)
	}
	if l.Initialized() {
		t.Fatal("locator initialized after failed lookup")
	}

	l = located(t)
	if !l.Initialized() {
		t.Fatal("locator not initialized after successful lookup")
	}
	scheme, host, _ := l.Address()
	if scheme != "https" || host != "gateway.example:10010" {
		t.Errorf("address = %s://%s", scheme, host)
	}
}

func TestTransformURL(t *testing.T) {
	l := located(t)

	routes := []domain.Route{
		{GatewayURL: "api/v1", ServiceURL: "/demoapps/api/v1"},
		{GatewayURL: "ui/v1", ServiceURL: "/demoapps"},
	}

	tests := []struct {
		name   string
		raw    string
		routes []domain.Route
		want   string
	}{
		{
			name:   "longest prefix wins",
			raw:    "https://host:10012/demoapps/api/v1/docs?x=1",
			routes: routes,
			want:   "https://gateway.example:10010/greeter/api/v1/docs?x=1",
		},
		{
			name:   "ui route",
			raw:    "https://host:10012/demoapps/index.html",
			routes: routes,
			want:   "https://gateway.example:10010/greeter/ui/v1/index.html",
		},
		{
			name:   "root service url",
			raw:    "http://host:8080/",
			routes: []domain.Route{{GatewayURL: "ui/v1", ServiceURL: "/"}},
			want:   "https://gateway.example:10010/greeter/ui/v1/",
		},
		{
			name:   "segment boundary respected",
			raw:    "https://host:10012/demoappsX/page",
			routes: routes[1:],
			want:   "https://host:10012/demoappsX/page",
		},
		{
			name:   "no routes",
			raw:    "https://host:10012/demoapps",
			routes: nil,
			want:   "https://host:10012/demoapps",
		},
		{
			name:   "relative url untouched",
			raw:    "/demoapps",
			routes: routes,
			want:   "/demoapps",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := l.TransformURL("GREETER", tt.raw, tt.routes); got != tt.want {
				t.Errorf("TransformURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTransformURLWithoutGateway(t *testing.T) {
	l := NewLocator(&fakeClient{}, "gateway", logger.NewNop())
	raw := "https://host:10012/demoapps"
	if got := l.TransformURL("demoapps", raw, []domain.Route{{GatewayURL: "ui/v1", ServiceURL: "/"}}); got != raw {
		t.Errorf("TransformURL() = %q, want unchanged", got)
	}
}

func TestLateGatewayRewritesKnownServices(t *testing.T) {
	client := &fakeClient{err: registry.ErrNotFound}
	l := NewLocator(client, "gateway", logger.NewNop())
	keys := domain.DefaultMetadataKeys()
	containers := cache.NewContainers(cache.NewServices(), keys, l)

	inst := &domain.Instance{
		InstanceID:  "host:greeter:1",
		AppName:     "GREETER",
		HostName:    "host",
		Port:        8080,
		Status:      domain.StatusUp,
		HomePageURL: "http://host:8080/ui/index.html",
		Metadata: map[string]string{
			keys.FamilyID:                  "demoapps",
			"apiml.routes.ui_v1.gatewayUrl": "ui/v1",
			"apiml.routes.ui_v1.serviceUrl": "/ui",
		},
	}

	cont, err := containers.CreateOrMerge("demoapps", inst)
	if err != nil {
		t.Fatalf("CreateOrMerge: %v", err)
	}
	if got := cont.ServiceByID("greeter").HomePageURL; got != inst.HomePageURL {
		t.Fatalf("home page before gateway = %q, want it untouched", got)
	}

	client.inst = &domain.Instance{InstanceID: "gw:1", HostName: "gateway.example", Port: 10010}
	client.err = nil
	if err := l.Locate(context.Background()); err != nil {
		t.Fatalf("Locate: %v", err)
	}

	cont, err = containers.CreateOrMerge("demoapps", inst)
	if err != nil {
		t.Fatalf("CreateOrMerge: %v", err)
	}
	want := "http://gateway.example:10010/greeter/ui/v1/index.html"
	if got := cont.ServiceByID("greeter").HomePageURL; got != want {
		t.Errorf("home page after gateway located = %q, want %q", got, want)
	}
	if n := cont.ServiceByID("greeter").InstanceCount(); n != 1 {
		t.Errorf("instances = %d, want 1", n)
	}
}
