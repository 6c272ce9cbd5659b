package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// URLTransformer rewrites a service-local URL into its gateway-routed form.
type URLTransformer interface {
	TransformURL(serviceID, rawURL string, routes []Route) string
}

// Service represents one logical API inside a catalog container.
//
// It is built from the first observed instance and then tracks every
// instance id currently backing it.
//
// Two Service values are the same service when their ids match, ignoring case.
// The instance set is deliberately not part of the identity: merging a second
// instance of a known service must extend that service, not add a sibling.
type Service struct {
	// ─────────────────────────────
	// Identity
	// ─────────────────────────────

	// ServiceID is the registry app name, lower-cased.
	ServiceID string `json:"serviceId"`

	// ─────────────────────────────
	// Description (from the first observed instance, home page from the latest)
	// ─────────────────────────────

	Title       string             `json:"title"`
	Description string             `json:"description"`
	Secured     bool               `json:"secured"`
	BaseURL     string             `json:"baseUrl"`
	HomePageURL string             `json:"homePageUrl,omitempty"`
	BasePath    string             `json:"basePath,omitempty"`
	APIs        map[string]APIInfo `json:"apis,omitempty"`

	// SSO is the capability of the instance the service was built from.
	SSO bool `json:"sso"`

	// ─────────────────────────────
	// Derived on read from the raw registry view
	// ─────────────────────────────

	// SSOAllInstances is true only if every registered instance supports SSO.
	SSOAllInstances bool `json:"ssoAllInstances"`

	// Status is UP when at least one registered instance is UP.
	Status InstanceStatus `json:"status"`

	// ─────────────────────────────
	// Backing instances
	// ─────────────────────────────

	instanceIDs map[string]struct{}
}

// NewService builds the service described by inst.
func NewService(keys MetadataKeys, inst *Instance, urls URLTransformer) (*Service, error) {
	serviceID := inst.ServiceID()
	if serviceID == "" {
		return nil, fmt.Errorf("instance %q has no app name", inst.InstanceID)
	}

	apis, err := keys.APIs(inst)
	if err != nil {
		return nil, fmt.Errorf("service %s: %w", serviceID, err)
	}
	routes, err := keys.Routes(inst)
	if err != nil {
		return nil, fmt.Errorf("service %s: %w", serviceID, err)
	}

	homePage := inst.HomePageURL
	if homePage != "" && urls != nil {
		homePage = urls.TransformURL(serviceID, homePage, routes)
	}

	svc := &Service{
		ServiceID:   serviceID,
		Title:       inst.Metadata[keys.ServiceTitle],
		Description: inst.Metadata[keys.ServiceDescription],
		Secured:     inst.SecurePortEnabled,
		BaseURL:     baseURL(inst),
		HomePageURL: homePage,
		BasePath:    basePath(serviceID, routes),
		APIs:        apis,
		SSO:         keys.SSO(inst),
		Status:      inst.Status,
		instanceIDs: map[string]struct{}{inst.InstanceID: {}},
	}
	svc.SSOAllInstances = svc.SSO
	return svc, nil
}

// Equal reports whether s and o identify the same service.
// Only the service id takes part; see the type documentation.
func (s *Service) Equal(o *Service) bool {
	if s == nil || o == nil {
		return s == o
	}
	return NormalizeServiceID(s.ServiceID) == NormalizeServiceID(o.ServiceID)
}

// Key is the identity key of the service inside a container.
func (s *Service) Key() string {
	return NormalizeServiceID(s.ServiceID)
}

// AddInstance records instanceID as backing the service. Adding a known id is a no-op.
func (s *Service) AddInstance(instanceID string) {
	if s.instanceIDs == nil {
		s.instanceIDs = make(map[string]struct{})
	}
	s.instanceIDs[instanceID] = struct{}{}
}

// RemoveInstance forgets instanceID.
func (s *Service) RemoveInstance(instanceID string) {
	delete(s.instanceIDs, instanceID)
}

// HasInstance reports whether instanceID backs the service.
func (s *Service) HasInstance(instanceID string) bool {
	_, ok := s.instanceIDs[instanceID]
	return ok
}

// InstanceCount returns the number of backing instances.
func (s *Service) InstanceCount() int {
	return len(s.instanceIDs)
}

// InstanceIDs returns the backing instance ids in sorted order.
func (s *Service) InstanceIDs() []string {
	ids := make([]string, 0, len(s.instanceIDs))
	for id := range s.instanceIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns a deep copy of the service.
func (s *Service) Clone() *Service {
	c := *s
	if s.APIs != nil {
		c.APIs = make(map[string]APIInfo, len(s.APIs))
		for k, v := range s.APIs {
			c.APIs[k] = v
		}
	}
	c.instanceIDs = make(map[string]struct{}, len(s.instanceIDs))
	for id := range s.instanceIDs {
		c.instanceIDs[id] = struct{}{}
	}
	return &c
}

// MarshalJSON includes the backing instance ids.
func (s *Service) MarshalJSON() ([]byte, error) {
	type plain Service
	return json.Marshal(struct {
		*plain
		InstanceIDs []string `json:"instanceIds"`
	}{
		plain:       (*plain)(s),
		InstanceIDs: s.InstanceIDs(),
	})
}

func baseURL(inst *Instance) string {
	host := inst.HostName
	if host == "" {
		host = inst.IPAddr
	}
	if host == "" {
		return ""
	}
	if inst.SecurePortEnabled {
		return "https://" + host + ":" + strconv.Itoa(inst.SecurePort)
	}
	return "http://" + host + ":" + strconv.Itoa(inst.Port)
}

// basePath prefers the first "api" route, then the first route at all.
func basePath(serviceID string, routes []Route) string {
	if len(routes) == 0 {
		return ""
	}
	chosen := routes[0]
	for _, r := range routes {
		if strings.HasPrefix(r.GatewayURL, "api") {
			chosen = r
			break
		}
	}
	return "/" + serviceID + "/" + chosen.GatewayURL
}
