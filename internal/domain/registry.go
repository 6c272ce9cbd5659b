package domain

import "strings"

// InstanceStatus is the lifecycle status reported by the registry for one instance.
type InstanceStatus string

const (
	StatusUp           InstanceStatus = "UP"
	StatusDown         InstanceStatus = "DOWN"
	StatusStarting     InstanceStatus = "STARTING"
	StatusOutOfService InstanceStatus = "OUT_OF_SERVICE"
	StatusUnknown      InstanceStatus = "UNKNOWN"
)

// ActionType tags an instance inside a delta fetch. Full snapshots leave it empty.
type ActionType string

const (
	ActionAdded    ActionType = "ADDED"
	ActionModified ActionType = "MODIFIED"
	ActionDeleted  ActionType = "DELETED"
)

// Watermark is the opaque token attached to a delta fetch.
// Two fetches carrying the same watermark describe the same registry state.
type Watermark string

// Instance is one running process of a service as reported by the registry.
//
// The catalog only reads instances; the registry owns them.
type Instance struct {
	InstanceID string `json:"instanceId"`

	// AppName is the service id. The registry reports it upper-cased.
	AppName string `json:"app"`

	HostName          string            `json:"hostName"`
	IPAddr            string            `json:"ipAddr,omitempty"`
	Port              int               `json:"port,omitempty"`
	SecurePort        int               `json:"securePort,omitempty"`
	SecurePortEnabled bool              `json:"securePortEnabled"`
	HomePageURL       string            `json:"homePageUrl,omitempty"`
	Status            InstanceStatus    `json:"status"`
	ActionType        ActionType        `json:"actionType,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// ServiceID returns the normalized service id of the instance.
func (i *Instance) ServiceID() string {
	return NormalizeServiceID(i.AppName)
}

// Clone returns a deep copy of the instance.
func (i *Instance) Clone() *Instance {
	if i == nil {
		return nil
	}
	c := *i
	if i.Metadata != nil {
		c.Metadata = make(map[string]string, len(i.Metadata))
		for k, v := range i.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Application groups the instances registered under one service id.
type Application struct {
	Name      string      `json:"name"`
	Instances []*Instance `json:"instances"`
}

// Upsert merges inst into the application, replacing any instance with the same id.
func (a *Application) Upsert(inst *Instance) {
	for i, existing := range a.Instances {
		if existing.InstanceID == inst.InstanceID {
			a.Instances[i] = inst
			return
		}
	}
	a.Instances = append(a.Instances, inst)
}

// Remove drops the instance with the given id. It reports whether one was removed.
func (a *Application) Remove(instanceID string) bool {
	for i, existing := range a.Instances {
		if existing.InstanceID == instanceID {
			a.Instances = append(a.Instances[:i], a.Instances[i+1:]...)
			return true
		}
	}
	return false
}

// AnyUp reports whether at least one instance is UP.
func (a *Application) AnyUp() bool {
	for _, inst := range a.Instances {
		if inst.Status == StatusUp {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the application.
func (a *Application) Clone() *Application {
	if a == nil {
		return nil
	}
	c := &Application{Name: a.Name, Instances: make([]*Instance, 0, len(a.Instances))}
	for _, inst := range a.Instances {
		c.Instances = append(c.Instances, inst.Clone())
	}
	return c
}

// Applications is the result of one registry fetch, full or delta.
type Applications struct {
	Applications []*Application
	Watermark    Watermark
}

// Find returns the application registered under serviceID, or nil.
func (a *Applications) Find(serviceID string) *Application {
	id := NormalizeServiceID(serviceID)
	for _, app := range a.Applications {
		if NormalizeServiceID(app.Name) == id {
			return app
		}
	}
	return nil
}

// NormalizeServiceID lower-cases a service id. Service ids are case-insensitive.
func NormalizeServiceID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
