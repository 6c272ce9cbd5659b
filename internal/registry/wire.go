package registry

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/MrSnakeDoc/apicatalog/internal/domain"
)

// Eureka JSON envelopes.
type applicationsEnvelope struct {
	Applications wireApplications `json:"applications"`
}

type applicationEnvelope struct {
	Application wireApplication `json:"application"`
}

type wireApplications struct {
	AppsHashCode string                     `json:"apps__hashcode"`
	Application  oneOrMany[wireApplication] `json:"application"`
}

type wireApplication struct {
	Name     string                  `json:"name"`
	Instance oneOrMany[wireInstance] `json:"instance"`
}

type wireInstance struct {
	InstanceID  string            `json:"instanceId"`
	App         string            `json:"app"`
	HostName    string            `json:"hostName"`
	IPAddr      string            `json:"ipAddr"`
	Status      string            `json:"status"`
	ActionType  string            `json:"actionType"`
	HomePageURL string            `json:"homePageUrl"`
	Port        wirePort          `json:"port"`
	SecurePort  wirePort          `json:"securePort"`
	Metadata    map[string]string `json:"metadata"`
}

// wirePort is encoded as {"$": 8080, "@enabled": "true"}.
type wirePort struct {
	Port    int      `json:"$"`
	Enabled flexBool `json:"@enabled"`
}

// oneOrMany accepts either a JSON array or a single object.
type oneOrMany[T any] []T

func (o *oneOrMany[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*o = nil
		return nil
	case b[0] == '[':
		var many []T
		if err := json.Unmarshal(b, &many); err != nil {
			return err
		}
		*o = many
		return nil
	default:
		var one T
		if err := json.Unmarshal(b, &one); err != nil {
			return err
		}
		*o = oneOrMany[T]{one}
		return nil
	}
}

// flexBool accepts true, "true" and friends.
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*f = false
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	*f = flexBool(v)
	return nil
}

func (w wireInstance) toDomain(appName string) *domain.Instance {
	app := w.App
	if app == "" {
		app = appName
	}
	var metadata map[string]string
	if len(w.Metadata) > 0 {
		metadata = make(map[string]string, len(w.Metadata))
		for k, v := range w.Metadata {
			if k == "@class" {
				continue
			}
			metadata[k] = v
		}
	}
	return &domain.Instance{
		InstanceID:        w.InstanceID,
		AppName:           app,
		HostName:          w.HostName,
		IPAddr:            w.IPAddr,
		Port:              w.Port.Port,
		SecurePort:        w.SecurePort.Port,
		SecurePortEnabled: bool(w.SecurePort.Enabled),
		HomePageURL:       w.HomePageURL,
		Status:            domain.InstanceStatus(strings.ToUpper(w.Status)),
		ActionType:        domain.ActionType(strings.ToUpper(w.ActionType)),
		Metadata:          metadata,
	}
}

func (w wireApplication) toDomain() *domain.Application {
	app := &domain.Application{Name: w.Name, Instances: make([]*domain.Instance, 0, len(w.Instance))}
	for _, inst := range w.Instance {
		app.Instances = append(app.Instances, inst.toDomain(w.Name))
	}
	return app
}

func (w wireApplications) toDomain() *domain.Applications {
	out := &domain.Applications{
		Applications: make([]*domain.Application, 0, len(w.Application)),
		Watermark:    domain.Watermark(w.AppsHashCode),
	}
	for _, app := range w.Application {
		out.Applications = append(out.Applications, app.toDomain())
	}
	return out
}
