package domain

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrMalformedMetadata is returned when instance metadata cannot be parsed.
var ErrMalformedMetadata = errors.New("malformed instance metadata")

// MetadataKeys names the registry metadata entries the catalog reads.
type MetadataKeys struct {
	FamilyID           string `yaml:"familyId"`
	FamilyTitle        string `yaml:"familyTitle"`
	FamilyDescription  string `yaml:"familyDescription"`
	FamilyVersion      string `yaml:"familyVersion"`
	ServiceTitle       string `yaml:"serviceTitle"`
	ServiceDescription string `yaml:"serviceDescription"`
	APIEnabled         string `yaml:"apiEnabled"`
	AuthScheme         string `yaml:"authScheme"`
	AuthSSO            string `yaml:"authSso"`
	APIInfoPrefix      string `yaml:"apiInfoPrefix"`
	RoutesPrefix       string `yaml:"routesPrefix"`
}

// DefaultMetadataKeys returns the keys used by services onboarded with the standard enablers.
func DefaultMetadataKeys() MetadataKeys {
	return MetadataKeys{
		FamilyID:           "apiml.catalog.tile.id",
		FamilyTitle:        "apiml.catalog.tile.title",
		FamilyDescription:  "apiml.catalog.tile.description",
		FamilyVersion:      "apiml.catalog.tile.version",
		ServiceTitle:       "apiml.service.title",
		ServiceDescription: "apiml.service.description",
		APIEnabled:         "apiml.apiEnabled",
		AuthScheme:         "apiml.authentication.scheme",
		AuthSSO:            "apiml.authentication.sso",
		APIInfoPrefix:      "apiml.apiInfo.",
		RoutesPrefix:       "apiml.routes.",
	}
}

// Merge overrides every non-empty field of o onto k.
func (k MetadataKeys) Merge(o MetadataKeys) MetadataKeys {
	pick := func(cur, override string) string {
		if override != "" {
			return override
		}
		return cur
	}
	return MetadataKeys{
		FamilyID:           pick(k.FamilyID, o.FamilyID),
		FamilyTitle:        pick(k.FamilyTitle, o.FamilyTitle),
		FamilyDescription:  pick(k.FamilyDescription, o.FamilyDescription),
		FamilyVersion:      pick(k.FamilyVersion, o.FamilyVersion),
		ServiceTitle:       pick(k.ServiceTitle, o.ServiceTitle),
		ServiceDescription: pick(k.ServiceDescription, o.ServiceDescription),
		APIEnabled:         pick(k.APIEnabled, o.APIEnabled),
		AuthScheme:         pick(k.AuthScheme, o.AuthScheme),
		AuthSSO:            pick(k.AuthSSO, o.AuthSSO),
		APIInfoPrefix:      pick(k.APIInfoPrefix, o.APIInfoPrefix),
		RoutesPrefix:       pick(k.RoutesPrefix, o.RoutesPrefix),
	}
}

// APIInfo describes one API exposed by a service.
type APIInfo struct {
	APIID            string `json:"apiId"`
	Version          string `json:"version,omitempty"`
	GatewayURL       string `json:"gatewayUrl,omitempty"`
	SwaggerURL       string `json:"swaggerUrl,omitempty"`
	DocumentationURL string `json:"documentationUrl,omitempty"`
	IsDefault        bool   `json:"isDefault"`
}

// Key identifies the API inside a service's API map.
func (a APIInfo) Key() string {
	if a.Version == "" {
		return a.APIID
	}
	return a.APIID + " v" + a.Version
}

// Route maps a gateway path prefix to a service path prefix.
type Route struct {
	GatewayURL string
	ServiceURL string
}

// SSO-capable authentication schemes.
var ssoSchemes = map[string]bool{
	"httpbasicpassticket": true,
	"zowejwt":             true,
	"zosmf":               true,
	"safidt":              true,
	"x509":                true,
}

// FamilyOf returns the product-family id of the instance, or "" when absent.
func (k MetadataKeys) FamilyOf(inst *Instance) string {
	return strings.TrimSpace(inst.Metadata[k.FamilyID])
}

// IsAPIEnabled reports whether the instance exposes its APIs to the catalog.
// A missing or unparsable flag counts as enabled.
func (k MetadataKeys) IsAPIEnabled(inst *Instance) bool {
	v, ok := inst.Metadata[k.APIEnabled]
	if !ok {
		return true
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return true
	}
	return b
}

// SSO reports whether the instance supports single sign-on, either explicitly
// or through an SSO-capable authentication scheme.
func (k MetadataKeys) SSO(inst *Instance) bool {
	if b, err := strconv.ParseBool(strings.TrimSpace(inst.Metadata[k.AuthSSO])); err == nil && b {
		return true
	}
	return ssoSchemes[strings.ToLower(strings.TrimSpace(inst.Metadata[k.AuthScheme]))]
}

// APIs parses the per-API descriptors of the instance, keyed by APIInfo.Key.
func (k MetadataKeys) APIs(inst *Instance) (map[string]APIInfo, error) {
	groups, err := k.indexed(inst, k.APIInfoPrefix)
	if err != nil {
		return nil, err
	}

	apis := make(map[string]APIInfo, len(groups))
	for _, idx := range sortedKeys(groups) {
		fields := groups[idx]
		info := APIInfo{
			APIID:            fields["apiId"],
			Version:          fields["version"],
			GatewayURL:       fields["gatewayUrl"],
			SwaggerURL:       fields["swaggerUrl"],
			DocumentationURL: fields["documentationUrl"],
		}
		if info.APIID == "" {
			return nil, fmt.Errorf("%w: %s%s has no apiId", ErrMalformedMetadata, k.APIInfoPrefix, idx)
		}
		if raw, ok := fields["isDefault"]; ok {
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %s%s.isDefault=%q", ErrMalformedMetadata, k.APIInfoPrefix, idx, raw)
			}
			info.IsDefault = b
		}
		apis[info.Key()] = info
	}
	return apis, nil
}

// Routes parses the routing table of the instance, ordered by route name.
func (k MetadataKeys) Routes(inst *Instance) ([]Route, error) {
	groups, err := k.indexed(inst, k.RoutesPrefix)
	if err != nil {
		return nil, err
	}

	routes := make([]Route, 0, len(groups))
	for _, name := range sortedKeys(groups) {
		fields := groups[name]
		r := Route{
			GatewayURL: strings.Trim(fields["gatewayUrl"], "/"),
			ServiceURL: fields["serviceUrl"],
		}
		if r.GatewayURL == "" || r.ServiceURL == "" {
			return nil, fmt.Errorf("%w: route %q needs gatewayUrl and serviceUrl", ErrMalformedMetadata, name)
		}
		routes = append(routes, r)
	}
	return routes, nil
}

// Validate checks that the structured metadata of the instance parses.
func (k MetadataKeys) Validate(inst *Instance) error {
	if _, err := k.APIs(inst); err != nil {
		return err
	}
	_, err := k.Routes(inst)
	return err
}

// indexed groups "<prefix><group>.<field>" entries by group.
func (k MetadataKeys) indexed(inst *Instance, prefix string) (map[string]map[string]string, error) {
	groups := make(map[string]map[string]string)
	for key, value := range inst.Metadata {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		group, field, ok := strings.Cut(rest, ".")
		if !ok || group == "" || field == "" {
			return nil, fmt.Errorf("%w: unexpected key %q", ErrMalformedMetadata, key)
		}
		if groups[group] == nil {
			groups[group] = make(map[string]string)
		}
		groups[group][field] = value
	}
	return groups, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
