// Package manifest parses and validates plugin.yaml documents against
// the plugin manifest file contract.
package manifest

import (
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/loudmantrade/RealEstatesAntiFraud/pkg/semver"
)

// MaxSizeBytes is the manifest file size ceiling from the file contract.
const MaxSizeBytes = 100 * 1024

// SupportedAPIVersion is the single api_version the runtime accepts.
const SupportedAPIVersion = "1.0"

// Kind is the functional category of a plugin.
type Kind string

const (
	KindSource     Kind = "source"
	KindProcessing Kind = "processing"
	KindDetection  Kind = "detection"
	KindSearch     Kind = "search"
	KindDisplay    Kind = "display"
)

func (k Kind) valid() bool {
	switch k {
	case KindSource, KindProcessing, KindDetection, KindSearch, KindDisplay:
		return true
	default:
		return false
	}
}

var idPattern = regexp.MustCompile(`^plugin-(source|processing|detection|search|display)-[a-z0-9-]+$`)

// Entrypoint names the module and class identifiers a host-language
// loader resolves into a live plugin instance.
type Entrypoint struct {
	Module string `yaml:"module"`
	Class  string `yaml:"class"`
}

// Dependencies declares version constraints on the core runtime and on
// other plugins.
type Dependencies struct {
	CoreVersion           string            `yaml:"core_version"`
	LanguageRuntimeVersion string           `yaml:"language_runtime_version,omitempty"`
	Plugins               map[string]string `yaml:"plugins,omitempty"`
}

// ConfigBlock references the plugin's configuration schema and defaults.
type ConfigBlock struct {
	SchemaRef    string         `yaml:"schema_ref,omitempty"`
	RequiredKeys []string       `yaml:"required_keys,omitempty"`
	Defaults     map[string]any `yaml:"defaults,omitempty"`
}

// Resources are resource hints; advisory only, not enforced at MVP.
type Resources struct {
	MemoryMB int  `yaml:"memory_mb,omitempty"`
	CPUCores float64 `yaml:"cpu_cores,omitempty"`
	DiskMB   int  `yaml:"disk_mb,omitempty"`
	Network  bool `yaml:"network,omitempty"`
}

// Hooks names lifecycle hook scripts run outside the plugin process.
type Hooks struct {
	PreEnable   string `yaml:"pre_enable,omitempty"`
	PostEnable  string `yaml:"post_enable,omitempty"`
	PreDisable  string `yaml:"pre_disable,omitempty"`
	PostDisable string `yaml:"post_disable,omitempty"`
}

// Health describes an optional health-check descriptor. Active polling
// of it is out of scope; it is parsed and surfaced for operators.
type Health struct {
	Endpoint string `yaml:"endpoint,omitempty"`
	Interval int    `yaml:"interval,omitempty"`
	Timeout  int    `yaml:"timeout,omitempty"`
	Retries  int    `yaml:"retries,omitempty"`
}

// Manifest is the parsed, validated contents of a plugin.yaml document.
type Manifest struct {
	ID           string         `yaml:"id"`
	Name         string         `yaml:"name"`
	Version      string         `yaml:"version"`
	Kind         Kind           `yaml:"kind"`
	APIVersion   string         `yaml:"api_version"`
	Description  string         `yaml:"description"`
	Author       string         `yaml:"author,omitempty"`
	License      string         `yaml:"license,omitempty"`
	Repository   string         `yaml:"repository,omitempty"`
	Dependencies Dependencies   `yaml:"dependencies,omitempty"`
	Config       ConfigBlock    `yaml:"config,omitempty"`
	Capabilities []string       `yaml:"capabilities,omitempty"`
	Resources    Resources      `yaml:"resources,omitempty"`
	Hooks        Hooks          `yaml:"hooks,omitempty"`
	Metrics      []string       `yaml:"metrics,omitempty"`
	Health       Health         `yaml:"health,omitempty"`
	Entrypoint   Entrypoint     `yaml:"entrypoint"`
	Tags         []string       `yaml:"tags,omitempty"`
	Compatibility []string      `yaml:"compatibility,omitempty"`
	// Priority and Weight are hint fields consumed by the orchestrator
	// (processing plugin execution order) and the scoring orchestrator
	// (detection plugin weight override) respectively.
	Priority int      `yaml:"priority,omitempty"`
	Weight   *float64 `yaml:"weight,omitempty"`
}

// SchemaError reports which manifest field failed validation and why.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("manifest: field %q invalid: %s", e.Field, e.Reason)
}

// Parse parses and validates a plugin.yaml document's raw bytes.
func Parse(data []byte) (Manifest, error) {
	if len(data) > MaxSizeBytes {
		return Manifest{}, &SchemaError{Field: "(file)", Reason: fmt.Sprintf("manifest exceeds %d bytes", MaxSizeBytes)}
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, &SchemaError{Field: "(document)", Reason: err.Error()}
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Validate checks required fields, enums and the id regex against the
// schema described in spec §6.
func (m Manifest) Validate() error {
	if m.ID == "" {
		return &SchemaError{Field: "id", Reason: "required"}
	}
	if !idPattern.MatchString(m.ID) {
		return &SchemaError{Field: "id", Reason: "must match plugin-{kind}-{slug}"}
	}
	if m.Name == "" {
		return &SchemaError{Field: "name", Reason: "required"}
	}
	if m.Description == "" {
		return &SchemaError{Field: "description", Reason: "required"}
	}
	if _, err := semver.Parse(m.Version); err != nil {
		return &SchemaError{Field: "version", Reason: fmt.Sprintf("must be valid semver: %v", err)}
	}
	if !m.Kind.valid() {
		return &SchemaError{Field: "kind", Reason: "must be one of source, processing, detection, search, display"}
	}
	if want := "plugin-" + string(m.Kind) + "-"; len(m.ID) < len(want) || m.ID[:len(want)] != want {
		return &SchemaError{Field: "id", Reason: "kind segment of id must match declared kind"}
	}
	if m.APIVersion != SupportedAPIVersion {
		return &SchemaError{Field: "api_version", Reason: fmt.Sprintf("must equal %q", SupportedAPIVersion)}
	}
	if m.Entrypoint.Module == "" || m.Entrypoint.Class == "" {
		return &SchemaError{Field: "entrypoint", Reason: "module and class are both required"}
	}
	return nil
}

// Marshal re-emits the manifest as YAML. Used for the parse -> emit ->
// parse round-trip law.
func (m Manifest) Marshal() ([]byte, error) {
	return yaml.Marshal(m)
}
