package plugin

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ManagerConfig describes how the plugin manager should behave.
type ManagerConfig struct {
	PluginDir string                  `yaml:"pluginDir"`
	Defaults  IsolationPolicy         `yaml:"defaults"`
	Plugins   map[string]PluginConfig `yaml:"plugins"`
	Watch     bool                    `yaml:"watch"`
}

// PluginConfig is the configuration block for a single plugin instance.
type PluginConfig struct {
	Enabled bool             `yaml:"enabled"`
	Path    string           `yaml:"path"`
	Config  map[string]any   `yaml:"config"`
	Policy  *IsolationPolicy `yaml:"policy"`
}

// IsolationPolicy governs the security restrictions enforced for a plugin.
type IsolationPolicy struct {
	AllowedCapabilities []Capability `yaml:"allowedCapabilities"`
	DeniedCapabilities  []Capability `yaml:"deniedCapabilities"`
}

// Merge returns a new policy using values from other when not present.
func (p IsolationPolicy) Merge(other IsolationPolicy) IsolationPolicy {
	if len(p.AllowedCapabilities) == 0 {
		p.AllowedCapabilities = other.AllowedCapabilities
	}
	if len(p.DeniedCapabilities) == 0 {
		p.DeniedCapabilities = other.DeniedCapabilities
	}
	return p
}

// LoadManagerConfig reads a YAML file into a ManagerConfig.
func LoadManagerConfig(path string) (ManagerConfig, error) {
	var cfg ManagerConfig
	if path == "" {
		return cfg, errors.New("config path cannot be empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read plugin config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal plugin config: %w", err)
	}
	if cfg.Plugins == nil {
		cfg.Plugins = map[string]PluginConfig{}
	}
	return cfg, nil
}

// Validate ensures the manager configuration is internally consistent.
func (c ManagerConfig) Validate() error {
	for id, p := range c.Plugins {
		if id == "" {
			return errors.New("plugin id cannot be empty")
		}
		if !p.Enabled {
			continue
		}
		if p.Path == "" {
			return fmt.Errorf("plugin %s path cannot be empty when enabled", id)
		}
	}
	return nil
}

var secretPattern = regexp.MustCompile(`\$\{([A-Z0-9_]+)\}`)

// ResolveSecrets expands ${ENV_VAR} references anywhere in a plugin's
// configuration values against the process environment. Unset
// variables expand to the empty string, matching the runtime's
// general "absent secret is a misconfiguration surfaced downstream,
// not a fatal startup error" policy.
func ResolveSecrets(cfg map[string]any) map[string]any {
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		out[k] = resolveSecretValue(v)
	}
	return out
}

func resolveSecretValue(v any) any {
	switch val := v.(type) {
	case string:
		return secretPattern.ReplaceAllStringFunc(val, func(m string) string {
			name := secretPattern.FindStringSubmatch(m)[1]
			return os.Getenv(name)
		})
	case map[string]any:
		return ResolveSecrets(val)
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = resolveSecretValue(item)
		}
		return cp
	default:
		return v
	}
}

// ApplyEnvOverrides merges PLUGIN_<ID>_<KEY> environment variables
// (with dots/dashes in id or key upper-cased and translated to
// underscores) over a plugin's config block, highest precedence.
func ApplyEnvOverrides(id string, cfg map[string]any) map[string]any {
	prefix := "PLUGIN_" + envKey(id) + "_"
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		out[k] = v
	}
	for _, entry := range os.Environ() {
		eqIdx := strings.IndexByte(entry, '=')
		if eqIdx < 0 {
			continue
		}
		name, value := entry[:eqIdx], entry[eqIdx+1:]
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(name, prefix))
		out[key] = value
	}
	return out
}

func envKey(id string) string {
	upper := strings.ToUpper(id)
	return strings.NewReplacer("-", "_", ".", "_").Replace(upper)
}
