package plugin

import (
	"errors"
	"fmt"
	"path/filepath"
	goplugin "plugin"

	"github.com/loudmantrade/RealEstatesAntiFraud/pkg/manifest"
)

// Loaded is what a Loader resolves a plugin directory into: its
// manifest and the live implementation found at its entrypoint.
type Loaded struct {
	Manifest manifest.Manifest
	Impl     Plugin
}

// Loader resolves a plugin's on-disk directory into a Loaded plugin.
type Loader interface {
	Load(dir string) (Loaded, error)
}

// ManifestDirLoader expects a directory containing plugin.yaml and a
// compiled shared object built from the manifest's entrypoint module,
// following the same convention as the manifest's Entrypoint.Module.
type ManifestDirLoader struct{}

// Load reads plugin.yaml from dir, then opens "<module>.so" in the
// same directory using the standard library's plugin mechanism and
// looks up the manifest's entrypoint class as an exported symbol.
func (ManifestDirLoader) Load(dir string) (Loaded, error) {
	if dir == "" {
		return Loaded{}, errors.New("plugin directory cannot be empty")
	}
	raw, err := readManifestFile(dir)
	if err != nil {
		return Loaded{}, err
	}
	m, err := manifest.Parse(raw)
	if err != nil {
		return Loaded{}, fmt.Errorf("parse manifest in %s: %w", dir, err)
	}
	soPath := filepath.Join(dir, m.Entrypoint.Module+".so")
	so, err := goplugin.Open(soPath)
	if err != nil {
		return Loaded{}, fmt.Errorf("open plugin binary %s: %w", soPath, err)
	}
	symbol, err := so.Lookup(m.Entrypoint.Class)
	if err != nil {
		return Loaded{}, fmt.Errorf("lookup entrypoint %s in %s: %w", m.Entrypoint.Class, soPath, err)
	}
	impl, err := resolveSymbol(symbol)
	if err != nil {
		return Loaded{}, err
	}
	return Loaded{Manifest: m, Impl: impl}, nil
}

func resolveSymbol(symbol any) (Plugin, error) {
	switch p := symbol.(type) {
	case Plugin:
		return p, nil
	case *Plugin:
		if p == nil {
			return nil, errors.New("plugin symbol is nil")
		}
		return *p, nil
	case func() Plugin:
		return p(), nil
	default:
		return nil, errors.New("plugin entrypoint symbol must implement plugin.Plugin")
	}
}
