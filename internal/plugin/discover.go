package plugin

import (
	"fmt"
	"os"
	"path/filepath"
)

const manifestFileName = "plugin.yaml"

func readManifestFile(dir string) ([]byte, error) {
	raw, err := os.ReadFile(filepath.Join(dir, manifestFileName))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", manifestFileName, err)
	}
	return raw, nil
}

// Discover walks root one level deep and returns the subdirectories
// that contain a plugin.yaml manifest, in lexicographic order.
func Discover(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read plugin root %s: %w", root, err)
	}
	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		candidate := filepath.Join(root, entry.Name())
		if _, err := os.Stat(filepath.Join(candidate, manifestFileName)); err == nil {
			dirs = append(dirs, candidate)
		}
	}
	return dirs, nil
}
