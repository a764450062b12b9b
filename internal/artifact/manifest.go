package artifact

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Manifest describes a deployable wasm artifact (manifest.yaml next to the
// wasm file).
type Manifest struct {
	Name         string     `yaml:"name"`
	Version      string     `yaml:"version"`
	Wasm         WasmConfig `yaml:"wasm"`
	Capabilities []string   `yaml:"capabilities"`

	// Internal fields
	dir string // Directory containing manifest
}

// WasmConfig holds the wasm file reference.
type WasmConfig struct {
	File   string `yaml:"file"`
	SHA256 string `yaml:"sha256"` // optional hex digest pin
}

// Host capabilities an artifact may declare.
const (
	CapabilityFetch = "fetch"
	CapabilityLog   = "log"
)

// ParseManifest reads and parses manifest.yaml from a directory.
func ParseManifest(dir string) (*Manifest, error) {
	manifestPath := filepath.Join(dir, "manifest.yaml")

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, &ManifestNotFoundError{
			Path: manifestPath,
			Err:  err,
		}
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &ManifestParseError{
			Path: manifestPath,
			Err:  err,
		}
	}

	m.dir = dir

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest fields.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "name",
			Message: "name is required",
		}
	}

	if m.Version == "" {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "version",
			Message: "version is required",
		}
	}

	if m.Wasm.File == "" {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "wasm.file",
			Message: "wasm.file is required",
		}
	}

	validCaps := map[string]bool{
		CapabilityFetch: true,
		CapabilityLog:   true,
	}
	for _, cap := range m.Capabilities {
		if !validCaps[cap] {
			return &ManifestValidationError{
				Path:    m.Path(),
				Field:   "capabilities",
				Message: fmt.Sprintf("unknown capability: %s (must be one of: fetch, log)", cap),
			}
		}
	}

	wasmPath := m.WasmPath()
	if _, err := os.Stat(wasmPath); os.IsNotExist(err) {
		return &WasmNotFoundError{
			ManifestPath: m.Path(),
			WasmFile:     m.Wasm.File,
		}
	}

	return nil
}

// Path returns the manifest file path.
func (m *Manifest) Path() string {
	return filepath.Join(m.dir, "manifest.yaml")
}

// WasmPath returns the absolute path to the wasm file.
func (m *Manifest) WasmPath() string {
	return filepath.Join(m.dir, m.Wasm.File)
}

// Dir returns the directory containing the manifest.
func (m *Manifest) Dir() string {
	return m.dir
}

// HasCapability reports whether the artifact declared a capability.
func (m *Manifest) HasCapability(name string) bool {
	for _, c := range m.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}
