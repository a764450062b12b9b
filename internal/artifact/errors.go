package artifact

import (
	"fmt"
)

// ManifestNotFoundError occurs when manifest.yaml is not found in a directory.
type ManifestNotFoundError struct {
	Path string
	Err  error
}

func (e *ManifestNotFoundError) Error() string {
	return fmt.Sprintf("manifest not found at '%s': %v", e.Path, e.Err)
}

func (e *ManifestNotFoundError) Unwrap() error {
	return e.Err
}

// ManifestParseError occurs when manifest.yaml cannot be parsed as valid YAML.
type ManifestParseError struct {
	Path string
	Err  error
}

func (e *ManifestParseError) Error() string {
	return fmt.Sprintf("failed to parse manifest at '%s': %v", e.Path, e.Err)
}

func (e *ManifestParseError) Unwrap() error {
	return e.Err
}

// ManifestValidationError occurs when manifest.yaml fails validation.
type ManifestValidationError struct {
	Path    string
	Field   string
	Message string
}

func (e *ManifestValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("manifest validation failed at '%s': %s (field: %s)",
			e.Path, e.Message, e.Field)
	}
	return fmt.Sprintf("manifest validation failed at '%s': %s", e.Path, e.Message)
}

// WasmNotFoundError occurs when the wasm file referenced in a manifest
// doesn't exist.
type WasmNotFoundError struct {
	ManifestPath string
	WasmFile     string
}

func (e *WasmNotFoundError) Error() string {
	return fmt.Sprintf("wasm file '%s' not found (referenced in manifest '%s')",
		e.WasmFile, e.ManifestPath)
}

// ChecksumMismatchError occurs when artifact bytes don't match the pinned
// SHA-256 digest. The remote URL pointing at a mutable ref is the expected
// cause.
type ChecksumMismatchError struct {
	Source string
	Want   string
	Got    string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("artifact checksum mismatch for '%s': want %s, got %s",
		e.Source, e.Want, e.Got)
}

// FetchError occurs when a remote artifact cannot be downloaded.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to fetch artifact from '%s': %v", e.URL, e.Err)
	}
	return fmt.Sprintf("failed to fetch artifact from '%s': HTTP %d", e.URL, e.Status)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NoSourceError occurs when configuration names no artifact at all.
type NoSourceError struct{}

func (e *NoSourceError) Error() string {
	return "no artifact configured: set artifact.dir, artifact.path, or artifact.url"
}
