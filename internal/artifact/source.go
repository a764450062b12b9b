package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/libredge/libredge/internal/config"
	"github.com/libredge/libredge/internal/wasm"
)

// Resolve picks the artifact source described by configuration: a manifest
// directory, a bare wasm file, or a remote URL.
func Resolve(cfg *config.ArtifactConfig, logger *zap.Logger) (wasm.Source, error) {
	switch {
	case cfg.Dir != "":
		manifest, err := ParseManifest(cfg.Dir)
		if err != nil {
			return nil, err
		}
		logger.Info("artifact resolved from manifest",
			zap.String("name", manifest.Name),
			zap.String("version", manifest.Version),
		)
		return withPin(&wasm.FileSource{Path: manifest.WasmPath()}, manifest.Wasm.SHA256), nil

	case cfg.Path != "":
		return withPin(&wasm.FileSource{Path: cfg.Path}, cfg.SHA256), nil

	case cfg.URL != "":
		return NewRemoteSource(cfg.URL, cfg.SHA256, cfg.CacheDir, logger), nil

	default:
		return nil, &NoSourceError{}
	}
}

func withPin(inner wasm.Source, sha string) wasm.Source {
	if sha == "" {
		return inner
	}
	return &VerifiedSource{Inner: inner, SHA256: sha}
}

// VerifiedSource wraps a source with a SHA-256 pin check.
type VerifiedSource struct {
	Inner  wasm.Source
	SHA256 string
}

// Bytes reads the inner source and verifies the digest.
func (s *VerifiedSource) Bytes() ([]byte, error) {
	data, err := s.Inner.Bytes()
	if err != nil {
		return nil, err
	}
	if err := verify(s.Inner.Name(), data, s.SHA256); err != nil {
		return nil, err
	}
	return data, nil
}

// Name returns the inner source name.
func (s *VerifiedSource) Name() string { return s.Inner.Name() }

// Size returns the inner source size.
func (s *VerifiedSource) Size() int64 { return s.Inner.Size() }

// RemoteSource downloads the artifact over HTTP. Fetched bytes are kept in
// an on-disk cache directory so a warm process (and its neighbors on the
// same host) never re-downloads.
//
// Pinning the SHA-256 is strongly recommended: artifact URLs pointing at a
// mutable branch ref can change content under the same URL.
type RemoteSource struct {
	URL      string
	SHA256   string
	CacheDir string
	Client   *http.Client

	logger *zap.Logger
}

// NewRemoteSource creates a remote artifact source.
func NewRemoteSource(url, sha, cacheDir string, logger *zap.Logger) *RemoteSource {
	return &RemoteSource{
		URL:      url,
		SHA256:   sha,
		CacheDir: cacheDir,
		Client:   &http.Client{Timeout: 60 * time.Second},
		logger:   logger.With(zap.String("component", "artifact-fetch")),
	}
}

// Name returns the artifact URL.
func (s *RemoteSource) Name() string { return s.URL }

// Size is unknown before download.
func (s *RemoteSource) Size() int64 { return 0 }

// Bytes returns the artifact, from the disk cache when possible.
func (s *RemoteSource) Bytes() ([]byte, error) {
	if data, ok := s.readCache(); ok {
		s.logger.Info("artifact cache hit", zap.String("url", s.URL))
		return data, nil
	}

	s.logger.Info("downloading artifact", zap.String("url", s.URL))

	res, err := s.Client.Get(s.URL)
	if err != nil {
		return nil, &FetchError{URL: s.URL, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: s.URL, Status: res.StatusCode}
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &FetchError{URL: s.URL, Err: err}
	}

	if err := verify(s.URL, data, s.SHA256); err != nil {
		return nil, err
	}

	s.writeCache(data)

	s.logger.Info("artifact downloaded",
		zap.String("url", s.URL),
		zap.Int("size_bytes", len(data)),
	)

	return data, nil
}

func (s *RemoteSource) cachePath() string {
	if s.CacheDir == "" {
		return ""
	}
	key := s.SHA256
	if key == "" {
		sum := sha256.Sum256([]byte(s.URL))
		key = hex.EncodeToString(sum[:])
	}
	return filepath.Join(s.CacheDir, key+".wasm")
}

func (s *RemoteSource) readCache() ([]byte, bool) {
	path := s.cachePath()
	if path == "" {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	// A pinned cache entry that no longer matches is discarded.
	if err := verify(path, data, s.SHA256); err != nil {
		s.logger.Warn("discarding corrupt cached artifact", zap.String("path", path))
		os.Remove(path)
		return nil, false
	}
	return data, true
}

func (s *RemoteSource) writeCache(data []byte) {
	path := s.cachePath()
	if path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		s.logger.Warn("failed to create artifact cache dir", zap.Error(err))
		return
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		s.logger.Warn("failed to write artifact cache", zap.Error(err))
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		s.logger.Warn("failed to publish artifact cache entry", zap.Error(err))
		os.Remove(tmp)
	}
}

// verify checks data against a hex SHA-256 pin. An empty pin passes.
func verify(source string, data []byte, pin string) error {
	if pin == "" {
		return nil
	}
	sum := sha256.Sum256(data)
	got := hex.EncodeToString(sum[:])
	if !strings.EqualFold(got, pin) {
		return &ChecksumMismatchError{Source: source, Want: strings.ToLower(pin), Got: got}
	}
	return nil
}
