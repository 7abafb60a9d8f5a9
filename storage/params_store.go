package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"zkml-orchestrator/core/monitoring"

	log "github.com/sirupsen/logrus"
)

// ErrParamsUnavailable is returned when the shared proving parameters are
// missing and no source is configured to fetch them from
var ErrParamsUnavailable = errors.New("proving parameters unavailable")

// Source streams the proving parameters from somewhere remote
type Source interface {
	Fetch(ctx context.Context) (io.ReadCloser, error)
}

// HTTPSource fetches parameters with a plain GET
type HTTPSource struct {
	URL    string
	Client *http.Client
}

// Fetch performs the GET and returns the body on 200
func (s *HTTPSource) Fetch(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", s.URL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetching %s: unexpected status %d", s.URL, resp.StatusCode)
	}
	return resp.Body, nil
}

func (s *HTTPSource) String() string { return s.URL }

// ParamsStore owns the shared structured-reference-string file every proving
// job points at
type ParamsStore struct {
	path   string
	source Source
	mu     sync.Mutex
}

// NewParamsStore creates a params store; source may be nil when the file is
// provisioned out of band
func NewParamsStore(path string, source Source) *ParamsStore {
	return &ParamsStore{path: path, source: source}
}

// Path returns the shared params path
func (ps *ParamsStore) Path() string {
	return ps.path
}

// Ensure makes sure the params file exists, downloading it at most once
func (ps *ParamsStore) Ensure(ctx context.Context) (string, error) {
	if exists(ps.path) {
		return ps.path, nil
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	if exists(ps.path) {
		return ps.path, nil
	}
	if ps.source == nil {
		return "", fmt.Errorf("%w: %s does not exist", ErrParamsUnavailable, ps.path)
	}

	logger := log.WithFields(log.Fields{"path": ps.path, "source": fmt.Sprint(ps.source)})
	logger.Info("Downloading proving parameters")

	if err := ps.download(ctx); err != nil {
		monitoring.ParamsDownloads.WithLabelValues("failed").Inc()
		logger.WithError(err).Error("Proving parameter download failed")
		return "", fmt.Errorf("%w: %v", ErrParamsUnavailable, err)
	}

	monitoring.ParamsDownloads.WithLabelValues("ok").Inc()
	logger.Info("Proving parameters ready")
	return ps.path, nil
}

func (ps *ParamsStore) download(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(ps.path), 0o755); err != nil {
		return fmt.Errorf("creating params directory: %w", err)
	}

	body, err := ps.source.Fetch(ctx)
	if err != nil {
		return err
	}
	defer body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(ps.path), filepath.Base(ps.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("writing params: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, ps.path); err != nil {
		return fmt.Errorf("moving params into place: %w", err)
	}
	return nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
