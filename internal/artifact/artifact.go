// Package artifact stores run diagnostic traces keyed by run id.
package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/zulandar/stagehand/internal/config"
)

// Store persists trace artifacts. The filesystem directory is always the
// primary location; when an S3 endpoint is configured the trace is also
// uploaded, and the returned key names the object.
type Store struct {
	dir    string
	bucket string
	client *minio.Client
}

// New builds a Store from artifact configuration. The S3 client is only
// constructed when an endpoint is configured.
func New(cfg config.ArtifactConfig) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("artifact: dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: create dir %s: %w", cfg.Dir, err)
	}

	s := &Store{dir: cfg.Dir}
	if cfg.S3.Endpoint != "" {
		client, err := minio.New(cfg.S3.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.S3.AccessKey, cfg.S3.SecretKey, ""),
			Secure: cfg.S3.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("artifact: s3 client: %w", err)
		}
		s.client = client
		s.bucket = cfg.S3.Bucket
	}
	return s, nil
}

// TracePath returns the local path a run's trace should be written to.
func (s *Store) TracePath(runID string) string {
	return filepath.Join(s.dir, runID, "trace.zip")
}

// Key returns the stable artifact key for a run's trace.
func (s *Store) Key(runID string) string {
	return fmt.Sprintf("traces/%s/trace.zip", runID)
}

// Flush finalizes a run's trace: ensures the local file exists and, when an
// S3 backend is configured, uploads it under the run's key. It returns the
// key the trace is retrievable by.
func (s *Store) Flush(ctx context.Context, runID string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("artifact: runID is required")
	}

	path := s.TracePath(runID)
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("artifact: trace for %s: %w", runID, err)
	}

	key := s.Key(runID)
	if s.client == nil {
		return key, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("artifact: open trace for %s: %w", runID, err)
	}
	defer f.Close()

	_, err = s.client.PutObject(ctx, s.bucket, key, f, info.Size(),
		minio.PutObjectOptions{ContentType: "application/zip"})
	if err != nil {
		return "", fmt.Errorf("artifact: upload trace for %s: %w", runID, err)
	}
	return key, nil
}

// EnsureRunDir creates the per-run directory traces are written into.
func (s *Store) EnsureRunDir(runID string) error {
	if runID == "" {
		return fmt.Errorf("artifact: runID is required")
	}
	if err := os.MkdirAll(filepath.Join(s.dir, runID), 0o755); err != nil {
		return fmt.Errorf("artifact: run dir for %s: %w", runID, err)
	}
	return nil
}
