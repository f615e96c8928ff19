package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/the-medo/swu-collection-sub005/internal/models"
)

// FSBlobStore stores ingestion artifacts on the local filesystem under a root
// directory. Keys use forward slashes and map directly to file paths.
type FSBlobStore struct {
	root string
}

func NewFSBlobStore(root string) *FSBlobStore {
	return &FSBlobStore{root: root}
}

func (s *FSBlobStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid blob key: %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *FSBlobStore) Upload(ctx context.Context, key string, data []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("failed to write blob %s: %w", key, err)
	}
	return nil
}

func (s *FSBlobStore) Download(ctx context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", key, err)
	}
	return data, nil
}

func (s *FSBlobStore) Exists(ctx context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Blob key layout, one directory per source per day.

func artifactDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// rawGroupIndexKey names the raw top-level group listing artifact.
func rawGroupIndexKey(source models.SourceType, day string) string {
	return fmt.Sprintf("%s/%s/groups.json", source, day)
}

// rawGroupKey names one raw per-group price response artifact.
func rawGroupKey(source models.SourceType, day string, groupID int) string {
	return fmt.Sprintf("%s/%s/group-%d.json", source, day, groupID)
}

// normalizedKey names the merged normalized artifact used as pairing input.
func normalizedKey(source models.SourceType, day string) string {
	return fmt.Sprintf("%s/%s/normalized.json", source, day)
}
