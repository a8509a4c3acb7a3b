package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	domrepo "ictbot/internal/domain/repository"
	"ictbot/pkg/cache"
)

var ErrModelNotFound = domrepo.ErrModelNotFound

// FileModelStore keeps filter snapshots as <dir>/<key>.json.
type FileModelStore struct {
	dir string
}

func NewFileModelStore(dir string) *FileModelStore {
	return &FileModelStore{dir: dir}
}

func (s *FileModelStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("invalid model key %q", key)
	}
	return filepath.Join(s.dir, key+".json"), nil
}

func (s *FileModelStore) Save(_ context.Context, key string, data []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	return os.Rename(tmp, path)
}

func (s *FileModelStore) Load(_ context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	return data, nil
}

// CacheModelStore keeps snapshots in a cache.Service at the backend default TTL
// (no expiry on Redis).
type CacheModelStore struct {
	cache cache.Service
}

func NewCacheModelStore(c cache.Service) *CacheModelStore {
	return &CacheModelStore{cache: c}
}

func modelKey(key string) string { return cache.GenerateKey("model", key) }

func (s *CacheModelStore) Save(ctx context.Context, key string, data []byte) error {
	if err := s.cache.Set(ctx, modelKey(key), data, 0); err != nil {
		return fmt.Errorf("save model %s: %w", key, err)
	}
	return nil
}

func (s *CacheModelStore) Load(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.cache.Get(ctx, modelKey(key), &data)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", key, err)
	}
	return data, nil
}

var (
	_ domrepo.ModelStore = (*FileModelStore)(nil)
	_ domrepo.ModelStore = (*CacheModelStore)(nil)
)
