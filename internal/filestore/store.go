package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/xxxsen/asknotes/internal/config"
	appErr "github.com/xxxsen/asknotes/internal/pkg/errors"
)

// Store archives uploaded files under "<subject>/<file_name>" keys.
type Store interface {
	Type() string
	Save(ctx context.Context, key string, data []byte) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context) ([]string, error)
	Purge(ctx context.Context) error
}

type Factory func(args interface{}) (Store, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

// New builds the configured store. It returns nil when archiving is disabled.
func New(cfg config.FileStoreConfig) (Store, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	if key == "" || key == "none" {
		return nil, nil
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported file store type: %s", cfg.Type)
	}
	var args interface{} = cfg.S3
	if key == "local" {
		args = localConfig{Dir: cfg.Dir}
	}
	return factory(args)
}

// Key builds the archive key of a subject file.
func Key(subjectID, fileName string) string {
	return subjectID + "/" + fileName
}

// SplitKey is the inverse of Key.
func SplitKey(key string) (string, string, error) {
	if err := validateKey(key); err != nil {
		return "", "", err
	}
	idx := strings.Index(key, "/")
	return key[:idx], key[idx+1:], nil
}

func validateKey(key string) error {
	parts := strings.Split(key, "/")
	if len(parts) != 2 {
		return fmt.Errorf("%w: invalid file key: %s", appErr.ErrInvalid, key)
	}
	for _, p := range parts {
		if p == "" || p == "." || p == ".." || strings.Contains(p, "\\") || path.Clean(p) != p {
			return fmt.Errorf("%w: invalid file key: %s", appErr.ErrInvalid, key)
		}
	}
	return nil
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("store config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode store config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode store config: %w", err)
	}
	return nil
}
