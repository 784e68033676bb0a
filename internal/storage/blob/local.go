package blob

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Local stores media under a directory on disk. Intended for development and
// single-node deployments; keys map to file paths relative to the base.
type Local struct {
	basePath string
	logger   zerolog.Logger
	disabled bool
}

func NewLocal(basePath string, logger zerolog.Logger) (*Local, error) {
	logger = logger.With().Str("component", "local-storage").Logger()

	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		logger.Warn().Msg("storage path not set, media storage disabled")
		return &Local{logger: logger, disabled: true}, nil
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	logger.Info().Str("path", basePath).Msg("local storage initialized")
	return &Local{basePath: basePath, logger: logger}, nil
}

// resolve rejects keys that would escape the base directory.
func (l *Local) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(l.basePath, clean), nil
}

func (l *Local) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if l.disabled {
		return ErrDisabled
	}
	path, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", key, err)
	}
	// Rename makes the object visible atomically; readers never see a
	// partial write.
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("finalize %s: %w", key, err)
	}
	return nil
}

func (l *Local) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if l.disabled {
		return nil, "", ErrDisabled
	}
	path, err := l.resolve(key)
	if err != nil {
		return nil, "", err
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("open %s: %w", key, err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	return file, contentType, nil
}

func (l *Local) Delete(ctx context.Context, key string) error {
	if l.disabled {
		return ErrDisabled
	}
	path, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (l *Local) Health(ctx context.Context) error {
	if l.disabled {
		return nil
	}
	_, err := os.Stat(l.basePath)
	return err
}
