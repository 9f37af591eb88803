package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Local stores artifacts on the host filesystem under a base directory.
type Local struct {
	basePath string
}

func NewLocal(basePath string) (*Local, error) {
	if basePath == "" {
		return nil, fmt.Errorf("local storage: base path not configured")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("local storage: %w", err)
	}
	return &Local{basePath: basePath}, nil
}

func (l *Local) Name() string { return ProviderLocal }

// Upload copies the file into the base directory via a temp file and
// rename, so a crashed copy never leaves a half-written artifact behind.
func (l *Local) Upload(ctx context.Context, path, key string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	target := filepath.Join(l.basePath, key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), "upload-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", err
	}
	return target, nil
}

func (l *Local) Download(ctx context.Context, key, destPath string) error {
	src, err := os.Open(l.Path(key))
	if err != nil {
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	dst, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

func (l *Local) Delete(ctx context.Context, key string) error {
	err := os.Remove(l.Path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (l *Local) Test(ctx context.Context) error {
	f, err := os.CreateTemp(l.basePath, "probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// Path returns the absolute path of a stored key.
func (l *Local) Path(key string) string {
	return filepath.Join(l.basePath, key)
}
