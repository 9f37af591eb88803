// Package storage abstracts the destinations a backup artifact can be
// shipped to. Every provider exposes the same upload/download/delete
// surface; the orchestrator fans out across them without caring which
// backend sits behind a name.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

const (
	ProviderLocal = "local"
	ProviderS3    = "s3"
)

var ErrUnknownProvider = errors.New("unknown storage provider")

// Provider is a single backup destination.
type Provider interface {
	// Name returns the provider identifier ("local", "s3", ...).
	Name() string
	// Upload stores the file at path under the given remote key and
	// returns the provider-specific identifier of the stored object.
	Upload(ctx context.Context, path, key string) (string, error)
	// Download fetches the object identified by key into a local file.
	Download(ctx context.Context, key, destPath string) error
	// Delete removes the object identified by key.
	Delete(ctx context.Context, key string) error
	// Test verifies the provider is reachable and writable.
	Test(ctx context.Context) error
}

// Manager resolves provider names to configured providers. The local
// provider is always present and always first.
type Manager struct {
	providers map[string]Provider
	order     []string
}

func NewManager(conf *viper.Viper) (*Manager, error) {
	m := &Manager{providers: make(map[string]Provider)}

	local, err := NewLocal(conf.GetString("siberian.backup_dir"))
	if err != nil {
		return nil, err
	}
	m.register(local)

	if conf.GetBool("backup.storage.s3.enabled") {
		s3p, err := NewS3(S3Config{
			Endpoint:  conf.GetString("backup.storage.s3.endpoint"),
			Region:    conf.GetString("backup.storage.s3.region"),
			Bucket:    conf.GetString("backup.storage.s3.bucket"),
			AccessKey: conf.GetString("backup.storage.s3.access_key"),
			SecretKey: conf.GetString("backup.storage.s3.secret_key"),
			Prefix:    conf.GetString("backup.storage.s3.prefix"),
		})
		if err != nil {
			return nil, fmt.Errorf("init s3 provider: %w", err)
		}
		m.register(s3p)
	}

	return m, nil
}

func (m *Manager) register(p Provider) {
	m.providers[p.Name()] = p
	m.order = append(m.order, p.Name())
}

// Get returns the provider registered under name.
func (m *Manager) Get(name string) (Provider, error) {
	p, ok := m.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names lists configured provider names, local first.
func (m *Manager) Names() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Local returns the always-present local provider.
func (m *Manager) Local() Provider {
	return m.providers[ProviderLocal]
}
