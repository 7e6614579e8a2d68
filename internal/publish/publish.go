// Package publish uploads built archives to release targets
package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gnzdotmx/psforge/internal/config"
	"github.com/gnzdotmx/psforge/internal/mod"
)

// Asset is one archive to publish
type Asset struct {
	Path   string
	Module mod.Descriptor
}

// Name is the file name the asset is published under
func (a Asset) Name() string {
	return filepath.Base(a.Path)
}

// Publisher defines the interface that all release targets implement
type Publisher interface {
	// Name returns the target's unique identifier
	Name() string

	// Publish uploads the asset, replacing an earlier upload of the same name
	Publish(ctx context.Context, asset Asset) error
}

// Registry stores the configured publishers in registration order
type Registry struct {
	publishers map[string]Publisher
	order      []string
	sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		publishers: make(map[string]Publisher),
	}
}

// Register adds a publisher to the registry
func (r *Registry) Register(p Publisher) error {
	if p == nil {
		return fmt.Errorf("cannot register nil publisher")
	}

	name := p.Name()
	if name == "" {
		return fmt.Errorf("publisher name cannot be empty")
	}

	r.Lock()
	defer r.Unlock()

	if _, exists := r.publishers[name]; exists {
		return fmt.Errorf("publisher %s is already registered", name)
	}

	r.publishers[name] = p
	r.order = append(r.order, name)
	return nil
}

// Get retrieves a publisher by name
func (r *Registry) Get(name string) (Publisher, error) {
	r.RLock()
	defer r.RUnlock()

	p, exists := r.publishers[name]
	if !exists {
		return nil, fmt.Errorf("publisher %s not found", name)
	}
	return p, nil
}

// List returns the publishers in registration order
func (r *Registry) List() []Publisher {
	r.RLock()
	defer r.RUnlock()

	list := make([]Publisher, 0, len(r.order))
	for _, name := range r.order {
		list = append(list, r.publishers[name])
	}
	return list
}

// Len returns the number of registered publishers
func (r *Registry) Len() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.order)
}

// Getenv looks up credentials. Tests replace it.
var Getenv = os.Getenv

// FromConfig builds a registry with one publisher per configured target.
// Credentials are read from the environment variables named in opts.
func FromConfig(ctx context.Context, opts config.PublishOptions) (*Registry, error) {
	reg := NewRegistry()

	if gh := opts.GitHub; gh != nil {
		token := Getenv(gh.TokenEnv)
		if token == "" {
			return nil, fmt.Errorf("github publisher: environment variable %s is not set", gh.TokenEnv)
		}
		clientOpts := []GitHubOption{WithToken(token)}
		if gh.BaseURL != "" {
			clientOpts = append(clientOpts, WithBaseURL(gh.BaseURL))
		}
		if gh.Prerelease {
			clientOpts = append(clientOpts, WithPrerelease())
		}
		if err := reg.Register(NewGitHub(gh.Owner, gh.Repo, clientOpts...)); err != nil {
			return nil, err
		}
	}

	if s3 := opts.S3; s3 != nil {
		p, err := NewS3(*s3, Getenv(s3.AccessKeyEnv), Getenv(s3.SecretKeyEnv))
		if err != nil {
			return nil, err
		}
		if err := reg.Register(p); err != nil {
			return nil, err
		}
	}

	if gcs := opts.GCS; gcs != nil {
		p, err := NewGCS(ctx, *gcs)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(p); err != nil {
			return nil, err
		}
	}

	return reg, nil
}
