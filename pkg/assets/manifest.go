package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ManifestName is the manifest file the build writes next to its output.
const ManifestName = "manifest.json"

// Manifest maps logical asset names to fingerprinted names. It is safe for
// concurrent use.
type Manifest struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewManifest creates an empty manifest.
func NewManifest() *Manifest {
	return &Manifest{entries: make(map[string]string)}
}

// LoadManifest reads ManifestName from src. A missing manifest yields an
// empty one so unfingerprinted builds still work.
func LoadManifest(ctx context.Context, src Source) (*Manifest, error) {
	a, err := src.Open(ctx, ManifestName)
	if errors.Is(err, ErrNotFound) {
		return NewManifest(), nil
	}
	if err != nil {
		return nil, err
	}
	defer a.Body.Close()

	data, err := io.ReadAll(a.Body)
	if err != nil {
		return nil, fmt.Errorf("assets: read manifest: %w", err)
	}
	entries := make(map[string]string)
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("assets: parse manifest: %w", err)
	}
	return &Manifest{entries: entries}, nil
}

// Resolve returns the fingerprinted name for name, or name itself.
func (m *Manifest) Resolve(name string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if resolved, ok := m.entries[name]; ok {
		return resolved
	}
	return name
}

// Set adds or replaces an entry.
func (m *Manifest) Set(name, resolved string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[name] = resolved
}

// Fingerprinted reports whether resolved is the target of some entry.
func (m *Manifest) Fingerprinted(resolved string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, v := range m.entries {
		if v == resolved {
			return true
		}
	}
	return false
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Resolver turns logical names into URLs under a mount prefix.
type Resolver struct {
	manifest *Manifest
	prefix   string
}

// NewResolver creates a Resolver. prefix is the URL path the assets are
// mounted at, e.g. "/pkg/".
func NewResolver(m *Manifest, prefix string) *Resolver {
	if m == nil {
		m = NewManifest()
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Resolver{manifest: m, prefix: prefix}
}

// URL returns the URL of the named asset.
func (r *Resolver) URL(name string) string {
	return r.prefix + strings.TrimPrefix(r.manifest.Resolve(name), "/")
}

// Manifest returns the resolver's manifest.
func (r *Resolver) Manifest() *Manifest { return r.manifest }
