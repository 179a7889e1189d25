package rates

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/payroll-engine/generic"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrRatesNotFound means no configuration is effective for the period.
	// For a pay run this is fatal: nothing is computed.
	ErrRatesNotFound = errors.New("no rate configuration effective for period")

	ErrInvalidConfiguration = errors.New("invalid rate configuration")

	// ErrDuplicateVersion is returned when a version string is registered twice.
	ErrDuplicateVersion = errors.New("rate configuration version already exists")
)

// Source resolves the configuration effective for a period.
type Source interface {
	RatesFor(ctx context.Context, period generic.Period) (*Configuration, error)
}

// Loader lists every stored configuration. store/sqlite implements it.
type Loader interface {
	ListRateConfigurations(ctx context.Context) ([]Configuration, error)
}

// =============================================================================
// REGISTRY - Effective-dated set of versions
// =============================================================================

// Registry keeps versions ordered by EffectiveFrom. A period resolves to the
// latest version effective on or before it.
type Registry struct {
	mu       sync.RWMutex
	versions []*Configuration
}

func NewRegistry(configs ...Configuration) (*Registry, error) {
	r := &Registry{}
	for _, c := range configs {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register validates and adds a version. Registered versions are never replaced.
func (r *Registry) Register(c Configuration) error {
	if err := c.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, v := range r.versions {
		if v.Version == c.Version {
			return fmt.Errorf("%w: %s", ErrDuplicateVersion, c.Version)
		}
	}

	cfg := c
	r.versions = append(r.versions, &cfg)
	sort.SliceStable(r.versions, func(i, j int) bool {
		return r.versions[i].EffectiveFrom.Before(r.versions[j].EffectiveFrom)
	})
	return nil
}

func (r *Registry) RatesFor(_ context.Context, period generic.Period) (*Configuration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.versions) - 1; i >= 0; i-- {
		if r.versions[i].EffectiveFrom.BeforeOrEqual(period) {
			return r.versions[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrRatesNotFound, period)
}

// Version returns a configuration by its version string.
func (r *Registry) Version(version string) (*Configuration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.versions {
		if v.Version == version {
			return v, true
		}
	}
	return nil, false
}

// All returns every version, oldest first.
func (r *Registry) All() []Configuration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Configuration, len(r.versions))
	for i, v := range r.versions {
		out[i] = *v
	}
	return out
}

// =============================================================================
// LOADING SOURCE - Registry rebuilt from a Loader
// =============================================================================

// LoadingSource reloads the registry from a Loader when a period is not yet
// covered. Concurrent misses share one load.
type LoadingSource struct {
	loader Loader
	group  singleflight.Group

	mu       sync.RWMutex
	registry *Registry
}

func NewLoadingSource(loader Loader) *LoadingSource {
	return &LoadingSource{loader: loader, registry: &Registry{}}
}

func (s *LoadingSource) RatesFor(ctx context.Context, period generic.Period) (*Configuration, error) {
	s.mu.RLock()
	reg := s.registry
	s.mu.RUnlock()

	if cfg, err := reg.RatesFor(ctx, period); err == nil {
		return cfg, nil
	}

	if _, err, _ := s.group.Do("reload", func() (any, error) {
		return nil, s.Reload(ctx)
	}); err != nil {
		return nil, err
	}

	s.mu.RLock()
	reg = s.registry
	s.mu.RUnlock()
	return reg.RatesFor(ctx, period)
}

// Reload replaces the registry with the loader's current contents.
func (s *LoadingSource) Reload(ctx context.Context) error {
	configs, err := s.loader.ListRateConfigurations(ctx)
	if err != nil {
		return fmt.Errorf("load rate configurations: %w", err)
	}
	reg, err := NewRegistry(configs...)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.registry = reg
	s.mu.Unlock()
	return nil
}
