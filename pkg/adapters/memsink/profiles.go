package memsink

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/beacon/pkg/analytics"
)

// AnonymousUser keys the profile used before a user ID is known
const AnonymousUser = "anonymous"

// Config configures a Profiles store
type Config struct {
	MaxUsers int           `yaml:"max_users"`
	TTL      time.Duration `yaml:"ttl"`
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		MaxUsers: 1000,
		TTL:      0,
	}
}

type profile struct {
	values    analytics.Properties
	immutable map[string]struct{}
}

func newProfile() *profile {
	return &profile{
		values:    analytics.Properties{},
		immutable: make(map[string]struct{}),
	}
}

// Profiles is a UserDataDirector keeping one profile per user in an LRU.
// The least recently used profile is evicted once MaxUsers is reached.
// It also implements EventLogger so that it follows user ID changes when
// registered as both.
type Profiles struct {
	analytics.NopEventLogger

	mu       sync.Mutex
	cache    *lru.LRU[string, *profile]
	userID   string
	evicted  atomic.Int64
	rejected atomic.Int64
}

// NewProfiles creates a profile store. A zero TTL keeps profiles until evicted.
func NewProfiles(cfg Config) *Profiles {
	if cfg.MaxUsers <= 0 {
		cfg.MaxUsers = DefaultConfig().MaxUsers
	}
	p := &Profiles{}
	p.cache = lru.NewLRU[string, *profile](cfg.MaxUsers, func(string, *profile) {
		p.evicted.Add(1)
	}, cfg.TTL)
	return p
}

func (p *Profiles) ConfigureUser(ctx context.Context, userID string) {
	p.SetUserID(ctx, userID)
}

func (p *Profiles) SetUserID(ctx context.Context, userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userID = userID
}

func (p *Profiles) SetUserProperties(ctx context.Context, props analytics.Properties) {
	p.mu.Lock()
	defer p.mu.Unlock()
	current := p.current()
	for k, v := range props {
		if _, locked := current.immutable[k]; locked {
			continue
		}
		current.values[k] = analytics.NormalizeValue(v)
	}
}

func (p *Profiles) ClearUserProperties(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Remove(p.key())
}

// Set stores value. An Immutable Set keeps an existing value and locks the
// name, so the first value written wins.
func (p *Profiles) Set(ctx context.Context, name string, value any, mutability analytics.Mutability) {
	p.mu.Lock()
	defer p.mu.Unlock()
	current := p.current()
	if _, locked := current.immutable[name]; locked {
		return
	}
	if mutability == analytics.Immutable {
		current.immutable[name] = struct{}{}
		if _, exists := current.values[name]; exists {
			return
		}
	}
	current.values[name] = analytics.NormalizeValue(value)
}

// Add increments a numeric property, starting from zero when unset.
// The stored result is a float64. A non-numeric delta or stored value
// leaves the profile unchanged and counts as rejected.
func (p *Profiles) Add(ctx context.Context, name string, delta any) {
	d, ok := analytics.ToFloat64(delta)
	if !ok {
		p.rejected.Add(1)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	current := p.current()
	if _, locked := current.immutable[name]; locked {
		return
	}
	var existing float64
	if v, set := current.values[name]; set {
		if existing, ok = analytics.ToFloat64(v); !ok {
			p.rejected.Add(1)
			return
		}
	}
	current.values[name] = existing + d
}

func (p *Profiles) Unset(ctx context.Context, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	current := p.current()
	delete(current.values, name)
	delete(current.immutable, name)
}

// Profile returns a copy of userID's properties (the current user when
// empty) and whether the profile exists.
func (p *Profiles) Profile(userID string) (analytics.Properties, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if userID == "" {
		userID = p.key()
	}
	prof, ok := p.cache.Peek(userID)
	if !ok {
		return nil, false
	}
	return prof.values.Clone(), true
}

// Len returns the number of cached profiles
func (p *Profiles) Len() int {
	return p.cache.Len()
}

// Evicted returns how many profiles have been dropped by eviction, expiry
// or ClearUserProperties
func (p *Profiles) Evicted() int64 {
	return p.evicted.Load()
}

// Rejected returns how many Add calls were refused for non-numeric values
func (p *Profiles) Rejected() int64 {
	return p.rejected.Load()
}

// current returns the profile of the current user, creating it if needed.
// Callers hold p.mu.
func (p *Profiles) current() *profile {
	key := p.key()
	if prof, ok := p.cache.Get(key); ok {
		return prof
	}
	prof := newProfile()
	p.cache.Add(key, prof)
	return prof
}

func (p *Profiles) key() string {
	if p.userID == "" {
		return AnonymousUser
	}
	return p.userID
}

var (
	_ analytics.EventLogger      = (*Profiles)(nil)
	_ analytics.UserDataDirector = (*Profiles)(nil)
)
