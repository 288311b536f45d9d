// Package redisprofile keeps user profile properties in Redis hashes.
//
// Each user owns one hash, "<prefix>:profile:<user id>", whose fields are
// property names and whose values are the lossless string form of each
// property. Names written as Immutable are recorded in the set
// "<prefix>:immutable:<user id>" and are never overwritten, incremented or
// bulk-set afterwards. Per-user event counters live in
// "<prefix>:events:<user id>".
package redisprofile

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/beacon/pkg/analytics"
)

// AnonymousUser is the profile key used before a user ID is known
const AnonymousUser = "anonymous"

// The scripts below take KEYS[1] = profile hash, KEYS[2] = immutable set and
// ARGV[1] = TTL in milliseconds (0 keeps keys forever).
const touchLua = `
local function touch()
	local ttl = tonumber(ARGV[1])
	if ttl > 0 then
		redis.call('PEXPIRE', KEYS[1], ttl)
		redis.call('PEXPIRE', KEYS[2], ttl)
	end
end
`

var (
	// ARGV[2] = name, ARGV[3] = value, ARGV[4] = "1" when immutable
	setScript = redis.NewScript(touchLua + `
if redis.call('SISMEMBER', KEYS[2], ARGV[2]) == 1 then
	return 0
end
local written
if ARGV[4] == '1' then
	redis.call('SADD', KEYS[2], ARGV[2])
	written = redis.call('HSETNX', KEYS[1], ARGV[2], ARGV[3])
else
	written = redis.call('HSET', KEYS[1], ARGV[2], ARGV[3])
end
touch()
return written
`)

	// ARGV[2..] = name, value pairs
	bulkSetScript = redis.NewScript(touchLua + `
local written = 0
for i = 2, #ARGV, 2 do
	if redis.call('SISMEMBER', KEYS[2], ARGV[i]) == 0 then
		redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
		written = written + 1
	end
end
touch()
return written
`)

	// ARGV[2] = name, ARGV[3] = delta
	addScript = redis.NewScript(touchLua + `
if redis.call('SISMEMBER', KEYS[2], ARGV[2]) == 1 then
	return 0
end
redis.call('HINCRBYFLOAT', KEYS[1], ARGV[2], ARGV[3])
touch()
return 1
`)
)

// Config configures the Redis connection and key layout
type Config struct {
	URL        string        `yaml:"url"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	PoolSize   int           `yaml:"pool_size"`
	MaxRetries int           `yaml:"max_retries"`
	KeyPrefix  string        `yaml:"key_prefix"`
	TTL        time.Duration `yaml:"ttl"`
}

// Director is a UserDataDirector backed by Redis. It also implements
// EventLogger so that registering it as both keeps its user ID in sync with
// the other loggers and counts events per user.
type Director struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    logrus.FieldLogger

	mu     sync.RWMutex
	userID string

	failures atomic.Int64
}

// New connects to Redis and verifies the connection with PING
func New(cfg Config, log logrus.FieldLogger) (*Director, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB > 0 {
		opts.DB = cfg.DB
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewWithClient(client, cfg.KeyPrefix, cfg.TTL, log), nil
}

// NewWithClient wraps an existing client. An empty prefix defaults to "beacon".
// A positive ttl is refreshed on every write.
func NewWithClient(client *redis.Client, prefix string, ttl time.Duration, log logrus.FieldLogger) *Director {
	if prefix == "" {
		prefix = "beacon"
	}
	if log == nil {
		log = logrus.New()
	}
	return &Director{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		log:    log.WithField("component", "redisprofile"),
	}
}

// Close closes the Redis connection
func (d *Director) Close() error {
	return d.client.Close()
}

// Failures returns how many Redis commands have failed
func (d *Director) Failures() int64 {
	return d.failures.Load()
}

func (d *Director) Configure(ctx context.Context) {}

func (d *Director) ConfigureUser(ctx context.Context, userID string) {
	d.SetUserID(ctx, userID)
}

func (d *Director) SetUserID(ctx context.Context, userID string) {
	d.mu.Lock()
	d.userID = userID
	d.mu.Unlock()
}

func (d *Director) LogEvent(ctx context.Context, name string) {
	d.countEvent(ctx, name)
}

func (d *Director) LogEventWithProperties(ctx context.Context, name string, props analytics.Properties, outOfSession bool) {
	d.countEvent(ctx, name)
}

func (d *Director) countEvent(ctx context.Context, name string) {
	key := d.eventsKey()
	d.exec(ctx, "count_event", key, func(pipe redis.Pipeliner) {
		pipe.HIncrBy(ctx, key, name, 1)
	})
}

// SetUserProperties writes every property except those locked by an
// earlier Immutable Set.
func (d *Director) SetUserProperties(ctx context.Context, props analytics.Properties) {
	if len(props) == 0 {
		return
	}
	strs := props.Strings()
	args := make([]interface{}, 0, 1+2*len(strs))
	args = append(args, d.ttl.Milliseconds())
	for _, name := range props.Keys() {
		args = append(args, name, strs[name])
	}
	d.run(ctx, "set_user_properties", bulkSetScript, args...)
}

func (d *Director) ClearUserProperties(ctx context.Context) {
	profile, locked := d.profileKeys()
	if err := d.client.Del(ctx, profile, locked).Err(); err != nil {
		d.fail("clear_user_properties", profile, err)
	}
}

// Set writes a property unless the name is locked. An Immutable Set keeps
// an existing value (HSETNX) and locks the name, so the first value written
// wins over every later Set, SetUserProperties or Add.
func (d *Director) Set(ctx context.Context, name string, value any, mutability analytics.Mutability) {
	immutable := "0"
	if mutability == analytics.Immutable {
		immutable = "1"
	}
	d.run(ctx, "set", setScript, d.ttl.Milliseconds(), name, analytics.FormatValue(value), immutable)
}

// Add increments a property with HINCRBYFLOAT. A missing field counts as
// zero; locked names are left unchanged.
func (d *Director) Add(ctx context.Context, name string, delta any) {
	f, ok := analytics.ToFloat64(delta)
	if !ok {
		d.fail("add", name, fmt.Errorf("non-numeric delta %T", delta))
		return
	}
	d.run(ctx, "add", addScript, d.ttl.Milliseconds(), name, strconv.FormatFloat(f, 'f', -1, 64))
}

// Unset removes the property and its lock
func (d *Director) Unset(ctx context.Context, name string) {
	profile, locked := d.profileKeys()
	_, err := d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, profile, name)
		pipe.SRem(ctx, locked, name)
		return nil
	})
	if err != nil {
		d.fail("unset", profile, err)
	}
}

// Profile returns the stored properties of userID (the current user when empty)
func (d *Director) Profile(ctx context.Context, userID string) (map[string]string, error) {
	if userID == "" {
		userID = d.currentUser()
	}
	values, err := d.client.HGetAll(ctx, d.key("profile", userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}
	return values, nil
}

// EventCounts returns per-event counters of userID (the current user when empty)
func (d *Director) EventCounts(ctx context.Context, userID string) (map[string]int64, error) {
	if userID == "" {
		userID = d.currentUser()
	}
	values, err := d.client.HGetAll(ctx, d.key("events", userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}
	counts := make(map[string]int64, len(values))
	for name, v := range values {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid counter %q for event %q: %w", v, name, err)
		}
		counts[name] = n
	}
	return counts, nil
}

// exec runs cmd in a transaction, refreshing the key TTL when configured
func (d *Director) exec(ctx context.Context, op, key string, cmd func(redis.Pipeliner)) {
	_, err := d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		cmd(pipe)
		if d.ttl > 0 {
			pipe.Expire(ctx, key, d.ttl)
		}
		return nil
	})
	if err != nil {
		d.fail(op, key, err)
	}
}

func (d *Director) fail(op, key string, err error) {
	d.failures.Add(1)
	d.log.WithError(err).WithFields(logrus.Fields{
		"operation": op,
		"key":       key,
	}).Error("redis profile operation failed")
}

func (d *Director) currentUser() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.userID == "" {
		return AnonymousUser
	}
	return d.userID
}

// run executes a property script against the current user's keys
func (d *Director) run(ctx context.Context, op string, script *redis.Script, args ...interface{}) {
	profile, locked := d.profileKeys()
	if err := script.Run(ctx, d.client, []string{profile, locked}, args...).Err(); err != nil {
		d.fail(op, profile, err)
	}
}

func (d *Director) profileKeys() (profile, locked string) {
	user := d.currentUser()
	return d.key("profile", user), d.key("immutable", user)
}

func (d *Director) eventsKey() string {
	return d.key("events", d.currentUser())
}

func (d *Director) key(kind, userID string) string {
	return fmt.Sprintf("%s:%s:%s", d.prefix, kind, userID)
}

var (
	_ analytics.EventLogger      = (*Director)(nil)
	_ analytics.UserDataDirector = (*Director)(nil)
)
