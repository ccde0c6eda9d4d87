// Package redis provides the L2 shared fast-cache tier on Redis.
//
// Each item is a hash with version, checksum, payload, origin, modified, and
// dirty fields. Writes go through a Lua script so the version check and the
// write are atomic across every process sharing the cache.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/tier"
)

const (
	// DefaultPrefix namespaces strata keys inside a shared Redis.
	DefaultPrefix = "strata:"

	// DefaultMaxItemBytes is the default per-item payload limit.
	DefaultMaxItemBytes = 1 << 20
)

// putScript stores the item only if Accepts would allow it.
// KEYS[1] hash key; ARGV: version, checksum, payload, origin, modified, dirty, ttl ms.
var putScript = goredis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'version')
if cur then
	local curv = tonumber(cur)
	local nextv = tonumber(ARGV[1])
	if nextv < curv then
		return 0
	end
	if nextv == curv and redis.call('HGET', KEYS[1], 'checksum') ~= ARGV[2] then
		return 0
	end
end
redis.call('HSET', KEYS[1],
	'version', ARGV[1],
	'checksum', ARGV[2],
	'payload', ARGV[3],
	'origin', ARGV[4],
	'modified', ARGV[5],
	'dirty', ARGV[6])
local ttl = tonumber(ARGV[7])
if ttl > 0 then
	redis.call('PEXPIRE', KEYS[1], ttl)
end
return 1
`)

// Config holds configuration for the Redis L2 store.
type Config struct {
	// Addr is the Redis address, e.g. "localhost:6379".
	Addr string

	// Password and DB select the Redis database.
	Password string
	DB       int

	// Prefix is prepended to every key. Defaults to DefaultPrefix.
	Prefix string

	// TTL expires idle entries. Zero keeps entries until deleted or evicted.
	TTL time.Duration

	// MaxItemBytes rejects larger payloads with memory.ErrCapacityExceeded.
	MaxItemBytes int
}

// Store implements tier.Store on Redis.
type Store struct {
	config Config
	client goredis.UniversalClient
	owned  bool
}

// NewStore connects to Redis and verifies the connection.
func NewStore(ctx context.Context, c Config) (*Store, error) {
	if c.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	s := NewStoreWithClient(client, c)
	s.owned = true
	return s, nil
}

// NewStoreWithClient wraps an existing client. The caller keeps ownership of
// the client and Close does not close it.
func NewStoreWithClient(client goredis.UniversalClient, c Config) *Store {
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	if c.MaxItemBytes <= 0 {
		c.MaxItemBytes = DefaultMaxItemBytes
	}

	return &Store{
		config: c,
		client: client,
	}
}

// Get retrieves the item under key.
func (s *Store) Get(ctx context.Context, key string) (*memory.Item, error) {
	fields, err := s.client.HGetAll(ctx, s.config.Prefix+key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	if len(fields) == 0 {
		return nil, memory.NotFoundError{Key: key}
	}

	return decodeItem(key, fields)
}

// Put stores item if its version is acceptable.
func (s *Store) Put(ctx context.Context, item *memory.Item) error {
	if item == nil {
		return fmt.Errorf("cannot store nil item")
	}
	if item.Size() > s.config.MaxItemBytes {
		return fmt.Errorf("%w: payload of %d bytes exceeds L2 limit of %d", memory.ErrCapacityExceeded, item.Size(), s.config.MaxItemBytes)
	}

	key := item.Key.String()
	ok, err := putScript.Run(ctx, s.client, []string{s.config.Prefix + key},
		strconv.FormatUint(item.Version, 10),
		item.Checksum,
		item.Payload,
		int(item.TierOrigin),
		item.LastModified.UnixNano(),
		strconv.FormatBool(item.Dirty),
		s.config.TTL.Milliseconds(),
	).Int()
	if err != nil {
		if isOOM(err) {
			return fmt.Errorf("%w: redis is full: %v", memory.ErrCapacityExceeded, err)
		}
		return fmt.Errorf("redis put %s: %w", key, err)
	}
	if ok == 0 {
		return fmt.Errorf("%w: L2 holds a newer or different %s, got version %d", memory.ErrVersionConflict, key, item.Version)
	}

	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.config.Prefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}

	return nil
}

// Close closes the client if this store created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}

	return s.client.Close()
}

func decodeItem(key string, fields map[string]string) (*memory.Item, error) {
	k, err := memory.ParseKey(key)
	if err != nil {
		return nil, err
	}

	version, err := strconv.ParseUint(fields["version"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decoding version of %s: %w", key, err)
	}

	origin, err := strconv.Atoi(fields["origin"])
	if err != nil {
		return nil, fmt.Errorf("decoding origin of %s: %w", key, err)
	}

	modified, err := strconv.ParseInt(fields["modified"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decoding modified of %s: %w", key, err)
	}

	dirty, err := strconv.ParseBool(fields["dirty"])
	if err != nil {
		return nil, fmt.Errorf("decoding dirty of %s: %w", key, err)
	}

	return &memory.Item{
		Key:          k,
		Payload:      []byte(fields["payload"]),
		Version:      version,
		Checksum:     fields["checksum"],
		TierOrigin:   memory.Tier(origin),
		LastModified: time.Unix(0, modified),
		Dirty:        dirty,
	}, nil
}

func isOOM(err error) bool {
	var rerr goredis.Error
	return errors.As(err, &rerr) && strings.HasPrefix(rerr.Error(), "OOM")
}

var _ tier.Store = (*Store)(nil)
