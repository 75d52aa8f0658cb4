package database

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Each record is a hash: d holds the JSON document, v the write version.
const (
	fieldData    = "d"
	fieldVersion = "v"
)

var casScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'v')
if ARGV[2] == '0' then
	if cur then return 0 end
elseif cur ~= ARGV[2] then
	return 0
end
redis.call('HSET', KEYS[1], 'd', ARGV[1])
redis.call('HINCRBY', KEYS[1], 'v', 1)
return 1
`)

type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStore keeps records in redis hashes. Conditional writes run as a
// single Lua script so the version check and the write cannot interleave.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func OpenRedis(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisStore(client, opts.KeyPrefix), nil
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	e, err := s.GetVersioned(ctx, key)
	if err != nil {
		return nil, err
	}
	return e.Value, nil
}

func (s *RedisStore) GetVersioned(ctx context.Context, key string) (Entry, error) {
	vals, err := s.client.HMGet(ctx, s.prefix+key, fieldData, fieldVersion).Result()
	if err != nil {
		return Entry{}, storeErr("get", key, err)
	}
	data, ok := vals[0].(string)
	if !ok {
		return Entry{}, ErrNotFound
	}

	var version int64
	if raw, ok := vals[1].(string); ok {
		version, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Entry{}, storeErr("get", key, fmt.Errorf("bad version %q: %w", raw, err))
		}
	}
	return Entry{Value: []byte(data), Version: version}, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	k := s.prefix + key
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, fieldData, string(value))
		pipe.HIncrBy(ctx, k, fieldVersion, 1)
		return nil
	})
	if err != nil {
		return storeErr("put", key, err)
	}
	return nil
}

func (s *RedisStore) PutIfVersion(ctx context.Context, key string, value []byte, version int64) error {
	ok, err := casScript.Run(ctx, s.client, []string{s.prefix + key}, string(value), strconv.FormatInt(version, 10)).Int()
	if err != nil {
		return storeErr("put", key, err)
	}
	if ok == 0 {
		return ErrConflict
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return storeErr("ping", "", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
