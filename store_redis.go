package fundkrawler

import (
	"context"
	"fmt"

	"github.com/go-redis/redis"
	json "github.com/json-iterator/go"
)

// RedisStore keeps every snapshot as a JSON string and tracks the written
// paths in a set.
type RedisStore struct {
	namespace string
	redis     *redis.Client

	redisKeySnapshotPrefix string
	redisKeyIndex          string
}

// redisScriptWrite implements a lua script to replace a snapshot and index
// its path in one step.
// KEYS = snapshot, index
// ARGV = records, path
var redisScriptWrite = redis.NewScript(`
redis.call('SET', KEYS[1], ARGV[1])
redis.call('SADD', KEYS[2], ARGV[2])
return 1`)

// NewRedisStore creates a redis store
func NewRedisStore(namespace string, redisOptions *redis.Options) *RedisStore {
	if namespace == "" {
		namespace = "default"
	}
	return &RedisStore{
		namespace: namespace,
		redis:     redis.NewClient(redisOptions),

		redisKeySnapshotPrefix: fmt.Sprintf("{fundkrawler:%s}:snapshot:", namespace),
		redisKeyIndex:          fmt.Sprintf("{fundkrawler:%s}:index", namespace),
	}
}

// Write replaces the snapshot stored under path
func (s *RedisStore) Write(_ context.Context, path string, records []*ThemeRecord) error {
	if records == nil {
		records = []*ThemeRecord{}
	}
	content, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("fail to marshal records, reason: %w", err)
	}

	keys := []string{s.redisKeySnapshotPrefix + path, s.redisKeyIndex}
	if err = redisScriptWrite.Run(s.redis, keys, content, path).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("fail to write snapshot %s, reason: %w", path, err)
	}
	return nil
}

// Read returns the snapshot stored under path
func (s *RedisStore) Read(path string) ([]*ThemeRecord, error) {
	content, err := s.redis.Get(s.redisKeySnapshotPrefix + path).Bytes()
	if err != nil {
		return nil, fmt.Errorf("fail to read snapshot %s, reason: %w", path, err)
	}
	var records []*ThemeRecord
	if err = json.Unmarshal(content, &records); err != nil {
		return nil, fmt.Errorf("fail to unmarshal snapshot %s, reason: %w", path, err)
	}
	return records, nil
}

// Paths lists every path written so far
func (s *RedisStore) Paths() ([]string, error) {
	paths, err := s.redis.SMembers(s.redisKeyIndex).Result()
	if err != nil {
		return nil, fmt.Errorf("fail to list snapshots, reason: %w", err)
	}
	return paths, nil
}

// Close closes the redis connection
func (s *RedisStore) Close() error {
	return s.redis.Close()
}
