package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each session as a Redis list of JSON-encoded turns.
// Keys have the form <database>:history:<user>:<session>.
type RedisStore struct {
	client *redis.Client
	ns     Namespace
}

// NewRedisStore creates a Redis-backed Store.
func NewRedisStore(client *redis.Client, ns Namespace) *RedisStore {
	return &RedisStore{client: client, ns: ns}
}

// Load reads the whole list for session.
func (s *RedisStore) Load(ctx context.Context, session string) ([]Turn, error) {
	if err := checkSession(session); err != nil {
		return nil, err
	}

	items, err := s.client.LRange(ctx, s.ns.Key(session), 0, -1).Result()
	if err == redis.Nil {
		return []Turn{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %w", ErrHistoryStore, session, err)
	}

	turns := make([]Turn, 0, len(items))
	for i, item := range items {
		var turn Turn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			return nil, fmt.Errorf("%w: decode turn %d of %s: %w", ErrHistoryStore, i, session, err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// Append pushes all turns with a single RPUSH, which Redis applies atomically.
func (s *RedisStore) Append(ctx context.Context, session string, turns ...Turn) error {
	if err := checkSession(session); err != nil {
		return err
	}
	if len(turns) == 0 {
		return nil
	}

	values := make([]any, len(turns))
	for i, turn := range stamp(turns) {
		data, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("%w: marshal turn: %w", ErrHistoryStore, err)
		}
		values[i] = data
	}

	if err := s.client.RPush(ctx, s.ns.Key(session), values...).Err(); err != nil {
		return fmt.Errorf("%w: append to %s: %w", ErrHistoryStore, session, err)
	}
	return nil
}

// Health pings the server.
func (s *RedisStore) Health(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrHistoryStore, err)
	}
	return nil
}

func (s *RedisStore) Close(context.Context) error {
	return s.client.Close()
}
