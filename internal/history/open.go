package history

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bull/ragchat/internal/config"
)

// Open connects to the store addressed by cfg.URI: redis://, rediss://,
// mongodb://, mongodb+srv:// or memory://.
func Open(ctx context.Context, cfg config.HistoryConfig) (Store, error) {
	ns := Namespace{User: cfg.User, Database: cfg.Database, Collection: cfg.Collection}

	scheme := cfg.Scheme()
	switch scheme {
	case "memory":
		return NewMemoryStore(), nil

	case "redis", "rediss":
		opts, err := redis.ParseURL(cfg.URI)
		if err != nil {
			return nil, fmt.Errorf("%w: parse redis uri: %w", ErrHistoryStore, err)
		}
		store := NewRedisStore(redis.NewClient(opts), ns)
		if err := store.Health(ctx); err != nil {
			_ = store.Close(ctx)
			return nil, err
		}
		return store, nil

	case "mongodb", "mongodb+srv":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
		if err != nil {
			return nil, fmt.Errorf("%w: connect: %w", ErrHistoryStore, err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("%w: ping: %w", ErrHistoryStore, err)
		}
		return NewMongoStore(client, ns), nil
	}

	return nil, fmt.Errorf("%w: unsupported uri scheme %q", ErrHistoryStore, scheme)
}
