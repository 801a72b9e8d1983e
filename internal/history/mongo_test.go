//go:build integration

package history

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/bull/ragchat/internal/config"
)

// setupTestMongo connects to a local MongoDB. Skips test if it is not running.
func setupTestMongo(t *testing.T) Store {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := Open(ctx, config.HistoryConfig{
		URI:        "mongodb://localhost:27017",
		User:       "test",
		Database:   "ragchat_test",
		Collection: "history_" + uuid.New().String(),
	})
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
	}

	t.Cleanup(func() {
		ms := store.(*MongoStore)
		_ = ms.coll.Drop(context.Background())
		_ = store.Close(context.Background())
	})
	return store
}

func TestMongoStore_RoundTrip(t *testing.T) {
	store := setupTestMongo(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "s1", UserTurn("Hi", t0), AssistantTurn("Hello", t0)))
	require.NoError(t, store.Append(ctx, "s1", UserTurn("Again", t0)))

	turns, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "Hi", turns[0].Content)
	assert.Equal(t, RoleAssistant, turns[1].Role)
	assert.Equal(t, "Again", turns[2].Content)
	assert.True(t, turns[0].CreatedAt.Equal(t0))

	empty, err := store.Load(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMongoStore_ConcurrentPairsStayAdjacent(t *testing.T) {
	store := setupTestMongo(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Append(ctx, "s2",
				UserTurn(fmt.Sprintf("q%d", i), t0),
				AssistantTurn(fmt.Sprintf("a%d", i), t0),
			))
		}()
	}
	wg.Wait()

	turns, err := store.Load(ctx, "s2")
	require.NoError(t, err)
	require.Len(t, turns, 40)
	for i := 0; i < len(turns); i += 2 {
		require.Equal(t, RoleUser, turns[i].Role)
		assert.Equal(t, "a"+strings.TrimPrefix(turns[i].Content, "q"), turns[i+1].Content, "pair written atomically")
	}

	n, err := store.(*MongoStore).coll.CountDocuments(ctx, bson.D{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "one document per session")
}
