package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func setupTestMongo(t *testing.T) (*MongoBackend, func()) {
	if testing.Short() {
		t.Skip("skipping MongoDB container test in short mode")
	}
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, uri, "testdb")
	require.NoError(t, err)

	backend := NewMongoBackend(db, time.Hour)
	require.NoError(t, backend.CreateIndexes(ctx))

	cleanup := func() {
		_ = db.Client().Disconnect(ctx)
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return backend, cleanup
}

func TestMongoBackend_RoundTrip(t *testing.T) {
	backend, cleanup := setupTestMongo(t)
	defer cleanup()

	ctx := context.Background()

	_, err := backend.Get(ctx, "sess", "cart.items")
	assert.ErrorIs(t, err, ErrMissing)

	require.NoError(t, backend.Remember(ctx, "sess", "cart.items", []byte(`[{"variantId":5}]`)))
	require.NoError(t, backend.Remember(ctx, "sess", "cart.items", []byte(`[]`)))

	got, err := backend.Get(ctx, "sess", "cart.items")
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(got))

	count, err := backend.collection.CountDocuments(ctx, map[string]string{"session_id": "sess"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "upsert must not duplicate the key")

	require.NoError(t, backend.Forget(ctx, "sess", "cart.items"))
	_, err = backend.Get(ctx, "sess", "cart.items")
	assert.ErrorIs(t, err, ErrMissing)
}

func TestMongoBackend_Ping(t *testing.T) {
	backend, cleanup := setupTestMongo(t)
	defer cleanup()

	assert.NoError(t, backend.Ping(context.Background()))
}
