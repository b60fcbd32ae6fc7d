//go:build integration

package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgresContainer starts a pgvector-enabled Postgres container.
// Returns the container and its connection URL.
func startPostgresContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "harness",
			"POSTGRES_PASSWORD": "harness",
			"POSTGRES_DB":       "harness",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		).WithDeadline(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "Failed to start postgres container")

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	url := fmt.Sprintf("postgres://harness:harness@%s:%s/harness?sslmode=disable", host, port.Port())
	return container, url
}

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()

	container, url := startPostgresContainer(t, ctx)
	defer container.Terminate(ctx)

	store, err := NewPostgresStore(ctx, url, WithLogger(discardLogger()))
	require.NoError(t, err)
	require.NoError(t, store.InitSchema(ctx))

	other, err := NewPostgresStore(ctx, url, WithLogger(discardLogger()))
	require.NoError(t, err)
	defer other.Close()
	require.NotEqual(t, store.SessionID(), other.SessionID())

	t.Run("retrieve scenario", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, NewRecord(KindLog, "A", 0.2, TierHot)))
		require.NoError(t, store.Save(ctx, NewRecord(KindLog, "B", 0.9, TierHot)))
		require.NoError(t, store.Save(ctx, NewRecord(KindSkill, "C", 0.5, TierWarm)))
		require.NoError(t, store.Save(ctx, NewRecord(KindLog, "D", 0.2, TierCold)))

		logs, err := store.Retrieve(ctx, KindLog, 10)
		require.NoError(t, err)
		assert.Equal(t, []any{"B", "A", "D"}, contents(logs))

		limited, err := store.Retrieve(ctx, KindLog, 2)
		require.NoError(t, err)
		assert.Equal(t, []any{"B", "A"}, contents(limited))

		none, err := store.Retrieve(ctx, "other", 10)
		require.NoError(t, err)
		assert.Empty(t, none)

		zero, err := store.Retrieve(ctx, KindLog, 0)
		require.NoError(t, err)
		assert.Empty(t, zero)
	})

	t.Run("sessions are isolated", func(t *testing.T) {
		all, err := other.All(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("exchange content decodes", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, NewRecord(KindExperience, Exchange{Prompt: "p", Response: "r"}, 0.7, TierHot)))

		got, err := store.Retrieve(ctx, KindExperience, 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Prompt: p\nResponse: r", RenderContent(got[0].Content))
		assert.Equal(t, TierHot, got[0].Tier)
	})

	t.Run("similarity search", func(t *testing.T) {
		near := NewRecord(KindSkill, "near", 0.1, TierHot)
		near.Embedding = []float32{1, 0.1, 0}
		far := NewRecord(KindSkill, "far", 0.9, TierHot)
		far.Embedding = []float32{0, 0, 1}
		require.NoError(t, store.Save(ctx, near))
		require.NoError(t, store.Save(ctx, far))

		results, err := store.SearchSimilar(ctx, KindSkill, []float32{1, 0, 0}, 10)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "near", results[0].Content)
		assert.Greater(t, results[0].Score, results[1].Score)

		short := NewRecord(KindSkill, "other model", 1, TierHot)
		short.Embedding = []float32{1, 0}
		require.NoError(t, store.Save(ctx, short))

		results, err = store.SearchSimilar(ctx, KindSkill, []float32{1, 0, 0}, 10)
		require.NoError(t, err)
		assert.Len(t, results, 2)

		results, err = store.SearchSimilar(ctx, KindSkill, []float32{1, 0}, 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "other model", results[0].Content)

		results, err = store.SearchSimilar(ctx, KindSkill, nil, 10)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("clear", func(t *testing.T) {
		require.NoError(t, store.Clear(ctx))
		all, err := store.All(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("close drops session rows", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, NewRecord(KindLog, "left over", 0.5, TierHot)))
		require.NoError(t, store.Close())

		var n int
		err := other.pool.QueryRow(ctx, `SELECT COUNT(*) FROM memory_records WHERE session_id = $1`, store.SessionID()).Scan(&n)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
