package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafsii/postboard-backend/internal/db/dbtest"
	"github.com/leafsii/postboard-backend/internal/db/gormdb"
	"github.com/leafsii/postboard-backend/internal/db/memory"
	"github.com/leafsii/postboard-backend/internal/posts"
)

func TestNewRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("DefaultsToMemory", func(t *testing.T) {
		repo, err := NewRepository(ctx, Config{}, nil)
		require.NoError(t, err)
		defer repo.Close()
		assert.IsType(t, &memory.Repository{}, repo)
	})

	t.Run("SQLiteWithMigrations", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "posts.db")
		repo, err := NewRepository(ctx, Config{Type: TypeSQLite, SQLitePath: path, AutoMigrate: true}, nil)
		require.NoError(t, err)
		defer repo.Close()
		assert.IsType(t, &gormdb.Repository{}, repo)

		created, err := repo.CreatePost(ctx, posts.CreatePostInput{Title: "t", Body: "b"})
		require.NoError(t, err)
		assert.Positive(t, created.ID)
	})

	t.Run("PostgresRequiresDSN", func(t *testing.T) {
		_, err := NewRepository(ctx, Config{Type: TypePostgres}, nil)
		assert.Error(t, err)
	})

	t.Run("SQLiteRequiresPath", func(t *testing.T) {
		_, err := NewRepository(ctx, Config{Type: TypeSQLite}, nil)
		assert.Error(t, err)
	})

	t.Run("UnknownType", func(t *testing.T) {
		_, err := NewRepository(ctx, Config{Type: "oracle"}, nil)
		assert.ErrorContains(t, err, "unsupported database type")
	})
}

func TestMemoryConformance(t *testing.T) {
	dbtest.RunConformanceTests(t, func(t *testing.T, now func() time.Time) posts.Repository {
		return memory.NewRepository(memory.WithClock(now))
	})
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository(memory.WithClock(dbtest.NewClock().Now))

	created, err := Seed(ctx, repo, nil)
	require.NoError(t, err)
	require.Len(t, created, len(PostFixtures))

	// The first and third fixtures share an email.
	require.NotNil(t, created[0].AuthorID)
	require.NotNil(t, created[2].AuthorID)
	assert.Equal(t, *created[0].AuthorID, *created[2].AuthorID)
	assert.Nil(t, created[4].AuthorID)

	list, err := repo.ListPosts(ctx)
	require.NoError(t, err)
	require.Len(t, list, len(PostFixtures))
	assert.Equal(t, created[len(created)-1].ID, list[0].ID)
	assert.Len(t, repo.Authors(), 3)
}
