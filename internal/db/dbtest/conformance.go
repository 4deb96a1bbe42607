// Package dbtest provides conformance tests for posts.Repository implementations
package dbtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafsii/postboard-backend/internal/posts"
)

// RepositoryFactory creates an empty repository whose timestamps come from now.
type RepositoryFactory func(t *testing.T, now func() time.Time) posts.Repository

// Clock hands out strictly increasing whole-second timestamps so ordering
// assertions hold on every backend regardless of column precision.
type Clock struct {
	mu   sync.Mutex
	next time.Time
}

func NewClock() *Clock {
	return &Clock{next: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.next
	c.next = c.next.Add(time.Second)
	return now
}

// RunConformanceTests runs all conformance tests against a Repository implementation
func RunConformanceTests(t *testing.T, factory RepositoryFactory) {
	tests := []struct {
		name string
		test func(t *testing.T, repo posts.Repository)
	}{
		{"CreateRoundTrip", testCreateRoundTrip},
		{"CreateNormalizesInput", testCreateNormalizesInput},
		{"CreateValidation", testCreateValidation},
		{"ListNewestFirst", testListNewestFirst},
		{"ListEmpty", testListEmpty},
		{"GetMissing", testGetMissing},
		{"PartialUpdate", testPartialUpdate},
		{"UpdatePublished", testUpdatePublished},
		{"UpdateEmpty", testUpdateEmpty},
		{"UpdateMissing", testUpdateMissing},
		{"DeleteThenGet", testDeleteThenGet},
		{"DeleteMissing", testDeleteMissing},
		{"AuthorByEmailReused", testAuthorByEmailReused},
		{"AuthorByNameOnly", testAuthorByNameOnly},
		{"NoAuthor", testNoAuthor},
		{"ConcurrentSameEmail", testConcurrentSameEmail},
		{"CanceledContext", testCanceledContext},
		{"Ping", testPing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := factory(t, NewClock().Now)
			defer repo.Close()
			tt.test(t, repo)
		})
	}
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func mustCreate(t *testing.T, repo posts.Repository, in posts.CreatePostInput) *posts.Post {
	t.Helper()
	p, err := repo.CreatePost(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func testCreateRoundTrip(t *testing.T, repo posts.Repository) {
	ctx := context.Background()

	created := mustCreate(t, repo, posts.CreatePostInput{Title: "Hello", Body: "First post"})
	assert.Positive(t, created.ID)
	assert.Equal(t, "Hello", created.Title)
	assert.Equal(t, "First post", created.Body)
	assert.False(t, created.Published)
	assert.True(t, created.CreatedAt.Equal(created.UpdatedAt), "createdAt must equal updatedAt on create")

	got, err := repo.GetPost(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.Title, got.Title)
	assert.Equal(t, created.Body, got.Body)
	assert.Equal(t, created.Published, got.Published)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, created.UpdatedAt.Equal(got.UpdatedAt))
}

func testCreateNormalizesInput(t *testing.T, repo posts.Repository) {
	created := mustCreate(t, repo, posts.CreatePostInput{
		Title:       "  Café  ",
		Body:        "\tbody\n",
		AuthorEmail: strPtr(" Ann@Example.COM "),
	})
	assert.Equal(t, "Café", created.Title)
	assert.Equal(t, "body", created.Body)

	again := mustCreate(t, repo, posts.CreatePostInput{
		Title:       "Second",
		Body:        "Body",
		AuthorEmail: strPtr("ann@example.com"),
	})
	require.NotNil(t, created.AuthorID)
	require.NotNil(t, again.AuthorID)
	assert.Equal(t, *created.AuthorID, *again.AuthorID)
}

func testCreateValidation(t *testing.T, repo posts.Repository) {
	ctx := context.Background()

	cases := []struct {
		name  string
		in    posts.CreatePostInput
		field string
	}{
		{"EmptyTitle", posts.CreatePostInput{Title: "", Body: "b"}, "title"},
		{"BlankTitle", posts.CreatePostInput{Title: "   ", Body: "b"}, "title"},
		{"EmptyBody", posts.CreatePostInput{Title: "t", Body: ""}, "body"},
		{"BadEmail", posts.CreatePostInput{Title: "t", Body: "b", AuthorEmail: strPtr("not-an-email")}, "authorEmail"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := repo.CreatePost(ctx, tc.in)
			require.Error(t, err)
			assert.ErrorIs(t, err, posts.ErrValidation)

			var verr *posts.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}

	list, err := repo.ListPosts(ctx)
	require.NoError(t, err)
	assert.Empty(t, list, "rejected creates must not persist anything")
}

func testListNewestFirst(t *testing.T, repo posts.Repository) {
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		p := mustCreate(t, repo, posts.CreatePostInput{Title: fmt.Sprintf("Post %d", i), Body: "b"})
		ids = append(ids, p.ID)
	}

	list, err := repo.ListPosts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []int64{ids[2], ids[1], ids[0]}, []int64{list[0].ID, list[1].ID, list[2].ID})
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].CreatedAt.After(list[i-1].CreatedAt))
	}
}

func testListEmpty(t *testing.T, repo posts.Repository) {
	list, err := repo.ListPosts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testGetMissing(t *testing.T, repo posts.Repository) {
	_, err := repo.GetPost(context.Background(), 424242)
	assert.ErrorIs(t, err, posts.ErrNotFound)
	assert.Equal(t, posts.ErrNotFound, posts.Classify(err))
}

func testPartialUpdate(t *testing.T, repo posts.Repository) {
	ctx := context.Background()
	created := mustCreate(t, repo, posts.CreatePostInput{Title: "Old", Body: "Keep me"})

	updated, err := repo.UpdatePost(ctx, created.ID, posts.UpdatePostInput{Title: strPtr("New")})
	require.NoError(t, err)
	assert.Equal(t, "New", updated.Title)
	assert.Equal(t, "Keep me", updated.Body)
	assert.False(t, updated.Published)
	assert.True(t, created.CreatedAt.Equal(updated.CreatedAt))
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt), "updatedAt must advance")

	got, err := repo.GetPost(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "New", got.Title)
	assert.Equal(t, "Keep me", got.Body)
}

func testUpdatePublished(t *testing.T, repo posts.Repository) {
	ctx := context.Background()
	created := mustCreate(t, repo, posts.CreatePostInput{Title: "Draft", Body: "b"})

	updated, err := repo.UpdatePost(ctx, created.ID, posts.UpdatePostInput{Published: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, updated.Published)
	assert.Equal(t, "Draft", updated.Title)

	updated, err = repo.UpdatePost(ctx, created.ID, posts.UpdatePostInput{Published: boolPtr(false)})
	require.NoError(t, err)
	assert.False(t, updated.Published)
}

func testUpdateEmpty(t *testing.T, repo posts.Repository) {
	created := mustCreate(t, repo, posts.CreatePostInput{Title: "t", Body: "b"})

	_, err := repo.UpdatePost(context.Background(), created.ID, posts.UpdatePostInput{})
	assert.ErrorIs(t, err, posts.ErrValidation)

	_, err = repo.UpdatePost(context.Background(), created.ID, posts.UpdatePostInput{Title: strPtr(" ")})
	assert.ErrorIs(t, err, posts.ErrValidation)
}

func testUpdateMissing(t *testing.T, repo posts.Repository) {
	_, err := repo.UpdatePost(context.Background(), 424242, posts.UpdatePostInput{Title: strPtr("x")})
	assert.ErrorIs(t, err, posts.ErrNotFound)
}

func testDeleteThenGet(t *testing.T, repo posts.Repository) {
	ctx := context.Background()
	keep := mustCreate(t, repo, posts.CreatePostInput{Title: "Keep", Body: "b"})
	gone := mustCreate(t, repo, posts.CreatePostInput{Title: "Gone", Body: "b"})

	require.NoError(t, repo.DeletePost(ctx, gone.ID))

	_, err := repo.GetPost(ctx, gone.ID)
	assert.ErrorIs(t, err, posts.ErrNotFound)

	list, err := repo.ListPosts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, keep.ID, list[0].ID)

	err = repo.DeletePost(ctx, gone.ID)
	assert.ErrorIs(t, err, posts.ErrNotFound)
}

func testDeleteMissing(t *testing.T, repo posts.Repository) {
	err := repo.DeletePost(context.Background(), 424242)
	assert.ErrorIs(t, err, posts.ErrNotFound)
}

func testAuthorByEmailReused(t *testing.T, repo posts.Repository) {
	first := mustCreate(t, repo, posts.CreatePostInput{
		Title:       "One",
		Body:        "b",
		AuthorEmail: strPtr("ann@example.com"),
		AuthorName:  strPtr("Ann"),
	})
	second := mustCreate(t, repo, posts.CreatePostInput{
		Title:       "Two",
		Body:        "b",
		AuthorEmail: strPtr("ann@example.com"),
		AuthorName:  strPtr("Someone Else"),
	})

	require.NotNil(t, first.AuthorID)
	require.NotNil(t, second.AuthorID)
	assert.Equal(t, *first.AuthorID, *second.AuthorID)

	require.NotNil(t, second.Author)
	require.NotNil(t, second.Author.Name)
	assert.Equal(t, "Ann", *second.Author.Name, "an existing author's name is never overwritten")
}

func testAuthorByNameOnly(t *testing.T, repo posts.Repository) {
	first := mustCreate(t, repo, posts.CreatePostInput{Title: "One", Body: "b", AuthorName: strPtr("Bo")})
	second := mustCreate(t, repo, posts.CreatePostInput{Title: "Two", Body: "b", AuthorName: strPtr("Bo")})

	require.NotNil(t, first.AuthorID)
	require.NotNil(t, first.Author)
	require.NotNil(t, first.Author.Name)
	assert.Equal(t, "Bo", *first.Author.Name)

	require.NotNil(t, second.AuthorID)
	assert.NotEqual(t, *first.AuthorID, *second.AuthorID, "name-only authors are not deduplicated")
}

func testNoAuthor(t *testing.T, repo posts.Repository) {
	created := mustCreate(t, repo, posts.CreatePostInput{Title: "Anon", Body: "b"})
	assert.Nil(t, created.AuthorID)
	assert.Nil(t, created.Author)

	got, err := repo.GetPost(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Nil(t, got.AuthorID)
	assert.Nil(t, got.Author)
}

func testConcurrentSameEmail(t *testing.T, repo posts.Repository) {
	const writers = 8
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]int64, writers)
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := repo.CreatePost(ctx, posts.CreatePostInput{
				Title:       fmt.Sprintf("Post %d", i),
				Body:        "b",
				AuthorEmail: strPtr("race@example.com"),
			})
			errs[i] = err
			if err == nil && p.AuthorID != nil {
				ids[i] = *p.AuthorID
			}
		}(i)
	}
	wg.Wait()

	var authorID int64
	for i := 0; i < writers; i++ {
		if errs[i] != nil {
			// Losing a unique-index race may surface as a conflict; nothing else.
			assert.ErrorIs(t, errs[i], posts.ErrConflict)
			continue
		}
		if authorID == 0 {
			authorID = ids[i]
		}
		assert.Equal(t, authorID, ids[i])
	}
	assert.NotZero(t, authorID)
}

func testCanceledContext(t *testing.T, repo posts.Repository) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.ListPosts(ctx)
	require.Error(t, err)
	kind := posts.Classify(err)
	assert.True(t, errors.Is(kind, posts.ErrTransient) || errors.Is(kind, posts.ErrInternal), "got %v", kind)
}

func testPing(t *testing.T, repo posts.Repository) {
	assert.NoError(t, repo.Ping(context.Background()))
}
