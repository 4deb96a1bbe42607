package db

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/leafsii/postboard-backend/internal/posts"
)

func ptr(s string) *string { return &s }

// PostFixtures provides sample posts for seeding. Two share an author email so
// the seeded data exercises author reuse.
var PostFixtures = []posts.CreatePostInput{
	{
		Title:       "Introduction to Go",
		Body:        "Go is a programming language designed at Google for building simple, reliable software.",
		AuthorEmail: ptr("jane.smith@example.com"),
		AuthorName:  ptr("Jane Smith"),
	},
	{
		Title:       "Database Design Patterns",
		Body:        "When designing databases, there are several patterns worth knowing.",
		AuthorEmail: ptr("john.doe@example.com"),
		AuthorName:  ptr("John Doe"),
	},
	{
		Title:       "Advanced Go Techniques",
		Body:        "This post covers generics, iterators and a few concurrency patterns.",
		AuthorEmail: ptr("jane.smith@example.com"),
	},
	{
		Title:      "Notes From a Guest",
		Body:       "Written without an account.",
		AuthorName: ptr("Guest"),
	},
	{
		Title: "Anonymous Tip",
		Body:  "Nobody signed this one.",
	},
}

// Seed inserts PostFixtures in order and returns the created posts.
func Seed(ctx context.Context, repo posts.Repository, logger *zap.SugaredLogger) ([]posts.Post, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	created := make([]posts.Post, 0, len(PostFixtures))
	for _, in := range PostFixtures {
		p, err := repo.CreatePost(ctx, in)
		if err != nil {
			return created, fmt.Errorf("failed to seed post %q: %w", in.Title, err)
		}
		created = append(created, *p)
		logger.Debugw("Seeded post", "id", p.ID, "title", p.Title)
	}

	logger.Infow("Seeded posts", "count", len(created))
	return created, nil
}
