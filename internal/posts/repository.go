package posts

import "context"

// Repository owns persistence of posts and their authors.
//
// Implementations must return errors matching the kinds in errors.go,
// list newest createdAt first, set createdAt == updatedAt on create and
// resolve authors atomically with the post insert.
type Repository interface {
	ListPosts(ctx context.Context) ([]Post, error)
	GetPost(ctx context.Context, id int64) (*Post, error)
	CreatePost(ctx context.Context, in CreatePostInput) (*Post, error)
	UpdatePost(ctx context.Context, id int64, in UpdatePostInput) (*Post, error)
	DeletePost(ctx context.Context, id int64) error

	Ping(ctx context.Context) error
	Close() error
}
