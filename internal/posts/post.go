package posts

import "time"

// Post is the single content entity. Author is a read-time projection of the
// linked author row and is never written through a Post.
type Post struct {
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Published bool       `json:"published"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	AuthorID  *int64     `json:"authorId"`
	Author    *AuthorRef `json:"author,omitempty"`
}

// AuthorRef is the projection of an author embedded in a Post.
type AuthorRef struct {
	Name *string `json:"name"`
}

// Author is referenced by posts but owned by no single post.
// Email is nil for authors created from a display name alone.
type Author struct {
	ID    int64   `json:"id"`
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

// CreatePostInput is the payload accepted by the create operation.
type CreatePostInput struct {
	Title       string  `json:"title"`
	Body        string  `json:"body"`
	AuthorEmail *string `json:"authorEmail,omitempty"`
	AuthorName  *string `json:"authorName,omitempty"`
}

// UpdatePostInput carries a partial replacement. Nil fields are left alone.
type UpdatePostInput struct {
	Title     *string `json:"title,omitempty"`
	Body      *string `json:"body,omitempty"`
	Published *bool   `json:"published,omitempty"`
}

// IsEmpty reports whether the update carries no fields at all.
func (in UpdatePostInput) IsEmpty() bool {
	return in.Title == nil && in.Body == nil && in.Published == nil
}

// Apply copies the supplied fields onto p. UpdatedAt is left to the caller.
func (in UpdatePostInput) Apply(p *Post) {
	if in.Title != nil {
		p.Title = *in.Title
	}
	if in.Body != nil {
		p.Body = *in.Body
	}
	if in.Published != nil {
		p.Published = *in.Published
	}
}

// Event types published after successful mutations.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// Event announces a committed change to a post.
type Event struct {
	Type string    `json:"type"`
	ID   int64     `json:"id"`
	At   time.Time `json:"at"`
}
