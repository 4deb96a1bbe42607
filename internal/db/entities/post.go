package entities

import (
	"time"

	"github.com/leafsii/postboard-backend/internal/posts"
)

// Post is the gorm model of the posts table.
type Post struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	Title     string    `gorm:"not null"`
	Body      string    `gorm:"type:text;not null"`
	Published bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"not null;index:idx_posts_created_at,sort:desc"`
	UpdatedAt time.Time `gorm:"not null"`
	AuthorID  *int64    `gorm:"index:idx_posts_author_id"`
	Author    *Author   `gorm:"foreignKey:AuthorID;constraint:OnDelete:SET NULL"`
}

func (Post) TableName() string {
	return "posts"
}

// ToDomain converts the row, projecting the preloaded author if any.
func (p Post) ToDomain() posts.Post {
	out := posts.Post{
		ID:        p.ID,
		Title:     p.Title,
		Body:      p.Body,
		Published: p.Published,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
		AuthorID:  p.AuthorID,
	}
	if p.AuthorID != nil && p.Author != nil {
		out.Author = &posts.AuthorRef{Name: p.Author.Name}
	}
	return out
}
