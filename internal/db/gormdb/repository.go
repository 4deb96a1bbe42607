package gormdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/leafsii/postboard-backend/internal/db/entities"
	"github.com/leafsii/postboard-backend/internal/posts"
)

// Repository is a posts.Repository on top of gorm.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

type Option func(*Repository)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// OpenSQLite opens a sqlite database through gorm. The pool is limited to a
// single connection since sqlite serialises writers anyway and shared-cache
// memory databases would otherwise report SQLITE_LOCKED.
func OpenSQLite(dsn string, opts ...Option) (*Repository, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return New(db, opts...), nil
}

func New(db *gorm.DB, opts ...Option) *Repository {
	r := &Repository{db: db, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Migrate creates or updates the posts and authors tables.
func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&entities.Author{}, &entities.Post{}); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

func (r *Repository) ListPosts(ctx context.Context) ([]posts.Post, error) {
	var rows []entities.Post
	err := r.db.WithContext(ctx).
		Preload("Author").
		Order("created_at DESC").
		Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, classify("list posts", err)
	}

	out := make([]posts.Post, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ToDomain())
	}
	return out, nil
}

func (r *Repository) GetPost(ctx context.Context, id int64) (*posts.Post, error) {
	row, err := loadPost(r.db.WithContext(ctx), id)
	if err != nil {
		return nil, classifyID("get post", id, err)
	}
	out := row.ToDomain()
	return &out, nil
}

func (r *Repository) CreatePost(ctx context.Context, in posts.CreatePostInput) (*posts.Post, error) {
	in, err := posts.PrepareCreate(in)
	if err != nil {
		return nil, err
	}

	var created entities.Post
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := r.now()
		row := entities.Post{
			Title:     in.Title,
			Body:      in.Body,
			CreatedAt: now,
			UpdatedAt: now,
		}

		authorID, err := resolveAuthor(tx, in)
		if err != nil {
			return err
		}
		row.AuthorID = authorID

		if err := tx.Create(&row).Error; err != nil {
			return err
		}

		created, err = loadPost(tx, row.ID)
		return err
	})
	if err != nil {
		return nil, classify("create post", err)
	}

	out := created.ToDomain()
	return &out, nil
}

// resolveAuthor connects to the author with the given email, creating it when
// absent, or creates a name-only author.
func resolveAuthor(tx *gorm.DB, in posts.CreatePostInput) (*int64, error) {
	switch {
	case in.AuthorEmail != nil:
		author := entities.Author{}
		err := tx.Where("email = ?", *in.AuthorEmail).
			Attrs(entities.Author{Email: in.AuthorEmail, Name: in.AuthorName}).
			FirstOrCreate(&author).Error
		if err != nil {
			return nil, err
		}
		return &author.ID, nil
	case in.AuthorName != nil:
		author := entities.Author{Name: in.AuthorName}
		if err := tx.Create(&author).Error; err != nil {
			return nil, err
		}
		return &author.ID, nil
	default:
		return nil, nil
	}
}

func (r *Repository) UpdatePost(ctx context.Context, id int64, in posts.UpdatePostInput) (*posts.Post, error) {
	in, err := posts.PrepareUpdate(in)
	if err != nil {
		return nil, err
	}

	var updated entities.Post
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row entities.Post
		if err := tx.First(&row, id).Error; err != nil {
			return err
		}

		changes := map[string]interface{}{"updated_at": r.now()}
		if in.Title != nil {
			changes["title"] = *in.Title
		}
		if in.Body != nil {
			changes["body"] = *in.Body
		}
		if in.Published != nil {
			changes["published"] = *in.Published
		}
		if err := tx.Model(&row).Updates(changes).Error; err != nil {
			return err
		}

		updated, err = loadPost(tx, id)
		return err
	})
	if err != nil {
		return nil, classifyID("update post", id, err)
	}

	out := updated.ToDomain()
	return &out, nil
}

func (r *Repository) DeletePost(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&entities.Post{}, id)
	if res.Error != nil {
		return classifyID("delete post", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return posts.NotFound("delete post", id)
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return classify("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return classify("ping", err)
	}
	return nil
}

func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func loadPost(tx *gorm.DB, id int64) (entities.Post, error) {
	var row entities.Post
	err := tx.Preload("Author").First(&row, id).Error
	return row, err
}

func classifyID(op string, id int64, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return posts.NotFound(op, id)
	}
	return classify(op, err)
}

func classify(op string, err error) error {
	if errors.Is(err, posts.ErrValidation) {
		return err
	}

	var sqliteErr sqlite3.Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return posts.NewStoreError(op, posts.ErrNotFound, err)
	case errors.Is(err, gorm.ErrDuplicatedKey), errors.Is(err, gorm.ErrForeignKeyViolated):
		return posts.NewStoreError(op, posts.ErrConflict, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return posts.NewStoreError(op, posts.ErrTransient, err)
	case errors.As(err, &sqliteErr):
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen, sqlite3.ErrIoErr:
			return posts.NewStoreError(op, posts.ErrTransient, err)
		case sqlite3.ErrConstraint:
			return posts.NewStoreError(op, posts.ErrConflict, err)
		}
	}
	return posts.NewStoreError(op, posts.ErrInternal, err)
}
