package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/leafsii/postboard-backend/internal/db/migrations"
	"github.com/leafsii/postboard-backend/internal/posts"
)

const selectPost = `
	SELECT p.id, p.title, p.body, p.published, p.created_at, p.updated_at, p.author_id, a.id, a.name
	FROM posts p
	LEFT JOIN authors a ON a.id = p.author_id
`

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

type Option func(*Repository)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// Open connects a pool to dsn and verifies it with a ping.
func Open(ctx context.Context, dsn string, opts ...Option) (*Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return New(pool, opts...), nil
}

func New(pool *pgxpool.Pool, opts ...Option) *Repository {
	r := &Repository{pool: pool, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Migrate applies the embedded goose migrations.
func (r *Repository) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()
	return migrations.Up(ctx, db)
}

func (r *Repository) ListPosts(ctx context.Context) ([]posts.Post, error) {
	rows, err := r.pool.Query(ctx, selectPost+` ORDER BY p.created_at DESC, p.id DESC`)
	if err != nil {
		return nil, classify("list posts", err)
	}
	defer rows.Close()

	out := make([]posts.Post, 0)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, classify("list posts", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list posts", err)
	}
	return out, nil
}

func (r *Repository) GetPost(ctx context.Context, id int64) (*posts.Post, error) {
	p, err := getPost(ctx, r.pool, id)
	if err != nil {
		return nil, classifyID("get post", id, err)
	}
	return &p, nil
}

func (r *Repository) CreatePost(ctx context.Context, in posts.CreatePostInput) (*posts.Post, error) {
	in, err := posts.PrepareCreate(in)
	if err != nil {
		return nil, err
	}

	var created posts.Post
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		authorID, err := resolveAuthor(ctx, tx, in)
		if err != nil {
			return err
		}

		var id int64
		err = tx.QueryRow(ctx, `
			INSERT INTO posts (title, body, created_at, updated_at, author_id)
			VALUES ($1, $2, $3, $3, $4)
			RETURNING id
		`, in.Title, in.Body, r.now(), authorID).Scan(&id)
		if err != nil {
			return err
		}

		created, err = getPost(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, classify("create post", err)
	}
	return &created, nil
}

// resolveAuthor connects to the author with the given email, creating it when
// absent, or creates a name-only author.
func resolveAuthor(ctx context.Context, tx pgx.Tx, in posts.CreatePostInput) (*int64, error) {
	var id int64
	switch {
	case in.AuthorEmail != nil:
		err := tx.QueryRow(ctx, `
			INSERT INTO authors (name, email) VALUES ($1, $2)
			ON CONFLICT (email) DO NOTHING
			RETURNING id
		`, in.AuthorName, *in.AuthorEmail).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			err = tx.QueryRow(ctx, `SELECT id FROM authors WHERE email = $1`, *in.AuthorEmail).Scan(&id)
		}
		if err != nil {
			return nil, err
		}
		return &id, nil
	case in.AuthorName != nil:
		err := tx.QueryRow(ctx, `INSERT INTO authors (name) VALUES ($1) RETURNING id`, *in.AuthorName).Scan(&id)
		if err != nil {
			return nil, err
		}
		return &id, nil
	default:
		return nil, nil
	}
}

func (r *Repository) UpdatePost(ctx context.Context, id int64, in posts.UpdatePostInput) (*posts.Post, error) {
	in, err := posts.PrepareUpdate(in)
	if err != nil {
		return nil, err
	}

	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	set("updated_at", r.now())
	if in.Title != nil {
		set("title", *in.Title)
	}
	if in.Body != nil {
		set("body", *in.Body)
	}
	if in.Published != nil {
		set("published", *in.Published)
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE posts SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	var updated posts.Post
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		updated, err = getPost(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, classifyID("update post", id, err)
	}
	return &updated, nil
}

func (r *Repository) DeletePost(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return classify("delete post", err)
	}
	if tag.RowsAffected() == 0 {
		return posts.NotFound("delete post", id)
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return classify("ping", err)
	}
	return nil
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func getPost(ctx context.Context, q querier, id int64) (posts.Post, error) {
	return scanPost(q.QueryRow(ctx, selectPost+` WHERE p.id = $1`, id))
}

func scanPost(row pgx.Row) (posts.Post, error) {
	var (
		p          posts.Post
		authorRow  *int64
		authorName *string
	)
	err := row.Scan(&p.ID, &p.Title, &p.Body, &p.Published, &p.CreatedAt, &p.UpdatedAt, &p.AuthorID, &authorRow, &authorName)
	if err != nil {
		return posts.Post{}, err
	}
	if authorRow != nil {
		p.Author = &posts.AuthorRef{Name: authorName}
	}
	return p, nil
}

func classifyID(op string, id int64, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return posts.NotFound(op, id)
	}
	return classify(op, err)
}
