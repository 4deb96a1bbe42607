package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/leafsii/postboard-backend/internal/posts"
)

func fixturePosts() []posts.Post {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	name := "Ann"
	authorID := int64(1)
	return []posts.Post{
		{
			ID:        2,
			Title:     "Second post",
			Body:      "Body of the second post.",
			Published: true,
			CreatedAt: base.Add(time.Second),
			UpdatedAt: base.Add(5 * time.Second),
			AuthorID:  &authorID,
			Author:    &posts.AuthorRef{Name: &name},
		},
		{
			ID:        1,
			Title:     "Hello",
			Body:      "World",
			CreatedAt: base,
			UpdatedAt: base,
		},
	}
}

func newGolden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func render(t *testing.T, format string, fn func(*OutputFormatter) error) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, fn(&OutputFormatter{Format: format, Writer: &buf}))
	return buf.Bytes()
}

func TestOutputGolden(t *testing.T) {
	list := fixturePosts()
	event := posts.Event{Type: posts.EventCreated, ID: 3, At: time.Date(2024, 3, 1, 12, 0, 7, 0, time.UTC)}

	tests := []struct {
		name   string
		format string
		fn     func(*OutputFormatter) error
	}{
		{"list_text", "text", func(f *OutputFormatter) error { return f.Posts(list) }},
		{"list_empty_text", "text", func(f *OutputFormatter) error { return f.Posts(nil) }},
		{"list_json", "json", func(f *OutputFormatter) error { return f.Posts(list) }},
		{"post_text", "text", func(f *OutputFormatter) error { return f.Post(&list[0]) }},
		{"event_text", "text", func(f *OutputFormatter) error { return f.Event(event) }},
		{"deleted_json", "json", func(f *OutputFormatter) error { return f.Deleted(4) }},
	}

	g := newGolden(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g.Assert(t, tt.name, render(t, tt.format, tt.fn))
		})
	}
}

func TestEmptyListJSONIsArray(t *testing.T) {
	out := render(t, "json", func(f *OutputFormatter) error { return f.Posts(nil) })
	assert.Equal(t, "[]\n", string(out))
}

func TestPostsYAML(t *testing.T) {
	out := render(t, "yaml", func(f *OutputFormatter) error { return f.Posts(fixturePosts()) })

	var decoded []map[string]any
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	require.Len(t, decoded, 2)

	assert.Equal(t, 2, decoded[0]["id"])
	assert.Equal(t, "Second post", decoded[0]["title"])
	assert.Equal(t, true, decoded[0]["published"])
	assert.Equal(t, map[string]any{"name": "Ann"}, decoded[0]["author"])

	assert.Nil(t, decoded[1]["authorId"])
	_, hasAuthor := decoded[1]["author"]
	assert.False(t, hasAuthor)
	assert.Contains(t, string(out), "createdAt:")
}

func TestAuthorName(t *testing.T) {
	assert.Equal(t, "-", authorName(posts.Post{}))
	assert.Equal(t, "(unnamed)", authorName(posts.Post{Author: &posts.AuthorRef{}}))
}
