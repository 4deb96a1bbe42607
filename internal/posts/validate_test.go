package posts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool { return &b }

func TestPrepareCreate(t *testing.T) {
	t.Run("TrimsAndNormalizes", func(t *testing.T) {
		out, err := PrepareCreate(CreatePostInput{
			Title:       "  Cafe\u0301 ",
			Body:        "\tbody\n",
			AuthorEmail: strPtr(" Ann@Example.COM "),
			AuthorName:  strPtr("  Ann "),
		})
		require.NoError(t, err)
		assert.Equal(t, "Caf\u00e9", out.Title)
		assert.Equal(t, "body", out.Body)
		assert.Equal(t, "ann@example.com", *out.AuthorEmail)
		assert.Equal(t, "Ann", *out.AuthorName)
	})

	t.Run("BlankAuthorFieldsAreDropped", func(t *testing.T) {
		out, err := PrepareCreate(CreatePostInput{
			Title:       "t",
			Body:        "b",
			AuthorEmail: strPtr("   "),
			AuthorName:  strPtr(""),
		})
		require.NoError(t, err)
		assert.Nil(t, out.AuthorEmail)
		assert.Nil(t, out.AuthorName)
	})

	t.Run("Idempotent", func(t *testing.T) {
		in := CreatePostInput{Title: " x ", Body: "y", AuthorEmail: strPtr("A@B.io")}
		once, err := PrepareCreate(in)
		require.NoError(t, err)
		twice, err := PrepareCreate(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice)
	})

	tests := []struct {
		name  string
		in    CreatePostInput
		field string
		msg   string
	}{
		{"MissingTitle", CreatePostInput{Body: "b"}, "title", "is required"},
		{"BlankTitle", CreatePostInput{Title: " \t ", Body: "b"}, "title", "is required"},
		{"MissingBody", CreatePostInput{Title: "t"}, "body", "is required"},
		{"LongTitle", CreatePostInput{Title: strings.Repeat("a", MaxTitleLength+1), Body: "b"}, "title", "must be at most 255 characters"},
		{"LongBody", CreatePostInput{Title: "t", Body: strings.Repeat("a", MaxBodyLength+1)}, "body", "must be at most 50000 characters"},
		{"BadEmail", CreatePostInput{Title: "t", Body: "b", AuthorEmail: strPtr("not-an-email")}, "authorEmail", "must be a valid email address"},
		{"DisplayNameEmail", CreatePostInput{Title: "t", Body: "b", AuthorEmail: strPtr("Ann <ann@example.com>")}, "authorEmail", "must be a valid email address"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PrepareCreate(tt.in)
			require.ErrorIs(t, err, ErrValidation)

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.Equal(t, tt.msg, ve.Message)
		})
	}
}

func TestLengthLimitCountsCharacters(t *testing.T) {
	_, err := PrepareCreate(CreatePostInput{Title: strings.Repeat("é", MaxTitleLength), Body: "b"})
	assert.NoError(t, err)
}

func TestPrepareUpdate(t *testing.T) {
	out, err := PrepareUpdate(UpdatePostInput{Title: strPtr(" New "), Published: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, "New", *out.Title)
	assert.Nil(t, out.Body)
	assert.False(t, *out.Published)

	_, err = PrepareUpdate(UpdatePostInput{})
	assert.ErrorIs(t, err, ErrValidation)
	assert.EqualError(t, err, "no fields to update")

	_, err = PrepareUpdate(UpdatePostInput{Body: strPtr("  ")})
	assert.EqualError(t, err, "body: is required")
}

func TestParseID(t *testing.T) {
	id, err := ParseID(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, raw := range []string{"", "abc", "0", "-3", "1.5", "99999999999999999999"} {
		_, err := ParseID(raw)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve, raw)
		assert.Equal(t, "id", ve.Field)
	}
}

func TestUpdateApply(t *testing.T) {
	p := Post{Title: "old", Body: "body", Published: true}
	UpdatePostInput{Title: strPtr("new"), Published: boolPtr(false)}.Apply(&p)
	assert.Equal(t, Post{Title: "new", Body: "body"}, p)
}
