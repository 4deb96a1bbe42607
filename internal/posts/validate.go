package posts

import (
	"net/mail"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	MaxTitleLength = 255
	MaxBodyLength  = 50000
)

// PrepareCreate returns a normalized copy of in, or a *ValidationError.
// Calling it twice is harmless, so both the service and the backends do.
func PrepareCreate(in CreatePostInput) (CreatePostInput, error) {
	out := CreatePostInput{
		Title: clean(in.Title),
		Body:  clean(in.Body),
	}
	if err := checkText("title", out.Title, MaxTitleLength); err != nil {
		return CreatePostInput{}, err
	}
	if err := checkText("body", out.Body, MaxBodyLength); err != nil {
		return CreatePostInput{}, err
	}

	if in.AuthorEmail != nil {
		email, err := normalizeEmail(*in.AuthorEmail)
		if err != nil {
			return CreatePostInput{}, err
		}
		if email != "" {
			out.AuthorEmail = &email
		}
	}
	if in.AuthorName != nil {
		if name := clean(*in.AuthorName); name != "" {
			out.AuthorName = &name
		}
	}
	return out, nil
}

// PrepareUpdate returns a normalized copy of in, or a *ValidationError.
func PrepareUpdate(in UpdatePostInput) (UpdatePostInput, error) {
	if in.IsEmpty() {
		return UpdatePostInput{}, invalid("", "no fields to update")
	}

	out := UpdatePostInput{Published: in.Published}
	if in.Title != nil {
		title := clean(*in.Title)
		if err := checkText("title", title, MaxTitleLength); err != nil {
			return UpdatePostInput{}, err
		}
		out.Title = &title
	}
	if in.Body != nil {
		body := clean(*in.Body)
		if err := checkText("body", body, MaxBodyLength); err != nil {
			return UpdatePostInput{}, err
		}
		out.Body = &body
	}
	return out, nil
}

// ValidateID rejects ids the store could never have assigned.
func ValidateID(id int64) error {
	if id <= 0 {
		return invalid("id", "must be a positive integer")
	}
	return nil
}

// ParseID parses a path or query parameter into a post id.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, invalid("id", "must be a positive integer")
	}
	if err := ValidateID(id); err != nil {
		return 0, err
	}
	return id, nil
}

func clean(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func checkText(field, value string, max int) error {
	if value == "" {
		return invalid(field, "is required")
	}
	if utf8.RuneCountInString(value) > max {
		return invalid(field, "must be at most "+strconv.Itoa(max)+" characters")
	}
	return nil
}

// normalizeEmail lower-cases a bare address. Display-name forms such as
// "Ann <ann@x.com>" are rejected.
func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", nil
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalid("authorEmail", "must be a valid email address")
	}
	return email, nil
}
