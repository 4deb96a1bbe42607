package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/leafsii/postboard-backend/internal/posts"
)

const textTime = "2006-01-02 15:04:05"

// OutputFormatter renders command results as text, JSON or YAML.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// postView is the YAML shape of a post; it mirrors the JSON field names.
type postView struct {
	ID        int64      `yaml:"id"`
	Title     string     `yaml:"title"`
	Body      string     `yaml:"body"`
	Published bool       `yaml:"published"`
	CreatedAt string     `yaml:"createdAt"`
	UpdatedAt string     `yaml:"updatedAt"`
	AuthorID  *int64     `yaml:"authorId"`
	Author    *authorRef `yaml:"author,omitempty"`
}

type authorRef struct {
	Name *string `yaml:"name"`
}

func toView(p posts.Post) postView {
	v := postView{
		ID:        p.ID,
		Title:     p.Title,
		Body:      p.Body,
		Published: p.Published,
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: p.UpdatedAt.UTC().Format(time.RFC3339),
		AuthorID:  p.AuthorID,
	}
	if p.Author != nil {
		v.Author = &authorRef{Name: p.Author.Name}
	}
	return v
}

func (f *OutputFormatter) Posts(list []posts.Post) error {
	switch f.Format {
	case "json":
		if list == nil {
			list = []posts.Post{}
		}
		return f.json(list)
	case "yaml":
		views := make([]postView, 0, len(list))
		for _, p := range list {
			views = append(views, toView(p))
		}
		return f.yaml(views)
	}

	if len(list) == 0 {
		_, err := fmt.Fprintln(f.Writer, "No posts.")
		return err
	}

	tw := tabwriter.NewWriter(f.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tAUTHOR\tPUBLISHED\tCREATED")
	for _, p := range list {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", p.ID, p.Title, authorName(p), yesNo(p.Published), p.CreatedAt.UTC().Format(textTime))
	}
	return tw.Flush()
}

func (f *OutputFormatter) Post(p *posts.Post) error {
	switch f.Format {
	case "json":
		return f.json(p)
	case "yaml":
		return f.yaml(toView(*p))
	}

	_, err := fmt.Fprintf(f.Writer, "#%d %s\nAuthor:     %s\nPublished:  %s\nCreated:    %s\nUpdated:    %s\n\n%s\n",
		p.ID, p.Title,
		authorName(*p),
		yesNo(p.Published),
		p.CreatedAt.UTC().Format(textTime),
		p.UpdatedAt.UTC().Format(textTime),
		p.Body,
	)
	return err
}

type deletedView struct {
	Deleted int64 `json:"deleted" yaml:"deleted"`
}

func (f *OutputFormatter) Deleted(id int64) error {
	switch f.Format {
	case "json":
		return f.json(deletedView{Deleted: id})
	case "yaml":
		return f.yaml(deletedView{Deleted: id})
	}
	_, err := fmt.Fprintf(f.Writer, "Deleted post %d.\n", id)
	return err
}

type eventView struct {
	Type string `yaml:"type"`
	ID   int64  `yaml:"id"`
	At   string `yaml:"at"`
}

func (f *OutputFormatter) Event(e posts.Event) error {
	switch f.Format {
	case "json":
		return f.json(e)
	case "yaml":
		return f.yaml(eventView{Type: e.Type, ID: e.ID, At: e.At.UTC().Format(time.RFC3339)})
	}
	_, err := fmt.Fprintf(f.Writer, "%s  post %d %s\n", e.At.UTC().Format(textTime), e.ID, e.Type)
	return err
}

func (f *OutputFormatter) json(v any) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (f *OutputFormatter) yaml(v any) error {
	enc := yaml.NewEncoder(f.Writer)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func authorName(p posts.Post) string {
	switch {
	case p.Author == nil:
		return "-"
	case p.Author.Name == nil:
		return "(unnamed)"
	default:
		return *p.Author.Name
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
