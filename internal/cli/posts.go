package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/leafsii/postboard-backend/internal/client"
	"github.com/leafsii/postboard-backend/internal/posts"
)

func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List posts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(rootOpts)
			if err != nil {
				return err
			}
			defer c.Close()

			res := c.Posts(cmd.Context())
			if res.Err != nil {
				return res.Err
			}
			return newFormatter(cmd, rootOpts).Posts(res.Data)
		},
	}
}

func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(rootOpts)
			if err != nil {
				return err
			}
			defer c.Close()

			res := c.PostFromParam(cmd.Context(), args[0])
			switch res.Status {
			case client.StatusInactive:
				return invalidID(args[0])
			case client.StatusSuccess:
				return newFormatter(cmd, rootOpts).Post(res.Data)
			default:
				return res.Err
			}
		},
	}
}

func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		in          posts.CreatePostInput
		authorEmail string
		authorName  string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a post",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("author-email") {
				in.AuthorEmail = &authorEmail
			}
			if cmd.Flags().Changed("author-name") {
				in.AuthorName = &authorName
			}

			c, err := newClient(rootOpts)
			if err != nil {
				return err
			}
			defer c.Close()

			created, err := c.CreatePost(client.MutationHooks[*posts.Post]{}).Mutate(cmd.Context(), in)
			if err != nil {
				return err
			}
			return newFormatter(cmd, rootOpts).Post(created)
		},
	}

	cmd.Flags().StringVar(&in.Title, "title", "", "post title")
	cmd.Flags().StringVar(&in.Body, "body", "", "post body")
	cmd.Flags().StringVar(&authorEmail, "author-email", "", "link the post to the author with this email, creating it if needed")
	cmd.Flags().StringVar(&authorName, "author-name", "", "author display name")
	return cmd
}

func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		title     string
		body      string
		published bool
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change the title, body or published flag of a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			var in posts.UpdatePostInput
			if cmd.Flags().Changed("title") {
				in.Title = &title
			}
			if cmd.Flags().Changed("body") {
				in.Body = &body
			}
			if cmd.Flags().Changed("published") {
				in.Published = &published
			}

			c, err := newClient(rootOpts)
			if err != nil {
				return err
			}
			defer c.Close()

			updated, err := c.UpdatePost(client.MutationHooks[*posts.Post]{}).Mutate(cmd.Context(), client.UpdateArgs{ID: id, Data: in})
			if err != nil {
				return err
			}
			return newFormatter(cmd, rootOpts).Post(updated)
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&body, "body", "", "new body")
	cmd.Flags().BoolVar(&published, "published", false, "publish (--published) or unpublish (--published=false)")
	return cmd
}

func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			c, err := newClient(rootOpts)
			if err != nil {
				return err
			}
			defer c.Close()

			if _, err := c.DeletePost(client.MutationHooks[int64]{}).Mutate(cmd.Context(), id); err != nil {
				return err
			}
			return newFormatter(cmd, rootOpts).Deleted(id)
		},
	}
}

func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print post events as they happen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wsURL, err := client.WebSocketURL(rootOpts.APIURL)
			if err != nil {
				return WrapExitError(ExitUsage, "invalid --api", err)
			}

			c, err := newClient(rootOpts)
			if err != nil {
				return err
			}
			defer c.Close()

			out := newFormatter(cmd, rootOpts)
			var writeErr error
			err = c.Watch(cmd.Context(), wsURL, func(e posts.Event) {
				if writeErr == nil {
					writeErr = out.Event(e)
				}
			})
			if err != nil {
				return err
			}
			return writeErr
		},
	}
}

// parseID accepts the ids the server could have assigned.
func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, invalidID(raw)
	}
	return id, nil
}

func invalidID(raw string) error {
	return NewExitError(ExitUsage, fmt.Sprintf("invalid post id %q: must be a positive integer", raw))
}
