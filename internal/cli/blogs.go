package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/inkwell/internal/blog"
	"github.com/roach88/inkwell/internal/engine"
	"github.com/roach88/inkwell/internal/publish"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Search string
}

// ListResult is the JSON payload of list.
type ListResult struct {
	Popular []blog.Post `json:"popularBlogs"`
	Blogs   []blog.Post `json:"blogs"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List popular and all posts",
		Long: `List the most viewed posts, then every post in store order.

With --search, only matching posts are listed under all posts. Title, body
and category match case-insensitively. Tags are matched as stored against
the lowercased query.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(opts.RootOptions, cmd, func(ctx context.Context, rt *runtime) error {
				if _, err := rt.await(ctx, rt.client.FetchPopularBlogs(ctx)); err != nil {
					return err
				}
				if _, err := rt.await(ctx, rt.client.FetchBlogs(ctx, opts.Search)); err != nil {
					return err
				}
				st := rt.client.State().Blog
				res := ListResult{Popular: st.Popular, Blogs: st.Blogs}
				return rt.out.Render(res, func(w io.Writer) {
					writeCards(w, "Popular", res.Popular)
					heading := "All posts"
					if opts.Search != "" {
						heading = fmt.Sprintf("Posts matching %q", opts.Search)
					}
					writeCards(w, heading, res.Blogs)
				})
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Search, "search", "s", "", "filter posts by a search query")
	return cmd
}

// NewShowCommand creates the show command.
func NewShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a post with its comments",
		Long:  "Show a post with its comments. Viewing a post counts as a view.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(opts, cmd, func(ctx context.Context, rt *runtime) error {
				id := args[0]
				if _, err := rt.await(ctx, rt.client.FetchBlogByID(ctx, id)); err != nil {
					return err
				}
				if _, err := rt.await(ctx, rt.client.UpdateBlogViews(ctx, id)); err != nil {
					return err
				}
				post := rt.client.State().Blog.Current
				return rt.out.Render(post, func(w io.Writer) {
					writePost(w, post)
				})
			})
		},
	}
}

// NewLikeCommand creates the like command.
func NewLikeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "like <id>",
		Short: "Like a post, or remove your like",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(opts, cmd, func(ctx context.Context, rt *runtime) error {
				out, err := rt.await(ctx, rt.client.LikeBlog(ctx, args[0]))
				if err != nil {
					return err
				}
				res := out.(engine.Success).Data.(blog.LikeResult)
				liked := false
				if u := rt.client.State().Auth.User; u != nil {
					liked = blog.Post{Likes: res.Likes}.LikedBy(u.ID)
				}
				return rt.out.Render(res, func(w io.Writer) {
					verb := "Unliked"
					if liked {
						verb = "Liked"
					}
					fmt.Fprintf(w, "%s %s (%d likes)\n", verb, res.ID, len(res.Likes))
				})
			})
		},
	}
}

// NewCommentCommand creates the comment command group.
func NewCommentCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comment",
		Short: "Add or remove comments",
	}
	cmd.AddCommand(newCommentAddCommand(opts))
	cmd.AddCommand(newCommentRemoveCommand(opts))
	return cmd
}

func newCommentAddCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <id> <body>",
		Short: "Comment on a post",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(opts, cmd, func(ctx context.Context, rt *runtime) error {
				u, err := rt.requireUser("comment")
				if err != nil {
					return err
				}
				out, err := rt.await(ctx, rt.client.AddCommentToBlog(ctx, args[0], blog.CommentInput{
					Author:    *u,
					Body:      args[1],
					Published: rt.now(),
				}))
				if err != nil {
					return err
				}
				res := out.(engine.Success).Data.(blog.CommentResult)
				return rt.out.Render(res, func(w io.Writer) {
					fmt.Fprintf(w, "Commented on %s\n", res.ID)
				})
			})
		},
	}
}

func newCommentRemoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id> <index>",
		Aliases: []string{"remove"},
		Short:   "Remove one of your comments by its index",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return NewExitError(ExitCommandError, fmt.Sprintf("comment index must be an integer, got %q", args[1]))
			}
			return withRuntime(opts, cmd, func(ctx context.Context, rt *runtime) error {
				return runCommentRemove(ctx, rt, args[0], index)
			})
		},
	}
}

func runCommentRemove(ctx context.Context, rt *runtime, id string, index int) error {
	u, err := rt.requireUser("remove comments")
	if err != nil {
		return err
	}
	if _, err := rt.await(ctx, rt.client.FetchBlogByID(ctx, id)); err != nil {
		return err
	}
	if post := rt.client.State().Blog.Current; post != nil && index >= 0 && index < len(post.Comments) &&
		post.Comments[index].Author.ID != u.ID {
		msg := "only the author can remove a comment"
		rt.out.Error(ErrCodeAuth, msg, nil)
		return NewExitError(ExitFailure, msg)
	}

	out, err := rt.await(ctx, rt.client.RemoveCommentFromBlog(ctx, id, index))
	if err != nil {
		return err
	}
	res := out.(engine.Success).Data.(blog.RemoveResult)
	return rt.out.Render(res, func(w io.Writer) {
		fmt.Fprintf(w, "Removed comment %d from %s\n", res.Index, res.ID)
	})
}

// CreateOptions holds flags for the create command.
type CreateOptions struct {
	*RootOptions
	Title    string
	Body     string
	BodyFile string
	Tags     string
	Category string
	Image    string
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Publish a post with a cover image",
		Long: `Publish a post. The cover image is uploaded to images/<file name> in the
blob store before the post is inserted.

Categories: ` + strings.Join(publish.Categories, ", ") + `

Example:
  inkwell create --title "Hello" --body "<p>Hi</p>" --tags go,intro \
    --category Programming --image ./cover.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Title, "title", "", "post title")
	cmd.Flags().StringVar(&opts.Body, "body", "", "post body (HTML)")
	cmd.Flags().StringVar(&opts.BodyFile, "body-file", "", "read the post body from a file")
	cmd.Flags().StringVar(&opts.Tags, "tags", "", "comma-separated tags")
	cmd.Flags().StringVar(&opts.Category, "category", "", "post category")
	cmd.Flags().StringVar(&opts.Image, "image", "", "path to the cover image")

	return cmd
}

func runCreate(opts *CreateOptions, cmd *cobra.Command) error {
	if opts.Category != "" && !publish.ValidCategory(opts.Category) {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown category %q: must be one of %s",
			opts.Category, strings.Join(publish.Categories, ", ")))
	}
	body := opts.Body
	if opts.BodyFile != "" {
		data, err := os.ReadFile(opts.BodyFile)
		if err != nil {
			return WrapExitError(ExitCommandError, "read body file", err)
		}
		body = string(data)
	}

	return withRuntime(opts.RootOptions, cmd, func(ctx context.Context, rt *runtime) error {
		draft := publish.Draft{
			Title:     opts.Title,
			Body:      body,
			Tags:      opts.Tags,
			Category:  opts.Category,
			Author:    rt.client.State().Auth.User,
			Published: rt.now(),
		}
		if opts.Image != "" {
			f, err := os.Open(opts.Image)
			if err != nil {
				rt.out.Error(ErrCodeUsage, err.Error(), nil)
				return WrapExitError(ExitCommandError, "open image", err)
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return WrapExitError(ExitCommandError, "stat image", err)
			}
			draft.Image = &publish.Image{Name: filepath.Base(opts.Image), Size: info.Size(), Content: f}
		}

		out, err := rt.await(ctx, rt.client.CreateBlog(ctx, draft))
		if err != nil {
			return err
		}
		res := out.(engine.Success).Data.(publish.Created)
		return rt.out.Render(res, func(w io.Writer) {
			fmt.Fprintf(w, "Published %s\nCover image: %s\n", res.ID, res.ImageURL)
		})
	})
}
