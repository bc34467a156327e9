package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/roach88/inkwell/internal/blog"
)

// writeCards prints posts the way the list page shows them.
func writeCards(w io.Writer, heading string, posts []blog.Post) {
	fmt.Fprintf(w, "== %s ==\n", heading)
	if len(posts) == 0 {
		fmt.Fprintln(w, "(no posts)")
		fmt.Fprintln(w)
		return
	}
	for _, p := range posts {
		fmt.Fprintf(w, "%s  %s\n", p.ID, p.Title)
		fmt.Fprintf(w, "  by %s · %s · %s\n", p.Author.Name, p.Published, p.Category)
		if tags := blog.SplitTags(p.Tags); len(tags) > 0 {
			fmt.Fprintf(w, "  #%s\n", strings.Join(tags, " #"))
		}
		fmt.Fprintf(w, "  %s\n", blog.Excerpt(p.Body, blog.ExcerptLength))
		fmt.Fprintf(w, "  %d views · %d likes · %d comments\n", p.Views, len(p.Likes), len(p.Comments))
		fmt.Fprintln(w)
	}
}

// writePost prints a post with its comments, numbered for `comment rm`.
func writePost(w io.Writer, p *blog.Post) {
	if p == nil {
		return
	}
	fmt.Fprintln(w, p.Title)
	fmt.Fprintln(w, strings.Repeat("=", len([]rune(p.Title))))
	fmt.Fprintf(w, "by %s · published %s · updated %s\n", p.Author.Name, p.Published, p.Updated)
	fmt.Fprintf(w, "%s", p.Category)
	if tags := blog.SplitTags(p.Tags); len(tags) > 0 {
		fmt.Fprintf(w, " · #%s", strings.Join(tags, " #"))
	}
	fmt.Fprintln(w)
	if p.ImageURL != "" {
		fmt.Fprintf(w, "cover: %s\n", p.ImageURL)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, blog.PlainText(p.Body))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d views · %d likes\n", p.Views, len(p.Likes))

	fmt.Fprintf(w, "\nComments (%d)\n", len(p.Comments))
	for i, c := range p.Comments {
		fmt.Fprintf(w, "  [%d] %s (%s): %s\n", i, c.Author.Name, c.Published, c.Body)
	}
}
