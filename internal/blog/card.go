package blog

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// ExcerptLength is the card excerpt size in characters.
const ExcerptLength = 200

// PlainText extracts the visible text of an HTML body, collapsing
// whitespace. Script and style contents are dropped.
func PlainText(body string) string {
	root, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return ""
	}

	var sb strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "li", "br", "blockquote", "pre":
				sb.WriteString(" ")
			}
		}
	}
	extract(root)

	return strings.Join(strings.Fields(sb.String()), " ")
}

// Excerpt returns the first n characters of the body's text followed by
// "...", as shown on post cards.
func Excerpt(body string, n int) string {
	text := PlainText(body)
	if utf8.RuneCountInString(text) > n {
		runes := []rune(text)
		text = string(runes[:n])
	}
	return text + "..."
}

// SplitTags splits the comma-separated tags field, trimming blanks.
func SplitTags(tags string) []string {
	out := []string{}
	for _, t := range strings.Split(tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
