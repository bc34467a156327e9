package blog

import "strings"

// Matches reports whether p matches a search query: title, body or
// category contain it case-insensitively, or the tags string contains
// the lowercased query. An empty query matches everything.
func Matches(p Post, query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(p.Title), q) ||
		strings.Contains(strings.ToLower(p.Body), q) ||
		strings.Contains(p.Tags, q) ||
		strings.Contains(strings.ToLower(p.Category), q)
}

// Filter returns the posts matching query, keeping their order.
func Filter(posts []Post, query string) []Post {
	if query == "" {
		return posts
	}
	out := make([]Post, 0, len(posts))
	for _, p := range posts {
		if Matches(p, query) {
			out = append(out, p)
		}
	}
	return out
}
