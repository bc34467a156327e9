package blog

import (
	"github.com/roach88/inkwell/internal/doc"
	"github.com/roach88/inkwell/internal/identity"
	"github.com/roach88/inkwell/internal/timestamp"
)

// Collection is the document collection holding posts.
const Collection = "blogs"

// Post is a blog post as held in state. Timestamps are already
// rendered for display.
type Post struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Body      string        `json:"body"`
	ImageURL  string        `json:"imageUrl"`
	Author    identity.User `json:"author"`
	Tags      string        `json:"tags"`
	Category  string        `json:"category"`
	Likes     []string      `json:"likes"`
	Views     int64         `json:"views"`
	Comments  []Comment     `json:"comments"`
	Published string        `json:"published"`
	Updated   string        `json:"updated"`
}

// Comment is one entry of a post's comment sequence.
type Comment struct {
	Author    identity.User `json:"author"`
	Body      string        `json:"body"`
	Published string        `json:"published"`
}

// LikedBy reports whether uid is in the post's likes.
func (p Post) LikedBy(uid string) bool {
	for _, id := range p.Likes {
		if id == uid {
			return true
		}
	}
	return false
}

// DecodePost converts a stored document into a Post, rendering every
// timestamp (the post's and each comment's) with ts.
func DecodePost(id string, obj doc.Object, ts *timestamp.Serializer) Post {
	p := Post{
		ID:        id,
		Title:     obj.Str("title"),
		Body:      obj.Str("body"),
		ImageURL:  obj.Str("imageUrl"),
		Author:    DecodeUser(obj.Obj("author")),
		Tags:      obj.Str("tags"),
		Category:  obj.Str("category"),
		Likes:     []string{},
		Views:     obj.Int64("views"),
		Comments:  []Comment{},
		Published: ts.Serialize(obj["published"]),
		Updated:   ts.Serialize(obj["updated"]),
	}
	for _, v := range obj.Arr("likes") {
		if s, ok := v.(doc.String); ok {
			p.Likes = append(p.Likes, string(s))
		}
	}
	for _, v := range obj.Arr("comments") {
		if c, ok := v.(doc.Object); ok {
			p.Comments = append(p.Comments, decodeComment(c, ts))
		}
	}
	return p
}

func decodeComment(obj doc.Object, ts *timestamp.Serializer) Comment {
	return Comment{
		Author:    DecodeUser(obj.Obj("author")),
		Body:      obj.Str("body"),
		Published: ts.Serialize(obj["published"]),
	}
}

// DecodeUser reads an embedded author snapshot.
func DecodeUser(obj doc.Object) identity.User {
	return identity.User{
		ID:       obj.Str("id"),
		Name:     obj.Str("name"),
		Email:    obj.Str("email"),
		PhotoURL: obj.Str("photoUrl"),
	}
}

// EncodeUser builds the embedded author snapshot.
func EncodeUser(u identity.User) doc.Object {
	return doc.Object{
		"id":       doc.String(u.ID),
		"name":     doc.String(u.Name),
		"email":    doc.String(u.Email),
		"photoUrl": doc.String(u.PhotoURL),
	}
}
