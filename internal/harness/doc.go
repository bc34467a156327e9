// Package harness runs YAML scenarios against a composed client and checks
// the resulting event trace, state and stored documents.
//
// # Scenario Format
//
//	name: like_flow
//	description: "Liking a post toggles the signed-in user's like"
//	user: { id: u1, name: Ada, email: ada@example.com }
//	signed_in: true
//	posts:
//	  - title: Hello
//	    body: "<p>First</p>"
//	    tags: go,cli
//	    category: Programming
//	    published: 2024-01-15T09:30:00Z
//	flow:
//	  - invoke: fetchBlogById
//	    args: { id: post-1 }
//	  - invoke: likeBlog
//	    args: { id: post-1 }
//	    expect: { outcome: success }
//	assertions:
//	  - type: trace_count
//	    event: blog/likeBlog/fulfilled
//	    count: 1
//	  - type: document
//	    id: post-1
//	    expect: { likes: [u1] }
//
// Seeded posts get the ids post-1, post-2, ... in order; created posts
// continue the sequence.
//
// # Flow Steps
//
// Client operations: signIn, signOut, setAuthLoading, fetchBlogs,
// fetchPopularBlogs, fetchBlogById, likeBlog, addCommentToBlog,
// removeCommentFromBlog, updateBlogViews, createBlog.
//
// Fault injection (no trace events): failStore, healStore, failSignIn.
//
// # Assertion Types
//
//   - trace_contains: an event (optionally with a string arg) is in the trace
//   - trace_order: events appear in the given order
//   - trace_count: an event appears exactly N times
//   - state: a dotted path into the final JSON state equals a value
//   - document: a stored document contains the expected fields
//
// # Deterministic Testing
//
// Each scenario runs against a fresh SQLite document store in a temporary
// directory, with sequential document ids, a manual wall clock and a logical
// clock numbering events from 1. Steps run one at a time and each waits for
// its terminal event, so traces are identical across runs and can be
// compared against golden files.
package harness
