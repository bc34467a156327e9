package harness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
name: minimal
description: "fetch everything"
flow:
  - invoke: fetchBlogs
assertions:
  - type: trace_count
    event: blog/fetchBlogs/fulfilled
    count: 1
`

func TestParseScenario_Minimal(t *testing.T) {
	s, err := ParseScenario([]byte(minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, "minimal", s.Name)
	require.Len(t, s.Flow, 1)
	assert.Equal(t, StepFetchBlogs, s.Flow[0].Invoke)
	assert.Nil(t, s.Flow[0].Expect)
	assert.Equal(t, 1, s.Assertions[0].Count)
	assert.Nil(t, s.User)
	assert.True(t, s.Now.IsZero())
}

func TestParseScenario_Seeds(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: seeds
description: "seeded posts"
user: { id: u1, name: Ada, email: ada@example.com }
signed_in: true
now: 2024-03-01T12:00:00Z
posts:
  - title: Hello
    body: "<p>x</p>"
    author: { id: u2, name: Grace, email: grace@example.com }
    tags: go
    category: Programming
    likes: [u1]
    views: 5
    comments:
      - author: { id: u1, name: Ada, email: ada@example.com }
        body: hi
        published: 2024-01-16T10:00:00Z
    published: 2024-01-15T09:30:00Z
flow:
  - invoke: removeCommentFromBlog
    args: { id: post-1, index: 0 }
    expect: { outcome: success }
assertions:
  - type: document
    id: post-1
    expect: { comments: [] }
`))
	require.NoError(t, err)

	require.NotNil(t, s.User)
	assert.Equal(t, "Ada", s.User.Name)
	assert.True(t, s.SignedIn)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), s.Now.UTC())

	require.Len(t, s.Posts, 1)
	p := s.Posts[0]
	assert.Equal(t, []string{"u1"}, p.Likes)
	assert.Equal(t, int64(5), p.Views)
	require.Len(t, p.Comments, 1)
	assert.Equal(t, "hi", p.Comments[0].Body)
	assert.Equal(t, time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC), p.Published.UTC())

	assert.Equal(t, 0, s.Flow[0].Args["index"])
	assert.Equal(t, "success", s.Flow[0].Expect.Outcome)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown field",
			yaml: "name: x\ndescription: d\nflow: [{invoke: fetchBlogs}]\nassertion: []\n",
			want: "field assertion not found",
		},
		{
			name: "missing name",
			yaml: "description: d\nflow: [{invoke: fetchBlogs}]\nassertions: [{type: trace_count, event: e}]\n",
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: "name: x\nflow: [{invoke: fetchBlogs}]\nassertions: [{type: trace_count, event: e}]\n",
			want: "description is required",
		},
		{
			name: "empty flow",
			yaml: "name: x\ndescription: d\nassertions: [{type: trace_count, event: e}]\n",
			want: "flow list is required",
		},
		{
			name: "empty assertions",
			yaml: "name: x\ndescription: d\nflow: [{invoke: fetchBlogs}]\n",
			want: "assertions list is required",
		},
		{
			name: "unknown step",
			yaml: "name: x\ndescription: d\nflow: [{invoke: deleteBlog}]\nassertions: [{type: trace_count, event: e}]\n",
			want: `unknown step "deleteBlog"`,
		},
		{
			name: "unknown outcome",
			yaml: "name: x\ndescription: d\nflow: [{invoke: fetchBlogs, expect: {outcome: ok}}]\nassertions: [{type: trace_count, event: e}]\n",
			want: `unknown outcome "ok"`,
		},
		{
			name: "signed in without user",
			yaml: "name: x\ndescription: d\nsigned_in: true\nflow: [{invoke: fetchBlogs}]\nassertions: [{type: trace_count, event: e}]\n",
			want: "signed_in requires a user",
		},
		{
			name: "unknown assertion",
			yaml: "name: x\ndescription: d\nflow: [{invoke: fetchBlogs}]\nassertions: [{type: final_state}]\n",
			want: `unknown assertion type "final_state"`,
		},
		{
			name: "trace_order without events",
			yaml: "name: x\ndescription: d\nflow: [{invoke: fetchBlogs}]\nassertions: [{type: trace_order}]\n",
			want: "events list is required",
		},
		{
			name: "state without path",
			yaml: "name: x\ndescription: d\nflow: [{invoke: fetchBlogs}]\nassertions: [{type: state, expect: 1}]\n",
			want: "path is required",
		},
		{
			name: "document without expect",
			yaml: "name: x\ndescription: d\nflow: [{invoke: fetchBlogs}]\nassertions: [{type: document, id: post-1}]\n",
			want: "expect must be a non-empty map",
		},
		{
			name: "negative count",
			yaml: "name: x\ndescription: d\nflow: [{invoke: fetchBlogs}]\nassertions: [{type: trace_count, event: e, count: -1}]\n",
			want: "count must be non-negative",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_Files(t *testing.T) {
	for _, name := range []string{"reader_flow", "failures", "publish_flow"} {
		s, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
		require.NoError(t, err, name)
		assert.Equal(t, name, s.Name)
	}
}
