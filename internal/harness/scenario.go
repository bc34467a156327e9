package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// User is the account the interactive sign-in returns. Without one,
	// sign-in fails as if the popup was closed.
	User *User `yaml:"user,omitempty"`

	// SignedIn starts the identity provider with User already signed in.
	SignedIn bool `yaml:"signed_in,omitempty"`

	// Now is the wall-clock time used for new comments and posts.
	// Defaults to DefaultNow.
	Now time.Time `yaml:"now,omitempty"`

	// Posts are inserted before the client starts.
	Posts []Post `yaml:"posts,omitempty"`

	// Flow contains the steps, run one at a time.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace, state and documents.
	Assertions []Assertion `yaml:"assertions"`
}

// DefaultNow is the wall-clock time of scenarios that do not set one.
var DefaultNow = time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)

// User is an identity in scenario files.
type User struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	PhotoURL string `yaml:"photo_url,omitempty"`
}

// Post is a seeded document.
type Post struct {
	Title     string    `yaml:"title"`
	Body      string    `yaml:"body"`
	ImageURL  string    `yaml:"image_url,omitempty"`
	Author    User      `yaml:"author"`
	Tags      string    `yaml:"tags"`
	Category  string    `yaml:"category"`
	Likes     []string  `yaml:"likes,omitempty"`
	Views     int64     `yaml:"views,omitempty"`
	Comments  []Comment `yaml:"comments,omitempty"`
	Published time.Time `yaml:"published"`
}

// Comment is a seeded comment.
type Comment struct {
	Author    User      `yaml:"author"`
	Body      string    `yaml:"body"`
	Published time.Time `yaml:"published"`
}

// FlowStep invokes one client operation or fault injection.
type FlowStep struct {
	// Invoke is the operation name, e.g. "likeBlog".
	Invoke string `yaml:"invoke"`

	// Args are the operation arguments.
	Args map[string]any `yaml:"args,omitempty"`

	// Expect checks the step's outcome. If nil, any outcome is accepted.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Outcome is the outcome kind: success, not_found, remote_failure or
	// validation_failure.
	Outcome string `yaml:"outcome"`

	// Error is the exact failure message, when set.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates trace, state or stored documents.
type Assertion struct {
	Type string `yaml:"type"`

	// Event is the full event name (trace_contains, trace_count).
	Event string `yaml:"event,omitempty"`

	// Arg narrows trace_contains to events dispatched with this string arg.
	Arg string `yaml:"arg,omitempty"`

	// Events is the expected order (trace_order).
	Events []string `yaml:"events,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Path is a dotted path into the JSON state, e.g. "blog.blog.views" (state).
	Path string `yaml:"path,omitempty"`

	// Collection defaults to the posts collection (document).
	Collection string `yaml:"collection,omitempty"`

	// ID is the document id (document).
	ID string `yaml:"id,omitempty"`

	// Expect is the expected value (state) or field subset (document).
	Expect any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertState         = "state"
	AssertDocument      = "document"
)

// Step names.
const (
	StepSignIn        = "signIn"
	StepSignOut       = "signOut"
	StepSetLoading    = "setAuthLoading"
	StepFetchBlogs    = "fetchBlogs"
	StepFetchPopular  = "fetchPopularBlogs"
	StepFetchByID     = "fetchBlogById"
	StepLike          = "likeBlog"
	StepAddComment    = "addCommentToBlog"
	StepRemoveComment = "removeCommentFromBlog"
	StepUpdateViews   = "updateBlogViews"
	StepCreateBlog    = "createBlog"

	StepFailStore  = "failStore"
	StepHealStore  = "healStore"
	StepFailSignIn = "failSignIn"
)

var knownSteps = map[string]bool{
	StepSignIn: true, StepSignOut: true, StepSetLoading: true,
	StepFetchBlogs: true, StepFetchPopular: true, StepFetchByID: true,
	StepLike: true, StepAddComment: true, StepRemoveComment: true,
	StepUpdateViews: true, StepCreateBlog: true,
	StepFailStore: true, StepHealStore: true, StepFailSignIn: true,
}

var knownOutcomes = map[string]bool{
	"success":            true,
	"not_found":          true,
	"remote_failure":     true,
	"validation_failure": true,
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.SignedIn && s.User == nil {
		return fmt.Errorf("signed_in requires a user")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		if step.Invoke == "" {
			return fmt.Errorf("flow[%d]: invoke is required", i)
		}
		if !knownSteps[step.Invoke] {
			return fmt.Errorf("flow[%d]: unknown step %q", i, step.Invoke)
		}
		if step.Expect != nil && !knownOutcomes[step.Expect.Outcome] {
			return fmt.Errorf("flow[%d].expect: unknown outcome %q", i, step.Expect.Outcome)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertState:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for state", index)
		}
	case AssertDocument:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for document", index)
		}
		if m, ok := a.Expect.(map[string]any); !ok || len(m) == 0 {
			return fmt.Errorf("assertions[%d]: expect must be a non-empty map for document", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
