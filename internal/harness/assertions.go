package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/inkwell/internal/blog"
	"github.com/roach88/inkwell/internal/doc"
	"github.com/roach88/inkwell/internal/docstore"
)

// AssertionContext provides what state and document assertions read.
type AssertionContext struct {
	Ctx  context.Context
	Docs docstore.Store
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s", ev.Seq, ev.Event)
			if ev.Error != "" {
				fmt.Fprintf(&buf, " error=%q", ev.Error)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(result, a, actx); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(result.Trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(result.Trace, a)
	case AssertTraceCount:
		return assertTraceCount(result.Trace, a)
	case AssertState:
		return assertState(result, a)
	case AssertDocument:
		return assertDocument(actx, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertTraceContains checks that the event occurs, with a.Arg when set.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if ev.Event == a.Event && (a.Arg == "" || ev.Arg == a.Arg) {
			return nil
		}
	}

	expected := a.Event
	if a.Arg != "" {
		expected += fmt.Sprintf(" with arg %q", a.Arg)
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the first occurrences of the events appear
// in order. Intervening events are allowed.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, ev := range trace {
		if _, seen := positions[ev.Event]; !seen {
			positions[ev.Event] = i
		}
	}

	for _, name := range a.Events {
		if _, ok := positions[name]; !ok {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all events present: %v", a.Events),
				Actual:   fmt.Sprintf("missing event: %s", name),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Events); i++ {
		prev, curr := a.Events[i-1], a.Events[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", a.Events),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev]+1, curr, positions[curr]+1),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that the event appears exactly a.Count times.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Event == a.Event {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Event),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertState compares the value at a dotted path of the JSON-encoded
// final state. Numeric segments index arrays.
func assertState(result *Result, a Assertion) error {
	raw, err := json.Marshal(result.State)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	var state any
	if err := json.Unmarshal(raw, &state); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	actual, err := lookupPath(state, a.Path)
	if err != nil {
		return &AssertionError{
			Type:     AssertState,
			Expected: fmt.Sprintf("%s = %v", a.Path, a.Expect),
			Actual:   err.Error(),
		}
	}

	expected, err := normalizeJSON(a.Expect)
	if err != nil {
		return fmt.Errorf("expected value at %s: %w", a.Path, err)
	}
	if !reflect.DeepEqual(expected, actual) {
		return &AssertionError{
			Type:     AssertState,
			Expected: fmt.Sprintf("%s = %v", a.Path, expected),
			Actual:   fmt.Sprintf("%s = %v", a.Path, actual),
		}
	}
	return nil
}

func lookupPath(v any, path string) (any, error) {
	cur := v
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, fmt.Errorf("%s: no field %q", path, seg)
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, fmt.Errorf("%s: no element %q in array of %d", path, seg, len(node))
			}
			cur = node[i]
		default:
			return nil, fmt.Errorf("%s: cannot descend into %T at %q", path, cur, seg)
		}
	}
	return cur, nil
}

// normalizeJSON gives YAML-decoded values the shapes encoding/json
// produces, so they compare equal to decoded state.
func normalizeJSON(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// assertDocument checks that a stored document contains the expected
// fields (subset semantics).
func assertDocument(actx *AssertionContext, a Assertion) error {
	collection := a.Collection
	if collection == "" {
		collection = blog.Collection
	}

	d, err := actx.Docs.Get(actx.Ctx, collection, a.ID)
	if err != nil {
		return &AssertionError{
			Type:     AssertDocument,
			Expected: fmt.Sprintf("document %s/%s", collection, a.ID),
			Actual:   err.Error(),
		}
	}

	expect, _ := a.Expect.(map[string]any)
	keys := make([]string, 0, len(expect))
	for k := range expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		want, err := doc.FromAny(expect[key])
		if err != nil {
			return fmt.Errorf("expected field %q: %w", key, err)
		}
		got, ok := d.Data[key]
		if !ok {
			return &AssertionError{
				Type:     AssertDocument,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in %s/%s", key, collection, a.ID),
			}
		}
		if !doc.Equal(want, got) {
			return &AssertionError{
				Type:     AssertDocument,
				Expected: fmt.Sprintf("field %q = %s", key, marshalOrErr(want)),
				Actual:   fmt.Sprintf("field %q = %s", key, marshalOrErr(got)),
			}
		}
	}
	return nil
}

func marshalOrErr(v doc.Value) string {
	b, err := doc.Marshal(v)
	if err != nil {
		return err.Error()
	}
	return string(b)
}
