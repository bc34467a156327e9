package harness

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/inkwell/internal/doc"
)

// GoldenDir holds golden trace files, relative to the package under test.
const GoldenDir = "testdata/golden"

// EncodeTrace renders a trace as canonical JSON, one event per line.
func EncodeTrace(trace []TraceEvent) ([]byte, error) {
	var buf bytes.Buffer
	for _, ev := range trace {
		line, err := doc.Marshal(ev.object())
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func (ev TraceEvent) object() doc.Object {
	obj := doc.Object{
		"seq":        doc.Int(ev.Seq),
		"event":      doc.String(ev.Event),
		"request_id": doc.String(ev.RequestID),
	}
	if ev.Arg != "" {
		obj["arg"] = doc.String(ev.Arg)
	}
	if ev.Outcome != "" {
		obj["outcome"] = doc.String(ev.Outcome)
	}
	if ev.Error != "" {
		obj["error"] = doc.String(ev.Error)
	}
	return obj
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's trace against a golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	traceJSON, err := EncodeTrace(result.Trace)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, traceJSON)
	return nil
}
