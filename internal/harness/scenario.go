package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sdsverify/internal/sds"
)

// Scenario describes one fault-injected run against the store double.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	NamespaceID string `yaml:"namespace"`
	TypeID      string `yaml:"type_id"`
	StreamID    string `yaml:"stream_id"`

	// Seed fixes the event magnitudes. Zero is a valid seed.
	Seed uint64 `yaml:"seed,omitempty"`

	// Fixtures exist in the store before the run starts.
	Fixtures Fixtures `yaml:"fixtures,omitempty"`

	// Faults make store operations fail.
	Faults []Fault `yaml:"faults,omitempty"`

	// Pipeline selects the behavior of the pipeline under test.
	Pipeline PipelineSpec `yaml:"pipeline"`

	// Assertions validate the run outcome and the store call log.
	Assertions []Assertion `yaml:"assertions"`
}

// Fixtures are pre-existing store resources.
type Fixtures struct {
	Types   []FixtureType   `yaml:"types,omitempty"`
	Streams []FixtureStream `yaml:"streams,omitempty"`
}

// FixtureType is a type registered before the run. Its properties need
// not match the event declaration.
type FixtureType struct {
	ID         string            `yaml:"id"`
	Properties []FixtureProperty `yaml:"properties"`
}

// FixtureProperty declares one property of a fixture type.
type FixtureProperty struct {
	ID   string `yaml:"id"`
	Kind string `yaml:"kind"`
	Key  bool   `yaml:"key,omitempty"`
}

// FixtureStream is a stream registered before the run.
type FixtureStream struct {
	ID     string `yaml:"id"`
	TypeID string `yaml:"type_id"`
}

// Fault makes every call of Op fail with a store error.
type Fault struct {
	Op      string `yaml:"op"`
	Status  int    `yaml:"status"`
	Message string `yaml:"message"`
}

// PipelineSpec selects what the pipeline under test does.
type PipelineSpec struct {
	// Outcome is one of ok, fail, panic or readback.
	Outcome string `yaml:"outcome"`

	// Message is the failure or panic message.
	Message string `yaml:"message,omitempty"`
}

// Pipeline outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeFail     = "fail"
	OutcomePanic    = "panic"
	OutcomeReadback = "readback"
)

// Assertion validates the outcome of a scenario run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "call_order": listed operations first appear in this order
	// - "call_count": an operation was invoked exactly Count times
	// - "remaining_resources": types and streams left in the namespace
	// - "verdict": run verdict and failed stage
	Type string `yaml:"type"`

	// Ops is the expected operation order (call_order).
	Ops []string `yaml:"ops,omitempty"`

	// Op is the counted operation (call_count).
	Op string `yaml:"op,omitempty"`

	// Count is the expected number of calls (call_count).
	Count int `yaml:"count,omitempty"`

	// Types and Streams are the expected resource counts
	// (remaining_resources).
	Types   int `yaml:"types,omitempty"`
	Streams int `yaml:"streams,omitempty"`

	// Verdict is "pass" or "fail" (verdict).
	Verdict string `yaml:"verdict,omitempty"`

	// Stage is the expected failed stage, empty on a pass (verdict).
	Stage string `yaml:"stage,omitempty"`
}

// Assertion type constants.
const (
	AssertCallOrder          = "call_order"
	AssertCallCount          = "call_count"
	AssertRemainingResources = "remaining_resources"
	AssertVerdict            = "verdict"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario document.
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

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.NamespaceID == "" || s.TypeID == "" || s.StreamID == "" {
		return fmt.Errorf("namespace, type_id and stream_id are required")
	}

	for i, ft := range s.Fixtures.Types {
		if _, err := ft.toType(); err != nil {
			return fmt.Errorf("fixtures.types[%d]: %w", i, err)
		}
	}
	for i, fs := range s.Fixtures.Streams {
		if fs.ID == "" || fs.TypeID == "" {
			return fmt.Errorf("fixtures.streams[%d]: id and type_id are required", i)
		}
	}

	for i, f := range s.Faults {
		if _, ok := sds.ParseOp(f.Op); !ok {
			return fmt.Errorf("faults[%d]: unknown op %q", i, f.Op)
		}
		if f.Status < 400 || f.Status > 599 {
			return fmt.Errorf("faults[%d]: status must be 4xx or 5xx, got %d", i, f.Status)
		}
	}

	switch s.Pipeline.Outcome {
	case OutcomeOK, OutcomeFail, OutcomePanic, OutcomeReadback:
	case "":
		return fmt.Errorf("pipeline.outcome is required")
	default:
		return fmt.Errorf("pipeline.outcome: unknown outcome %q", s.Pipeline.Outcome)
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertCallOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for call_order", index)
		}
		for _, op := range a.Ops {
			if _, ok := sds.ParseOp(op); !ok {
				return fmt.Errorf("assertions[%d]: unknown op %q", index, op)
			}
		}
	case AssertCallCount:
		if _, ok := sds.ParseOp(a.Op); !ok {
			return fmt.Errorf("assertions[%d]: unknown op %q for call_count", index, a.Op)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for call_count", index)
		}
	case AssertRemainingResources:
		if a.Types < 0 || a.Streams < 0 {
			return fmt.Errorf("assertions[%d]: resource counts must be non-negative", index)
		}
	case AssertVerdict:
		if a.Verdict != VerdictPass && a.Verdict != VerdictFail {
			return fmt.Errorf("assertions[%d]: verdict must be %q or %q", index, VerdictPass, VerdictFail)
		}
		if a.Verdict == VerdictPass && a.Stage != "" {
			return fmt.Errorf("assertions[%d]: a passing verdict has no failed stage", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func (ft FixtureType) toType() (sds.Type, error) {
	if ft.ID == "" {
		return sds.Type{}, fmt.Errorf("id is required")
	}
	props := make([]sds.Property, 0, len(ft.Properties))
	for _, fp := range ft.Properties {
		kind, err := sds.ParseValueKind(fp.Kind)
		if err != nil {
			return sds.Type{}, fmt.Errorf("property %s: %w", fp.ID, err)
		}
		props = append(props, sds.Property{ID: fp.ID, Name: fp.ID, IsKey: fp.Key, Kind: kind})
	}
	return sds.NewType(ft.ID, props...)
}
