package feature

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CriteriaKind identifies a completion rule.
type CriteriaKind string

const (
	// KindManual never auto-completes.
	KindManual CriteriaKind = "manual"

	// KindBuild completes on a successful build command.
	KindBuild CriteriaKind = "build"

	// KindTest completes on a successful test-runner command.
	KindTest CriteriaKind = "test"

	// KindLint completes on a successful lint or format command.
	KindLint CriteriaKind = "lint"

	// KindWorkCount completes once the work count reaches a threshold.
	KindWorkCount CriteriaKind = "work_count"

	// KindAnySuccess completes on any successful mutating tool call.
	KindAnySuccess CriteriaKind = "any_success"
)

// DefaultWorkCountThreshold applies when a work_count rule omits its count.
const DefaultWorkCountThreshold = 3

// Criteria is a closed tagged variant over the completion rules. Only the
// fields belonging to Kind are meaningful: CommandPattern for KindBuild and
// Threshold for KindWorkCount. The zero value is Manual.
type Criteria struct {
	Kind           CriteriaKind
	CommandPattern string
	Threshold      int
}

// Manual returns a rule that never auto-completes.
func Manual() Criteria { return Criteria{Kind: KindManual} }

// Build returns a build rule. An empty pattern falls back to the built-in
// build keywords.
func Build(commandPattern string) Criteria {
	return Criteria{Kind: KindBuild, CommandPattern: commandPattern}
}

// Test returns a test-runner rule.
func Test() Criteria { return Criteria{Kind: KindTest} }

// Lint returns a lint rule.
func Lint() Criteria { return Criteria{Kind: KindLint} }

// AnySuccess returns a rule satisfied by any successful mutating call.
func AnySuccess() Criteria { return Criteria{Kind: KindAnySuccess} }

// WorkCount returns a rule satisfied once threshold work calls accumulate.
// Non-positive thresholds use DefaultWorkCountThreshold.
func WorkCount(threshold int) Criteria {
	if threshold <= 0 {
		threshold = DefaultWorkCountThreshold
	}
	return Criteria{Kind: KindWorkCount, Threshold: threshold}
}

// Type returns the rule's wire name. Unknown kinds report as manual.
func (c Criteria) Type() CriteriaKind {
	switch c.Kind {
	case KindBuild, KindTest, KindLint, KindWorkCount, KindAnySuccess:
		return c.Kind
	default:
		return KindManual
	}
}

// String implements fmt.Stringer.
func (c Criteria) String() string {
	switch c.Type() {
	case KindBuild:
		if c.CommandPattern != "" {
			return fmt.Sprintf("build(%s)", c.CommandPattern)
		}
	case KindWorkCount:
		return fmt.Sprintf("work_count(%d)", c.threshold())
	}
	return string(c.Type())
}

func (c Criteria) threshold() int {
	if c.Threshold <= 0 {
		return DefaultWorkCountThreshold
	}
	return c.Threshold
}

// EffectiveThreshold returns the work-count threshold with the default applied.
func (c Criteria) EffectiveThreshold() int {
	return c.threshold()
}

type criteriaJSON struct {
	Type           string `json:"type" yaml:"type"`
	CommandPattern string `json:"command_pattern,omitempty" yaml:"command_pattern,omitempty"`
	Count          int    `json:"count,omitempty" yaml:"count,omitempty"`
}

func (c Criteria) wire() criteriaJSON {
	out := criteriaJSON{Type: string(c.Type())}
	switch c.Type() {
	case KindBuild:
		out.CommandPattern = c.CommandPattern
	case KindWorkCount:
		out.Count = c.threshold()
	}
	return out
}

func fromWire(w criteriaJSON) Criteria {
	switch CriteriaKind(w.Type) {
	case KindBuild:
		return Build(w.CommandPattern)
	case KindTest:
		return Test()
	case KindLint:
		return Lint()
	case KindWorkCount:
		return WorkCount(w.Count)
	case KindAnySuccess:
		return AnySuccess()
	default:
		// Missing or unrecognized types never auto-complete.
		return Manual()
	}
}

// MarshalJSON encodes the rule as {"type": ..., "command_pattern": ..., "count": ...}.
func (c Criteria) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.wire())
}

// UnmarshalJSON accepts null, an object, or a string holding an encoded
// object. Anything it cannot interpret decodes as Manual.
func (c *Criteria) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = Manual()
		return nil
	}

	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return fmt.Errorf("decoding criteria string: %w", err)
		}
		if inner == "" {
			*c = Manual()
			return nil
		}
		data = []byte(inner)
	}

	var w criteriaJSON
	if err := json.Unmarshal(data, &w); err != nil {
		*c = Manual()
		return nil
	}
	*c = fromWire(w)
	return nil
}

// MarshalYAML encodes the rule with the same field names as JSON.
func (c Criteria) MarshalYAML() (interface{}, error) {
	return c.wire(), nil
}

// UnmarshalYAML decodes the JSON-compatible shape.
func (c *Criteria) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var w criteriaJSON
	if err := unmarshal(&w); err != nil {
		*c = Manual()
		return nil
	}
	*c = fromWire(w)
	return nil
}
