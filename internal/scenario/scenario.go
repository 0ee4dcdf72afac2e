package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vango-dev/viewstate/internal/config"
	"github.com/vango-dev/viewstate/internal/errors"
	"github.com/vango-dev/viewstate/pkg/snapshot"
)

// Step operations.
const (
	OpSet    = "set"
	OpDelete = "delete"
	OpPush   = "push"
	OpPop    = "pop"
	OpInsert = "insert"
	OpRemove = "remove"
	OpSetLen = "setLen"
	OpTick   = "tick"
	OpBatch  = "batch"
)

// Computed functions.
const (
	FuncValue  = "value"
	FuncLength = "length"
)

// Scenario is a replayable sequence of mutations against an initial state.
type Scenario struct {
	Name string `yaml:"name" json:"name"`

	// Initial is the state the binding mounts with.
	Initial map[string]any `yaml:"initial" json:"initial"`

	// Binding holds the binding options. The strategy is overridden when a
	// scenario runs under a specific engine.
	Binding config.BindingConfig `yaml:"binding" json:"binding"`

	Computed []Computed `yaml:"computed,omitempty" json:"computed,omitempty"`

	Steps []Step `yaml:"steps" json:"steps"`
}

// Computed declares a computed field derived from a state path.
type Computed struct {
	Name string `yaml:"name" json:"name"`
	Path string `yaml:"path" json:"path"`

	// Func is "value" (default) or "length".
	Func string `yaml:"func,omitempty" json:"func,omitempty"`
}

// Step is one mutation. Path addresses the written key for set and delete
// and the array for array operations.
type Step struct {
	Op     string `yaml:"op" json:"op"`
	Path   string `yaml:"path,omitempty" json:"path,omitempty"`
	Value  any    `yaml:"value,omitempty" json:"value,omitempty"`
	Values []any  `yaml:"values,omitempty" json:"values,omitempty"`
	Index  int    `yaml:"index,omitempty" json:"index,omitempty"`
	Steps  []Step `yaml:"steps,omitempty" json:"steps,omitempty"`
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New("E401").Wrap(err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if s.Name == "" {
		s.Name = path
	}
	return s, nil
}

// Parse decodes and validates a YAML (or JSON) scenario.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errors.New("E401").
			WithDetail("Failed to parse scenario: " + err.Error())
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the scenario structure and its binding options.
func (s *Scenario) Validate() error {
	if s.Initial == nil {
		s.Initial = map[string]any{}
	}

	cfg := config.Config{Binding: s.Binding}
	if err := cfg.Normalize(); err != nil {
		return err
	}
	s.Binding = cfg.Binding

	for i, c := range s.Computed {
		if c.Name == "" {
			return invalid("computed[%d]: name is required", i)
		}
		if !snapshot.SafeKey(c.Name) {
			return invalid("computed[%d]: name %q is not addressable", i, c.Name)
		}
		switch c.Func {
		case "", FuncValue, FuncLength:
		default:
			return invalid("computed[%d]: unknown func %q", i, c.Func)
		}
	}
	return validateSteps(s.Steps, "steps")
}

func validateSteps(steps []Step, where string) error {
	for i, st := range steps {
		at := fmt.Sprintf("%s[%d]", where, i)
		switch st.Op {
		case OpTick:
			continue
		case OpBatch:
			if err := validateSteps(st.Steps, at+".steps"); err != nil {
				return err
			}
			continue
		case OpSet, OpDelete, OpPush, OpPop, OpInsert, OpRemove, OpSetLen:
		default:
			return invalid("%s: unknown op %q", at, st.Op)
		}
		if st.Path == "" {
			return invalid("%s: %s requires a path", at, st.Op)
		}
		if _, ok := snapshot.ParsePath(st.Path); !ok {
			return invalid("%s: malformed path %q", at, st.Path)
		}
		if st.Index < 0 {
			return invalid("%s: negative index", at)
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return errors.New("E401").WithDetail(fmt.Sprintf(format, args...))
}
