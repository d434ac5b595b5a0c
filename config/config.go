// Package config provides script file parsing for statestore.
//
// A script seeds a store, declares named subscriptions and lists the steps
// to apply. It drives the statestore CLI (run, validate and serve) and can
// be written in YAML or TOML.
//
// Example configuration:
//
//	title: Orders
//	port: 8080
//
//	state:
//	  user:
//	    name: ada
//	  count: 0
//
//	data:
//	  endpoint: ${API_URL:-http://localhost}
//
//	subscriptions:
//	  - name: counter
//	    key: count
//	  - name: everything
//	  - name: user-fields
//	    match: key startsWith "user"
//
//	steps:
//	  - set_state:
//	      count: 1
//	  - unsubscribe: counter
//	  - set_state:
//	      user:
//	        role: admin
//	  - set_data:
//	      token: abc
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"
)

// defaultPort is used by serve when the script does not set one.
const defaultPort = 8080

// Script is the root configuration structure for statestore.
//
// It maps directly to the YAML or TOML file structure.
// Use [Load], [Parse] or [ParseTOML] to create a Script.
type Script struct {
	// Title is the inspector page title used by serve. Defaults to
	// "statestore" if not set.
	Title string `yaml:"title" toml:"title"`

	// Port is the HTTP port used by serve. Defaults to 8080.
	Port int `yaml:"port" toml:"port"`

	// State is the initial state. Nil means the store starts without state.
	// String values support environment variable substitution.
	State map[string]any `yaml:"state" toml:"state"`

	// Data is the initial data. String values support environment variable
	// substitution.
	Data map[string]any `yaml:"data" toml:"data"`

	// Subscriptions are registered before the first step runs.
	Subscriptions []SubscriptionConfig `yaml:"subscriptions" toml:"subscriptions"`

	// Steps are applied in order.
	Steps []Step `yaml:"steps" toml:"steps"`
}

// SubscriptionConfig declares a named subscription.
//
// At most one of Key and Match may be set. With neither, the subscription
// receives every accepted update.
type SubscriptionConfig struct {
	// Name identifies the subscription in reports and unsubscribe steps.
	Name string `yaml:"name" toml:"name"`

	// Key selects updates that change this top-level field.
	Key string `yaml:"key" toml:"key"`

	// Match is a boolean expr-lang expression over the variable key,
	// for example: key startsWith "user" || key in ["a", "b"]
	Match string `yaml:"match" toml:"match"`
}

// Selects reports which selector the subscription uses: "key", "match" or
// "all".
func (s SubscriptionConfig) Selects() string {
	switch {
	case s.Key != "":
		return "key"
	case s.Match != "":
		return "match"
	default:
		return "all"
	}
}

// Step is one action of a script. Exactly one field must be set.
type Step struct {
	// SetState is merged into the state.
	SetState map[string]any `yaml:"set_state" toml:"set_state"`

	// SetData is overlaid on the data.
	SetData map[string]any `yaml:"set_data" toml:"set_data"`

	// Unsubscribe names a subscription to remove.
	Unsubscribe string `yaml:"unsubscribe" toml:"unsubscribe"`
}

// Action returns the step's kind: "set_state", "set_data" or "unsubscribe".
// It returns "" for a step with no action.
func (s Step) Action() string {
	switch {
	case s.SetState != nil:
		return "set_state"
	case s.SetData != nil:
		return "set_data"
	case s.Unsubscribe != "":
		return "unsubscribe"
	}
	return ""
}

// actions counts how many fields of the step are set.
func (s Step) actions() int {
	n := 0
	if s.SetState != nil {
		n++
	}
	if s.SetData != nil {
		n++
	}
	if s.Unsubscribe != "" {
		n++
	}
	return n
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// already have an error, skip processing
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// expandValue expands environment variables in every string reachable from
// v through maps and slices, in place where possible.
func expandValue(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return expandEnvVars(val)
	case map[string]any:
		if err := expandMap(val); err != nil {
			return nil, err
		}
		return val, nil
	case []any:
		for i, item := range val {
			expanded, err := expandValue(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			val[i] = expanded
		}
		return val, nil
	case []map[string]any:
		// TOML arrays of inline tables decode to this type
		for i, item := range val {
			if err := expandMap(item); err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
		}
		return val, nil
	}
	return v, nil
}

func expandMap(m map[string]any) error {
	for k, v := range m {
		expanded, err := expandValue(v)
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		m[k] = expanded
	}
	return nil
}

// Load reads and parses a script file.
//
// Files ending in .toml are parsed as TOML; anything else is parsed as
// YAML. Returns an error if the file cannot be read, parsed or validated.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return ParseTOML(data)
	}
	return Parse(data)
}

// Parse parses YAML script data.
//
// Environment variables are expanded in string values of state, data and
// set_state/set_data steps. Port defaults to 8080.
func Parse(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return s.finish()
}

// ParseTOML parses TOML script data. It applies the same expansion,
// defaults and validation as [Parse].
func ParseTOML(data []byte) (*Script, error) {
	var s Script
	if _, err := toml.Decode(string(data), &s); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	return s.finish()
}

func (s *Script) finish() (*Script, error) {
	if s.Port == 0 {
		s.Port = defaultPort
	}
	if err := s.expandAndValidate(); err != nil {
		return nil, err
	}
	return s, nil
}

// expandAndValidate expands environment variables and validates the script.
func (s *Script) expandAndValidate() error {
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", s.Port)
	}

	if err := expandMap(s.State); err != nil {
		return fmt.Errorf("state: %w", err)
	}
	if err := expandMap(s.Data); err != nil {
		return fmt.Errorf("data: %w", err)
	}

	names := make(map[string]struct{}, len(s.Subscriptions))
	for i, sub := range s.Subscriptions {
		if sub.Name == "" {
			return fmt.Errorf("subscriptions[%d]: name is required", i)
		}
		if _, exists := names[sub.Name]; exists {
			return fmt.Errorf("subscriptions[%d] (%s): duplicate name", i, sub.Name)
		}
		names[sub.Name] = struct{}{}

		if sub.Key != "" && sub.Match != "" {
			return fmt.Errorf("subscriptions[%d] (%s): key and match are mutually exclusive", i, sub.Name)
		}
		if sub.Match != "" {
			if _, err := CompileMatch(sub.Match); err != nil {
				return fmt.Errorf("subscriptions[%d] (%s): %w", i, sub.Name, err)
			}
		}
	}

	for i := range s.Steps {
		step := &s.Steps[i]

		switch step.actions() {
		case 0:
			return fmt.Errorf("steps[%d]: one of set_state, set_data or unsubscribe is required", i)
		case 1:
		default:
			return fmt.Errorf("steps[%d]: only one of set_state, set_data or unsubscribe may be set", i)
		}

		if err := expandMap(step.SetState); err != nil {
			return fmt.Errorf("steps[%d]: set_state: %w", i, err)
		}
		if err := expandMap(step.SetData); err != nil {
			return fmt.Errorf("steps[%d]: set_data: %w", i, err)
		}

		if step.Unsubscribe != "" {
			if _, ok := names[step.Unsubscribe]; !ok {
				return fmt.Errorf("steps[%d]: unsubscribe: unknown subscription %q", i, step.Unsubscribe)
			}
		}
	}

	return nil
}

// CompileMatch compiles a match expression into a key predicate.
//
// The expression sees a single string variable, key, and must evaluate to
// a boolean. A predicate whose evaluation fails at run time reports false.
func CompileMatch(source string) (func(string) bool, error) {
	if strings.TrimSpace(source) == "" {
		return nil, errors.New("match expression is empty")
	}

	program, err := expr.Compile(source, expr.Env(map[string]any{"key": ""}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid match expression: %w", err)
	}

	return func(key string) bool {
		return runMatch(program, key)
	}, nil
}

func runMatch(program *vm.Program, key string) bool {
	out, err := expr.Run(program, map[string]any{"key": key})
	if err != nil {
		return false
	}
	ok, _ := out.(bool)
	return ok
}
