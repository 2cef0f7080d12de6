// internal/validation/pattern.go - Declarative response classification rules
package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Verdict is the classification of a single check.
type Verdict string

const (
	VerdictSuccess Verdict = "success"
	VerdictWarning Verdict = "warning"
	VerdictFailure Verdict = "failure"
	VerdictError   Verdict = "error"
)

// Strategy controls how forgiving the evaluator is when the configured
// fields cannot be resolved in the response.
type Strategy string

const (
	StrategyStrict     Strategy = "strict"
	StrategyFlexible   Strategy = "flexible"
	StrategyPermissive Strategy = "permissive"
)

// ConfigError reports an invalid validation pattern. It is raised when a
// service is registered, never at evaluation time.
type ConfigError struct {
	Field  string
	Detail string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("validation pattern: %s: %s", e.Field, e.Detail)
}

// AlternativePath is a fallback field checked when the primary success
// field is absent or unmatched. Alternatives are evaluated in list order.
type AlternativePath struct {
	Field         string   `json:"field" yaml:"field"`
	SuccessValues []string `json:"success_values" yaml:"success_values"`
}

// Pattern is the declarative rule set applied to a flattened response.
// The zero value is not usable; an empty success field is only legal under
// the permissive strategy or with expected fields configured.
//
// ExpectedFields maps a path to its required value; a nil entry is the
// "existence only" sentinel (JSON null).
type Pattern struct {
	SuccessField        string             `json:"success_field,omitempty" yaml:"success_field,omitempty"`
	SuccessValues       []string           `json:"success_values,omitempty" yaml:"success_values,omitempty"`
	WarningValues       []string           `json:"warning_values,omitempty" yaml:"warning_values,omitempty"`
	FailedValues        []string           `json:"failed_values,omitempty" yaml:"failed_values,omitempty"`
	ExpectedFields      map[string]*string `json:"expected_fields,omitempty" yaml:"expected_fields,omitempty"`
	AlternativePaths    []AlternativePath  `json:"alternative_paths,omitempty" yaml:"alternative_paths,omitempty"`
	Strategy            Strategy           `json:"validation_strategy,omitempty" yaml:"validation_strategy,omitempty"`
	TreatEmptyAsSuccess bool               `json:"treat_empty_as_success,omitempty" yaml:"treat_empty_as_success,omitempty"`
}

// patternKeys are the recognized rule keys. A JSON object using none of
// them is a legacy literal pattern: every key is an expected field with a
// required value (null meaning existence only).
var patternKeys = map[string]bool{
	"success_field":          true,
	"success_values":         true,
	"warning_values":         true,
	"failed_values":          true,
	"expected_fields":        true,
	"alternative_paths":      true,
	"validation_strategy":    true,
	"treat_empty_as_success": true,
}

func (p *Pattern) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	modern := false
	for k := range raw {
		if patternKeys[k] {
			modern = true
			break
		}
	}

	if modern || len(raw) == 0 {
		type plain Pattern
		return json.Unmarshal(data, (*plain)(p))
	}

	// Legacy form: {"status": "ok", "fechaProximoCorte": null} means an
	// implicit strict equality check on every listed path.
	expected := make(map[string]*string, len(raw))
	for path, value := range raw {
		var v interface{}
		if err := json.Unmarshal(value, &v); err != nil {
			return err
		}
		if v == nil {
			expected[path] = nil
			continue
		}
		s := strings.TrimSpace(fmt.Sprint(v))
		expected[path] = &s
	}

	*p = Pattern{
		ExpectedFields: expected,
		Strategy:       StrategyStrict,
	}
	return nil
}

// UnmarshalYAML mirrors UnmarshalJSON so config files can use the legacy
// literal pattern form too.
func (p *Pattern) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]yaml.Node
	if err := node.Decode(&raw); err != nil {
		return err
	}

	modern := false
	for k := range raw {
		if patternKeys[k] {
			modern = true
			break
		}
	}

	if modern || len(raw) == 0 {
		type plain Pattern
		return node.Decode((*plain)(p))
	}

	expected := make(map[string]*string, len(raw))
	for path, value := range raw {
		if value.Tag == "!!null" {
			expected[path] = nil
			continue
		}
		var v interface{}
		if err := value.Decode(&v); err != nil {
			return err
		}
		s := strings.TrimSpace(fmt.Sprint(v))
		expected[path] = &s
	}

	*p = Pattern{
		ExpectedFields: expected,
		Strategy:       StrategyStrict,
	}
	return nil
}

// EffectiveStrategy returns the configured strategy, defaulting an absent
// one to flexible the way the original configuration format did. Unknown
// strategies never default; Validate rejects them.
func (p *Pattern) EffectiveStrategy() Strategy {
	if p.Strategy == "" {
		return StrategyFlexible
	}
	return p.Strategy
}

// Validate checks the pattern at service registration time so malformed
// rules are caught before they can misclassify a response. Overlapping
// value sets are legal (precedence resolves them) but logged, since they
// usually indicate a configuration mistake.
func (p *Pattern) Validate() error {
	switch p.Strategy {
	case "", StrategyStrict, StrategyFlexible, StrategyPermissive:
	default:
		return &ConfigError{Field: "validation_strategy", Detail: fmt.Sprintf("unknown strategy %q", p.Strategy)}
	}

	if p.SuccessField == "" && p.EffectiveStrategy() != StrategyPermissive &&
		len(p.ExpectedFields) == 0 && len(p.AlternativePaths) == 0 {
		return &ConfigError{Field: "success_field", Detail: "required unless strategy is permissive or expected_fields/alternative_paths are set"}
	}

	if p.SuccessField != "" && len(p.SuccessValues) == 0 &&
		len(p.WarningValues) == 0 && len(p.FailedValues) == 0 {
		return &ConfigError{Field: "success_values", Detail: "success_field configured but no value sets to match against"}
	}

	for i, alt := range p.AlternativePaths {
		if alt.Field == "" {
			return &ConfigError{Field: fmt.Sprintf("alternative_paths[%d].field", i), Detail: "must not be empty"}
		}
		if len(alt.SuccessValues) == 0 {
			return &ConfigError{Field: fmt.Sprintf("alternative_paths[%d].success_values", i), Detail: "must not be empty"}
		}
	}

	for path := range p.ExpectedFields {
		if path == "" {
			return &ConfigError{Field: "expected_fields", Detail: "empty field path"}
		}
	}

	p.warnOverlaps()
	return nil
}

func (p *Pattern) warnOverlaps() {
	sets := []struct {
		name   string
		values []string
	}{
		{"failed_values", p.FailedValues},
		{"warning_values", p.WarningValues},
		{"success_values", p.SuccessValues},
	}

	seen := make(map[string]string)
	for _, set := range sets {
		for _, v := range set.values {
			v = strings.TrimSpace(v)
			if prev, dup := seen[v]; dup && prev != set.name {
				logrus.WithFields(logrus.Fields{
					"value": v,
					"sets":  prev + "," + set.name,
				}).Warn("Validation value appears in multiple sets; precedence is failure > warning > success")
			} else {
				seen[v] = set.name
			}
		}
	}
}

func containsNormalized(values []string, v string) bool {
	for _, candidate := range values {
		if strings.TrimSpace(candidate) == v {
			return true
		}
	}
	return false
}
