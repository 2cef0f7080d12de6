package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
)

func TestPatternRoundTrip(t *testing.T) {
	corte := "2023-12-01"
	original := Pattern{
		SuccessField:  "codMensaje",
		SuccessValues: []string{"00000"},
		WarningValues: []string{"5000", "5001"},
		FailedValues:  []string{"2001", "2002", "9999"},
		ExpectedFields: map[string]*string{
			"fechaProximoCorte": &corte,
			"cabecera.estado":   nil,
		},
		AlternativePaths: []AlternativePath{
			{Field: "status", SuccessValues: []string{"OK", "SUCCESS"}},
		},
		Strategy:            StrategyFlexible,
		TreatEmptyAsSuccess: true,
	}

	data, err := json.Marshal(&original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded Pattern
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if diff := cmp.Diff(original, decoded); diff != "" {
		t.Errorf("pattern did not round-trip (-want +got):\n%s", diff)
	}
}

func TestPatternFieldNames(t *testing.T) {
	p := Pattern{
		SuccessField:  "codMensaje",
		SuccessValues: []string{"00000"},
		Strategy:      StrategyStrict,
	}

	data, err := json.Marshal(&p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	for _, key := range []string{"success_field", "success_values", "validation_strategy"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("serialized pattern missing key %q (got %v)", key, raw)
		}
	}
}

func TestPatternLegacyForm(t *testing.T) {
	// A pattern with only literal field->value pairs is an implicit strict
	// equality check on every listed path.
	var p Pattern
	if err := json.Unmarshal([]byte(`{"status":"ok","fechaProximoCorte":null}`), &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if p.Strategy != StrategyStrict {
		t.Errorf("legacy pattern strategy = %q, want strict", p.Strategy)
	}
	if got, ok := p.ExpectedFields["status"]; !ok || got == nil || *got != "ok" {
		t.Errorf("legacy expected field status = %v", got)
	}
	if got, ok := p.ExpectedFields["fechaProximoCorte"]; !ok || got != nil {
		t.Errorf("legacy null value should be the existence-only sentinel, got %v", got)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("legacy pattern should validate: %v", err)
	}
}

func TestPatternValidate(t *testing.T) {
	tests := []struct {
		name    string
		pattern Pattern
		field   string
	}{
		{
			name:    "unknown strategy",
			pattern: Pattern{SuccessField: "cod", SuccessValues: []string{"0"}, Strategy: "lenient"},
			field:   "validation_strategy",
		},
		{
			name:    "missing success field",
			pattern: Pattern{Strategy: StrategyStrict},
			field:   "success_field",
		},
		{
			name:    "success field without value sets",
			pattern: Pattern{SuccessField: "cod"},
			field:   "success_values",
		},
		{
			name: "alternative without field",
			pattern: Pattern{
				SuccessField:     "cod",
				SuccessValues:    []string{"0"},
				AlternativePaths: []AlternativePath{{SuccessValues: []string{"OK"}}},
			},
			field: "alternative_paths[0].field",
		},
		{
			name: "alternative without values",
			pattern: Pattern{
				SuccessField:     "cod",
				SuccessValues:    []string{"0"},
				AlternativePaths: []AlternativePath{{Field: "status"}},
			},
			field: "alternative_paths[0].success_values",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pattern.Validate()

			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Validate() = %v, want *ConfigError", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("ConfigError.Field = %q, want %q", cfgErr.Field, tt.field)
			}
		})
	}
}

func TestPatternValidateAcceptsOverlap(t *testing.T) {
	// Overlapping sets are a likely configuration defect but not an error;
	// precedence resolves them deterministically. Validation logs the
	// overlap so the operator can spot it.
	var buf bytes.Buffer
	logrus.SetOutput(&buf)
	defer logrus.SetOutput(os.Stderr)

	p := Pattern{
		SuccessField:  "cod",
		SuccessValues: []string{"00000"},
		WarningValues: []string{"2001"},
		FailedValues:  []string{"2001"},
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil for overlapping sets", err)
	}
	if !strings.Contains(buf.String(), "multiple sets") {
		t.Errorf("expected overlap warning in log output, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "2001") {
		t.Errorf("expected overlapping value in log output, got %q", buf.String())
	}

	buf.Reset()
	p.FailedValues = []string{"9999"}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
	if strings.Contains(buf.String(), "multiple sets") {
		t.Errorf("unexpected overlap warning for disjoint sets: %q", buf.String())
	}
}

func TestPermissivePatternWithoutSuccessField(t *testing.T) {
	p := Pattern{Strategy: StrategyPermissive, TreatEmptyAsSuccess: true}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil for permissive pattern", err)
	}
}
