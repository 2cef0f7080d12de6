// internal/validation/evaluate.go - Rule evaluation against flattened payloads
package validation

import (
	"fmt"
	"sort"

	"soapwatch/internal/flatten"
)

// Evaluate classifies a flattened response against a pattern. The verdict
// is always one of success/warning/failure; transport and parse problems
// become VerdictError before evaluation is ever reached.
//
// Precedence when a value appears in more than one set is fixed:
// failed_values beat warning_values beat success_values.
func Evaluate(m flatten.Map, p *Pattern) (Verdict, string) {
	strategy := p.EffectiveStrategy()

	if m.IsEmpty() {
		if strategy == StrategyPermissive && p.TreatEmptyAsSuccess {
			return VerdictSuccess, "empty payload accepted (treat_empty_as_success)"
		}
		return VerdictFailure, "empty payload"
	}

	verdict, reason, resolved := resolvePrimary(m, p, strategy)
	if !resolved {
		verdict, reason, resolved = resolveAlternatives(m, p, strategy)
	}

	if !resolved && p.SuccessField == "" && len(p.AlternativePaths) == 0 && len(p.ExpectedFields) > 0 {
		// Expected-fields-only pattern: the checks below decide alone.
		verdict, reason, resolved = VerdictSuccess, "expected fields present", true
	}

	if !resolved {
		switch strategy {
		case StrategyStrict:
			return VerdictFailure, fmt.Sprintf("field %q: primary/alternative field missing or unmatched", p.SuccessField)
		case StrategyPermissive:
			verdict = VerdictSuccess
			reason = "non-empty payload accepted (permissive)"
		default: // flexible
			verdict = VerdictWarning
			reason = "non-empty payload with no recognizable failure indicator"
		}
	}

	if verdict == VerdictSuccess || verdict == VerdictWarning {
		verdict, reason = applyExpectedFields(m, p, strategy, verdict, reason)
	}
	return verdict, reason
}

// resolvePrimary looks up the pattern's success field and matches it
// against the three value sets. The case-insensitive fallback lookup is
// never used under the strict strategy.
func resolvePrimary(m flatten.Map, p *Pattern, strategy Strategy) (Verdict, string, bool) {
	if p.SuccessField == "" {
		return "", "", false
	}

	value, path, ok := lookupField(m, p.SuccessField, strategy)
	if !ok {
		return "", "", false
	}
	return matchValue(path, value, p.FailedValues, p.WarningValues, p.SuccessValues)
}

// resolveAlternatives walks alternative_paths in order; the first
// alternative whose value matches any set wins. Pattern-level failed and
// warning sets keep their precedence over the alternative's success set.
func resolveAlternatives(m flatten.Map, p *Pattern, strategy Strategy) (Verdict, string, bool) {
	for _, alt := range p.AlternativePaths {
		value, path, ok := lookupField(m, alt.Field, strategy)
		if !ok {
			continue
		}
		if verdict, reason, matched := matchValue(path, value, p.FailedValues, p.WarningValues, alt.SuccessValues); matched {
			return verdict, fmt.Sprintf("alternative %s", reason), true
		}
	}
	return "", "", false
}

func matchValue(path, value string, failed, warning, success []string) (Verdict, string, bool) {
	switch {
	case containsNormalized(failed, value):
		return VerdictFailure, fmt.Sprintf("field %q value %q matched failed_values", path, value), true
	case containsNormalized(warning, value):
		return VerdictWarning, fmt.Sprintf("field %q value %q matched warning_values", path, value), true
	case containsNormalized(success, value):
		return VerdictSuccess, fmt.Sprintf("field %q value %q matched success_values", path, value), true
	}
	return "", "", false
}

// applyExpectedFields checks every expected field and downgrades the
// verdict on a miss: to failure under strict, to at most warning under
// flexible/permissive.
func applyExpectedFields(m flatten.Map, p *Pattern, strategy Strategy, verdict Verdict, reason string) (Verdict, string) {
	for _, path := range sortedExpectedPaths(p.ExpectedFields) {
		want := p.ExpectedFields[path]

		value, _, ok := lookupField(m, path, strategy)
		if !ok {
			return downgrade(strategy, verdict), fmt.Sprintf("expected field %q missing", path)
		}
		if want != nil && value != flatten.Normalize(*want) {
			return downgrade(strategy, verdict),
				fmt.Sprintf("expected field %q = %q, got %q", path, *want, value)
		}
	}
	return verdict, reason
}

func downgrade(strategy Strategy, verdict Verdict) Verdict {
	if strategy == StrategyStrict {
		return VerdictFailure
	}
	if verdict == VerdictSuccess {
		return VerdictWarning
	}
	return verdict
}

// sortedExpectedPaths fixes the order expected fields are checked in, so
// the reported reason is deterministic.
func sortedExpectedPaths(fields map[string]*string) []string {
	paths := make([]string, 0, len(fields))
	for p := range fields {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func lookupField(m flatten.Map, path string, strategy Strategy) (value, canonical string, ok bool) {
	if strategy == StrategyStrict {
		value, ok = m.Lookup(path)
		return value, path, ok
	}
	return m.LookupFold(path)
}
