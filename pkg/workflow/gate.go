package workflow

import (
	"strconv"
	"strings"

	"medflow/pkg/gateway"
	"medflow/pkg/policy"
)

// EvaluateSufficiency returns the profile's required fields that are covered
// neither by the record nor by clarification answers. Fields come back in the
// profile's declared order, so repeated evaluations of the same inputs are
// byte-identical. Pure function: no side effects, no I/O.
func EvaluateSufficiency(record *gateway.NormalizedRecord, answers map[string]string, profile policy.Profile) []string {
	missing := make([]string, 0)
	for _, field := range profile.Required {
		if fieldPresent(record, field) {
			continue
		}
		if answer, ok := answers[field]; ok && strings.TrimSpace(answer) != "" {
			continue
		}
		missing = append(missing, field)
	}
	return missing
}

// fieldPresent reports whether the record carries a usable value for the
// field. The medical section is authoritative; age and gender fall back to
// the personal section because backends report them there.
func fieldPresent(record *gateway.NormalizedRecord, field string) bool {
	if record == nil {
		return false
	}
	if v, ok := record.Medical[field]; ok {
		if _, usable := NormalizeValue(v); usable {
			return true
		}
	}
	switch field {
	case "age":
		return record.Personal.Age > 0
	case "gender":
		return strings.TrimSpace(record.Personal.Gender) != ""
	}
	return false
}

// NormalizeValue coerces a raw record value for model input. Numeric-looking
// strings become float64; blank strings and nil are unusable.
func NormalizeValue(v any) (any, bool) {
	switch val := v.(type) {
	case nil:
		return nil, false
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return nil, false
		}
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return f, true
		}
		return trimmed, true
	default:
		return v, true
	}
}
