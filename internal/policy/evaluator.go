package policy

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"time"
)

// dateLayouts are the accepted calendar date encodings for chronological
// comparison, tried in order.
var dateLayouts = []string{"2006-01-02", time.RFC3339}

// Evaluate runs every predicate of the policy against the bound claims.
//
// Predicates are independent: evaluation never short-circuits, so the result
// carries every failure reason. Claims are visited in sorted name order to
// keep the reason list deterministic. An empty policy passes vacuously.
func Evaluate(pol Policy, claims map[string]string) Result {
	names := make([]string, 0, len(pol))
	for claim := range pol {
		names = append(names, claim)
	}
	sort.Strings(names)

	result := Result{Passed: true}
	for _, claim := range names {
		if reason := evaluateOne(claim, pol[claim], claims); reason != "" {
			result.Passed = false
			result.FailureReasons = append(result.FailureReasons, reason)
		}
	}
	return result
}

// evaluateOne returns the failure reason for a single predicate, or the
// empty string when the predicate holds.
func evaluateOne(claim string, pred Predicate, claims map[string]string) string {
	value, present := claims[claim]
	if !present {
		return claim + " is missing"
	}

	switch pred.Op {
	case OpLessThan, OpLessOrEqual:
		return evaluateDateComparison(claim, pred, value)
	case OpEquals:
		var want string
		if err := json.Unmarshal(pred.Value, &want); err != nil {
			return claim + " predicate value is malformed"
		}
		if value != want {
			return fmt.Sprintf("%s (%s) does not match the required value (%s)", claim, value, want)
		}
	case OpNotIn:
		var restricted []string
		if err := json.Unmarshal(pred.Value, &restricted); err != nil {
			return claim + " predicate value is malformed"
		}
		if slices.Contains(restricted, value) {
			return fmt.Sprintf("%s (%s) is in the restricted list", claim, value)
		}
	default:
		return fmt.Sprintf("%s uses unsupported operator %q", claim, pred.Op)
	}
	return ""
}

// evaluateDateComparison handles lt/lte chronologically. A side that does
// not parse as a calendar date fails the predicate with an explicit reason
// rather than erroring out: an unparseable claim cannot satisfy a date bound.
func evaluateDateComparison(claim string, pred Predicate, value string) string {
	var boundRaw string
	if err := json.Unmarshal(pred.Value, &boundRaw); err != nil {
		return claim + " predicate value is malformed"
	}

	actual, err := parseDate(value)
	if err != nil {
		return claim + " (" + value + ") is not a valid date"
	}
	bound, err := parseDate(boundRaw)
	if err != nil {
		return claim + " predicate bound (" + boundRaw + ") is not a valid date"
	}

	switch pred.Op {
	case OpLessThan:
		if !actual.Before(bound) {
			return fmt.Sprintf("%s (%s) is not before %s", claim, value, boundRaw)
		}
	case OpLessOrEqual:
		if actual.After(bound) {
			return fmt.Sprintf("%s (%s) is after %s", claim, value, boundRaw)
		}
	}
	return ""
}

func parseDate(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
