// Package policy evaluates operator-based predicates against verified,
// disclosed claims. Evaluation is exhaustive: every predicate runs and every
// failure is reported, so a holder learns everything their credential falls
// short on in one pass.
package policy

import (
	"encoding/json"
	"fmt"
)

// Operator names a predicate comparison. The wire values match what relying
// parties already send.
type Operator string

const (
	OpLessThan    Operator = "lt"
	OpLessOrEqual Operator = "lte"
	OpEquals      Operator = "eq"
	OpNotIn       Operator = "notIn"
)

// Predicate is one requirement on a named claim. Value is a scalar for
// comparison operators and a list for notIn.
type Predicate struct {
	Op    Operator        `json:"op"`
	Value json.RawMessage `json:"value"`
}

// Policy maps claim names to the predicate each must satisfy.
type Policy map[string]Predicate

// Validate rejects policies with unknown operators or missing values before
// a session is created, so verification never trips over a malformed
// predicate later.
func (p Policy) Validate() error {
	for claim, pred := range p {
		switch pred.Op {
		case OpLessThan, OpLessOrEqual, OpEquals, OpNotIn:
		default:
			return fmt.Errorf("claim %q: unsupported operator %q", claim, pred.Op)
		}
		if len(pred.Value) == 0 {
			return fmt.Errorf("claim %q: predicate value is required", claim)
		}
		if pred.Op == OpNotIn {
			var list []string
			if err := json.Unmarshal(pred.Value, &list); err != nil {
				return fmt.Errorf("claim %q: notIn requires a list of strings", claim)
			}
		} else {
			var scalar string
			if err := json.Unmarshal(pred.Value, &scalar); err != nil {
				return fmt.Errorf("claim %q: %s requires a string value", claim, pred.Op)
			}
		}
	}
	return nil
}

// Result is the outcome of evaluating a policy against bound claims.
// Passed is the conjunction over all predicates; FailureReasons lists every
// predicate that did not hold, in deterministic order.
type Result struct {
	Passed         bool
	FailureReasons []string
}
