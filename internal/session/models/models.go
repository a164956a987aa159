// Package models defines verification sessions: the relying party's request
// that a subject prove policy-relevant claims, tracked from creation through
// a terminal grant or denial.
package models

import (
	"time"

	"atlasid/internal/policy"
)

// Status is the lifecycle state of a verification session.
type Status string

const (
	// StatusPending accepts credential submissions.
	StatusPending Status = "pending"
	// StatusGranted means a credential verified and the policy passed.
	StatusGranted Status = "granted"
	// StatusDenied means verification or policy evaluation terminally failed.
	StatusDenied Status = "denied"
)

// DefaultFlow is assumed when a relying party does not name one.
const DefaultFlow = "casino"

// Session is one verification request. Granted and Denied are terminal:
// once finalized a session accepts no further submissions.
type Session struct {
	Token       string
	SubjectDID  string
	Policy      policy.Policy
	Flow        string
	Status      Status
	CreatedAt   time.Time
	FinalizedAt *time.Time
}

// Finalized reports whether the session reached a terminal status.
func (s *Session) Finalized() bool {
	return s.Status != StatusPending
}

// Clone deep-copies the session so callers cannot mutate stored state.
func (s *Session) Clone() *Session {
	out := *s
	if s.Policy != nil {
		out.Policy = make(policy.Policy, len(s.Policy))
		for claim, pred := range s.Policy {
			out.Policy[claim] = pred
		}
	}
	if s.FinalizedAt != nil {
		at := *s.FinalizedAt
		out.FinalizedAt = &at
	}
	return &out
}

// Outcome is the result of a credential submission against a session.
// RedirectURL is set on grants; FailureReasons on policy denials.
type Outcome struct {
	Status         Status
	RedirectURL    string
	FailureReasons []string
}
