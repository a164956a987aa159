package handler

import (
	"strings"

	"atlasid/internal/policy"
	dErrors "atlasid/pkg/domain-errors"
)

// CreateVerificationRequest opens a verification session for a subject.
// Operations is the policy the disclosed claims must satisfy.
type CreateVerificationRequest struct {
	UserID     string        `json:"userId"`
	Operations policy.Policy `json:"operations"`
	Flow       string        `json:"flow,omitempty"`
}

func (r *CreateVerificationRequest) Normalize() {
	r.UserID = strings.TrimSpace(r.UserID)
	r.Flow = strings.TrimSpace(r.Flow)
}

func (r *CreateVerificationRequest) Validate() error {
	if r.UserID == "" || len(r.Operations) == 0 {
		return dErrors.New(dErrors.CodeValidation, "userId and operations are required")
	}
	return nil
}
