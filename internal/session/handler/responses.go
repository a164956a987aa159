package handler

import (
	"time"

	"atlasid/internal/policy"
	"atlasid/internal/session/models"
)

// CreateVerificationResponse returns the URL the subject visits to present
// their credential.
type CreateVerificationResponse struct {
	Success    bool   `json:"success"`
	AtlasIDURL string `json:"atlasIdUrl"`
}

// SessionResponse is the session view returned to polling clients.
type SessionResponse struct {
	UserID     string        `json:"userId"`
	Operations policy.Policy `json:"operations"`
	Flow       string        `json:"flow"`
	Status     string        `json:"status"`
	CreatedAt  string        `json:"createdAt"`
}

// GetVerificationResponse wraps a session lookup.
type GetVerificationResponse struct {
	Success bool            `json:"success"`
	Request SessionResponse `json:"request"`
}

// VerifyResponse reports a credential submission. RedirectURL is only set
// on grants; Reasons only on policy denials.
type VerifyResponse struct {
	Success     bool     `json:"success"`
	Status      string   `json:"status"`
	Message     string   `json:"message,omitempty"`
	Reasons     []string `json:"reasons,omitempty"`
	RedirectURL string   `json:"redirectUrl,omitempty"`
}

func toSessionResponse(s *models.Session) SessionResponse {
	return SessionResponse{
		UserID:     s.SubjectDID,
		Operations: s.Policy,
		Flow:       s.Flow,
		Status:     string(s.Status),
		CreatedAt:  s.CreatedAt.Format(time.RFC3339),
	}
}
