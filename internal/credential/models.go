// Package credential implements verification of selectively-disclosable
// credentials: signature and issuer-authorization checks against the
// authority's trust document, an on-chain integrity anchor comparison, and
// binding of disclosed claim values to their salted commitments.
package credential

import (
	"encoding/json"
	"fmt"
)

// VC is the issuer-attested identity block of a credential. Field order
// matters: the integrity anchor digest is computed over the serialized block,
// so the order must match what issuers sign.
type VC struct {
	Context      []string `json:"@context,omitempty"`
	Type         []string `json:"type,omitempty"`
	Issuer       string   `json:"issuer"`
	SubjectID    string   `json:"subject_id"`
	IssuanceDate string   `json:"issuanceDate"`
}

// Proof wraps the credential's signed envelope. SDJWT is an RS256 JWT whose
// payload carries the vc block and the claim commitments.
type Proof struct {
	Type         string `json:"type,omitempty"`
	Created      string `json:"created,omitempty"`
	ProofPurpose string `json:"proofPurpose,omitempty"`
	SDJWT        string `json:"sd_jwt"`
}

// Envelope is the credential document a holder uploads. Nothing in it is
// trusted until the SD-JWT signature has been verified; fields outside the
// verified payload only order the failure modes.
type Envelope struct {
	VC           VC                `json:"vc"`
	HashedClaims map[string]string `json:"hashed_claims"`
	Proof        *Proof            `json:"proof"`
}

// ParseEnvelope decodes an uploaded credential document.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("parse credential envelope: %w", err)
	}
	return &env, nil
}

// Disclosure is a holder-supplied salt and plaintext value for one claim.
type Disclosure struct {
	Salt  string          `json:"salt"`
	Value json.RawMessage `json:"value"`
}

// DisclosureSet maps claim names to their disclosures.
type DisclosureSet map[string]Disclosure

// ParseDisclosures decodes an uploaded disclosure document.
func ParseDisclosures(raw []byte) (DisclosureSet, error) {
	var set DisclosureSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("parse disclosures: %w", err)
	}
	return set, nil
}

// Verified is the outcome of a successful credential verification. Every
// field is taken from the cryptographically verified payload, never from the
// uploaded envelope.
type Verified struct {
	IssuerDID        string
	SubjectDID       string
	IssuedAt         string
	ClaimCommitments map[string]string
}

// AnchorEntry is the integrity anchor published to the anchor topic at
// issuance time. VCHash is the digest of the signed content, recorded on an
// independent channel so post-issuance tampering is detectable even if the
// signing key is later compromised.
type AnchorEntry struct {
	VCHash    string `json:"vc_hash"`
	Issuer    string `json:"issuer"`
	SubjectID string `json:"subject_id"`
	IssuedAt  string `json:"issued_at"`
	Status    string `json:"status"`
}
