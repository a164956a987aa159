package credential

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// HashClaim computes the commitment digest for one claim:
// hex SHA-256 of the salt concatenated with the canonical JSON of the value.
// Issuance uses the same function, so a disclosure binds if and only if the
// holder supplies the exact salt and value the issuer committed to.
func HashClaim(salt string, value json.RawMessage) (string, error) {
	canonical, err := canonicalJSON(value)
	if err != nil {
		return "", fmt.Errorf("canonicalize claim value: %w", err)
	}
	sum := sha256.Sum256(append([]byte(salt), canonical...))
	return hex.EncodeToString(sum[:]), nil
}

// anchorPayload fixes the serialization the anchor digest covers. It must
// stay in sync with what issuers sign: the vc block followed by the claim
// commitments.
type anchorPayload struct {
	VC           VC                `json:"vc"`
	HashedClaims map[string]string `json:"hashed_claims"`
}

// AnchorDigest computes the integrity anchor digest over the signed content.
// Callers must pass the vc block and commitments from the verified JWT
// payload, never from the uploaded envelope.
func AnchorDigest(vc VC, commitments map[string]string) (string, error) {
	serialized, err := json.Marshal(anchorPayload{VC: vc, HashedClaims: commitments})
	if err != nil {
		return "", fmt.Errorf("serialize anchor payload: %w", err)
	}
	sum := sha256.Sum256(serialized)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalJSON reduces a raw JSON value to its canonical encoding:
// no insignificant whitespace, object keys sorted. Two disclosures of the
// same logical value always digest identically.
func canonicalJSON(raw json.RawMessage) ([]byte, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}
