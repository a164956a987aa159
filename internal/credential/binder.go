package credential

import "encoding/json"

// Bind filters a disclosure set against the signed claim commitments and
// returns the claim values whose recomputed digest matches. A disclosure
// with no matching commitment, a wrong salt, or a wrong value is excluded,
// never passed through: downstream policy evaluation only ever sees values
// the issuer actually committed to. An excluded claim later required by a
// policy evaluates as "claim missing" there.
func Bind(commitments map[string]string, disclosures DisclosureSet) map[string]string {
	bound := make(map[string]string, len(disclosures))
	for claim, disclosure := range disclosures {
		committed, ok := commitments[claim]
		if !ok {
			continue
		}
		digest, err := HashClaim(disclosure.Salt, disclosure.Value)
		if err != nil {
			continue
		}
		if digest != committed {
			continue
		}
		bound[claim] = claimText(disclosure.Value)
	}
	return bound
}

// claimText renders a disclosed value for policy comparison: JSON strings
// are unwrapped, anything else keeps its JSON text.
func claimText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
