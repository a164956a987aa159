package credential_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlasid/internal/credential"
	"atlasid/pkg/testutil"
)

func issuedDisclosures(t *testing.T, claims map[string]any) (map[string]string, credential.DisclosureSet) {
	t.Helper()
	issuer := testutil.NewIssuer(t, "registry", "did:hedera:testnet:0.0.2002")
	b := testutil.NewCredential(issuer, "did:hedera:testnet:0.0.3003")
	for name, value := range claims {
		b.WithClaim(name, value)
	}
	issuance := b.Build(t)
	return issuance.Envelope.HashedClaims, issuance.Disclosures
}

func TestBindAcceptsMatchingDisclosures(t *testing.T) {
	commitments, disclosures := issuedDisclosures(t, map[string]any{
		"nationality": "France",
		"dateOfBirth": "1990-04-12",
	})

	bound := credential.Bind(commitments, disclosures)
	assert.Equal(t, map[string]string{
		"nationality": "France",
		"dateOfBirth": "1990-04-12",
	}, bound)
}

func TestBindExcludesWrongValue(t *testing.T) {
	commitments, disclosures := issuedDisclosures(t, map[string]any{
		"nationality": "France",
		"dateOfBirth": "1990-04-12",
	})

	d := disclosures["nationality"]
	d.Value = json.RawMessage(`"Suisse"`)
	disclosures["nationality"] = d

	bound := credential.Bind(commitments, disclosures)
	assert.Equal(t, map[string]string{"dateOfBirth": "1990-04-12"}, bound)
}

func TestBindExcludesWrongSalt(t *testing.T) {
	commitments, disclosures := issuedDisclosures(t, map[string]any{"nationality": "France"})

	d := disclosures["nationality"]
	d.Salt = "ffffffffffffffffffffffffffffffff"
	disclosures["nationality"] = d

	bound := credential.Bind(commitments, disclosures)
	assert.Empty(t, bound)
}

func TestBindExcludesUncommittedClaim(t *testing.T) {
	commitments, disclosures := issuedDisclosures(t, map[string]any{"nationality": "France"})

	// Holder volunteers a claim the issuer never committed to.
	disclosures["clearanceLevel"] = credential.Disclosure{
		Salt:  "00000000000000000000000000000000",
		Value: json.RawMessage(`"top-secret"`),
	}

	bound := credential.Bind(commitments, disclosures)
	assert.Equal(t, map[string]string{"nationality": "France"}, bound)
}

func TestBindExcludesUnparseableValue(t *testing.T) {
	commitments, disclosures := issuedDisclosures(t, map[string]any{"nationality": "France"})

	d := disclosures["nationality"]
	d.Value = json.RawMessage(`{broken`)
	disclosures["nationality"] = d

	bound := credential.Bind(commitments, disclosures)
	assert.Empty(t, bound)
}

func TestBindRendersNonStringValues(t *testing.T) {
	commitments, disclosures := issuedDisclosures(t, map[string]any{"age": 34})

	bound := credential.Bind(commitments, disclosures)
	assert.Equal(t, map[string]string{"age": "34"}, bound)
}

func TestHashClaimIgnoresValueWhitespace(t *testing.T) {
	a, err := credential.HashClaim("salt", json.RawMessage(`{"a":1,"b":2}`))
	require.NoError(t, err)
	b, err := credential.HashClaim("salt", json.RawMessage(`{ "b": 2, "a": 1 }`))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestHashClaimDependsOnSalt(t *testing.T) {
	a, err := credential.HashClaim("salt-one", json.RawMessage(`"France"`))
	require.NoError(t, err)
	b, err := credential.HashClaim("salt-two", json.RawMessage(`"France"`))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestAnchorDigestIsDeterministic(t *testing.T) {
	vc := credential.VC{
		Context:      []string{"https://www.w3.org/2018/credentials/v1"},
		Type:         []string{"VerifiableCredential"},
		Issuer:       "did:hedera:testnet:0.0.2002",
		SubjectID:    "did:hedera:testnet:0.0.3003",
		IssuanceDate: "2026-01-15T10:00:00Z",
	}
	commitments := map[string]string{"nationality": "abc123"}

	a, err := credential.AnchorDigest(vc, commitments)
	require.NoError(t, err)
	b, err := credential.AnchorDigest(vc, commitments)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	commitments["nationality"] = "def456"
	c, err := credential.AnchorDigest(vc, commitments)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
