// Package testutil provides issuance-side fixtures for tests: RSA issuer
// identities, signed credential envelopes with salted claim commitments,
// disclosure sets, integrity anchors, and trust document publication.
// Production issuance happens out of process; these builders reproduce its
// wire formats so the verification pipeline can be exercised end to end.
package testutil

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"atlasid/internal/credential"
	"atlasid/internal/ledger"
	"atlasid/internal/trust"
)

// Issuer is a test issuing authority with its own RSA keypair.
type Issuer struct {
	Name string
	DID  string
	Key  *rsa.PrivateKey
}

// NewIssuer mints an issuer identity. 2048-bit keys keep test runtime sane.
func NewIssuer(t *testing.T, name, did string) *Issuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &Issuer{Name: name, DID: did, Key: key}
}

// PublicKeyPEM returns the issuer's SPKI public key in PEM form, as the
// authority publishes it in the trust document.
func (i *Issuer) PublicKeyPEM(t *testing.T) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(&i.Key.PublicKey)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

// Authorized returns the trust document allowlist entry for this issuer.
func (i *Issuer) Authorized(t *testing.T) trust.AuthorizedIssuer {
	t.Helper()
	return trust.AuthorizedIssuer{
		Name:       i.Name,
		AccountDID: i.DID,
		PublicKey:  i.PublicKeyPEM(t),
	}
}

// TrustDocument builds an authority trust document listing the given issuers.
func TrustDocument(authorityDID string, issuers ...trust.AuthorizedIssuer) trust.Document {
	return trust.Document{
		Context: "https://www.w3.org/ns/did/v1",
		ID:      authorityDID,
		Service: []trust.ServiceEntry{{
			ID:                authorityDID + "#authorized-issuers",
			Type:              trust.ServiceTypeAuthorizedIssuers,
			ServiceEndpoint:   "https://authority.example/official-credential-issuers",
			AuthorizedIssuers: issuers,
		}},
	}
}

// Publish appends a JSON payload to a topic.
func Publish(t *testing.T, log ledger.Writer, topic ledger.TopicID, payload any) {
	t.Helper()
	contents, err := json.Marshal(payload)
	require.NoError(t, err)
	_, err = log.Append(context.Background(), topic, contents)
	require.NoError(t, err)
}

// Issuance is a fully built credential: the envelope the holder uploads, the
// disclosure set proving the claims, and the anchor entry published at
// issuance time.
type Issuance struct {
	Envelope    *credential.Envelope
	Disclosures credential.DisclosureSet
	Anchor      credential.AnchorEntry
}

// CredentialBuilder assembles a signed credential the way the issuance
// process does: salt each claim, commit to sha256(salt+value), sign
// {vc, hashed_claims} as an RS256 JWT, and digest the signed content for
// the anchor.
type CredentialBuilder struct {
	issuer       *Issuer
	subjectDID   string
	issuanceDate string
	claims       map[string]any
	signingKey   *rsa.PrivateKey
	anchorDigest string
	expiry       time.Time
}

// NewCredential starts a builder for a credential signed by issuer.
func NewCredential(issuer *Issuer, subjectDID string) *CredentialBuilder {
	return &CredentialBuilder{
		issuer:       issuer,
		subjectDID:   subjectDID,
		issuanceDate: time.Now().UTC().Format(time.RFC3339),
		claims:       make(map[string]any),
	}
}

// WithClaim adds a claim to be committed and disclosed.
func (b *CredentialBuilder) WithClaim(name string, value any) *CredentialBuilder {
	b.claims[name] = value
	return b
}

// WithSigningKey signs the envelope with a key other than the issuer's
// published one, producing a credential whose signature cannot verify.
func (b *CredentialBuilder) WithSigningKey(key *rsa.PrivateKey) *CredentialBuilder {
	b.signingKey = key
	return b
}

// WithExpiry overrides the proof expiry, which normally sits years out.
func (b *CredentialBuilder) WithExpiry(at time.Time) *CredentialBuilder {
	b.expiry = at
	return b
}

// WithAnchorDigest overrides the anchor digest, simulating an anchor that
// disagrees with the signed content.
func (b *CredentialBuilder) WithAnchorDigest(digest string) *CredentialBuilder {
	b.anchorDigest = digest
	return b
}

// Build signs the credential and returns the full issuance artifacts.
func (b *CredentialBuilder) Build(t *testing.T) Issuance {
	t.Helper()

	vc := credential.VC{
		Context:      []string{"https://www.w3.org/2018/credentials/v1"},
		Type:         []string{"VerifiableCredential", "IdentityCredential"},
		Issuer:       b.issuer.DID,
		SubjectID:    b.subjectDID,
		IssuanceDate: b.issuanceDate,
	}

	commitments := make(map[string]string, len(b.claims))
	disclosures := make(credential.DisclosureSet, len(b.claims))
	for name, value := range b.claims {
		salt := randomSalt(t)
		raw, err := json.Marshal(value)
		require.NoError(t, err)
		digest, err := credential.HashClaim(salt, raw)
		require.NoError(t, err)
		commitments[name] = digest
		disclosures[name] = credential.Disclosure{Salt: salt, Value: raw}
	}

	signingKey := b.signingKey
	if signingKey == nil {
		signingKey = b.issuer.Key
	}
	now := time.Now()
	expiry := b.expiry
	if expiry.IsZero() {
		expiry = now.AddDate(5, 0, 0)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"vc":            vc,
		"hashed_claims": commitments,
		"iat":           now.Unix(),
		"exp":           expiry.Unix(),
	})
	sdJWT, err := token.SignedString(signingKey)
	require.NoError(t, err)

	anchorDigest := b.anchorDigest
	if anchorDigest == "" {
		anchorDigest, err = credential.AnchorDigest(vc, commitments)
		require.NoError(t, err)
	}

	return Issuance{
		Envelope: &credential.Envelope{
			VC:           vc,
			HashedClaims: commitments,
			Proof: &credential.Proof{
				Type:         "RsaSignature2018",
				Created:      b.issuanceDate,
				ProofPurpose: "assertionMethod",
				SDJWT:        sdJWT,
			},
		},
		Disclosures: disclosures,
		Anchor: credential.AnchorEntry{
			VCHash:    anchorDigest,
			Issuer:    b.issuer.DID,
			SubjectID: b.subjectDID,
			IssuedAt:  b.issuanceDate,
			Status:    "valid",
		},
	}
}

func randomSalt(t *testing.T) string {
	t.Helper()
	buf := make([]byte, 16)
	_, err := rand.Read(buf)
	require.NoError(t, err)
	return hex.EncodeToString(buf)
}
