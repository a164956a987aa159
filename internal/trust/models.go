package trust

// ServiceTypeAuthorizedIssuers marks the service entry that carries the
// authority's issuer allowlist.
const ServiceTypeAuthorizedIssuers = "AuthorizedCredentialIssuers"

// AuthorizedIssuer is one entry of the authority's issuer allowlist.
// PublicKey is a PEM-encoded SPKI block, possibly with escaped newlines when
// the authority published it through an environment variable.
type AuthorizedIssuer struct {
	Name       string `json:"name"`
	AccountDID string `json:"accountDID"`
	PublicKey  string `json:"publicKey"`
}

// VerificationMethod is a DID document verification method entry. The
// pipeline does not consume these, but they round-trip through resolution.
type VerificationMethod struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	Controller      string `json:"controller"`
	PublicKeyBase58 string `json:"publicKeyBase58,omitempty"`
}

// ServiceEntry is a DID document service entry.
type ServiceEntry struct {
	ID                string             `json:"id,omitempty"`
	Type              string             `json:"type"`
	ServiceEndpoint   string             `json:"serviceEndpoint,omitempty"`
	AuthorizedIssuers []AuthorizedIssuer `json:"authorizedIssuers,omitempty"`
}

// Document is the trust document an authority publishes to the log. It names
// which issuers are authorized to sign credentials on the authority's behalf.
type Document struct {
	Context            string               `json:"@context,omitempty"`
	ID                 string               `json:"id"`
	VerificationMethod []VerificationMethod `json:"verificationMethod,omitempty"`
	Authentication     []string             `json:"authentication,omitempty"`
	Service            []ServiceEntry       `json:"service,omitempty"`
}

// AuthorizedIssuers extracts the issuer allowlist from the document's service
// entries. A document without an issuer-listing entry yields an empty list,
// not an error: callers must treat "issuer not in empty list" as unauthorized.
func (d *Document) AuthorizedIssuers() []AuthorizedIssuer {
	for _, svc := range d.Service {
		if svc.Type == ServiceTypeAuthorizedIssuers {
			return svc.AuthorizedIssuers
		}
	}
	return nil
}

// FindIssuer looks up an issuer by its account DID.
func (d *Document) FindIssuer(accountDID string) (AuthorizedIssuer, bool) {
	for _, issuer := range d.AuthorizedIssuers() {
		if issuer.AccountDID == accountDID {
			return issuer, true
		}
	}
	return AuthorizedIssuer{}, false
}

// Resolution is the result of resolving an authority identifier.
type Resolution struct {
	Document          *Document
	AuthorizedIssuers []AuthorizedIssuer
}
