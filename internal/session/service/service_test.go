package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/suite"

	"atlasid/internal/credential"
	"atlasid/internal/policy"
	"atlasid/internal/session/models"
	"atlasid/internal/session/store"
	dErrors "atlasid/pkg/domain-errors"
)

const subjectDID = "did:hedera:testnet:0.0.3003"

// stubVerifier stands in for the credential verifier so service tests only
// exercise session orchestration.
type stubVerifier struct {
	verified *credential.Verified
	err      error
}

func (v *stubVerifier) Verify(context.Context, *credential.Envelope, string) (*credential.Verified, error) {
	return v.verified, v.err
}

// funcVerifier runs an arbitrary function, so tests can interleave store
// mutations with the verify call.
type funcVerifier struct {
	fn func(ctx context.Context) (*credential.Verified, error)
}

func (v *funcVerifier) Verify(ctx context.Context, _ *credential.Envelope, _ string) (*credential.Verified, error) {
	return v.fn(ctx)
}

type ServiceSuite struct {
	suite.Suite
	store *store.InMemory
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
}

func (s *ServiceSuite) newService(verifier CredentialVerifier) *Service {
	return New(s.store, verifier)
}

// boundClaims builds a disclosure document and the matching commitments, as
// issuance would have produced them.
func (s *ServiceSuite) boundClaims(claims map[string]string) (map[string]string, []byte) {
	commitments := make(map[string]string, len(claims))
	disclosures := make(credential.DisclosureSet, len(claims))
	for name, value := range claims {
		raw, err := json.Marshal(value)
		s.Require().NoError(err)
		salt := "salt-" + name
		digest, err := credential.HashClaim(salt, raw)
		s.Require().NoError(err)
		commitments[name] = digest
		disclosures[name] = credential.Disclosure{Salt: salt, Value: raw}
	}
	doc, err := json.Marshal(disclosures)
	s.Require().NoError(err)
	return commitments, doc
}

func (s *ServiceSuite) createSession(svc *Service, pol policy.Policy) *models.Session {
	session, err := svc.CreateSession(context.Background(), CreateSessionCommand{
		SubjectDID: subjectDID,
		Policy:     pol,
	})
	s.Require().NoError(err)
	return session
}

func nationalityPolicy(value string) policy.Policy {
	return policy.Policy{
		"nationality": {Op: policy.OpEquals, Value: json.RawMessage(`"` + value + `"`)},
	}
}

func (s *ServiceSuite) TestCreateSession() {
	svc := s.newService(&stubVerifier{})
	session := s.createSession(svc, nationalityPolicy("France"))

	s.NotEmpty(session.Token)
	s.Equal(models.StatusPending, session.Status)
	s.Equal(models.DefaultFlow, session.Flow)

	got, err := svc.GetSession(context.Background(), session.Token)
	s.Require().NoError(err)
	s.Equal(session.Token, got.Token)
}

func (s *ServiceSuite) TestCreateSessionRequiresSubjectAndPolicy() {
	svc := s.newService(&stubVerifier{})

	_, err := svc.CreateSession(context.Background(), CreateSessionCommand{Policy: nationalityPolicy("France")})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = svc.CreateSession(context.Background(), CreateSessionCommand{SubjectDID: subjectDID})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestCreateSessionRejectsUnknownOperator() {
	svc := s.newService(&stubVerifier{})
	_, err := svc.CreateSession(context.Background(), CreateSessionCommand{
		SubjectDID: subjectDID,
		Policy: policy.Policy{
			"nationality": {Op: "gte", Value: json.RawMessage(`"France"`)},
		},
	})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestGetSessionNotFound() {
	svc := s.newService(&stubVerifier{})
	_, err := svc.GetSession(context.Background(), "unknown")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestVerifyCredentialGrants() {
	commitments, disclosures := s.boundClaims(map[string]string{"nationality": "France"})
	svc := s.newService(&stubVerifier{verified: &credential.Verified{
		SubjectDID:       subjectDID,
		ClaimCommitments: commitments,
	}})
	session := s.createSession(svc, nationalityPolicy("France"))

	outcome, err := svc.VerifyCredential(context.Background(), session.Token, []byte(`{}`), disclosures)
	s.Require().NoError(err)
	s.Equal(models.StatusGranted, outcome.Status)
	s.Equal("/casino?status=granted&userId="+subjectDID, outcome.RedirectURL)

	got, err := svc.GetSession(context.Background(), session.Token)
	s.Require().NoError(err)
	s.Equal(models.StatusGranted, got.Status)
}

func (s *ServiceSuite) TestVerifyCredentialPolicyDenial() {
	commitments, disclosures := s.boundClaims(map[string]string{"nationality": "Suisse"})
	svc := s.newService(&stubVerifier{verified: &credential.Verified{
		SubjectDID:       subjectDID,
		ClaimCommitments: commitments,
	}})
	session := s.createSession(svc, nationalityPolicy("France"))

	outcome, err := svc.VerifyCredential(context.Background(), session.Token, []byte(`{}`), disclosures)
	s.Require().NoError(err)
	s.Equal(models.StatusDenied, outcome.Status)
	s.NotEmpty(outcome.FailureReasons)
	s.Empty(outcome.RedirectURL)

	got, err := svc.GetSession(context.Background(), session.Token)
	s.Require().NoError(err)
	s.Equal(models.StatusDenied, got.Status)
}

func (s *ServiceSuite) TestVerificationFailureFinalizesDenied() {
	svc := s.newService(&stubVerifier{
		err: dErrors.New(dErrors.CodeSubjectMismatch, "credential subject does not match"),
	})
	session := s.createSession(svc, nationalityPolicy("France"))

	_, err := svc.VerifyCredential(context.Background(), session.Token, []byte(`{}`), []byte(`{}`))
	s.True(dErrors.HasCode(err, dErrors.CodeSubjectMismatch))

	got, gerr := svc.GetSession(context.Background(), session.Token)
	s.Require().NoError(gerr)
	s.Equal(models.StatusDenied, got.Status)
}

func (s *ServiceSuite) TestResolutionFailureLeavesSessionPending() {
	svc := s.newService(&stubVerifier{
		err: dErrors.New(dErrors.CodeNotFound, "no trust document observed"),
	})
	session := s.createSession(svc, nationalityPolicy("France"))

	_, err := svc.VerifyCredential(context.Background(), session.Token, []byte(`{}`), []byte(`{}`))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	got, gerr := svc.GetSession(context.Background(), session.Token)
	s.Require().NoError(gerr)
	s.Equal(models.StatusPending, got.Status)
}

func (s *ServiceSuite) TestFinalizedSessionRejectsResubmission() {
	commitments, disclosures := s.boundClaims(map[string]string{"nationality": "France"})
	svc := s.newService(&stubVerifier{verified: &credential.Verified{
		SubjectDID:       subjectDID,
		ClaimCommitments: commitments,
	}})
	session := s.createSession(svc, nationalityPolicy("France"))

	_, err := svc.VerifyCredential(context.Background(), session.Token, []byte(`{}`), disclosures)
	s.Require().NoError(err)

	_, err = svc.VerifyCredential(context.Background(), session.Token, []byte(`{}`), disclosures)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestVerificationFailureRaceReportsConflict() {
	// Another submission finalizes the session while this one is inside the
	// verifier; the loser must see the same conflict a sequential
	// resubmission gets, not the verification error.
	verifier := &funcVerifier{}
	svc := s.newService(verifier)
	session := s.createSession(svc, nationalityPolicy("France"))

	verifier.fn = func(ctx context.Context) (*credential.Verified, error) {
		_, err := s.store.Finalize(ctx, session.Token, models.StatusGranted)
		s.Require().NoError(err)
		return nil, dErrors.New(dErrors.CodeSubjectMismatch, "credential subject does not match")
	}

	_, err := svc.VerifyCredential(context.Background(), session.Token, []byte(`{}`), []byte(`{}`))
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	got, gerr := svc.GetSession(context.Background(), session.Token)
	s.Require().NoError(gerr)
	s.Equal(models.StatusGranted, got.Status)
}

func (s *ServiceSuite) TestMalformedDocumentsLeaveSessionPending() {
	svc := s.newService(&stubVerifier{})
	session := s.createSession(svc, nationalityPolicy("France"))

	_, err := svc.VerifyCredential(context.Background(), session.Token, []byte(`{broken`), []byte(`{}`))
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	got, gerr := svc.GetSession(context.Background(), session.Token)
	s.Require().NoError(gerr)
	s.Equal(models.StatusPending, got.Status)
}

func (s *ServiceSuite) TestExcludedDisclosureEvaluatesAsMissing() {
	// Commitments cover nationality, but the disclosed value is tampered:
	// binding drops it, so the policy sees the claim as missing.
	commitments, _ := s.boundClaims(map[string]string{"nationality": "France"})
	svc := s.newService(&stubVerifier{verified: &credential.Verified{
		SubjectDID:       subjectDID,
		ClaimCommitments: commitments,
	}})
	session := s.createSession(svc, nationalityPolicy("France"))

	tampered, err := json.Marshal(credential.DisclosureSet{
		"nationality": {Salt: "salt-nationality", Value: json.RawMessage(`"Suisse"`)},
	})
	s.Require().NoError(err)

	outcome, err := svc.VerifyCredential(context.Background(), session.Token, []byte(`{}`), tampered)
	s.Require().NoError(err)
	s.Equal(models.StatusDenied, outcome.Status)
	s.Contains(outcome.FailureReasons, "nationality is missing")
}
