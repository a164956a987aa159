// Package service orchestrates verification sessions: relying parties open a
// session naming a subject and a policy, the subject submits a credential and
// disclosures, and the session finalizes to granted or denied.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"atlasid/internal/credential"
	"atlasid/internal/platform/tracer"
	"atlasid/internal/policy"
	"atlasid/internal/sentinel"
	sessionmetrics "atlasid/internal/session/metrics"
	"atlasid/internal/session/models"
	dErrors "atlasid/pkg/domain-errors"
)

// Store persists verification sessions.
type Store interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, token string) (*models.Session, error)
	Finalize(ctx context.Context, token string, status models.Status) (*models.Session, error)
}

// CredentialVerifier checks a presented credential against the expected
// subject.
type CredentialVerifier interface {
	Verify(ctx context.Context, env *credential.Envelope, expectedSubjectDID string) (*credential.Verified, error)
}

// Service orchestrates session lifecycle and credential submission.
type Service struct {
	store    Store
	verifier CredentialVerifier
	logger   *slog.Logger
	tracer   tracer.Tracer
	metrics  *sessionmetrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

func WithMetrics(m *sessionmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(store Store, verifier CredentialVerifier, opts ...Option) *Service {
	s := &Service{
		store:    store,
		verifier: verifier,
		logger:   slog.New(slog.DiscardHandler),
		tracer:   tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSessionCommand carries a relying party's verification request.
type CreateSessionCommand struct {
	SubjectDID string
	Policy     policy.Policy
	Flow       string
}

// CreateSession validates the request and opens a pending session under a
// fresh token.
func (s *Service) CreateSession(ctx context.Context, cmd CreateSessionCommand) (*models.Session, error) {
	if cmd.SubjectDID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "userId and operations are required")
	}
	if len(cmd.Policy) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "userId and operations are required")
	}
	if err := cmd.Policy.Validate(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, fmt.Sprintf("invalid operations: %v", err))
	}

	flow := cmd.Flow
	if flow == "" {
		flow = models.DefaultFlow
	}

	session := &models.Session{
		Token:      uuid.New().String(),
		SubjectDID: cmd.SubjectDID,
		Policy:     cmd.Policy,
		Flow:       flow,
		Status:     models.StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.Create(ctx, session); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create verification session")
	}

	if s.metrics != nil {
		s.metrics.IncSessionCreated()
	}
	s.logger.InfoContext(ctx, "verification session created",
		"token", session.Token,
		"subject", session.SubjectDID,
		"flow", session.Flow,
	)
	return session, nil
}

// GetSession returns the session for a token.
func (s *Service) GetSession(ctx context.Context, token string) (*models.Session, error) {
	if token == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "token required")
	}
	session, err := s.store.Get(ctx, token)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "verification request not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load verification session")
	}
	return session, nil
}

// VerifyCredential runs a credential submission against a pending session.
//
// Failure handling follows the error taxonomy: resolution failures (the
// trust document could not be obtained) leave the session pending and
// surface as retryable errors; verification failures (the credential itself
// is wrong or tampered) finalize the session to denied before the error is
// returned. A policy miss is a business outcome, not an error: the session
// finalizes to denied and the outcome carries the failure reasons.
func (s *Service) VerifyCredential(ctx context.Context, token string, vcDoc, disclosuresDoc []byte) (*models.Outcome, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, tracer.SpanSessionVerify)
	outcome, err := s.verifyCredential(ctx, token, vcDoc, disclosuresDoc)
	label := verifyOutcomeLabel(outcome, err)
	span.SetAttributes(tracer.String(tracer.AttrOutcome, label))
	span.End(err)
	if s.metrics != nil {
		s.metrics.ObserveVerify(start, label)
	}
	return outcome, err
}

func (s *Service) verifyCredential(ctx context.Context, token string, vcDoc, disclosuresDoc []byte) (*models.Outcome, error) {
	session, err := s.GetSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if session.Finalized() {
		return nil, dErrors.New(dErrors.CodeConflict, "verification session is already finalized")
	}

	env, err := credential.ParseEnvelope(vcDoc)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "credential document is not valid JSON")
	}
	disclosures, err := credential.ParseDisclosures(disclosuresDoc)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "disclosures document is not valid JSON")
	}

	verified, err := s.verifier.Verify(ctx, env, session.SubjectDID)
	if err != nil {
		code := dErrors.CodeOf(err)
		if dErrors.IsVerification(code) {
			// Terminal: the submitted credential can never verify. Deny the
			// session so the same token cannot be retried into a grant.
			if _, ferr := s.store.Finalize(ctx, token, models.StatusDenied); ferr != nil {
				if errors.Is(ferr, sentinel.ErrFinalized) {
					// Lost a finalization race; report the same conflict a
					// sequential resubmission would see.
					return nil, dErrors.New(dErrors.CodeConflict, "verification session is already finalized")
				}
				s.logger.ErrorContext(ctx, "finalize after verification failure",
					"token", token, "error", ferr)
			}
			s.logger.WarnContext(ctx, "credential verification failed",
				"token", token, "code", string(code))
			return nil, err
		}
		// Resolution or infrastructure failure: the session stays pending
		// and the subject may retry once the trust document is reachable.
		s.logger.ErrorContext(ctx, "trust resolution failed during submission",
			"token", token, "code", string(code), "error", err)
		return nil, err
	}

	claims := credential.Bind(verified.ClaimCommitments, disclosures)
	result := policy.Evaluate(session.Policy, claims)

	status := models.StatusDenied
	if result.Passed {
		status = models.StatusGranted
	}
	if _, err := s.store.Finalize(ctx, token, status); err != nil {
		if errors.Is(err, sentinel.ErrFinalized) {
			return nil, dErrors.New(dErrors.CodeConflict, "verification session is already finalized")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "finalize verification session")
	}

	if !result.Passed {
		s.logger.InfoContext(ctx, "verification denied",
			"token", token, "reasons", result.FailureReasons)
		return &models.Outcome{
			Status:         models.StatusDenied,
			FailureReasons: result.FailureReasons,
		}, nil
	}

	s.logger.InfoContext(ctx, "verification granted",
		"token", token, "subject", verified.SubjectDID, "flow", session.Flow)
	return &models.Outcome{
		Status:      models.StatusGranted,
		RedirectURL: fmt.Sprintf("/%s?status=granted&userId=%s", session.Flow, verified.SubjectDID),
	}, nil
}

func verifyOutcomeLabel(outcome *models.Outcome, err error) string {
	switch {
	case err != nil:
		return "error"
	case outcome != nil && outcome.Status == models.StatusGranted:
		return "granted"
	default:
		return "denied"
	}
}
