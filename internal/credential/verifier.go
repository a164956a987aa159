package credential

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/errgroup"

	"atlasid/internal/ledger"
	"atlasid/internal/platform/tracer"
	"atlasid/internal/trust"
	dErrors "atlasid/pkg/domain-errors"
)

// TrustResolver resolves an authority identifier to its trust document.
type TrustResolver interface {
	Resolve(ctx context.Context, authorityDID string) (*trust.Resolution, error)
}

// envelopeClaims is the SD-JWT payload: the vc block and claim commitments,
// plus the registered claims the issuer sets (iat, exp).
type envelopeClaims struct {
	VC           VC                `json:"vc"`
	HashedClaims map[string]string `json:"hashed_claims"`
	jwt.RegisteredClaims
}

// VerifierConfig carries the deployment-level inputs of credential
// verification: which authority's trust document gates issuers, which topic
// holds integrity anchors, and how long anchor collection may listen.
type VerifierConfig struct {
	AuthorityDID  string
	AnchorTopic   ledger.TopicID
	CollectWindow time.Duration
}

// Verifier checks a presented credential end to end: subject binding, issuer
// authorization, signature, and integrity anchor. It holds no mutable state;
// every call resolves trust and queries the anchor log afresh.
type Verifier struct {
	resolver TrustResolver
	anchors  ledger.Reader
	cfg      VerifierConfig
	tracer   tracer.Tracer
	logger   *slog.Logger
}

// VerifierOption configures the Verifier.
type VerifierOption func(*Verifier)

// WithTracer injects a tracer. Defaults to a no-op tracer.
func WithTracer(t tracer.Tracer) VerifierOption {
	return func(v *Verifier) { v.tracer = t }
}

// WithLogger injects a logger. Defaults to a discarding logger.
func WithLogger(l *slog.Logger) VerifierOption {
	return func(v *Verifier) { v.logger = l }
}

// NewVerifier creates a credential verifier.
func NewVerifier(resolver TrustResolver, anchors ledger.Reader, cfg VerifierConfig, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		resolver: resolver,
		anchors:  anchors,
		cfg:      cfg,
		tracer:   tracer.NewNoop(),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// anchorFetch holds the prefetched anchor entries. The fetch runs in
// parallel with trust resolution but its result (including its error) is
// only consulted after the signature step has passed, preserving the
// short-circuit order of failure modes.
type anchorFetch struct {
	entries []ledger.Entry
	err     error
}

// Verify validates a presented credential against the expected subject.
//
// Checks run in a fixed order, each short-circuiting: subject binding,
// issuer authorization, signature, integrity anchor. After the signature
// verifies, every field feeding later steps comes from the verified payload;
// the uploaded envelope is never trusted.
func (v *Verifier) Verify(ctx context.Context, env *Envelope, expectedSubjectDID string) (*Verified, error) {
	ctx, span := v.tracer.Start(ctx, tracer.SpanVerifyCredential,
		tracer.String(tracer.AttrAuthorityDID, v.cfg.AuthorityDID),
		tracer.String(tracer.AttrIssuerDID, env.VC.Issuer),
	)
	verified, err := v.verify(ctx, env, expectedSubjectDID)
	span.End(err)
	return verified, err
}

func (v *Verifier) verify(ctx context.Context, env *Envelope, expectedSubjectDID string) (*Verified, error) {
	// Step 1: subject binding against the envelope. Only orders the failure
	// mode; the binding is re-checked against the verified payload below.
	if env.VC.SubjectID != expectedSubjectDID {
		return nil, dErrors.New(dErrors.CodeSubjectMismatch, "credential subject does not match the expected subject")
	}

	// Trust resolution and anchor collection are independent log reads;
	// fetch them in parallel. Resolution failures propagate immediately,
	// anchor failures wait until the anchor step.
	var (
		resolution *trust.Resolution
		anchors    anchorFetch
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := v.resolver.Resolve(gctx, v.cfg.AuthorityDID)
		if err != nil {
			return err
		}
		resolution = res
		return nil
	})
	g.Go(func() error {
		anchors.entries, anchors.err = v.anchors.Collect(gctx, v.cfg.AnchorTopic, v.cfg.CollectWindow)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Step 2: issuer authorization via the resolved trust document.
	issuer, ok := resolution.Document.FindIssuer(env.VC.Issuer)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorizedIssuer, "credential issuer is not authorized by the trust authority")
	}

	// Step 3: signature verification with the authorized issuer's key.
	payload, err := v.verifySignature(env, issuer)
	if err != nil {
		return nil, err
	}

	// The verified payload is the only trusted source from here on.
	if payload.VC.SubjectID != expectedSubjectDID {
		return nil, dErrors.New(dErrors.CodeSubjectMismatch, "signed credential subject does not match the expected subject")
	}
	if payload.VC.Issuer != issuer.AccountDID {
		return nil, dErrors.New(dErrors.CodeUnauthorizedIssuer, "signed credential issuer does not match the authorized issuer")
	}

	// Step 4: integrity anchor from the independent channel.
	if err := v.anchorStep(ctx, payload, anchors); err != nil {
		return nil, err
	}

	return &Verified{
		IssuerDID:        payload.VC.Issuer,
		SubjectDID:       payload.VC.SubjectID,
		IssuedAt:         payload.VC.IssuanceDate,
		ClaimCommitments: payload.HashedClaims,
	}, nil
}

func (v *Verifier) verifySignature(env *Envelope, issuer trust.AuthorizedIssuer) (*envelopeClaims, error) {
	if env.Proof == nil || env.Proof.SDJWT == "" {
		return nil, dErrors.New(dErrors.CodeInvalidSignature, "credential envelope carries no signed proof")
	}

	key, err := importIssuerKey(issuer.PublicKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidSignature, "issuer public key could not be imported")
	}

	claims := &envelopeClaims{}
	_, err = jwt.ParseWithClaims(env.Proof.SDJWT, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidSignature, "credential proof has expired")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidSignature, "credential signature verification failed")
	}
	return claims, nil
}

// anchorStep spans the anchor comparison separately so tamper evidence and
// collection stalls are attributable in traces.
func (v *Verifier) anchorStep(ctx context.Context, payload *envelopeClaims, anchors anchorFetch) error {
	ctx, span := v.tracer.Start(ctx, tracer.SpanAnchorLookup,
		tracer.String(tracer.AttrTopicID, string(v.cfg.AnchorTopic)),
		tracer.Int64(tracer.AttrEntryCount, int64(len(anchors.entries))),
	)
	err := v.checkAnchor(ctx, payload, anchors)
	span.End(err)
	return err
}

func (v *Verifier) checkAnchor(ctx context.Context, payload *envelopeClaims, anchors anchorFetch) error {
	if anchors.err != nil {
		if errors.Is(anchors.err, context.DeadlineExceeded) || errors.Is(anchors.err, context.Canceled) {
			return dErrors.Wrap(anchors.err, dErrors.CodeTimeout, "anchor log collection timed out")
		}
		return dErrors.Wrap(anchors.err, dErrors.CodeInternal, "anchor log collection failed")
	}

	recomputed, err := AnchorDigest(payload.VC, payload.HashedClaims)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "anchor digest recomputation failed")
	}

	latest, found := latestAnchorFor(ctx, v.logger, anchors.entries, payload.VC.SubjectID)
	if !found {
		return dErrors.New(dErrors.CodeNoAnchorRecord, "no anchor record found for the credential subject")
	}

	if latest.VCHash != recomputed {
		// The signature held but an independent channel disagrees on the
		// signed content. Authoritative tamper evidence, not a transient
		// condition.
		v.logger.WarnContext(ctx, "anchor digest mismatch",
			"subject", payload.VC.SubjectID,
			"issuer", payload.VC.Issuer,
		)
		return dErrors.New(dErrors.CodeAnchorMismatch, "credential content does not match its on-chain anchor")
	}
	return nil
}

// latestAnchorFor picks the greatest-timestamp anchor entry for the subject.
// Undecodable entries are skipped; the anchor topic is shared with other
// issuances.
func latestAnchorFor(ctx context.Context, logger *slog.Logger, entries []ledger.Entry, subjectDID string) (AnchorEntry, bool) {
	var (
		latest     AnchorEntry
		latestTime time.Time
		found      bool
	)
	for _, entry := range entries {
		var anchor AnchorEntry
		if err := json.Unmarshal(entry.Contents, &anchor); err != nil {
			logger.WarnContext(ctx, "skipping undecodable anchor entry",
				"sequence", entry.Sequence,
				"error", err,
			)
			continue
		}
		if anchor.SubjectID != subjectDID {
			continue
		}
		if !found || entry.ConsensusTime.After(latestTime) {
			latest = anchor
			latestTime = entry.ConsensusTime
			found = true
		}
	}
	return latest, found
}

// importIssuerKey parses the issuer's PEM public key. Keys published through
// environment variables arrive with escaped newlines; undo that first.
func importIssuerKey(pemKey string) (*rsa.PublicKey, error) {
	normalized := strings.ReplaceAll(pemKey, `\n`, "\n")
	return jwt.ParseRSAPublicKeyFromPEM([]byte(normalized))
}
