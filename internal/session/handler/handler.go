package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"atlasid/internal/platform/middleware"
	"atlasid/internal/session/models"
	"atlasid/internal/session/service"
	dErrors "atlasid/pkg/domain-errors"
	"atlasid/pkg/platform/httputil"
)

// Service defines the session operations the transport needs.
// Returns domain objects, not HTTP response DTOs.
type Service interface {
	CreateSession(ctx context.Context, cmd service.CreateSessionCommand) (*models.Session, error)
	GetSession(ctx context.Context, token string) (*models.Session, error)
	VerifyCredential(ctx context.Context, token string, vcDoc, disclosuresDoc []byte) (*models.Outcome, error)
}

type Handler struct {
	service        Service
	logger         *slog.Logger
	maxUploadBytes int64
}

type Option func(*Handler)

// WithMaxUploadBytes caps the size of multipart credential uploads.
func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) { h.maxUploadBytes = n }
}

func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		service:        service,
		logger:         logger,
		maxUploadBytes: 1 << 20,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/request-verification", h.HandleCreateVerification)
	r.Get("/verification-request", h.HandleGetVerification)
	r.Post("/verify-vc", h.HandleVerifyCredential)
}

// HandleCreateVerification opens a session and returns the presentation URL.
func (h *Handler) HandleCreateVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateVerificationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	session, err := h.service.CreateSession(ctx, service.CreateSessionCommand{
		SubjectDID: req.UserID,
		Policy:     req.Operations,
		Flow:       req.Flow,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "create verification session failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, &CreateVerificationResponse{
		Success:    true,
		AtlasIDURL: "/atlas-id/" + session.Token,
	})
}

// HandleGetVerification returns the session for a token, for clients
// polling the outcome.
func (h *Handler) HandleGetVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	session, err := h.service.GetSession(ctx, r.URL.Query().Get("token"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, &GetVerificationResponse{
		Success: true,
		Request: toSessionResponse(session),
	})
}

// HandleVerifyCredential accepts the credential and disclosure documents as
// a multipart upload and runs the verification pipeline against the session.
func (h *Handler) HandleVerifyCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid multipart upload"))
		return
	}
	// Oversized parts spill to temp files; remove them with the request.
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			h.logger.WarnContext(ctx, "remove uploaded files", "error", err, "request_id", requestID)
		}
	}()

	vcDoc, err := readUpload(r, "vcFile")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	disclosuresDoc, err := readUpload(r, "disclosuresFile")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	outcome, err := h.service.VerifyCredential(ctx, r.FormValue("token"), vcDoc, disclosuresDoc)
	if err != nil {
		h.logger.WarnContext(ctx, "credential submission failed",
			"error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	if outcome.Status == models.StatusDenied {
		httputil.WriteJSON(w, http.StatusOK, &VerifyResponse{
			Success: false,
			Status:  string(models.StatusDenied),
			Message: "Verification conditions not met.",
			Reasons: outcome.FailureReasons,
		})
		return
	}

	httputil.WriteJSON(w, http.StatusOK, &VerifyResponse{
		Success:     true,
		Status:      string(models.StatusGranted),
		RedirectURL: outcome.RedirectURL,
	})
}

func readUpload(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, dErrors.New(dErrors.CodeBadRequest, field+" upload is required")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, field+" upload could not be read")
	}
	defer func(f multipart.File) { _ = f.Close() }(file)

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, field+" upload could not be read")
	}
	return data, nil
}
