package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/quillpost/newsletter-gateway/internal/newsletter_service/domain"
	"github.com/quillpost/newsletter-gateway/internal/newsletter_service/middleware"
)

// NewsletterPublisher is the slice of the app layer this handler needs.
type NewsletterPublisher interface {
	Publish(ctx context.Context, userID uuid.UUID, idempotencyKey, title, textContent, htmlContent string) (*domain.CapturedResponse, error)
}

type PublishHandler struct {
	publisher NewsletterPublisher
	logger    *slog.Logger
	validate  *validator.Validate
}

func NewPublishHandler(publisher NewsletterPublisher, logger *slog.Logger, validate *validator.Validate) *PublishHandler {
	return &PublishHandler{
		publisher: publisher,
		logger:    logger,
		validate:  validate,
	}
}

// PublishNewsletter handles POST /newsletters. The response is written from
// the captured artifact, so first-time and replayed submissions are
// byte-identical.
func (h *PublishHandler) PublishNewsletter(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var reqDTO PublishNewsletterRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		h.logger.WarnContext(ctx, "failed to decode publish request body", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.validate.StructCtx(ctx, reqDTO); err != nil {
		h.logger.WarnContext(ctx, "validation failed for publish request", "error", err)
		http.Error(w, fmt.Sprintf("Validation error: %s", err.Error()), http.StatusBadRequest)
		return
	}

	authUser, ok := middleware.UserFromContext(ctx)
	if !ok {
		h.logger.ErrorContext(ctx, "authenticated user not found in context for PublishNewsletter")
		http.Error(w, "User authentication details not found", http.StatusUnauthorized)
		return
	}

	resp, err := h.publisher.Publish(ctx, authUser.ID, reqDTO.IdempotencyKey, reqDTO.Title, reqDTO.TextContent, reqDTO.HTMLContent)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidIdempotencyKey) {
			h.logger.WarnContext(ctx, "publish rejected: invalid idempotency key", "error", err)
			http.Error(w, "Invalid idempotency key", http.StatusBadRequest)
			return
		}
		h.logger.ErrorContext(ctx, "publish failed", "error", err, "user_id", authUser.ID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	WriteCapturedResponse(w, resp)
}

// WriteCapturedResponse relays a stored HTTP artifact verbatim: headers in
// captured order (duplicates included), then status, then body bytes.
func WriteCapturedResponse(w http.ResponseWriter, resp *domain.CapturedResponse) {
	for _, hp := range resp.Headers {
		w.Header().Add(hp.Name, hp.Value)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

// HealthCheck handles GET /healthz.
func HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
