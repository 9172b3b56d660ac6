package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/quillpost/newsletter-gateway/internal/newsletter_service/domain"
	"github.com/quillpost/newsletter-gateway/internal/newsletter_service/repository"
)

// PublishService is the idempotent publish entry point. A successful call
// means the issue and its delivery tasks are durably queued; actual delivery
// is the worker's business and never fails a publish.
type PublishService struct {
	idempotencyRepo repository.IdempotencyRepository
	issueRepo       repository.IssueRepository
	logger          *slog.Logger
}

func NewPublishService(
	idempotencyRepo repository.IdempotencyRepository,
	issueRepo repository.IssueRepository,
	logger *slog.Logger,
) *PublishService {
	return &PublishService{
		idempotencyRepo: idempotencyRepo,
		issueRepo:       issueRepo,
		logger:          logger,
	}
}

// Publish validates the idempotency key, enters the fingerprint's critical
// section and, if admitted, commits issue + delivery queue rows + captured
// response as one transaction. Retried submissions with the same key get the
// stored response back byte-for-byte.
func (s *PublishService) Publish(ctx context.Context, userID uuid.UUID, idempotencyKey, title, textContent, htmlContent string) (*domain.CapturedResponse, error) {
	key, err := domain.NewIdempotencyKey(idempotencyKey)
	if err != nil {
		return nil, err
	}
	fp := domain.Fingerprint{UserID: userID, Key: key}

	adm, saved, err := s.idempotencyRepo.Begin(ctx, fp)
	if err != nil {
		return nil, fmt.Errorf("admit publish attempt: %w", err)
	}
	if saved != nil {
		publishReplaysCounter.Inc()
		s.logger.InfoContext(ctx, "publish replayed from idempotency store", "user_id", userID)
		return saved, nil
	}

	issue := domain.NewNewsletterIssue(title, textContent, htmlContent)
	if err := s.issueRepo.CreateIssue(ctx, adm.Tx, issue); err != nil {
		_ = s.idempotencyRepo.Abort(ctx, adm)
		return nil, fmt.Errorf("store newsletter issue: %w", err)
	}

	enqueued, err := s.issueRepo.EnqueueDeliveryTasks(ctx, adm.Tx, issue.ID)
	if err != nil {
		_ = s.idempotencyRepo.Abort(ctx, adm)
		return nil, fmt.Errorf("enqueue delivery tasks: %w", err)
	}

	resp, err := buildAcceptedResponse(issue.ID, enqueued)
	if err != nil {
		_ = s.idempotencyRepo.Abort(ctx, adm)
		return nil, err
	}

	if err := s.idempotencyRepo.Complete(ctx, adm, resp); err != nil {
		return nil, fmt.Errorf("complete idempotency record: %w", err)
	}

	issuesPublishedCounter.Inc()
	s.logger.InfoContext(ctx, "newsletter issue queued for delivery",
		"issue_id", issue.ID, "user_id", userID, "enqueued_deliveries", enqueued)
	return resp, nil
}

func buildAcceptedResponse(issueID uuid.UUID, enqueued int) (*domain.CapturedResponse, error) {
	body, err := json.Marshal(struct {
		IssueID            string `json:"issue_id"`
		EnqueuedDeliveries int    `json:"enqueued_deliveries"`
	}{
		IssueID:            issueID.String(),
		EnqueuedDeliveries: enqueued,
	})
	if err != nil {
		return nil, fmt.Errorf("encode publish response: %w", err)
	}
	return &domain.CapturedResponse{
		StatusCode: http.StatusCreated,
		Headers: []domain.HeaderPair{
			{Name: "Content-Type", Value: "application/json"},
		},
		Body: body,
	}, nil
}
