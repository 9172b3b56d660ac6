package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillpost/newsletter-gateway/internal/newsletter_service/domain"
)

// PgIssueRepository persists issues and bulk-enqueues their delivery tasks.
// Both statements run on the caller's transaction so the issue, its queue
// rows and the idempotency record commit as one unit (the outbox pattern):
// there is no window where an issue exists but its deliveries were never
// enqueued, or vice versa.
type PgIssueRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewPgIssueRepository(db *pgxpool.Pool, logger *slog.Logger) *PgIssueRepository {
	return &PgIssueRepository{db: db, logger: logger}
}

func (r *PgIssueRepository) CreateIssue(ctx context.Context, tx pgx.Tx, issue *domain.NewsletterIssue) error {
	const query = `
		INSERT INTO newsletter_issues (id, title, text_content, html_content, published_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := tx.Exec(ctx, query,
		issue.ID, issue.Title, issue.TextContent, issue.HTMLContent, issue.PublishedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to insert newsletter issue", "error", err, "issue_id", issue.ID)
		return fmt.Errorf("insert newsletter issue: %w", err)
	}
	return nil
}

// EnqueueDeliveryTasks snapshots the confirmed subscriber set as it exists
// at this instant. Subscribers confirmed after the publish transaction
// commits are not retroactively included.
func (r *PgIssueRepository) EnqueueDeliveryTasks(ctx context.Context, tx pgx.Tx, issueID uuid.UUID) (int, error) {
	const query = `
		INSERT INTO issue_delivery_queue (issue_id, subscriber_email, retry_count, next_attempt_at, status)
		SELECT $1, email, 0, $2, $3
		FROM subscriptions
		WHERE status = 'confirmed'
	`
	tag, err := tx.Exec(ctx, query, issueID, time.Now().UTC(), domain.TaskStatusPending)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to enqueue delivery tasks", "error", err, "issue_id", issueID)
		return 0, fmt.Errorf("enqueue delivery tasks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
