package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillpost/newsletter-gateway/internal/newsletter_service/domain"
	"github.com/quillpost/newsletter-gateway/internal/newsletter_service/repository"
)

// PgDeliveryQueueRepository implements the claim protocol. A claim is a row
// lock held for the lifetime of the claim transaction, taken with
// FOR UPDATE SKIP LOCKED so concurrent workers never contend for the same
// task. If a worker dies mid-claim, Postgres releases the lock with the
// aborted transaction and the task becomes claimable again.
type PgDeliveryQueueRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewPgDeliveryQueueRepository(db *pgxpool.Pool, logger *slog.Logger) *PgDeliveryQueueRepository {
	return &PgDeliveryQueueRepository{db: db, logger: logger}
}

func (r *PgDeliveryQueueRepository) ClaimTask(ctx context.Context) (*repository.ClaimedTask, error) {
	const claimQuery = `
		SELECT q.issue_id, q.subscriber_email, q.retry_count, q.next_attempt_at,
		       i.title, i.text_content, i.html_content, i.published_at
		FROM issue_delivery_queue q
		JOIN newsletter_issues i ON i.id = q.issue_id
		WHERE q.status = $1 AND q.next_attempt_at <= $2
		ORDER BY q.next_attempt_at ASC
		LIMIT 1
		FOR UPDATE OF q SKIP LOCKED
	`

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim transaction: %w", err)
	}

	claim := &repository.ClaimedTask{Tx: tx}
	claim.Task.Status = domain.TaskStatusPending
	err = tx.QueryRow(ctx, claimQuery, domain.TaskStatusPending, time.Now().UTC()).Scan(
		&claim.Task.IssueID, &claim.Task.SubscriberEmail, &claim.Task.RetryCount, &claim.Task.NextAttemptAt,
		&claim.Issue.Title, &claim.Issue.TextContent, &claim.Issue.HTMLContent, &claim.Issue.PublishedAt,
	)
	if err != nil {
		_ = tx.Rollback(ctx)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNoEligibleTasks
		}
		return nil, fmt.Errorf("claim delivery task: %w", err)
	}
	claim.Issue.ID = claim.Task.IssueID
	return claim, nil
}

func (r *PgDeliveryQueueRepository) CompleteTask(ctx context.Context, claim *repository.ClaimedTask) error {
	const query = `
		DELETE FROM issue_delivery_queue
		WHERE issue_id = $1 AND subscriber_email = $2
	`
	if _, err := claim.Tx.Exec(ctx, query, claim.Task.IssueID, claim.Task.SubscriberEmail); err != nil {
		_ = claim.Tx.Rollback(ctx)
		return fmt.Errorf("delete delivered task: %w", err)
	}
	if err := claim.Tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit task completion: %w", err)
	}
	return nil
}

func (r *PgDeliveryQueueRepository) RetryTask(ctx context.Context, claim *repository.ClaimedTask, retryCount int, nextAttemptAt time.Time, lastError string) error {
	const query = `
		UPDATE issue_delivery_queue
		SET retry_count = $3, next_attempt_at = $4, last_error = $5
		WHERE issue_id = $1 AND subscriber_email = $2
	`
	_, err := claim.Tx.Exec(ctx, query,
		claim.Task.IssueID, claim.Task.SubscriberEmail, retryCount, nextAttemptAt, lastError,
	)
	if err != nil {
		_ = claim.Tx.Rollback(ctx)
		return fmt.Errorf("reschedule task: %w", err)
	}
	if err := claim.Tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit task retry: %w", err)
	}
	return nil
}

func (r *PgDeliveryQueueRepository) FailTask(ctx context.Context, claim *repository.ClaimedTask, lastError string) error {
	const query = `
		UPDATE issue_delivery_queue
		SET status = $3, last_error = $4
		WHERE issue_id = $1 AND subscriber_email = $2
	`
	_, err := claim.Tx.Exec(ctx, query,
		claim.Task.IssueID, claim.Task.SubscriberEmail, domain.TaskStatusFailed, lastError,
	)
	if err != nil {
		_ = claim.Tx.Rollback(ctx)
		return fmt.Errorf("mark task failed: %w", err)
	}
	if err := claim.Tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit task failure: %w", err)
	}
	return nil
}

func (r *PgDeliveryQueueRepository) ReleaseTask(ctx context.Context, claim *repository.ClaimedTask) error {
	if err := claim.Tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("release claimed task: %w", err)
	}
	return nil
}
