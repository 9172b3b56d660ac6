package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/quillpost/newsletter-gateway/internal/newsletter_service/domain"
)

// Admission is the caller's ticket into the critical section for one
// fingerprint. It carries the open transaction the publish work must run in;
// the caller ends it with exactly one Complete or Abort.
type Admission struct {
	Fingerprint domain.Fingerprint
	Tx          pgx.Tx
}

// IdempotencyRepository serializes concurrent publish attempts that share a
// fingerprint and replays the captured response on retries.
type IdempotencyRepository interface {
	// Begin admits the caller (admission non-nil, saved nil) or replays the
	// response captured by an earlier attempt (admission nil, saved non-nil).
	// When a concurrent attempt holds the same fingerprint, Begin blocks
	// until that attempt commits or rolls back.
	Begin(ctx context.Context, fp domain.Fingerprint) (*Admission, *domain.CapturedResponse, error)
	// Complete stores the response into the placeholder row and commits the
	// admission's transaction. Completing twice returns
	// domain.ErrAlreadyCompleted.
	Complete(ctx context.Context, adm *Admission, resp *domain.CapturedResponse) error
	// Abort rolls the whole transaction back, placeholder included, so the
	// client may legitimately retry with the same key.
	Abort(ctx context.Context, adm *Admission) error
}

// IssueRepository is the outbox writer's storage surface. Both operations
// run inside the admission transaction so issue, queue rows and idempotency
// record commit or vanish together.
type IssueRepository interface {
	CreateIssue(ctx context.Context, tx pgx.Tx, issue *domain.NewsletterIssue) error
	// EnqueueDeliveryTasks snapshots the confirmed subscriber set at this
	// instant into one delivery task per recipient. Returns the number of
	// tasks enqueued.
	EnqueueDeliveryTasks(ctx context.Context, tx pgx.Tx, issueID uuid.UUID) (int, error)
}

// ClaimedTask is one delivery task held under a row lock, together with the
// issue content needed to send it. The lock lives for the duration of the
// claim transaction and is released by whichever of Complete/Retry/Fail/
// Release ends it.
type ClaimedTask struct {
	Task  domain.DeliveryTask
	Issue domain.NewsletterIssue
	Tx    pgx.Tx
}

// DeliveryQueueRepository implements the claim protocol over the delivery
// queue table. Safe for any number of concurrent worker processes.
type DeliveryQueueRepository interface {
	// ClaimTask locks one eligible task (pending, due) skipping rows locked
	// by other claimants. Returns domain.ErrNoEligibleTasks when the queue
	// has nothing due.
	ClaimTask(ctx context.Context) (*ClaimedTask, error)
	// CompleteTask deletes the delivered task and commits.
	CompleteTask(ctx context.Context, claim *ClaimedTask) error
	// RetryTask records a transient failure: bumps the retry bookkeeping,
	// schedules the next attempt and returns the task to pending.
	RetryTask(ctx context.Context, claim *ClaimedTask, retryCount int, nextAttemptAt time.Time, lastError string) error
	// FailTask marks the task terminally failed. The row is retained but
	// never claimed again.
	FailTask(ctx context.Context, claim *ClaimedTask, lastError string) error
	// ReleaseTask rolls the claim back, leaving the task untouched for
	// another worker. Used when shutdown interrupts an attempt.
	ReleaseTask(ctx context.Context, claim *ClaimedTask) error
}
