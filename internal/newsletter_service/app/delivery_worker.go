package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/quillpost/newsletter-gateway/internal/newsletter_service/adapters/emailclient"
	"github.com/quillpost/newsletter-gateway/internal/newsletter_service/domain"
	"github.com/quillpost/newsletter-gateway/internal/newsletter_service/repository"
)

// WorkerConfig holds the delivery worker's polling and retry policy.
type WorkerConfig struct {
	// PollInterval is how long the worker sleeps when the queue has nothing
	// eligible.
	PollInterval time.Duration
	// ErrorSleep is the pause after an infrastructure error (e.g. the claim
	// query itself failed) before polling again.
	ErrorSleep time.Duration
	// MaxRetries is the total attempt budget per task, first attempt
	// included.
	MaxRetries int
	// RetryBase is the delay before the second attempt; each further retry
	// doubles it.
	RetryBase time.Duration
}

// ExecutionOutcome reports what one poll cycle did.
type ExecutionOutcome int

const (
	OutcomeTaskProcessed ExecutionOutcome = iota
	OutcomeEmptyQueue
)

// DeliveryWorker drains the delivery queue: claim one task, invoke the email
// transport, settle the task. Task failures are isolated to the task; a
// poisoned recipient never stalls the queue and never rolls back siblings.
// Any number of worker instances can run concurrently against one database.
type DeliveryWorker struct {
	queueRepo repository.DeliveryQueueRepository
	sender    emailclient.EmailSender
	logger    *slog.Logger
	config    WorkerConfig
}

func NewDeliveryWorker(
	queueRepo repository.DeliveryQueueRepository,
	sender emailclient.EmailSender,
	logger *slog.Logger,
	cfg WorkerConfig,
) *DeliveryWorker {
	return &DeliveryWorker{
		queueRepo: queueRepo,
		sender:    sender,
		logger:    logger,
		config:    cfg,
	}
}

// Run loops until ctx is cancelled. Shutdown stops claiming new tasks and
// lets the in-flight attempt settle before returning.
func (w *DeliveryWorker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "delivery worker started",
		"poll_interval", w.config.PollInterval.String(),
		"max_retries", w.config.MaxRetries)

	for {
		if ctx.Err() != nil {
			w.logger.InfoContext(ctx, "delivery worker stopping")
			return nil
		}

		outcome, err := w.ProcessNextTask(ctx)

		var wait time.Duration
		switch {
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			w.logger.InfoContext(ctx, "delivery worker stopping")
			return nil
		case err != nil:
			w.logger.ErrorContext(ctx, "delivery cycle failed", "error", err)
			wait = w.config.ErrorSleep
		case outcome == OutcomeEmptyQueue:
			wait = w.config.PollInterval
		default:
			continue
		}

		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "delivery worker stopping")
			return nil
		case <-time.After(wait):
		}
	}
}

// ProcessNextTask claims at most one task and settles it. It never returns a
// per-task delivery failure as an error: those are recorded on the task
// itself. Errors reported here are infrastructure faults (claiming or
// settling failed) or context cancellation.
func (w *DeliveryWorker) ProcessNextTask(ctx context.Context) (ExecutionOutcome, error) {
	claim, err := w.queueRepo.ClaimTask(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNoEligibleTasks) {
			return OutcomeEmptyQueue, nil
		}
		return OutcomeEmptyQueue, err
	}

	timer := prometheus.NewTimer(deliveryAttemptDurationHist)
	defer timer.ObserveDuration()

	task := claim.Task
	taskLogger := w.logger.With("issue_id", task.IssueID, "recipient", task.SubscriberEmail)

	addr, err := domain.ParseEmailAddress(task.SubscriberEmail)
	if err != nil {
		// A malformed stored address cannot be fixed by retrying; treat it
		// exactly like an exhausted retry budget.
		return OutcomeTaskProcessed, w.failTask(ctx, claim, taskLogger, err)
	}

	sendErr := w.sender.Send(ctx, emailclient.SendEmailRequest{
		To:       addr.String(),
		Subject:  claim.Issue.Title,
		HTMLBody: claim.Issue.HTMLContent,
		TextBody: claim.Issue.TextContent,
	})

	if sendErr == nil {
		if err := w.queueRepo.CompleteTask(ctx, claim); err != nil {
			return OutcomeTaskProcessed, err
		}
		deliveryAttemptsCounter.WithLabelValues("delivered").Inc()
		taskLogger.InfoContext(ctx, "newsletter issue delivered")
		return OutcomeTaskProcessed, nil
	}

	if ctx.Err() != nil {
		// Shutdown cut the attempt short. Release the claim untouched so
		// another worker picks the task up; the settle must not run on the
		// cancelled context.
		releaseCtx := context.WithoutCancel(ctx)
		if err := w.queueRepo.ReleaseTask(releaseCtx, claim); err != nil {
			taskLogger.ErrorContext(ctx, "failed to release claim on shutdown", "error", err)
		}
		deliveryAttemptsCounter.WithLabelValues("released").Inc()
		return OutcomeTaskProcessed, ctx.Err()
	}

	if emailclient.IsPermanent(sendErr) {
		return OutcomeTaskProcessed, w.failTask(ctx, claim, taskLogger, sendErr)
	}

	attempts := task.RetryCount + 1
	if attempts >= w.config.MaxRetries {
		taskLogger.WarnContext(ctx, "delivery retry budget exhausted",
			"attempts", attempts, "max_retries", w.config.MaxRetries)
		return OutcomeTaskProcessed, w.failTask(ctx, claim, taskLogger, sendErr)
	}

	nextAttemptAt := time.Now().UTC().Add(backoffDelay(w.config.RetryBase, attempts))
	if err := w.queueRepo.RetryTask(ctx, claim, attempts, nextAttemptAt, sendErr.Error()); err != nil {
		return OutcomeTaskProcessed, err
	}
	deliveryAttemptsCounter.WithLabelValues("retried").Inc()
	taskLogger.WarnContext(ctx, "transient delivery failure, task rescheduled",
		"error", sendErr, "attempts", attempts, "next_attempt_at", nextAttemptAt)
	return OutcomeTaskProcessed, nil
}

func (w *DeliveryWorker) failTask(ctx context.Context, claim *repository.ClaimedTask, taskLogger *slog.Logger, cause error) error {
	if err := w.queueRepo.FailTask(ctx, claim, cause.Error()); err != nil {
		return err
	}
	deliveryAttemptsCounter.WithLabelValues("failed").Inc()
	taskLogger.ErrorContext(ctx, "delivery task failed terminally", "error", cause)
	return nil
}

// backoffDelay doubles per completed attempt: base, 2*base, 4*base, ...
// Strictly increasing and uncapped; the small retry budget bounds it.
func backoffDelay(base time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return base << (attempts - 1)
}
