package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the persisted state of a delivery task. There is no
// "in flight" status on disk: a claimed task is represented by the row lock
// held by the claiming worker, so a crashed worker's claim is released by
// the database automatically.
type TaskStatus string

const (
	// TaskStatusPending marks a task eligible for claiming once its
	// next_attempt_at has passed.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusFailed is terminal: the row is retained for observability
	// but never retried again. Successful tasks are deleted instead.
	TaskStatusFailed TaskStatus = "failed"
)

// DeliveryTask is one (issue, recipient) delivery obligation. Tasks are
// bulk-inserted by the outbox writer at publish time and mutated only by the
// delivery worker afterwards.
type DeliveryTask struct {
	IssueID         uuid.UUID
	SubscriberEmail string
	RetryCount      int
	NextAttemptAt   time.Time
	Status          TaskStatus
	LastError       string
}
