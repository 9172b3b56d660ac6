package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/quillpost/newsletter-gateway/internal/newsletter_service/domain"
	"github.com/quillpost/newsletter-gateway/internal/newsletter_service/repository"
)

// --- Mocks ---

type MockIdempotencyRepository struct {
	mock.Mock
}

func (m *MockIdempotencyRepository) Begin(ctx context.Context, fp domain.Fingerprint) (*repository.Admission, *domain.CapturedResponse, error) {
	args := m.Called(ctx, fp)
	var adm *repository.Admission
	if args.Get(0) != nil {
		adm = args.Get(0).(*repository.Admission)
	}
	var saved *domain.CapturedResponse
	if args.Get(1) != nil {
		saved = args.Get(1).(*domain.CapturedResponse)
	}
	return adm, saved, args.Error(2)
}

func (m *MockIdempotencyRepository) Complete(ctx context.Context, adm *repository.Admission, resp *domain.CapturedResponse) error {
	args := m.Called(ctx, adm, resp)
	return args.Error(0)
}

func (m *MockIdempotencyRepository) Abort(ctx context.Context, adm *repository.Admission) error {
	args := m.Called(ctx, adm)
	return args.Error(0)
}

type MockIssueRepository struct {
	mock.Mock
}

func (m *MockIssueRepository) CreateIssue(ctx context.Context, tx pgx.Tx, issue *domain.NewsletterIssue) error {
	args := m.Called(ctx, tx, issue)
	return args.Error(0)
}

func (m *MockIssueRepository) EnqueueDeliveryTasks(ctx context.Context, tx pgx.Tx, issueID uuid.UUID) (int, error) {
	args := m.Called(ctx, tx, issueID)
	return args.Int(0), args.Error(1)
}

// --- Test setup ---

type publishServiceTestComponents struct {
	service         *PublishService
	idempotencyRepo *MockIdempotencyRepository
	issueRepo       *MockIssueRepository
	userID          uuid.UUID
}

func setupPublishServiceTest(t *testing.T) publishServiceTestComponents {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	idempotencyRepo := new(MockIdempotencyRepository)
	issueRepo := new(MockIssueRepository)

	return publishServiceTestComponents{
		service:         NewPublishService(idempotencyRepo, issueRepo, logger),
		idempotencyRepo: idempotencyRepo,
		issueRepo:       issueRepo,
		userID:          uuid.New(),
	}
}

// --- Tests ---

func TestPublishService_Publish_AdmittedPath(t *testing.T) {
	c := setupPublishServiceTest(t)
	ctx := context.Background()
	adm := &repository.Admission{}

	c.idempotencyRepo.On("Begin", ctx, mock.AnythingOfType("domain.Fingerprint")).Return(adm, nil, nil).Once()
	c.issueRepo.On("CreateIssue", ctx, nil, mock.AnythingOfType("*domain.NewsletterIssue")).Return(nil).Once()
	c.issueRepo.On("EnqueueDeliveryTasks", ctx, nil, mock.AnythingOfType("uuid.UUID")).Return(3, nil).Once()
	c.idempotencyRepo.On("Complete", ctx, adm, mock.AnythingOfType("*domain.CapturedResponse")).Return(nil).Once()

	resp, err := c.service.Publish(ctx, c.userID, "key-1", "Issue Title", "plain text", "<p>html</p>")
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, []domain.HeaderPair{{Name: "Content-Type", Value: "application/json"}}, resp.Headers)
	assert.Contains(t, string(resp.Body), `"enqueued_deliveries":3`)

	c.idempotencyRepo.AssertExpectations(t)
	c.issueRepo.AssertExpectations(t)
}

func TestPublishService_Publish_ReplaysSavedResponse(t *testing.T) {
	c := setupPublishServiceTest(t)
	ctx := context.Background()
	saved := &domain.CapturedResponse{
		StatusCode: http.StatusCreated,
		Headers:    []domain.HeaderPair{{Name: "Content-Type", Value: "application/json"}},
		Body:       []byte(`{"issue_id":"earlier","enqueued_deliveries":3}`),
	}

	c.idempotencyRepo.On("Begin", ctx, mock.AnythingOfType("domain.Fingerprint")).Return(nil, saved, nil).Once()

	resp, err := c.service.Publish(ctx, c.userID, "key-1", "Issue Title", "plain text", "<p>html</p>")
	require.NoError(t, err)
	assert.Same(t, saved, resp)

	// A replay must not touch the outbox.
	c.issueRepo.AssertNotCalled(t, "CreateIssue", mock.Anything, mock.Anything, mock.Anything)
	c.issueRepo.AssertNotCalled(t, "EnqueueDeliveryTasks", mock.Anything, mock.Anything, mock.Anything)
	c.idempotencyRepo.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestPublishService_Publish_InvalidKeyRejectedBeforeStoreAccess(t *testing.T) {
	c := setupPublishServiceTest(t)

	_, err := c.service.Publish(context.Background(), c.userID, "", "Issue Title", "plain text", "<p>html</p>")
	assert.ErrorIs(t, err, domain.ErrInvalidIdempotencyKey)

	c.idempotencyRepo.AssertNotCalled(t, "Begin", mock.Anything, mock.Anything)
}

func TestPublishService_Publish_FingerprintCombinesUserAndKey(t *testing.T) {
	c := setupPublishServiceTest(t)
	ctx := context.Background()

	var seen domain.Fingerprint
	c.idempotencyRepo.On("Begin", ctx, mock.AnythingOfType("domain.Fingerprint")).
		Run(func(args mock.Arguments) { seen = args.Get(1).(domain.Fingerprint) }).
		Return(nil, &domain.CapturedResponse{StatusCode: http.StatusCreated}, nil).Once()

	_, err := c.service.Publish(ctx, c.userID, "key-42", "T", "t", "h")
	require.NoError(t, err)
	assert.Equal(t, c.userID, seen.UserID)
	assert.Equal(t, "key-42", seen.Key.String())
}

func TestPublishService_Publish_CreateIssueFailureAbortsEverything(t *testing.T) {
	c := setupPublishServiceTest(t)
	ctx := context.Background()
	adm := &repository.Admission{}
	storageErr := errors.New("relation does not exist")

	c.idempotencyRepo.On("Begin", ctx, mock.AnythingOfType("domain.Fingerprint")).Return(adm, nil, nil).Once()
	c.issueRepo.On("CreateIssue", ctx, nil, mock.AnythingOfType("*domain.NewsletterIssue")).Return(storageErr).Once()
	c.idempotencyRepo.On("Abort", ctx, adm).Return(nil).Once()

	_, err := c.service.Publish(ctx, c.userID, "key-1", "T", "t", "h")
	require.Error(t, err)
	assert.ErrorIs(t, err, storageErr)

	c.idempotencyRepo.AssertCalled(t, "Abort", ctx, adm)
	c.idempotencyRepo.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestPublishService_Publish_EnqueueFailureAbortsEverything(t *testing.T) {
	c := setupPublishServiceTest(t)
	ctx := context.Background()
	adm := &repository.Admission{}
	storageErr := errors.New("connection reset")

	c.idempotencyRepo.On("Begin", ctx, mock.AnythingOfType("domain.Fingerprint")).Return(adm, nil, nil).Once()
	c.issueRepo.On("CreateIssue", ctx, nil, mock.AnythingOfType("*domain.NewsletterIssue")).Return(nil).Once()
	c.issueRepo.On("EnqueueDeliveryTasks", ctx, nil, mock.AnythingOfType("uuid.UUID")).Return(0, storageErr).Once()
	c.idempotencyRepo.On("Abort", ctx, adm).Return(nil).Once()

	_, err := c.service.Publish(ctx, c.userID, "key-1", "T", "t", "h")
	require.Error(t, err)

	c.idempotencyRepo.AssertCalled(t, "Abort", ctx, adm)
	c.idempotencyRepo.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestPublishService_Publish_IssueTimestampsAreUTC(t *testing.T) {
	c := setupPublishServiceTest(t)
	ctx := context.Background()
	adm := &repository.Admission{}

	var issue *domain.NewsletterIssue
	c.idempotencyRepo.On("Begin", ctx, mock.AnythingOfType("domain.Fingerprint")).Return(adm, nil, nil).Once()
	c.issueRepo.On("CreateIssue", ctx, nil, mock.AnythingOfType("*domain.NewsletterIssue")).
		Run(func(args mock.Arguments) { issue = args.Get(2).(*domain.NewsletterIssue) }).
		Return(nil).Once()
	c.issueRepo.On("EnqueueDeliveryTasks", ctx, nil, mock.AnythingOfType("uuid.UUID")).Return(0, nil).Once()
	c.idempotencyRepo.On("Complete", ctx, adm, mock.AnythingOfType("*domain.CapturedResponse")).Return(nil).Once()

	_, err := c.service.Publish(ctx, c.userID, "key-1", "T", "t", "h")
	require.NoError(t, err)
	require.NotNil(t, issue)
	assert.NotEqual(t, uuid.Nil, issue.ID)
	assert.WithinDuration(t, time.Now().UTC(), issue.PublishedAt, 5*time.Second)
	assert.Equal(t, time.UTC, issue.PublishedAt.Location())
}
