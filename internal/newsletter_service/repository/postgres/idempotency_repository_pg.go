package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillpost/newsletter-gateway/internal/newsletter_service/domain"
	"github.com/quillpost/newsletter-gateway/internal/newsletter_service/repository"
)

// PgIdempotencyRepository implements the fingerprint critical section on top
// of Postgres row locks. The unique (user_id, idempotency_key) index acts as
// a durable mutex: it works across service instances and survives restarts,
// which an in-process lock cannot.
type PgIdempotencyRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewPgIdempotencyRepository(db *pgxpool.Pool, logger *slog.Logger) *PgIdempotencyRepository {
	return &PgIdempotencyRepository{db: db, logger: logger}
}

// Begin inserts the placeholder row inside a fresh transaction. On conflict
// the insert blocks on the unique index until the current holder commits or
// rolls back; afterwards a locking read re-checks the row. A vanished row
// means the holder rolled back, in which case admission is retried once.
// The blocking wait keeps at most one attempt mid-processing per fingerprint.
func (r *PgIdempotencyRepository) Begin(ctx context.Context, fp domain.Fingerprint) (*repository.Admission, *domain.CapturedResponse, error) {
	const insertPlaceholder = `
		INSERT INTO idempotency (user_id, idempotency_key, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, idempotency_key) DO NOTHING
	`
	const selectSaved = `
		SELECT response_status_code, response_headers, response_body
		FROM idempotency
		WHERE user_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`

	for attempt := 0; attempt < 2; attempt++ {
		tx, err := r.db.Begin(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("begin admission transaction: %w", err)
		}

		tag, err := tx.Exec(ctx, insertPlaceholder, fp.UserID, fp.Key.String(), time.Now().UTC())
		if err != nil {
			_ = tx.Rollback(ctx)
			return nil, nil, fmt.Errorf("insert idempotency placeholder: %w", err)
		}
		if tag.RowsAffected() == 1 {
			return &repository.Admission{Fingerprint: fp, Tx: tx}, nil, nil
		}

		var statusCode *int32
		var headersJSON []byte
		var body []byte
		err = tx.QueryRow(ctx, selectSaved, fp.UserID, fp.Key.String()).Scan(&statusCode, &headersJSON, &body)
		_ = tx.Rollback(ctx)
		if errors.Is(err, pgx.ErrNoRows) {
			// The holder rolled back between our insert and the read; no
			// record survives a rollback, so the fingerprint is free again.
			r.logger.DebugContext(ctx, "idempotency placeholder vanished, retrying admission",
				"user_id", fp.UserID, "idempotency_key", fp.Key.String())
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read saved idempotency response: %w", err)
		}
		if statusCode == nil {
			// A committed row always carries a response: the placeholder and
			// its completion share one transaction.
			return nil, nil, fmt.Errorf("idempotency row for user %s has no captured response", fp.UserID)
		}

		resp, err := decodeCapturedResponse(int(*statusCode), headersJSON, body)
		if err != nil {
			return nil, nil, err
		}
		return nil, resp, nil
	}

	return nil, nil, errors.New("admission retry exhausted for fingerprint")
}

// Complete writes the captured response into the placeholder and commits the
// whole unit of work. The IS NULL guard turns a duplicate completion into
// domain.ErrAlreadyCompleted instead of silently overwriting the artifact.
func (r *PgIdempotencyRepository) Complete(ctx context.Context, adm *repository.Admission, resp *domain.CapturedResponse) error {
	const saveResponse = `
		UPDATE idempotency
		SET response_status_code = $3, response_headers = $4, response_body = $5
		WHERE user_id = $1 AND idempotency_key = $2 AND response_status_code IS NULL
	`

	headersJSON, err := json.Marshal(resp.Headers)
	if err != nil {
		_ = adm.Tx.Rollback(ctx)
		return fmt.Errorf("encode response headers: %w", err)
	}

	tag, err := adm.Tx.Exec(ctx, saveResponse,
		adm.Fingerprint.UserID, adm.Fingerprint.Key.String(),
		int32(resp.StatusCode), headersJSON, resp.Body,
	)
	if err != nil {
		_ = adm.Tx.Rollback(ctx)
		return fmt.Errorf("save idempotency response: %w", err)
	}
	if tag.RowsAffected() == 0 {
		_ = adm.Tx.Rollback(ctx)
		return domain.ErrAlreadyCompleted
	}

	if err := adm.Tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit admission transaction: %w", err)
	}
	return nil
}

// Abort rolls the admission transaction back. The placeholder vanishes with
// it, so a retry with the same key starts clean.
func (r *PgIdempotencyRepository) Abort(ctx context.Context, adm *repository.Admission) error {
	if err := adm.Tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("abort admission transaction: %w", err)
	}
	return nil
}

func decodeCapturedResponse(statusCode int, headersJSON, body []byte) (*domain.CapturedResponse, error) {
	var headers []domain.HeaderPair
	if len(headersJSON) > 0 {
		if err := json.Unmarshal(headersJSON, &headers); err != nil {
			return nil, fmt.Errorf("decode response headers: %w", err)
		}
	}
	return &domain.CapturedResponse{
		StatusCode: statusCode,
		Headers:    headers,
		Body:       body,
	}, nil
}
