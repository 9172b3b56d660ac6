package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxIdempotencyKeyLength bounds caller-supplied keys so they stay safe to
// index and to echo back in headers.
const MaxIdempotencyKeyLength = 256

// IdempotencyKey is a validated, caller-supplied opaque token. Construct it
// with NewIdempotencyKey; the zero value is not valid.
type IdempotencyKey struct {
	value string
}

// NewIdempotencyKey validates a raw key: it must be non-empty, at most
// MaxIdempotencyKeyLength characters, and free of control characters that
// would break storage or header encoding.
func NewIdempotencyKey(raw string) (IdempotencyKey, error) {
	if raw == "" {
		return IdempotencyKey{}, fmt.Errorf("%w: key must not be empty", ErrInvalidIdempotencyKey)
	}
	if len(raw) > MaxIdempotencyKeyLength {
		return IdempotencyKey{}, fmt.Errorf("%w: key exceeds %d characters", ErrInvalidIdempotencyKey, MaxIdempotencyKeyLength)
	}
	for _, r := range raw {
		if r < 0x20 || r == 0x7f {
			return IdempotencyKey{}, fmt.Errorf("%w: key contains control characters", ErrInvalidIdempotencyKey)
		}
	}
	return IdempotencyKey{value: raw}, nil
}

func (k IdempotencyKey) String() string { return k.value }

// Fingerprint identifies one logical publish action for deduplication:
// the authenticated caller plus their idempotency key.
type Fingerprint struct {
	UserID uuid.UUID
	Key    IdempotencyKey
}

// HeaderPair is one (name, value) response header. Pairs are kept as an
// ordered slice, not a map: order matters for faithful replay and duplicate
// names are allowed.
type HeaderPair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CapturedResponse is the HTTP-shaped artifact stored against a fingerprint.
// A replayed response must be byte-identical to what the first caller saw.
type CapturedResponse struct {
	StatusCode int
	Headers    []HeaderPair
	Body       []byte
}

// IdempotencyRecord mirrors one row of the idempotency table. A placeholder
// row has no response yet; it is completed exactly once and never deleted by
// this subsystem.
type IdempotencyRecord struct {
	UserID         uuid.UUID
	IdempotencyKey string
	Response       *CapturedResponse
	CreatedAt      time.Time
}
