package emailclient

import (
	"context"
	"errors"
	"fmt"
)

// SendEmailRequest carries everything the transport needs for one delivery.
type SendEmailRequest struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// EmailSender is the outbound transport: a remote HTTP API that can be slow
// or transiently fail. At-least-once retriable; the worker owns the retry
// policy, not the client.
type EmailSender interface {
	Send(ctx context.Context, req SendEmailRequest) error
}

// ErrorKind is a closed variant over transport failure modes so the worker's
// retry decision is exhaustive and testable, never string matching.
type ErrorKind int

const (
	// ErrorKindTransient covers timeouts, connection errors and 5xx-equivalent
	// responses. Expected; drives retry with backoff.
	ErrorKindTransient ErrorKind = iota
	// ErrorKindPermanent covers rejections that retrying cannot fix (4xx).
	// Drives the terminal failed state.
	ErrorKindPermanent
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindTransient:
		return "transient"
	case ErrorKindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// TransportError tags a delivery failure with its retry semantics.
// StatusCode is zero for network-level failures.
type TransportError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("email transport %s failure (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("email transport %s failure: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsPermanent reports whether err is a transport failure that must not be
// retried. Anything else, including errors that are not TransportError at
// all, is treated as transient and left to the retry budget.
func IsPermanent(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Kind == ErrorKindPermanent
}
