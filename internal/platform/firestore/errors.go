// Package firestore holds the Firestore client used by the session slot store, along with the
// error classification that store relies on.
package firestore

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrNotFound marks a missing document.
	ErrNotFound = errors.New("firestore: document not found")
	// ErrUnavailable marks failures worth retrying later (outage, quota, internal).
	ErrUnavailable = errors.New("firestore: backend unavailable")
)

// OpError records which slot operation failed. errors.Is matches both the classification
// sentinel and the gRPC error underneath.
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() []error {
	if e.Kind == nil {
		return []error{e.Err}
	}
	return []error{e.Kind, e.Err}
}

// WrapError classifies err by gRPC code and tags it with op. Cancellation surfaces as the
// matching context error so callers can tell it apart from backend failures.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var existing *OpError
	if errors.As(err, &existing) {
		return err
	}

	var kind error
	switch status.Code(err) {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	case codes.NotFound:
		kind = ErrNotFound
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.Aborted:
		kind = ErrUnavailable
	}
	return &OpError{Op: op, Kind: kind, Err: err}
}

// IsNotFound reports whether err is a missing-document failure, wrapped or raw.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || status.Code(err) == codes.NotFound
}
