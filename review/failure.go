package review

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dshills/mozart/review/model"
)

var (
	// ErrAllBackendsFailed matches a SessionFailure of kind AllBackendsFailed.
	ErrAllBackendsFailed = errors.New("all backends failed")

	// ErrCancelled matches a SessionFailure of kind Cancelled.
	ErrCancelled = errors.New("session cancelled")

	// ErrInvalidRequest matches a SessionFailure of kind InvalidRequest.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUnknownSession is returned for handles the engine never issued or
	// has already released.
	ErrUnknownSession = errors.New("unknown session")

	// ErrInvalidConfig is returned by SessionConfig.Validate.
	ErrInvalidConfig = errors.New("invalid session config")
)

// FailureKind classifies a failed backend call.
type FailureKind int

const (
	FailureTimeout FailureKind = iota
	FailureTransport
	FailureMalformed
	FailureAuth
	FailureRateLimited
)

func (k FailureKind) String() string {
	switch k {
	case FailureTimeout:
		return "timeout"
	case FailureTransport:
		return "transport_error"
	case FailureMalformed:
		return "malformed_response"
	case FailureAuth:
		return "auth_error"
	case FailureRateLimited:
		return "rate_limited"
	default:
		return fmt.Sprintf("failure(%d)", int(k))
	}
}

// ParseFailureKind is the inverse of FailureKind.String.
func ParseFailureKind(s string) (FailureKind, error) {
	for k := FailureTimeout; k <= FailureRateLimited; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return FailureTransport, fmt.Errorf("unknown failure kind %q", s)
}

// BackendFailure describes why one backend produced no usable result. It is
// carried as data inside an Outcome; it never aborts a session on its own.
type BackendFailure struct {
	ReviewerID string
	Kind       FailureKind
	Detail     string

	// Latency is the time spent before the failure was recorded.
	Latency time.Duration
}

// NewBackendFailure returns a BackendFailure for reviewerID.
func NewBackendFailure(reviewerID string, kind FailureKind, detail string) *BackendFailure {
	return &BackendFailure{ReviewerID: reviewerID, Kind: kind, Detail: detail}
}

func (f *BackendFailure) Error() string {
	if f.Detail == "" {
		return fmt.Sprintf("%s: %s", f.ReviewerID, f.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", f.ReviewerID, f.Kind, f.Detail)
}

// Status maps the failure to a reviewer Status.
func (f *BackendFailure) Status() Status {
	if f.Kind == FailureTimeout {
		return StatusTimedOut
	}
	return StatusFailed
}

// Malformed returns a MalformedResponse failure with a formatted detail.
func Malformed(reviewerID, format string, args ...interface{}) *BackendFailure {
	return NewBackendFailure(reviewerID, FailureMalformed, fmt.Sprintf(format, args...))
}

// ClassifyError converts err into a *BackendFailure for reviewerID.
//
// An existing *BackendFailure is returned as is (with its ReviewerID filled
// in if empty). Provider HTTP statuses map as 401/403 to AuthError, 429 to
// RateLimited and 408/504 to Timeout. Context deadline errors map to Timeout.
// Everything else is a TransportError.
func ClassifyError(reviewerID string, err error) *BackendFailure {
	if err == nil {
		return nil
	}

	var bf *BackendFailure
	if errors.As(err, &bf) {
		out := *bf
		if out.ReviewerID == "" {
			out.ReviewerID = reviewerID
		}
		return &out
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewBackendFailure(reviewerID, FailureTimeout, err.Error())
	}
	if errors.Is(err, model.ErrMissingAPIKey) {
		return NewBackendFailure(reviewerID, FailureAuth, err.Error())
	}
	if errors.Is(err, model.ErrEmptyResponse) {
		return NewBackendFailure(reviewerID, FailureMalformed, err.Error())
	}

	var pe *model.ProviderError
	if errors.As(err, &pe) {
		switch pe.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return NewBackendFailure(reviewerID, FailureAuth, pe.Error())
		case http.StatusTooManyRequests:
			return NewBackendFailure(reviewerID, FailureRateLimited, pe.Error())
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return NewBackendFailure(reviewerID, FailureTimeout, pe.Error())
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "quota"):
		return NewBackendFailure(reviewerID, FailureRateLimited, err.Error())
	case strings.Contains(msg, "api key"), strings.Contains(msg, "unauthorized"):
		return NewBackendFailure(reviewerID, FailureAuth, err.Error())
	}
	return NewBackendFailure(reviewerID, FailureTransport, err.Error())
}

// SessionFailureKind classifies a session-level failure.
type SessionFailureKind int

const (
	AllBackendsFailed SessionFailureKind = iota
	Cancelled
	InvalidRequest
)

func (k SessionFailureKind) String() string {
	switch k {
	case AllBackendsFailed:
		return "all_backends_failed"
	case Cancelled:
		return "cancelled"
	case InvalidRequest:
		return "invalid_request"
	default:
		return fmt.Sprintf("session_failure(%d)", int(k))
	}
}

// SessionFailure is the only error a session surfaces to its caller.
type SessionFailure struct {
	Kind SessionFailureKind

	// Reasons holds one entry per backend for AllBackendsFailed.
	Reasons []BackendFailure

	Detail string
}

func (e *SessionFailure) Error() string {
	switch e.Kind {
	case AllBackendsFailed:
		parts := make([]string, len(e.Reasons))
		for i := range e.Reasons {
			parts[i] = e.Reasons[i].Error()
		}
		return fmt.Sprintf("%s: %s", ErrAllBackendsFailed, strings.Join(parts, "; "))
	case Cancelled:
		if e.Detail != "" {
			return fmt.Sprintf("%s: %s", ErrCancelled, e.Detail)
		}
		return ErrCancelled.Error()
	default:
		return fmt.Sprintf("%s: %s", ErrInvalidRequest, e.Detail)
	}
}

// Is matches the package sentinel for e.Kind.
func (e *SessionFailure) Is(target error) bool {
	switch e.Kind {
	case AllBackendsFailed:
		return target == ErrAllBackendsFailed
	case Cancelled:
		return target == ErrCancelled
	case InvalidRequest:
		return target == ErrInvalidRequest
	}
	return false
}

func invalidRequest(detail string) *SessionFailure {
	return &SessionFailure{Kind: InvalidRequest, Detail: detail}
}

func cancelled(detail string) *SessionFailure {
	return &SessionFailure{Kind: Cancelled, Detail: detail}
}
