package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
)

var (
	// ErrRateLimited means no token-bucket slot freed up within the bounded wait.
	ErrRateLimited = eris.New("rate limited: no slot within wait budget")

	// ErrProviderExhausted means transient retries ran out for a call.
	ErrProviderExhausted = eris.New("provider exhausted")

	// ErrCircuitOpen is returned while a provider's breaker rejects calls.
	ErrCircuitOpen = eris.New("circuit breaker is open")

	// ErrCredentialRejected matches a permanent failure with status 401 or
	// 403: the provider refused the configured key.
	ErrCredentialRejected = eris.New("credential rejected")

	// ErrLedgerUnavailable means a call was made but its cost entry could not
	// be persisted. The executor refuses further calls once it is seen.
	ErrLedgerUnavailable = eris.New("cost ledger unavailable")
)

// TransientError marks a failure that may succeed on retry (timeout, 429, 5xx).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err as retryable. statusCode may be 0.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// PermanentError marks a failure that must not be retried: bad credentials,
// malformed requests or responses, and 4xx other than 408/429.
type PermanentError struct {
	Err        error
	StatusCode int
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrCredentialRejected) match 401 and 403.
func (e *PermanentError) Is(target error) bool {
	return target == ErrCredentialRejected && isAuthStatus(e.StatusCode)
}

func isAuthStatus(code int) bool { return code == 401 || code == 403 }

// NewPermanentError wraps err as non-retryable.
func NewPermanentError(err error, statusCode int) *PermanentError {
	return &PermanentError{Err: err, StatusCode: statusCode}
}

// ExhaustedError is returned after the last transient failure of a call.
type ExhaustedError struct {
	Provider  string
	Operation string
	Attempts  int
	Err       error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s %s: provider exhausted after %d attempts: %v", e.Provider, e.Operation, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrProviderExhausted) match.
func (e *ExhaustedError) Is(target error) bool { return target == ErrProviderExhausted }

// FromStatus classifies an HTTP failure by status code.
func FromStatus(err error, statusCode int) error {
	if err == nil {
		return nil
	}
	if IsTransientHTTPStatus(statusCode) {
		return NewTransientError(err, statusCode)
	}
	return NewPermanentError(err, statusCode)
}

// StatusCoder is implemented by client errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatusCode() int
}

// Classify tags an adapter error as transient or permanent so Execute knows
// whether to retry. Already-classified errors and cancellation pass through.
// Errors without a status that are not network-transient (decode failures,
// bad input) are permanent.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var te *TransientError
	var pe *PermanentError
	if errors.As(err, &te) || errors.As(err, &pe) || errors.Is(err, context.Canceled) {
		return err
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		return FromStatus(err, sc.HTTPStatusCode())
	}
	if IsTransient(err) {
		return NewTransientError(err, 0)
	}
	return NewPermanentError(err, 0)
}

// IsTransientHTTPStatus reports whether a status code is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}

var transientPatterns = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"unexpected eof",
}

// IsTransient reports whether err should be retried. Explicit
// PermanentError wins over every heuristic below it.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pe *PermanentError
	if errors.As(err, &pe) {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// CredentialRejected reports whether err carries a 401 or 403, classified
// or not.
func CredentialRejected(err error) bool {
	if errors.Is(err, ErrCredentialRejected) {
		return true
	}
	var sc StatusCoder
	return errors.As(err, &sc) && isAuthStatus(sc.HTTPStatusCode())
}

// IsFatal reports whether err must stop the whole run instead of failing
// one lead.
func IsFatal(err error) bool {
	return CredentialRejected(err) || errors.Is(err, ErrLedgerUnavailable)
}

// Reason maps an error to the short code recorded in failure ledgers.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case CredentialRejected(err):
		return "credential_rejected"
	case errors.Is(err, ErrLedgerUnavailable):
		return "ledger_unavailable"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrProviderExhausted):
		return "provider_exhausted"
	case IsTransient(err):
		return "transient"
	default:
		return "permanent"
	}
}
