package resilience

import (
	"errors"
	"net"
	"slices"
	"strings"
	"syscall"
)

// TransientError marks err as worth retrying. StatusCode is the upstream
// HTTP or SMTP status when known.
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

// PermanentError overrides every other transient signal.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so IsTransient reports false for it. Permanent(nil)
// is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

var (
	transientErrnos = []syscall.Errno{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED}

	transientText = []string{
		"broken pipe",
		"connection reset by peer",
		"i/o timeout",
		"server closed idle connection",
		"temporary failure in name resolution",
		"tls handshake timeout",
		"unexpected eof",
	}
)

// IsTransient reports whether err is worth another attempt.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var (
		perm *PermanentError
		tr   *TransientError
		ne   net.Error
	)
	switch {
	case errors.As(err, &perm):
		return false
	case errors.As(err, &tr):
		return true
	case errors.As(err, &ne) && ne.Timeout():
		return true
	}
	if slices.ContainsFunc(transientErrnos, func(e syscall.Errno) bool { return errors.Is(err, e) }) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return slices.ContainsFunc(transientText, func(s string) bool { return strings.Contains(msg, s) })
}

// IsTransientHTTPStatus reports whether an HTTP status is a retryable
// server-side condition. 529 is Anthropic's overloaded status.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504, 529:
		return true
	}
	return false
}

// ClassifyError labels err "transient" or "permanent" for logs.
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}
