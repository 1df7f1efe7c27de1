package errors

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
)

// WrapChainError returns err as a ChainError, creating one with code if err is not classified yet.
// An already classified error keeps its code; the network is filled in when missing.
func WrapChainError(err error, code ErrorCode, network, message string) *ChainError {
	if err == nil {
		return nil
	}

	var chainErr *ChainError
	if errors.As(err, &chainErr) {
		wrapped := *chainErr
		if network != "" && wrapped.Network == "" {
			wrapped.Network = network
		}
		wrapped.Context = make(map[string]interface{}, len(chainErr.Context)+1)
		for k, v := range chainErr.Context {
			wrapped.Context[k] = v
		}
		wrapped.Context["wrapped_message"] = message
		return &wrapped
	}

	return NewChainError(code, network, message, err)
}

// IsChainError checks if an error is a ChainError with specific code
func IsChainError(err error, code ErrorCode) bool {
	var chainErr *ChainError
	if errors.As(err, &chainErr) {
		return chainErr.Code == code
	}
	return false
}

var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"i/o timeout",
	"unexpected eof",
	"temporary failure",
	"too many requests",
	"rate limit",
	"service unavailable",
	"bad gateway",
}

// IsRetryable reports whether err is an infrastructure failure that another backend may not hit.
// Caller cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var chainErr *ChainError
	if errors.As(err, &chainErr) {
		return chainErr.IsRetryable()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	// flattened io.EOF, as in "read tcp ...: EOF"
	if errStr == "eof" || strings.HasSuffix(errStr, ": eof") {
		return true
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// ClassOfError returns the taxonomy class of any error.
// Unclassified errors are infrastructure when IsRetryable says so and application otherwise.
func ClassOfError(err error) Class {
	var chainErr *ChainError
	if errors.As(err, &chainErr) {
		return chainErr.Class()
	}
	if IsRetryable(err) {
		return ClassInfrastructure
	}
	return ClassApplication
}
