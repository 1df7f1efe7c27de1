package errors

import (
	"fmt"
)

// ErrorCode represents different categories of errors
type ErrorCode string

const (
	// ErrCodeNetwork indicates connection level failures (refused, reset, DNS)
	ErrCodeNetwork ErrorCode = "NETWORK"

	// ErrCodeRPC indicates a backend answered with a server side failure (5xx, internal error)
	ErrCodeRPC ErrorCode = "RPC"

	// ErrCodeTimeout indicates the backend did not answer in time
	ErrCodeTimeout ErrorCode = "TIMEOUT"

	// ErrCodeTransport indicates a persistent connection failed to connect, send or receive
	ErrCodeTransport ErrorCode = "TRANSPORT"

	// ErrCodeRateLimit indicates the backend throttled the request
	ErrCodeRateLimit ErrorCode = "RATE_LIMIT"

	// ErrCodeNotFound indicates the requested entity does not exist (account, tx, block)
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeRejected indicates the backend understood and refused the request
	ErrCodeRejected ErrorCode = "REJECTED"

	// ErrCodeValidation indicates input validation errors
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeContract indicates API misuse by the caller
	ErrCodeContract ErrorCode = "CONTRACT"

	// ErrCodeConfig indicates configuration errors
	ErrCodeConfig ErrorCode = "CONFIG"

	// ErrCodeDatabase indicates database operation errors
	ErrCodeDatabase ErrorCode = "DATABASE"

	// ErrCodeInternal indicates internal system errors
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Class groups error codes by how a caller should react to them.
type Class string

const (
	// ClassInfrastructure errors are worth retrying against another backend.
	ClassInfrastructure Class = "infrastructure"
	// ClassApplication errors are a definitive answer and must reach the caller as-is.
	ClassApplication Class = "application"
	// ClassProgramming errors indicate misuse or misconfiguration.
	ClassProgramming Class = "programming"
)

// ChainError represents an error raised while talking to a network backend
type ChainError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Network string                 `json:"network,omitempty"`
	Host    string                 `json:"host,omitempty"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// NewChainError creates a new ChainError
func NewChainError(code ErrorCode, network, message string, cause error) *ChainError {
	return &ChainError{
		Code:    code,
		Message: message,
		Network: network,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// Error implements the error interface
func (e *ChainError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	switch {
	case e.Network != "" && e.Host != "":
		return fmt.Sprintf("[%s:%s] %s (%s)", e.Network, e.Code, msg, e.Host)
	case e.Network != "":
		return fmt.Sprintf("[%s:%s] %s", e.Network, e.Code, msg)
	default:
		return fmt.Sprintf("[%s] %s", e.Code, msg)
	}
}

// Unwrap returns the underlying cause
func (e *ChainError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *ChainError) WithContext(key string, value interface{}) *ChainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithHost records which backend produced the error
func (e *ChainError) WithHost(host string) *ChainError {
	e.Host = host
	return e
}

// Class returns the taxonomy class of the error code
func (e *ChainError) Class() Class {
	return ClassOf(e.Code)
}

// IsRetryable returns true if another backend may succeed where this one failed
func (e *ChainError) IsRetryable() bool {
	return ClassOf(e.Code) == ClassInfrastructure
}

// ClassOf maps an error code to its taxonomy class.
func ClassOf(code ErrorCode) Class {
	switch code {
	case ErrCodeNetwork, ErrCodeRPC, ErrCodeTimeout, ErrCodeTransport, ErrCodeRateLimit:
		return ClassInfrastructure
	case ErrCodeNotFound, ErrCodeRejected, ErrCodeValidation:
		return ClassApplication
	default:
		return ClassProgramming
	}
}

// Common error constructors

// NewValidationError creates a validation error
func NewValidationError(network, message string) *ChainError {
	return NewChainError(ErrCodeValidation, network, message, nil)
}

// NewNetworkError creates a network error
func NewNetworkError(network, message string, cause error) *ChainError {
	return NewChainError(ErrCodeNetwork, network, message, cause)
}

// NewRPCError creates an RPC error
func NewRPCError(network, message string, cause error) *ChainError {
	return NewChainError(ErrCodeRPC, network, message, cause)
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(network, message string, cause error) *ChainError {
	return NewChainError(ErrCodeTimeout, network, message, cause)
}

// NewTransportError creates a persistent connection error
func NewTransportError(network, message string, cause error) *ChainError {
	return NewChainError(ErrCodeTransport, network, message, cause)
}

// NewRateLimitError creates a throttling error
func NewRateLimitError(network, message string, cause error) *ChainError {
	return NewChainError(ErrCodeRateLimit, network, message, cause)
}

// NewNotFoundError creates a not-found error
func NewNotFoundError(network, message string, cause error) *ChainError {
	return NewChainError(ErrCodeNotFound, network, message, cause)
}

// NewRejectedError creates an error for requests the backend refused
func NewRejectedError(network, message string, cause error) *ChainError {
	return NewChainError(ErrCodeRejected, network, message, cause)
}

// NewContractError creates an API misuse error
func NewContractError(network, message string, cause error) *ChainError {
	return NewChainError(ErrCodeContract, network, message, cause)
}

// NewConfigError creates a configuration error
func NewConfigError(network, message string) *ChainError {
	return NewChainError(ErrCodeConfig, network, message, nil)
}
