package blockchain

import (
	"errors"
	"fmt"
)

// ErrorType classifies failures reported by the chain.
type ErrorType string

const (
	ErrorTypeEmptyChain        ErrorType = "EMPTY_CHAIN"
	ErrorTypeHashing           ErrorType = "HASHING_FAILED"
	ErrorTypeMiningCancelled   ErrorType = "MINING_CANCELLED"
	ErrorTypeInvalidDifficulty ErrorType = "INVALID_DIFFICULTY"
	ErrorTypeIndexOutOfRange   ErrorType = "INDEX_OUT_OF_RANGE"
	ErrorTypeStore             ErrorType = "STORE_FAILED"
)

// ChainError is the error returned by block and chain operations.
type ChainError struct {
	Type    ErrorType `json:"errorType"`         // Kind of failure
	Message string    `json:"message"`           // Human readable description
	Index   int       `json:"index"`             // Block index involved, -1 when none
	Details string    `json:"details,omitempty"` // Underlying error text
	err     error
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("[%s] (Block: %d) %s", e.Type, e.Index, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error, for errors.Is/As.
func (e *ChainError) Unwrap() error {
	return e.err
}

// NewError creates a ChainError not tied to a block.
func NewError(errorType ErrorType, message string) *ChainError {
	return &ChainError{Type: errorType, Message: message, Index: -1}
}

func NewErrorf(errorType ErrorType, format string, args ...interface{}) *ChainError {
	return &ChainError{Type: errorType, Message: fmt.Sprintf(format, args...), Index: -1}
}

func (e *ChainError) WithIndex(index int) *ChainError {
	e.Index = index
	return e
}

func (e *ChainError) WithDetails(details string) *ChainError {
	e.Details = details
	return e
}

func (e *ChainError) Wrap(err error) *ChainError {
	e.err = err
	if e.Details == "" && err != nil {
		e.Details = err.Error()
	}
	return e
}

// IsErrorType reports whether err is, or wraps, a ChainError of type t.
func IsErrorType(err error, t ErrorType) bool {
	var ce *ChainError
	if errors.As(err, &ce) {
		return ce.Type == t
	}
	return false
}
