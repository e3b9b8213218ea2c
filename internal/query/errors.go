package query

import (
	"errors"
	"fmt"
)

// ErrUninitialized is returned by any processor operation invoked before
// Initialize has completed.
var ErrUninitialized = errors.New("query processor not initialized")

// ValidationError means a spec violated a declared capability rule.
type ValidationError struct {
	Reason      string
	Suggestions []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// ParsingError means the local parser could not produce usable output.
type ParsingError struct {
	Query string
	Cause error
}

func (e *ParsingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("parse %q: %v", e.Query, e.Cause)
	}
	return fmt.Sprintf("parse %q: no recognizable intent", e.Query)
}

func (e *ParsingError) Unwrap() error { return e.Cause }

// ImpossibleQueryError means the spec matched a known unsupported pattern.
type ImpossibleQueryError struct {
	Reason       string
	Alternatives []string
}

func (e *ImpossibleQueryError) Error() string {
	return "impossible query: " + e.Reason
}

// EndpointError is a failed call to a SQL-generation endpoint.
type EndpointError struct {
	Endpoint   string
	StatusCode int
	Message    string
	Cause      error
}

// DefaultEndpointMessage is used when the server gives no error text.
const DefaultEndpointMessage = "Failed to generate SQL"

func (e *EndpointError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = DefaultEndpointMessage
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Endpoint, e.StatusCode, msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Endpoint, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Endpoint, msg)
}

func (e *EndpointError) Unwrap() error { return e.Cause }

// IsValidation reports whether err is a validation-class error.
func IsValidation(err error) bool {
	var ve *ValidationError
	var ie *ImpossibleQueryError
	return errors.As(err, &ve) || errors.As(err, &ie)
}

// IsParsing reports whether err is a parsing-class error.
func IsParsing(err error) bool {
	var pe *ParsingError
	return errors.As(err, &pe)
}
