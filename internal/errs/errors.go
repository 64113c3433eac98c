// Package errs defines the error taxonomy shared by the pipeline stages.
//
// Every stage wraps its failures in an *Error carrying a Code so callers can
// branch on the kind of failure instead of matching error strings:
//
//	if errs.Is(err, errs.CodeSchema) {
//	    // a configured column is missing from the dataset
//	}
package errs

import (
	"errors"
	"fmt"
)

// Code categorizes a pipeline failure.
type Code string

const (
	// CodeIngestion indicates the source was unreachable, returned no columns,
	// or a snapshot/split file could not be written.
	CodeIngestion Code = "INGESTION_ERROR"

	// CodeSchema indicates a configured column is absent from the dataset.
	CodeSchema Code = "SCHEMA_ERROR"

	// CodeRemoteAccess indicates a missing remote object, a failed transfer,
	// or a blob that could not be decoded.
	CodeRemoteAccess Code = "REMOTE_ACCESS_ERROR"

	// CodeEvaluation indicates a malformed test set or an unscoreable champion.
	CodeEvaluation Code = "EVALUATION_ERROR"

	// CodeTraining indicates the training step failed or produced a model
	// below the expected score.
	CodeTraining Code = "TRAINING_ERROR"

	// CodeConfig indicates invalid static configuration.
	CodeConfig Code = "CONFIG_ERROR"
)

// Error is a categorized failure wrapping its originating cause.
type Error struct {
	// Code categorizes the failure
	Code Code

	// Message describes the operation that failed
	Message string

	// Err is the underlying cause
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error, allowing errors.Is and errors.As to work.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with the given code, message, and cause.
func New(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Ingestion creates an ingestion error.
func Ingestion(message string, err error) *Error {
	return New(CodeIngestion, message, err)
}

// Schema creates a schema error.
func Schema(message string, err error) *Error {
	return New(CodeSchema, message, err)
}

// RemoteAccess creates a remote access error.
func RemoteAccess(message string, err error) *Error {
	return New(CodeRemoteAccess, message, err)
}

// Evaluation creates an evaluation error.
func Evaluation(message string, err error) *Error {
	return New(CodeEvaluation, message, err)
}

// Training creates a training error.
func Training(message string, err error) *Error {
	return New(CodeTraining, message, err)
}

// Config creates a configuration error.
func Config(message string, err error) *Error {
	return New(CodeConfig, message, err)
}

// Is reports whether any error in err's chain is an *Error with the given code.
func Is(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}
	return false
}

// CodeOf returns the outermost code in err's chain, or "" when there is none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
