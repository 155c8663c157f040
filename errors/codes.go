// Package errors provides the structured error type used across the script
// engine. It extends Go's standard error handling with error codes that
// classify failures by pipeline stage and cause.
package errors

// ErrorCode represents a specific error condition in the script engine.
// Error codes are string-based for debuggability and natural serialization.
type ErrorCode string

const (
	// Pipeline stage errors.

	// CodeParse indicates a script line could not be parsed.
	CodeParse ErrorCode = "PARSE_ERROR"

	// CodeValidation indicates a directive or the whole script failed validation.
	CodeValidation ErrorCode = "VALIDATION_FAILED"

	// CodeExecutionFailed indicates a side effect could not be carried out.
	CodeExecutionFailed ErrorCode = "EXECUTION_FAILED"

	// Resource errors.

	// CodeNotFound indicates a referenced device, file or account does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeAlreadyExists indicates a directive was declared more than once.
	CodeAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// CodeConflict indicates existing on-disk state does not match the script.
	CodeConflict ErrorCode = "CONFLICT"

	// Input errors.

	// CodeInvalidInput indicates a directive value is invalid or malformed.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeLimitExceeded indicates a collection grew past its fixed ceiling.
	CodeLimitExceeded ErrorCode = "LIMIT_EXCEEDED"

	// CodeUnsupported indicates a feature is not available on this platform.
	CodeUnsupported ErrorCode = "UNSUPPORTED"

	// System errors.

	// CodeNetwork indicates a download failed.
	CodeNetwork ErrorCode = "NETWORK_ERROR"

	// CodeInternal indicates an internal error occurred.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeUnknown indicates an unknown or unclassified error occurred.
	CodeUnknown ErrorCode = "UNKNOWN"
)
