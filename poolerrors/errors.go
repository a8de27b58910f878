// Package poolerrors defines the error kinds returned by the pool query client.
package poolerrors

import (
	"errors"
	"strings"
)

// Input & construction errors
var (
	ErrInvalidInput         = errors.New("Q1|InvalidInput: Malformed hex scalar or argument.")
	ErrInvalidConfiguration = errors.New("Q2|InvalidConfiguration: Bad RPC endpoint or contract address.")
)

// Response errors
var (
	ErrEmptyResponse    = errors.New("Q3|EmptyResponse: Provider returned no values.")
	ErrProtocolMismatch = errors.New("Q4|ProtocolMismatch: Response does not match the call's return layout.")
)

// Remote errors
var (
	ErrRemoteCallFailure = errors.New("Q5|RemoteCallFailure: Transport or server error.")
	ErrTimeout           = errors.New("Q6|Timeout: Bounded-time probe exceeded its budget.")
)

// Pool state errors
var (
	ErrNotInitialized         = errors.New("Q7|NotInitialized: Pool storage has not been initialized on-chain.")
	ErrAllCandidatesExhausted = errors.New("Q8|AllCandidatesExhausted: Every storage address candidate returned zero.")
)

var allErrors = []error{
	ErrInvalidInput,
	ErrInvalidConfiguration,
	ErrEmptyResponse,
	ErrProtocolMismatch,
	ErrTimeout,
	ErrRemoteCallFailure,
	ErrNotInitialized,
	ErrAllCandidatesExhausted,
}

// Kind returns the sentinel wrapped by err, or nil when err carries none.
func Kind(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range allErrors {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// GetErrorName extracts the error name from the error message.
func GetErrorName(err error) string {
	if err == nil {
		return "No Error"
	}
	if kind := Kind(err); kind != nil {
		err = kind
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "|") || !strings.Contains(errStr, ":") {
		return errStr
	}
	parts := strings.SplitN(errStr, "|", 2)
	nameParts := strings.SplitN(parts[1], ":", 2)
	return strings.TrimSpace(nameParts[0])
}

// GetErrorCode extracts the error code from the error message.
func GetErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if kind := Kind(err); kind != nil {
		err = kind
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "|") {
		return ""
	}
	parts := strings.SplitN(errStr, "|", 2)
	return strings.TrimSpace(parts[0])
}

// GetErrorCodeWithName returns the error code and name in the format "Code_ErrorName".
func GetErrorCodeWithName(err error) string {
	code := GetErrorCode(err)
	name := GetErrorName(err)
	if code == "" || name == "" {
		return ""
	}
	return code + "_" + name
}
