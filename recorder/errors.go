package recorder

import (
	"errors"
	"fmt"
)

// ProtocolError represents a playback protocol violation: the replayed code
// path diverged from the recorded one. These are never silently recovered by
// the framework, because doing so would mask a correctness bug in the code
// under test.
type ProtocolError struct {
	// Code identifies the error category.
	Code ProtocolErrorCode

	// Message is a human-readable description.
	Message string

	// Requested is the attribute or call being replayed (when applicable).
	Requested string

	// Recorded is the name of the next recorded entry (when applicable).
	Recorded string
}

// ProtocolErrorCode categorizes playback protocol violations.
type ProtocolErrorCode string

const (
	// ErrCodeNonMatchingRequest indicates the requested attribute does not
	// match the next recorded entry.
	ErrCodeNonMatchingRequest ProtocolErrorCode = "NON_MATCHING_REQUEST"

	// ErrCodeNonMatchingCallArgs indicates call arguments differ from the
	// recorded ones.
	ErrCodeNonMatchingCallArgs ProtocolErrorCode = "NON_MATCHING_CALL_ARGS"

	// ErrCodeNoCallRecordsLeft indicates the playback log is exhausted.
	ErrCodeNoCallRecordsLeft ProtocolErrorCode = "NO_CALL_RECORDS_LEFT"

	// ErrCodeNoCallEntryForArgs indicates no unordered entry exists for the
	// computed argument fingerprint.
	ErrCodeNoCallEntryForArgs ProtocolErrorCode = "NO_CALL_ENTRY_FOR_ARGS"

	// ErrCodeUnsupportedCapability indicates a special operation was used on
	// a proxy whose wrapped value does not support it.
	ErrCodeUnsupportedCapability ProtocolErrorCode = "UNSUPPORTED_CAPABILITY"
)

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Requested != "" && e.Recorded != "" {
		return fmt.Sprintf("%s: %s (requested=%s, recorded=%s)", e.Code, e.Message, e.Requested, e.Recorded)
	}
	if e.Requested != "" {
		return fmt.Sprintf("%s: %s (requested=%s)", e.Code, e.Message, e.Requested)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewNonMatchingRequest creates a ProtocolError for an out-of-order request.
func NewNonMatchingRequest(requested, recorded string) *ProtocolError {
	return &ProtocolError{
		Code:      ErrCodeNonMatchingRequest,
		Message:   "request does not match the next recorded entry",
		Requested: requested,
		Recorded:  recorded,
	}
}

// NewNonMatchingCallArgs creates a ProtocolError for mismatched call
// arguments.
func NewNonMatchingCallArgs(name string) *ProtocolError {
	return &ProtocolError{
		Code:      ErrCodeNonMatchingCallArgs,
		Message:   "call arguments do not match the recorded call",
		Requested: name,
	}
}

// NewNoCallRecordsLeft creates a ProtocolError for an exhausted log.
func NewNoCallRecordsLeft(requested string) *ProtocolError {
	return &ProtocolError{
		Code:      ErrCodeNoCallRecordsLeft,
		Message:   "no recording entries left",
		Requested: requested,
	}
}

// NewNoCallEntryForArgs creates a ProtocolError for an unknown unordered
// argument fingerprint.
func NewNoCallEntryForArgs(desc string) *ProtocolError {
	return &ProtocolError{
		Code:    ErrCodeNoCallEntryForArgs,
		Message: "no call entry recorded for arguments " + desc,
	}
}

// NewUnsupportedCapability creates a ProtocolError for a special operation
// the wrapped value does not support.
func NewUnsupportedCapability(op string) *ProtocolError {
	return &ProtocolError{
		Code:      ErrCodeUnsupportedCapability,
		Message:   "wrapped value does not support this operation",
		Requested: op,
	}
}

func isCode(err error, code ProtocolErrorCode) bool {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}

// IsNonMatchingRequest returns true for out-of-order request errors.
// Uses errors.As to handle wrapped errors.
func IsNonMatchingRequest(err error) bool {
	return isCode(err, ErrCodeNonMatchingRequest)
}

// IsNonMatchingCallArgs returns true for mismatched call argument errors.
func IsNonMatchingCallArgs(err error) bool {
	return isCode(err, ErrCodeNonMatchingCallArgs)
}

// IsNoCallRecordsLeft returns true for exhausted-log errors.
func IsNoCallRecordsLeft(err error) bool {
	return isCode(err, ErrCodeNoCallRecordsLeft)
}

// IsNoCallEntryForArgs returns true for unknown-fingerprint errors from
// unordered playback.
func IsNoCallEntryForArgs(err error) bool {
	return isCode(err, ErrCodeNoCallEntryForArgs)
}

// IsUnsupportedCapability returns true for unsupported special-operation
// errors.
func IsUnsupportedCapability(err error) bool {
	return isCode(err, ErrCodeUnsupportedCapability)
}
