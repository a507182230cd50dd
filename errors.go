// SPDX-License-Identifier: Apache 2.0

package sdls

import (
	"errors"
	"fmt"
)

// Code is the stable integer error taxonomy surfaced by every public
// operation (spec section 6, "Error codes").
type Code int

const (
	CodeOK Code = iota
	CodeConfigurationNotComplete
	CodeManagedParamNotComplete
	CodeSadbBackendUnavailable
	CodeSadbInvalidType
	CodeSANotFound
	CodeSANotOperational
	CodeKeyStateInvalid
	CodeIVRollover
	CodeAntiReplayReject
	CodeBadMAC
	CodeBadFECF
	CodeSPIInvalid
	CodeSDLSPDUMalformed
	CodeCryptoBackendError
	CodeNullBuffer
	CodeInvalidTransition
	CodeDuplicate
	CodeThrottled
	CodeManagedParamNotFound
)

var codeNames = map[Code]string{
	CodeOK:                       "ok",
	CodeConfigurationNotComplete: "configuration-not-complete",
	CodeManagedParamNotComplete:  "managed-param-not-complete",
	CodeSadbBackendUnavailable:   "sadb-backend-unavailable",
	CodeSadbInvalidType:          "sadb-invalid-type",
	CodeSANotFound:               "sa-not-found",
	CodeSANotOperational:         "sa-not-operational",
	CodeKeyStateInvalid:          "key-state-invalid",
	CodeIVRollover:               "iv-rollover",
	CodeAntiReplayReject:         "anti-replay-reject",
	CodeBadMAC:                   "bad-mac",
	CodeBadFECF:                  "bad-fecf",
	CodeSPIInvalid:               "spi-invalid",
	CodeSDLSPDUMalformed:         "sdls-pdu-malformed",
	CodeCryptoBackendError:       "crypto-backend-error",
	CodeNullBuffer:               "null-buffer",
	CodeInvalidTransition:        "invalid-transition",
	CodeDuplicate:                "duplicate",
	CodeThrottled:                "throttled",
	CodeManagedParamNotFound:     "managed-param-not-found",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Error wraps a stable Code with a human-readable message and,
// optionally, an underlying cause (e.g. a backend I/O error).
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError constructs an *Error with the given code and message.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs an *Error with the given code, message, and an
// underlying cause to preserve via errors.Unwrap.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the Code from err if it is (or wraps) an *Error,
// otherwise returns CodeCryptoBackendError as the catch-all for
// unclassified failures.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeCryptoBackendError
}
