// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"
	"errors"
	"fmt"
)

// Error is a structured directory failure. Callers use errors.As or
// IsCode to branch on the code:
//
//	if directory.IsCode(err, directory.CodeFull) { ... }
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("directory: %s: %s", e.Code, e.Message)
}

// ErrorCode exposes the code to the socket server so it survives the
// trip to a remote client.
func (e *Error) ErrorCode() string { return e.Code }

// Directory error codes.
const (
	// CodeNotFound: the record does not exist, expired, or the
	// participant is not in it.
	CodeNotFound = "not_found"

	// CodeFull: the record is at capacity.
	CodeFull = "full"

	// CodeConflict: the operation would break a record invariant
	// (state regression, join token rewrite, joining a started match).
	CodeConflict = "conflict"

	// CodeInvalid: the request itself is malformed.
	CodeInvalid = "invalid"

	// CodeUnavailable: the directory could not serve the request. Safe
	// to retry.
	CodeUnavailable = "unavailable"
)

// IsCode checks whether err is an *Error with the given code.
func IsCode(err error, code string) bool {
	var directoryErr *Error
	if errors.As(err, &directoryErr) {
		return directoryErr.Code == code
	}
	return false
}

// IsTransient reports whether err is worth retrying: an unavailable
// directory, or a failure that never reached the directory (socket
// errors, timeouts). Context cancellation is not transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var directoryErr *Error
	if errors.As(err, &directoryErr) {
		return directoryErr.Code == CodeUnavailable
	}
	return true
}

func notFound(format string, args ...any) error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func conflict(format string, args ...any) error {
	return &Error{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

func invalid(format string, args ...any) error {
	return &Error{Code: CodeInvalid, Message: fmt.Sprintf(format, args...)}
}

func unavailable(op Op, err error) error {
	return &Error{Code: CodeUnavailable, Message: fmt.Sprintf("%s: %v", op, err)}
}
