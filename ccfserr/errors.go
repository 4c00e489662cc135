// Package ccfserr provides the error taxonomy shared by every layer of the
// cluster-chain filesystem engine: a syscall.Errno-backed value with an
// optional custom message, plus a small set of sentinels the cursor, sector,
// and fs packages return.
package ccfserr

import (
	"fmt"
	"syscall"
)

// Error wraps a system errno code with a customizable message.
type Error struct {
	Errno   syscall.Errno
	message string
}

// Error implements the `error` interface.
func (e *Error) Error() string {
	if e.message != "" {
		return e.message
	}
	return e.Errno.Error()
}

// Is lets errors.Is(err, ErrNotFound) match any *Error with the same errno,
// regardless of message, including ones built with WithMessage.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Errno == other.Errno
}

// New creates an *Error with a default message derived from the errno code.
func New(errno syscall.Errno) *Error {
	return &Error{Errno: errno, message: errno.Error()}
}

// WithMessage returns a copy of e carrying a more specific message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	return &Error{
		Errno:   e.Errno,
		message: fmt.Sprintf("%s: %s", e.Errno.Error(), fmt.Sprintf(format, args...)),
	}
}

// Sentinels returned by the cursor/sector/fs layers. These map 1:1 onto
// spec's "uniform device-error kind" at the low levels; fs's VFS-facing
// nodes translate them into the four-member external taxonomy.
var (
	ErrIO              = New(syscall.EIO)
	ErrInvalidArgument = New(syscall.EINVAL)
	ErrNoSpace         = New(syscall.ENOSPC)
	ErrNotFound        = New(syscall.ENOENT)
	ErrExists          = New(syscall.EEXIST)
	ErrNotEmpty        = New(syscall.ENOTEMPTY)
	ErrNotADirectory   = New(syscall.ENOTDIR)
	ErrUnsupported     = New(syscall.ENOTSUP)
)
