// Package sdrerr classifies every failure surfaced by the device and DSP layers.
package sdrerr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	Unknown Kind = iota
	DeviceNotFound
	PermissionDenied
	ClaimFailed
	IoTimeout
	IoError
	InvalidParameter
	NotInitialized
)

var kindNames = map[Kind]string{
	Unknown:          "unknown",
	DeviceNotFound:   "device not found",
	PermissionDenied: "permission denied",
	ClaimFailed:      "claim failed",
	IoTimeout:        "i/o timeout",
	IoError:          "i/o error",
	InvalidParameter: "invalid parameter",
	NotInitialized:   "not initialized",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error carries a taxonomy kind and a device/register context string.
type Error struct {
	Kind    Kind
	Context string
	Err     error
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Context != "" {
		s = e.Context + ": " + s
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a sentinel of the same kind, so errors.Is(err, ErrIoTimeout)
// holds for any IoTimeout regardless of context.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Context == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrDeviceNotFound   = &Error{Kind: DeviceNotFound}
	ErrPermissionDenied = &Error{Kind: PermissionDenied}
	ErrClaimFailed      = &Error{Kind: ClaimFailed}
	ErrIoTimeout        = &Error{Kind: IoTimeout}
	ErrIoError          = &Error{Kind: IoError}
	ErrInvalidParameter = &Error{Kind: InvalidParameter}
	ErrNotInitialized   = &Error{Kind: NotInitialized}
)

func New(k Kind, context string, err error) error {
	return &Error{Kind: k, Context: context, Err: err}
}

// Errorf builds an error of kind k with a formatted cause.
func Errorf(k Kind, context, format string, args ...any) error {
	return &Error{Kind: k, Context: context, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}
