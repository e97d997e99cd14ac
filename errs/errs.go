// The MIT License (MIT)
//
// Copyright (c) 2013-2017 Oryx(ossrs)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

// The libre errs package gives every protocol engine in this module a
// common error taxonomy, so callers can dispatch on Kind instead of
// matching error strings.
package errs

import "fmt"

// Kind is the taxonomy of error conditions shared by every engine.
type Kind int

const (
	// InvalidArgument is a null pointer or out-of-range enum at the API surface.
	InvalidArgument Kind = iota
	// OutOfMemory is an allocation failure.
	OutOfMemory
	// BadMessage is a wire format defect: short header, reserved version, unknown mandatory attribute.
	BadMessage
	// NeedsMoreData means the message is incomplete; caller retains bytes and retries.
	NeedsMoreData
	// Overflow means a reassembly cap was exceeded.
	Overflow
	// NotSupported means an unimplemented method or mode was requested.
	NotSupported
	// NotConnected means the operation was attempted on a closed connection.
	NotConnected
	// Timeout means a transaction deadline elapsed.
	Timeout
	// ConnectionReset means the peer closed or the transport aborted.
	ConnectionReset
	// AuthFailed means an integrity/HMAC/GCM tag or digest mismatch.
	AuthFailed
	// Protocol means a semantically invalid message, e.g. STUN 487 or SIP 403.
	Protocol
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid-argument"
	case OutOfMemory:
		return "out-of-memory"
	case BadMessage:
		return "bad-message"
	case NeedsMoreData:
		return "needs-more-data"
	case Overflow:
		return "overflow"
	case NotSupported:
		return "not-supported"
	case NotConnected:
		return "not-connected"
	case Timeout:
		return "timeout"
	case ConnectionReset:
		return "connection-reset"
	case AuthFailed:
		return "auth-failed"
	case Protocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// Error wraps a Kind with a message and an optional cause, so the chain
// reads like a familiar "fmt.Errorf(...: %v, err)" chain while still
// letting callers recover the Kind.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%v: %v: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is(err, errs.ErrTimeout) work by comparing kinds
// whenever the target is itself an *Error, such as the Err* sentinels
// below; the target's message and cause are not compared.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds a new *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a Kind and message to an existing error, preserving it as Cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Sentinel kind markers for errors.Is comparisons, e.g. errors.Is(err, errs.ErrTimeout).
var (
	ErrInvalidArgument = &Error{Kind: InvalidArgument, Message: "sentinel"}
	ErrBadMessage      = &Error{Kind: BadMessage, Message: "sentinel"}
	ErrNeedsMoreData   = &Error{Kind: NeedsMoreData, Message: "sentinel"}
	ErrOverflow        = &Error{Kind: Overflow, Message: "sentinel"}
	ErrNotSupported    = &Error{Kind: NotSupported, Message: "sentinel"}
	ErrNotConnected    = &Error{Kind: NotConnected, Message: "sentinel"}
	ErrTimeout         = &Error{Kind: Timeout, Message: "sentinel"}
	ErrConnectionReset = &Error{Kind: ConnectionReset, Message: "sentinel"}
	ErrAuthFailed      = &Error{Kind: AuthFailed, Message: "sentinel"}
	ErrProtocol        = &Error{Kind: Protocol, Message: "sentinel"}
)

// Of returns the *Error kind of err if it is (or wraps) one, and ok=true.
func Of(err error) (k Kind, ok bool) {
	var e *Error
	for err != nil {
		if v, match := err.(*Error); match {
			e = v
			break
		}
		u, match := err.(interface{ Unwrap() error })
		if !match {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return 0, false
	}
	return e.Kind, true
}
