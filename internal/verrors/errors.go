// Package verrors defines the tagged-variant error taxonomy shared by every
// subsystem in the decode runtime, per the error handling design: callers
// distinguish failure modes with errors.Is/errors.As rather than string
// matching.
package verrors

import "fmt"

// Kind identifies which taxonomy bucket an Error falls into. Each bucket
// carries its own fatality/propagation rule, documented on the constants
// below.
type Kind int

const (
	// KindUnknown is the zero value and never constructed deliberately.
	KindUnknown Kind = iota

	// Configuration errors: fatal to the affected handle.
	KindDeviceInvalid
	KindNotSupported
	KindNotInitialized

	// Caller errors.
	KindInvalidParameter
	KindOutOfRange

	// Fatal: any in-flight pictures are released.
	KindOutOfMemory

	// Per-picture: the picture is dropped, the parser continues.
	KindBitstreamTruncated
	KindInvalidFormat
	KindMissingParameterSet

	// Per-submission: the slot is freed; referencing pictures are flagged
	// ErrorConcealed.
	KindDecodeSubmitFailed
	KindRuntimeError

	// Non-fatal in non-blocking mode; caller must drain.
	KindPoolExhausted

	// Normal end-of-stream terminator.
	KindEOF
)

var kindNames = map[Kind]string{
	KindUnknown:             "Unknown",
	KindDeviceInvalid:       "DeviceInvalid",
	KindNotSupported:        "NotSupported",
	KindNotInitialized:      "NotInitialized",
	KindInvalidParameter:    "InvalidParameter",
	KindOutOfRange:          "OutOfRange",
	KindOutOfMemory:         "OutOfMemory",
	KindBitstreamTruncated:  "BitstreamTruncated",
	KindInvalidFormat:       "InvalidFormat",
	KindMissingParameterSet: "MissingParameterSet",
	KindDecodeSubmitFailed:  "DecodeSubmitFailed",
	KindRuntimeError:        "RuntimeError",
	KindPoolExhausted:       "PoolExhausted",
	KindEOF:                 "Eof",
}

// String implements the §6.1 kind_to_name(kind) helper.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Error is the tagged-variant error every package boundary in this module
// returns. Op names the operation that failed (e.g. "feed", "map_frame"),
// and Err, when non-nil, is the wrapped underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vdpu: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("vdpu: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, verrors.KindX) to work by comparing Kind values
// wrapped as sentinel-style targets produced by New with a nil cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an *Error for the given kind and operation, optionally
// wrapping an underlying cause.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Sentinel returns a comparable *Error with no wrapped cause, suitable for
// use as an errors.Is target, e.g. verrors.Sentinel(verrors.KindEOF).
func Sentinel(kind Kind) *Error { return &Error{Kind: kind} }
