// Package engineerr defines the error kinds from spec.md section 7 as
// typed errors, the way consensus/errors.go tags transaction/block
// validation failures with an ErrorCode instead of ad hoc fmt.Errorf
// strings.
package engineerr

import "fmt"

type Kind string

const (
	// KindInvalidAddress surfaces a malformed address; the engine treats
	// it as a data bug and aborts.
	KindInvalidAddress Kind = "INVALID_ADDRESS"
	// KindMissingExchangeRate is non-fatal by default (warning + zero
	// vector); fatal only in strict mode.
	KindMissingExchangeRate Kind = "MISSING_EXCHANGE_RATE"
	// KindDecodeError is suppressed to a nil result by TokenDecoder and
	// DeFiExtractor; never propagated as a hard failure.
	KindDecodeError Kind = "DECODE_ERROR"
	// KindAssertionFailure covers Transformer invariant violations
	// (ordering keys, degree parity, single-partition writes). Fatal;
	// no writes happen for the batch.
	KindAssertionFailure Kind = "ASSERTION_FAILURE"
	// KindSinkError wraps a failure from the Sink; propagated up.
	KindSinkError Kind = "SINK_ERROR"
	// KindPatchMode is a warning raised when the requested end block is
	// <= the stored last_synced_block.
	KindPatchMode Kind = "PATCH_MODE"
)

// Error is the engine's typed error. Msg carries the human detail; Err, if
// set, is the wrapped cause (propagated via Unwrap so callers can still
// errors.Is/As through to a SinkError's underlying driver error).
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func InvalidAddress(msg string) error {
	return New(KindInvalidAddress, msg)
}

func SinkError(msg string, err error) error {
	return Wrap(KindSinkError, msg, err)
}

func AssertionFailure(msg string) error {
	return New(KindAssertionFailure, msg)
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.Kind == kind
}
