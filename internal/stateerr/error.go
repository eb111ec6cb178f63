// Package stateerr defines the consensus error taxonomy shared by the
// fill, validate, and connect passes. Every failure that aborts a
// transaction or a block surfaces as one of these kinds; none are
// recovered locally.
package stateerr

import "fmt"

// Kind identifies the condition that made a transaction or block invalid.
type Kind int

const (
	// NoUtxo means a referenced outpoint is absent from the required table.
	NoUtxo Kind = iota
	// InvalidOutPoint means an outpoint resolved to a content variant
	// inconsistent with its referenced role.
	InvalidOutPoint
	// U64Overflow means a decimal cost did not fit a u64 on conversion.
	U64Overflow
	// NotEnoughValueIn means LMSR value conservation was violated.
	NotEnoughValueIn
	// NotEnoughFeeValue means coinbase value exceeded the block's fees.
	NotEnoughFeeValue
	// UtxoDoubleSpent means two inputs in a block reference the same
	// outpoint.
	UtxoDoubleSpent
	// DecisionSpentEarly means a Decision was spent before its
	// resolvable height.
	DecisionSpentEarly
	// DecisionSpentWithoutResolution means a spent Decision had no
	// matching Resolution output in the same transaction.
	DecisionSpentWithoutResolution
	// MarketUsingResolvableDecision means a market creation or
	// consumption touched a decision already past its resolvable height.
	MarketUsingResolvableDecision
	// Authorization means the external signature oracle rejected the
	// transaction.
	Authorization
	// Store means the underlying key/value engine failed.
	Store
)

func (k Kind) String() string {
	switch k {
	case NoUtxo:
		return "NoUtxo"
	case InvalidOutPoint:
		return "InvalidOutPoint"
	case U64Overflow:
		return "U64Overflow"
	case NotEnoughValueIn:
		return "NotEnoughValueIn"
	case NotEnoughFeeValue:
		return "NotEnoughFeeValue"
	case UtxoDoubleSpent:
		return "UtxoDoubleSpent"
	case DecisionSpentEarly:
		return "DecisionSpentEarly"
	case DecisionSpentWithoutResolution:
		return "DecisionSpentWithoutResolution"
	case MarketUsingResolvableDecision:
		return "MarketUsingResolvableDecision"
	case Authorization:
		return "Authorization"
	case Store:
		return "Store"
	default:
		return "Unknown"
	}
}

// Error is the single error type returned across fill/validate/connect.
// OutPoint carries the offending reference when one is relevant; it is
// the zero value otherwise. Unwrap exposes the underlying cause (a store
// or codec error) so callers can still use errors.Is/As on it.
type Error struct {
	kind     Kind
	outPoint fmt.Stringer
	msg      string
	cause    error
}

// New constructs an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// WithOutPoint attaches the outpoint a NoUtxo/InvalidOutPoint/
// UtxoDoubleSpent error refers to.
func (e *Error) WithOutPoint(op fmt.Stringer) *Error {
	e.outPoint = op
	return e
}

// Wrap constructs an Error of the given kind that wraps a lower-level
// cause (typically a store.ReadTx/WriteTx failure).
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...), cause: cause}
}

func (e *Error) Error() string {
	if e.outPoint != nil {
		if e.cause != nil {
			return fmt.Sprintf("%s: %s (outpoint=%s): %v", e.kind, e.msg, e.outPoint, e.cause)
		}
		return fmt.Sprintf("%s: %s (outpoint=%s)", e.kind, e.msg, e.outPoint)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *Error) Unwrap() error { return e.cause }

// Kind returns the error's taxonomy kind.
func (e *Error) Kind() Kind { return e.kind }

// Is reports whether err is an *Error of the given kind. It inspects err
// itself only: an *Error wrapped inside another error does not match.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.kind == kind
}
