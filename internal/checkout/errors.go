package checkout

import "fmt"

type ErrorKind string

const (
	KindInvalidCart       ErrorKind = "invalid_cart"
	KindVoucherRejected   ErrorKind = "voucher_rejected"
	KindInsufficientCash  ErrorKind = "insufficient_cash"
	KindInsufficientStock ErrorKind = "insufficient_stock"
	KindConsistency       ErrorKind = "consistency"
)

// consistencyMessage is all a caller ever sees of a consistency failure.
const consistencyMessage = "order could not be recorded"

// CommitError is the single failure a commit attempt reports. Every kind
// aborts the whole unit of work.
type CommitError struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *CommitError) Error() string {
	if e.Kind == KindConsistency {
		return consistencyMessage
	}
	return e.Reason
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// Detail includes the underlying cause and is meant for server logs only.
func (e *CommitError) Detail() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func invalidCart(format string, args ...any) *CommitError {
	return &CommitError{Kind: KindInvalidCart, Reason: fmt.Sprintf(format, args...)}
}

func consistency(reason string, err error) *CommitError {
	return &CommitError{Kind: KindConsistency, Reason: reason, Err: err}
}
