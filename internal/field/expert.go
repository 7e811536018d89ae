package field

import (
	stderrors "errors"
	"fmt"

	"github.com/tonylturner/tlvscope/internal/errors"
)

// Severity orders diagnostics from informational to fatal-for-the-record.
type Severity uint8

const (
	SeverityNote Severity = iota + 1
	SeverityWarn
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityNote:
		return "note"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Reason classifies a diagnostic.
type Reason uint8

const (
	ReasonMalformed Reason = iota + 1
	ReasonTruncated
	ReasonLengthMismatch
	ReasonUnknownTag
	ReasonRecursionLimit
	ReasonStepBudget
	ReasonTrailingData
	ReasonRangeViolation
	ReasonNoDissector
)

var reasonNames = map[Reason]string{
	ReasonMalformed:      "Malformed",
	ReasonTruncated:      "Truncated",
	ReasonLengthMismatch: "LengthMismatch",
	ReasonUnknownTag:     "UnknownTag",
	ReasonRecursionLimit: "RecursionLimitExceeded",
	ReasonStepBudget:     "StepBudgetExhausted",
	ReasonTrailingData:   "TrailingData",
	ReasonRangeViolation: "RangeViolation",
	ReasonNoDissector:    "NoDissector",
}

func (r Reason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return fmt.Sprintf("Reason(%d)", uint8(r))
}

// Expert is a diagnostic attached to the tree where decoding went wrong.
type Expert struct {
	Reason   Reason
	Severity Severity
	Offset   int
	Message  string
}

func (e Expert) String() string {
	return fmt.Sprintf("[%s] %s at offset %d: %s", e.Severity, e.Reason, e.Offset, e.Message)
}

// ExpertFromError classifies err. fallbackOffset is used when the error
// does not carry its own offset.
func ExpertFromError(err error, fallbackOffset int) Expert {
	off, ok := errors.OffsetOf(err)
	if !ok {
		off = fallbackOffset
	}
	e := Expert{Offset: off, Message: err.Error(), Severity: SeverityError, Reason: ReasonMalformed}
	switch {
	case stderrors.Is(err, errors.ErrTruncated):
		e.Reason = ReasonTruncated
	case stderrors.Is(err, errors.ErrLengthMismatch):
		e.Reason = ReasonLengthMismatch
		e.Severity = SeverityWarn
	case stderrors.Is(err, errors.ErrRecursionLimit):
		e.Reason = ReasonRecursionLimit
	case stderrors.Is(err, errors.ErrStepBudget):
		e.Reason = ReasonStepBudget
	}
	return e
}
