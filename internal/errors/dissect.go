package errors

import "fmt"

// sentinel is a comparable error value used as the errors.Is target for
// each class of dissection failure.
type sentinel string

func (s sentinel) Error() string { return string(s) }

// Sentinels for errors.Is checks. The concrete error types below report
// themselves as one of these.
const (
	ErrTruncated             sentinel = "truncated"
	ErrLengthMismatch        sentinel = "length mismatch"
	ErrRecursionLimit        sentinel = "recursion limit exceeded"
	ErrStepBudget            sentinel = "step budget exhausted"
	ErrMalformed             sentinel = "malformed"
	ErrDuplicateRegistration sentinel = "duplicate registration"
	ErrDuplicateTable        sentinel = "duplicate table"
	ErrUnknownTable          sentinel = "unknown table"
	ErrRegistryFrozen        sentinel = "registry frozen"
)

// Located is implemented by errors that know the absolute buffer offset
// at which they occurred.
type Located interface {
	error
	ErrOffset() int
}

// OffsetOf returns the offset carried by err, if any.
func OffsetOf(err error) (int, bool) {
	for err != nil {
		if l, ok := err.(Located); ok {
			return l.ErrOffset(), true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return 0, false
		}
		err = u.Unwrap()
	}
	return 0, false
}

// TruncatedError reports a read that would cross the buffer or limit boundary.
type TruncatedError struct {
	Offset    int
	Needed    int
	Available int
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("truncated at offset %d: need %d bytes, %d available", e.Offset, e.Needed, e.Available)
}

func (e *TruncatedError) Is(target error) bool { return target == ErrTruncated }
func (e *TruncatedError) ErrOffset() int       { return e.Offset }

// LengthMismatchError reports a self-declared length that does not fit the
// bytes that are actually there, or that contradicts the record's layout.
// Available is always the byte count present; Expected, when non-zero, is
// the length the layout calls for.
type LengthMismatchError struct {
	Offset    int
	Tag       uint64
	HasTag    bool
	Declared  int
	Available int
	Expected  int
	Reason    string
}

func (e *LengthMismatchError) Error() string {
	prefix := "length mismatch"
	if e.HasTag {
		prefix = fmt.Sprintf("length mismatch in tag %d", e.Tag)
	}
	msg := fmt.Sprintf("%s at offset %d: declared %d, available %d", prefix, e.Offset, e.Declared, e.Available)
	if e.Expected > 0 {
		msg += fmt.Sprintf(", expected %d", e.Expected)
	}
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

func (e *LengthMismatchError) Is(target error) bool { return target == ErrLengthMismatch }
func (e *LengthMismatchError) ErrOffset() int       { return e.Offset }

// RecursionLimitError reports nesting deeper than the configured maximum.
type RecursionLimitError struct {
	Offset int
	Depth  int
	Limit  int
}

func (e *RecursionLimitError) Error() string {
	return fmt.Sprintf("recursion limit exceeded at offset %d: depth %d > %d", e.Offset, e.Depth, e.Limit)
}

func (e *RecursionLimitError) Is(target error) bool { return target == ErrRecursionLimit }
func (e *RecursionLimitError) ErrOffset() int       { return e.Offset }

// StepBudgetError reports that the per-packet step budget ran out.
type StepBudgetError struct {
	Offset int
	Budget int
}

func (e *StepBudgetError) Error() string {
	return fmt.Sprintf("step budget of %d exhausted at offset %d", e.Budget, e.Offset)
}

func (e *StepBudgetError) Is(target error) bool { return target == ErrStepBudget }
func (e *StepBudgetError) ErrOffset() int       { return e.Offset }

// MalformedError reports a value that is present but violates the
// protocol's layout rules (bad magic, missing terminator).
type MalformedError struct {
	Offset int
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed at offset %d: %s", e.Offset, e.Reason)
}

func (e *MalformedError) Is(target error) bool { return target == ErrMalformed }
func (e *MalformedError) ErrOffset() int       { return e.Offset }

// Malformedf builds a MalformedError with a formatted reason.
func Malformedf(offset int, format string, v ...interface{}) error {
	return &MalformedError{Offset: offset, Reason: fmt.Sprintf(format, v...)}
}

// DuplicateRegistrationError reports a second handler for the same table key.
type DuplicateRegistrationError struct {
	Table    string
	Key      string
	Existing string
	Protocol string
}

func (e *DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("duplicate registration in %s for key %s: %s already registered, %s rejected",
		e.Table, e.Key, e.Existing, e.Protocol)
}

func (e *DuplicateRegistrationError) Is(target error) bool { return target == ErrDuplicateRegistration }

// DuplicateTableError reports a table name reused with a different key type.
type DuplicateTableError struct {
	Table     string
	Existing  string
	Requested string
}

func (e *DuplicateTableError) Error() string {
	return fmt.Sprintf("table %s already registered with key type %s (requested %s)", e.Table, e.Existing, e.Requested)
}

func (e *DuplicateTableError) Is(target error) bool { return target == ErrDuplicateTable }
