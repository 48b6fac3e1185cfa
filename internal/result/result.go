// Package result provides the success-or-failure container used across the
// calculation pipeline in place of error returns for expected, recoverable
// problems. A Result always holds either a value or a Failure with a reason
// from a closed taxonomy, so one bad market-data item or one bad cell can be
// recorded and carried without aborting a batch.
package result

import "fmt"

// Reason classifies a failure. The set is closed: a reporting layer can rely
// on these values without inspecting messages.
type Reason string

const (
	// MissingData means a required market-data item has no producer or no
	// supplied value.
	MissingData Reason = "missing_data"
	// InvalidInput means a value exists but failed validation.
	InvalidInput Reason = "invalid_input"
	// Unsupported means no pricing rule or no registered builder applies.
	Unsupported Reason = "unsupported"
	// CalculationFailed wraps an unexpected error caught at a stage boundary.
	CalculationFailed Reason = "calculation_failed"
)

// Failure carries a reason code and a human-readable message.
type Failure struct {
	Reason  Reason `json:"reason"`
	Message string `json:"message"`
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Reason, f.Message)
}

// Result is a tagged union of a success value or a Failure. The zero value is
// a success holding nil; construct through Success or the failure helpers.
type Result struct {
	value   any
	failure *Failure
}

// Success wraps a value.
func Success(v any) Result {
	return Result{value: v}
}

// Fail creates a failure result.
func Fail(reason Reason, format string, args ...any) Result {
	return Result{failure: &Failure{Reason: reason, Message: fmt.Sprintf(format, args...)}}
}

// FailErr wraps an unexpected error under the given reason.
func FailErr(reason Reason, err error) Result {
	return Result{failure: &Failure{Reason: reason, Message: err.Error()}}
}

// FromFailure lifts an existing Failure back into a Result.
func FromFailure(f Failure) Result {
	return Result{failure: &f}
}

// IsSuccess reports whether the result holds a value.
func (r Result) IsSuccess() bool { return r.failure == nil }

// IsFailure reports whether the result holds a failure.
func (r Result) IsFailure() bool { return r.failure != nil }

// Value returns the held value, or nil for a failure.
func (r Result) Value() any { return r.value }

// Failure returns the held failure, or nil for a success.
func (r Result) Failure() *Failure { return r.failure }

// Reason returns the failure reason, or "" for a success.
func (r Result) Reason() Reason {
	if r.failure == nil {
		return ""
	}
	return r.failure.Reason
}

// Map applies fn to a success value; a failure passes through untouched.
func (r Result) Map(fn func(any) any) Result {
	if r.failure != nil {
		return r
	}
	return Success(fn(r.value))
}

// FlatMap applies fn to a success value, allowing fn itself to fail; a
// failure short-circuits and carries the original reason.
func (r Result) FlatMap(fn func(any) Result) Result {
	if r.failure != nil {
		return r
	}
	return fn(r.value)
}

func (r Result) String() string {
	if r.failure != nil {
		return "Failure(" + r.failure.Error() + ")"
	}
	return fmt.Sprintf("Success(%v)", r.value)
}

// As extracts the success value as type T. A failure result propagates its
// failure; a success holding a different type is an InvalidInput failure.
func As[T any](r Result) (T, *Failure) {
	var zero T
	if r.failure != nil {
		return zero, r.failure
	}
	v, ok := r.value.(T)
	if !ok {
		return zero, &Failure{
			Reason:  InvalidInput,
			Message: fmt.Sprintf("unexpected value type %T", r.value),
		}
	}
	return v, nil
}

// FirstFailure returns the first failure among the results, if any.
func FirstFailure(rs ...Result) (*Failure, bool) {
	for _, r := range rs {
		if r.failure != nil {
			return r.failure, true
		}
	}
	return nil, false
}
