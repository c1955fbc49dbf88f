package faults

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the application's failure
// categories. Validation and dependency failures abort before any I/O;
// the remaining kinds are captured into job results and catalog state.
type Kind string

const (
	KindValidation Kind = "validation"
	KindDependency Kind = "dependency"
	KindDatabase   Kind = "database"
	KindTape       Kind = "tape"
	KindArchive    Kind = "archive"
	KindRecovery   Kind = "recovery"
)

// Fault is the common error type for all categorized failures.
type Fault struct {
	Kind Kind
	Op   string
	Err  error
}

func (f *Fault) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %s error", f.Op, f.Kind)
	}
	return fmt.Sprintf("%s: %v", f.Op, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Is allows errors.Is matching against a bare Fault of the same kind.
func (f *Fault) Is(target error) bool {
	t, ok := target.(*Fault)
	return ok && t.Kind == f.Kind && (t.Op == "" || t.Op == f.Op)
}

func newf(kind Kind, op string, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func Validation(op string, format string, args ...any) *Fault {
	return newf(KindValidation, op, format, args...)
}

func Dependency(op string, format string, args ...any) *Fault {
	return newf(KindDependency, op, format, args...)
}

func Database(op string, format string, args ...any) *Fault {
	return newf(KindDatabase, op, format, args...)
}

func Tape(op string, format string, args ...any) *Fault {
	return newf(KindTape, op, format, args...)
}

func Archive(op string, format string, args ...any) *Fault {
	return newf(KindArchive, op, format, args...)
}

func Recovery(op string, format string, args ...any) *Fault {
	return newf(KindRecovery, op, format, args...)
}

// KindOf returns the category of err, or an empty Kind for
// uncategorized errors.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsDependency(err error) bool { return KindOf(err) == KindDependency }
func IsTape(err error) bool       { return KindOf(err) == KindTape }
