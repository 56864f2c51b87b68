package utils

import (
	"errors"
	"fmt"
	"strings"
)

var ErrorRecordNotFound = errors.New("record not found")

type FailureKind string

const (
	FailureKindValidation    FailureKind = "VALIDATION"
	FailureKindConflict      FailureKind = "CONFLICT"
	FailureKindNotFound      FailureKind = "NOT_FOUND"
	FailureKindConfiguration FailureKind = "CONFIGURATION"
	FailureKindGeneric       FailureKind = "GENERIC"
)

// Failure is the tagged error every component boundary returns.
// Message is safe to show to callers; Cause is for logs only.
type Failure struct {
	Kind    FailureKind
	Message string
	Cause   error
}

func (f *Failure) Error() string {
	if f.Cause != nil {
		return f.Message + ": " + f.Cause.Error()
	}
	return f.Message
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

func ValidationFailure(format string, args ...any) *Failure {
	return &Failure{Kind: FailureKindValidation, Message: fmt.Sprintf(format, args...)}
}

func ConflictFailure(format string, args ...any) *Failure {
	return &Failure{Kind: FailureKindConflict, Message: fmt.Sprintf(format, args...)}
}

func NotFoundFailure(format string, args ...any) *Failure {
	return &Failure{Kind: FailureKindNotFound, Message: fmt.Sprintf(format, args...)}
}

func ConfigurationFailure(format string, args ...any) *Failure {
	return &Failure{Kind: FailureKindConfiguration, Message: fmt.Sprintf(format, args...)}
}

func GenericFailure(message string, cause error) *Failure {
	return &Failure{Kind: FailureKindGeneric, Message: message, Cause: cause}
}

// WrapFailure keeps an existing Failure as is and converts anything else to a
// generic failure carrying err as its cause.
func WrapFailure(message string, err error) error {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return err
	}
	return GenericFailure(message, err)
}

// KindOf reports the failure kind of err. Errors that are not Failures are generic.
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return FailureKindGeneric
}

// IsConflict is true for already-locked / already-signed style outcomes.
func IsConflict(err error) bool {
	return err != nil && KindOf(err) == FailureKindConflict
}

func IsNotFound(err error) bool {
	return err != nil && (KindOf(err) == FailureKindNotFound || errors.Is(err, ErrorRecordNotFound))
}

// UserMessage returns the caller-safe part of err.
func UserMessage(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.Message
	}
	return "an unexpected error occurred"
}

// JoinFailures aggregates several failures into one. Messages are comma-joined;
// the kind is kept when all failures agree, otherwise the result is generic.
func JoinFailures(errs ...error) error {
	var (
		messages []string
		causes   []error
		kind     FailureKind
	)
	for _, err := range errs {
		if err == nil {
			continue
		}
		k := KindOf(err)
		if kind == "" {
			kind = k
		} else if kind != k {
			kind = FailureKindGeneric
		}
		messages = append(messages, UserMessage(err))
		causes = append(causes, err)
	}
	if len(causes) == 0 {
		return nil
	}
	if len(causes) == 1 {
		return causes[0]
	}
	return &Failure{
		Kind:    kind,
		Message: strings.Join(messages, ", "),
		Cause:   errors.Join(causes...),
	}
}
