package utils

import (
	"errors"
	"strings"
	"testing"
)

func TestJoinFailures(t *testing.T) {
	if JoinFailures(nil, nil) != nil {
		t.Fatalf("no errors should join to nil")
	}

	single := ConflictFailure("assessment is already locked")
	if got := JoinFailures(nil, single); got != single {
		t.Fatalf("a single failure should be returned as is, got %v", got)
	}

	both := JoinFailures(ConflictFailure("a locked"), ConflictFailure("b locked"))
	if KindOf(both) != FailureKindConflict || UserMessage(both) != "a locked, b locked" {
		t.Fatalf("unexpected join: kind=%s message=%q", KindOf(both), UserMessage(both))
	}

	mixed := JoinFailures(ConflictFailure("a locked"), GenericFailure("b unavailable", errors.New("dial")))
	if KindOf(mixed) != FailureKindGeneric {
		t.Fatalf("mixed kinds should be generic, got %s", KindOf(mixed))
	}
	if !strings.Contains(mixed.Error(), "dial") {
		t.Fatalf("causes should stay in the error chain, got %q", mixed.Error())
	}
}

func TestWrapFailureKeepsKind(t *testing.T) {
	nf := NotFoundFailure("no versions found in range %d..%d for entity %s", 1, 2, "x")
	if WrapFailure("failed to lock ASSESSMENT", nf) != nf {
		t.Fatalf("existing failure should pass through")
	}
	wrapped := WrapFailure("failed to lock ASSESSMENT", errors.New("boom"))
	if KindOf(wrapped) != FailureKindGeneric || UserMessage(wrapped) != "failed to lock ASSESSMENT" {
		t.Fatalf("unexpected wrap: %v", wrapped)
	}
	if !IsNotFound(ErrorRecordNotFound) || UserMessage(errors.New("raw")) != "an unexpected error occurred" {
		t.Fatalf("plain errors should not leak their text")
	}
}
