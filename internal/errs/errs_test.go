package errs

import (
	"errors"
	"testing"
)

func TestWrapNil(t *testing.T) {
	if Wrap(TransientNetwork, nil) != nil {
		t.Error("Wrap(kind, nil) should return nil")
	}
}

func TestWrapAndIs(t *testing.T) {
	base := errors.New("connection refused")
	err := Wrap(TransientNetwork, base)

	if !Is(err, TransientNetwork) {
		t.Error("Is(err, TransientNetwork) = false, want true")
	}
	if Is(err, InvalidRule) {
		t.Error("Is(err, InvalidRule) = true, want false")
	}
	if !errors.Is(err, base) {
		t.Error("errors.Is should unwrap to the base error")
	}
}

func TestKindOf(t *testing.T) {
	err := Wrap(RateLimitExceeded, errors.New("quota"))
	if KindOf(err) != RateLimitExceeded {
		t.Errorf("KindOf = %v, want RateLimitExceeded", KindOf(err))
	}
	if KindOf(errors.New("plain")) != Unknown {
		t.Error("KindOf(plain error) should be Unknown")
	}
}

func TestKindString(t *testing.T) {
	tests := map[Kind]string{
		TransientNetwork:  "transient_network",
		InvalidPayload:    "invalid_payload",
		InvalidRule:       "invalid_rule",
		RateLimitExceeded: "rate_limit_exceeded",
		Duplicate:         "duplicate",
		FatalResource:     "fatal_resource",
		Unknown:           "unknown",
	}
	for kind, want := range tests {
		if got := kind.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}

func TestWrapfFormatsContext(t *testing.T) {
	err := Wrapf(InvalidPayload, errors.New("bad json"), "decoding %s", "rule_matched")
	if !Is(err, InvalidPayload) {
		t.Error("Wrapf should classify as InvalidPayload")
	}
	if err.Error() == "" {
		t.Error("Error() should not be empty")
	}
}

func TestClassifiedUnwrap(t *testing.T) {
	base := errors.New("boom")
	c := &Classified{Kind: FatalResource, Err: base}
	if c.Unwrap() != base {
		t.Error("Unwrap should return the wrapped error")
	}
}
