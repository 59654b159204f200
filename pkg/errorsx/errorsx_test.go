package errorsx

import (
	"errors"
	"testing"
)

func TestWrapAndReason(t *testing.T) {
	err := Wrap(assertErr{}, ReasonRemote)
	if Reason(err) != ReasonRemote {
		t.Fatalf("expected reason %s, got %s", ReasonRemote, Reason(err))
	}
	if !HasReason(err, ReasonRemote) {
		t.Fatalf("expected HasReason true")
	}
	if !errors.Is(err, assertErr{}) {
		t.Fatalf("expected wrapped error to stay reachable")
	}
}

func TestWrapPreservesExistingReason(t *testing.T) {
	first := Wrap(assertErr{}, ReasonProtocol)
	second := Wrap(first, ReasonTransport)
	if Reason(second) != ReasonProtocol {
		t.Fatalf("expected reason preserved, got %s", Reason(second))
	}
}

func TestWrapfAddsContext(t *testing.T) {
	err := Wrapf(assertErr{}, ReasonTransport, "send frame %d", 3)
	if got, want := err.Error(), "transport: send frame 3: boom"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if Wrapf(nil, ReasonTransport, "noop") != nil {
		t.Fatalf("expected nil passthrough")
	}
}

func TestReasonUnknownAndRetryable(t *testing.T) {
	if Reason(nil) != ReasonUnknown || Reason(assertErr{}) != ReasonUnknown {
		t.Fatalf("expected unknown reason for plain errors")
	}
	if !ReasonTransport.Retryable() {
		t.Fatalf("expected transport failures to be retryable")
	}
	if ReasonEmptyResult.Retryable() || ReasonRemote.Retryable() {
		t.Fatalf("expected deterministic failures to be non-retryable")
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
