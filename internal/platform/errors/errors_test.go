package errors

import (
	stderrs "errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestHTTPStatusCodeMapping(t *testing.T) {
	cases := []struct {
		code ErrorCode
		want int
	}{
		{ErrorCodeNotFound, http.StatusNotFound},
		{ErrorCodeInvalidArgument, http.StatusUnprocessableEntity},
		{ErrorCodeValidation, http.StatusBadRequest},
		{ErrorCodeForbidden, http.StatusForbidden},
		{ErrorCodeTooManyRequests, http.StatusTooManyRequests},
		{ErrorCodeUnavailable, http.StatusServiceUnavailable},
		{ErrorCodePersistence, http.StatusInternalServerError},
		{ErrorCodePanic, http.StatusInternalServerError},
		{ErrorCodeUnknown, http.StatusInternalServerError},
		{9999, http.StatusInternalServerError}, // default branch
	}
	for _, c := range cases {
		if got := HTTPStatusCode(c.code); got != c.want {
			t.Fatalf("HTTPStatusCode(%v) = %d, want %d", c.code, got, c.want)
		}
	}
}

func TestErrorTypeAndMethods(t *testing.T) {
	// nil *Error should render "<nil>"
	var e *Error
	if e.Error() != "<nil>" {
		t.Fatalf("nil *Error render = %q, want <nil>", e.Error())
	}

	// New / Newf
	e1 := New(ErrorCodeValidation, "bad stuff")
	if CodeOf(e1) != ErrorCodeValidation {
		t.Fatalf("CodeOf(New) = %v", CodeOf(e1))
	}
	e2 := Newf(ErrorCodePersistence, "bad state %d", 12)
	if got := e2.Error(); got != "bad state 12" {
		t.Fatalf("Newf().Error = %q", got)
	}

	// Wrap / Wrapf / Unwrap
	src := stderrs.New("root")
	e3 := Wrap(src, ErrorCodePersistence, "save failed")
	if Unwrap := stderrs.Unwrap(e3); Unwrap == nil || Unwrap.Error() != "root" {
		t.Fatalf("Wrap did not keep orig")
	}
	if CodeOf(e3) != ErrorCodePersistence {
		t.Fatalf("CodeOf(Wrap) = %v", CodeOf(e3))
	}
	e4 := Wrapf(src, ErrorCodeForbidden, "nope %s", "here")
	// Error() includes message + ": " + orig
	if want := "nope here: root"; e4.Error() != want {
		t.Fatalf("Wrapf().Error = %q, want %q", e4.Error(), want)
	}

	// As
	if got, ok := As(e4); !ok || got.Code() != ErrorCodeForbidden {
		t.Fatalf("As() failed for our error")
	}
	if _, ok := As(src); ok {
		t.Fatalf("As() true for foreign error")
	}

	// WithField (copy-on-write) and WithOp
	e5 := Wrap(src, ErrorCodeInvalidArgument, "oops")
	e6 := WithField(e5, "visibility")
	e7 := WithOp(e6, "load_sources")
	if fe, ok := As(e6); !ok || fe.Field() != "visibility" {
		t.Fatalf("WithField failed")
	}
	if oe, ok := As(e7); !ok || oe.Op() != "load_sources" {
		t.Fatalf("WithOp failed")
	}
	// original unchanged
	if fe0, _ := As(e5); fe0.Field() != "" || fe0.Op() != "" {
		t.Fatalf("copy-on-write mutated original")
	}

	// Wire / WireFrom
	w := (&Error{code: ErrorCodeForbidden, msg: "nope", field: "token"}).ToWire()
	if w.Code != ErrorCodeForbidden || w.Message != "nope" || w.Field != "token" {
		t.Fatalf("ToWire mismatch: %+v", w)
	}
	if wf := WireFrom(nil); wf != (Wire{}) {
		t.Fatalf("WireFrom(nil) expected zero, got %+v", wf)
	}
	// WireFrom for foreign error -> Unknown with original message
	if wf := WireFrom(src); wf.Code != ErrorCodeUnknown || wf.Message != "root" {
		t.Fatalf("WireFrom(foreign) mismatch: %+v", wf)
	}
	// WireFrom for our error uses only e.msg (not "msg: orig")
	if wf := WireFrom(e4); wf.Code != ErrorCodeForbidden || wf.Message != "nope here" {
		t.Fatalf("WireFrom(ours) mismatch: %+v", wf)
	}

	// HTTP and HTTPStatus
	if st, _ := HTTP(nil); st != http.StatusOK {
		t.Fatalf("HTTP(nil) status = %d", st)
	}
	if st := HTTPStatus(e3); st != http.StatusInternalServerError {
		t.Fatalf("HTTPStatus mismatch")
	}

	// Helpers (sugar) and IsCode
	if !IsCode(NotFoundf("x"), ErrorCodeNotFound) ||
		!IsCode(InvalidArgf("x"), ErrorCodeInvalidArgument) ||
		!IsCode(Validationf("x"), ErrorCodeValidation) ||
		!IsCode(PanicErrf("x"), ErrorCodePanic) ||
		!IsCode(Forbiddenf("x"), ErrorCodeForbidden) ||
		!IsCode(RateLimitedf("x"), ErrorCodeTooManyRequests) ||
		!IsCode(Persistencef("x"), ErrorCodePersistence) ||
		!IsCode(Unavailablef("x"), ErrorCodeUnavailable) {
		t.Fatalf("sugar helpers code mismatch")
	}

	// WrapIf
	if WrapIf(nil, ErrorCodePersistence, "ignored") != nil {
		t.Fatalf("WrapIf(nil) should return nil")
	}
	if WrapIf(src, ErrorCodePersistence, "save") == nil {
		t.Fatalf("WrapIf(non-nil) should wrap")
	}

	// Root traversal
	deep := fmt.Errorf("level2: %w", fmt.Errorf("level1: %w", src))
	if got := Root(deep); got == nil || got.Error() != "root" {
		t.Fatalf("Root() failed, got %v", got)
	}

	// ErrNotFound sentinel behavior
	if !IsCode(ErrNotFound, ErrorCodeNotFound) {
		t.Fatalf("ErrNotFound code mismatch")
	}
}

func TestRetryableByCode(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{Unavailablef("upstream down"), true},
		{RateLimitedf("slow down"), true},
		{Forbiddenf("kicked"), false},
		{NotFoundf("gone"), false},
		{Validationf("bad"), false},
		{Persistencef("disk"), false},
		{stderrs.New("plain"), false},
	}
	for _, c := range cases {
		if got := Retryable(c.err); got != c.want {
			t.Fatalf("Retryable(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "deadline" }
func (timeoutErr) Timeout() bool { return true }

func TestRetryableTimeoutInterface(t *testing.T) {
	if !Retryable(timeoutErr{}) {
		t.Fatalf("timeout errors should be retryable")
	}
	if !Retryable(fmt.Errorf("fetch: %w", timeoutErr{})) {
		t.Fatalf("wrapped timeout errors should be retryable")
	}
}

func TestRetryAfterHint(t *testing.T) {
	base := RateLimitedf("slow down")
	if _, ok := RetryAfter(base); ok {
		t.Fatalf("no hint expected on plain error")
	}

	hinted := WithRetryAfter(base, 7*time.Second)
	d, ok := RetryAfter(hinted)
	if !ok || d != 7*time.Second {
		t.Fatalf("RetryAfter = (%v, %v), want (7s, true)", d, ok)
	}
	// original untouched
	if _, ok := RetryAfter(base); ok {
		t.Fatalf("copy-on-write mutated original")
	}

	// foreign error gets wrapped as rate limited so the hint survives
	foreign := WithRetryAfter(stderrs.New("429"), time.Second)
	if !IsCode(foreign, ErrorCodeTooManyRequests) {
		t.Fatalf("foreign hinted error should carry TooManyRequests")
	}
	if d, ok := RetryAfter(foreign); !ok || d != time.Second {
		t.Fatalf("foreign RetryAfter = (%v, %v)", d, ok)
	}
	if !Retryable(foreign) {
		t.Fatalf("hinted foreign error should be retryable")
	}
}
