package middleware_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backscroll/internal/platform/net/middleware"
)

func logged(opt middleware.AccessLogOptions, next http.HandlerFunc) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/state/summary", nil)
	middleware.AccessLogZerolog(opt)(next).ServeHTTP(rr, req)
	return rr
}

func TestAccessLogZerolog_TransparentToResponse(t *testing.T) {
	rr := logged(middleware.AccessLogOptions{}, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, "ok")
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rr.Code)
	}
	if rr.Body.String() != "ok" {
		t.Fatalf("body = %q, want ok", rr.Body.String())
	}
}

func TestAccessLogZerolog_ImplicitOK(t *testing.T) {
	// handlers that never call WriteHeader still respond 200
	rr := logged(middleware.AccessLogOptions{}, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "body only")
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestAccessLogZerolog_SlowMarkLeavesResponseAlone(t *testing.T) {
	rr := logged(middleware.AccessLogOptions{Slow: time.Nanosecond}, func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(50 * time.Microsecond)
		_, _ = io.WriteString(w, "slow")
	})

	if rr.Code != http.StatusOK || rr.Body.String() != "slow" {
		t.Fatalf("slow marking leaked into the response: %d %q", rr.Code, rr.Body.String())
	}
}

func TestAccessLogZerolog_CountsAcrossWrites(t *testing.T) {
	rr := logged(middleware.AccessLogOptions{}, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("hi"))
		_, _ = w.Write([]byte("there"))
	})

	if rr.Body.String() != "hithere" {
		t.Fatalf("writes mangled: %q", rr.Body.String())
	}
}
