package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestIdentityAttachesRequester(t *testing.T) {
	var got string
	h := Identity(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		if req, ok := RequesterFrom(r.Context()); ok {
			got = req.UserID + "|" + req.Email
		}
	}))
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(HeaderUserID, " u-9 ")
	req.Header.Set(HeaderUserEmail, "a@example.com")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "u-9|a@example.com" {
		t.Fatalf("requester = %q", got)
	}
}

func TestIdentityWithoutHeaderIsAnonymous(t *testing.T) {
	called := false
	h := Identity(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		_, called = RequesterFrom(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if called {
		t.Fatal("expected no requester")
	}
}

func TestCORSShortCircuitsPreflight(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	CORS(nil)(next).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Fatalf("allow origin = %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), HeaderUserID) {
		t.Fatalf("identity header not allowed: %q", rec.Header().Get("Access-Control-Allow-Headers"))
	}
}

func TestCORSRejectsUnlistedOrigin(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	mw := CORS([]string{"https://console.example.com/"})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	mw(next).ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("preflight status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Origin", "https://console.example.com")
	mw(next).ServeHTTP(rec, req)
	if rec.Code != http.StatusTeapot || rec.Header().Get("Access-Control-Allow-Origin") != "https://console.example.com" {
		t.Fatalf("listed origin: status=%d allow=%q", rec.Code, rec.Header().Get("Access-Control-Allow-Origin"))
	}
}
