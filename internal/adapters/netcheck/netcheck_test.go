package netcheck

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func fixedBase(url string) func(context.Context) string {
	return func(context.Context) string { return url }
}

func TestChecker_Online(t *testing.T) {
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	c := New(fixedBase(srv.URL + "/"))
	if !c.Online(context.Background()) {
		t.Fatalf("expected online")
	}
	if method != http.MethodHead || path != "/api/v1/health" {
		t.Fatalf("expected HEAD /api/v1/health, got %s %s", method, path)
	}
}

func TestChecker_AuthFailureStillCountsAsOnline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	// 401 proves the server answered; reachability is not authentication.
	if !New(fixedBase(srv.URL)).Online(context.Background()) {
		t.Fatalf("expected online on 401")
	}
}

func TestChecker_ServerErrorReadsAsOffline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	if New(fixedBase(srv.URL)).Online(context.Background()) {
		t.Fatalf("expected offline on 502")
	}
}

func TestChecker_FailClosed(t *testing.T) {
	// No server configured.
	if New(fixedBase("")).Online(context.Background()) {
		t.Fatalf("expected offline without a base url")
	}

	// Server gone.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()
	if New(fixedBase(url)).Online(context.Background()) {
		t.Fatalf("expected offline when the server is unreachable")
	}
}
