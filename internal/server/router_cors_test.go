package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPreflightAllowsBrowserClients(t *testing.T) {
	handler, _ := newTestHandler(t)

	request, err := http.NewRequest(http.MethodOptions, "/api/click", nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	request.Header.Set("Origin", "https://start.example")
	request.Header.Set("Access-Control-Request-Method", http.MethodPost)
	request.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent && recorder.Code != http.StatusOK {
		t.Fatalf("expected preflight to succeed, got %d", recorder.Code)
	}
	if allowed := recorder.Header().Get("Access-Control-Allow-Origin"); allowed != "*" {
		t.Fatalf("expected wildcard origin, got %q", allowed)
	}
	if allowed := recorder.Header().Get("Access-Control-Allow-Headers"); allowed == "" {
		t.Fatal("expected allowed headers on preflight response")
	}
}
