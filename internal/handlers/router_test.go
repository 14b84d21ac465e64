package handlers

import (
	"net/http"
	"testing"
)

func TestRouterHealthEndpoints(t *testing.T) {
	router := NewRouter()

	rec := doRequest(router, jsonRequest(t, http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", rec.Code)
	}

	rec = doRequest(router, jsonRequest(t, http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz: expected 200, got %d", rec.Code)
	}
}

func TestRouterUnconfiguredGroupIsNotImplemented(t *testing.T) {
	router := NewRouter()

	rec := doRequest(router, jsonRequest(t, http.MethodGet, "/v1/cart/", nil))
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 for unconfigured group, got %d", rec.Code)
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	router := NewRouter()

	rec := doRequest(router, jsonRequest(t, http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRouterCustomBasePath(t *testing.T) {
	router := NewRouter(WithBasePath("/api"))

	rec := doRequest(router, jsonRequest(t, http.MethodGet, "/api/cart/", nil))
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 under custom base path, got %d", rec.Code)
	}
}
