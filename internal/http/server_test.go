package httpapp

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/leadsuccess/dynamics-bridge/internal/http/handlers"
)

func newTestServer(t *testing.T) *EchoServer {
	t.Helper()
	es, err := NewEchoServer(&handlers.Handlers{})
	if err != nil {
		t.Fatalf("NewEchoServer: %v", err)
	}
	return es
}

func TestHTTPErrorHandlerInternalErrorIsGeneric(t *testing.T) {
	t.Parallel()

	es := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "http://example.com/test", nil)
	rec := httptest.NewRecorder()
	c := es.e.NewContext(req, rec)

	es.httpErrorHandler(c, errors.New("very sensitive error"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if strings.Contains(rec.Body.String(), "very sensitive") {
		t.Fatalf("response leaked error details: %q", rec.Body.String())
	}
}

func TestHealthzRouted(t *testing.T) {
	t.Parallel()

	es := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "http://example.com/healthz", nil)
	rec := httptest.NewRecorder()
	es.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestUnknownRouteReturnsJSONEnvelope(t *testing.T) {
	t.Parallel()

	es := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "http://example.com/no/such/route", nil)
	rec := httptest.NewRecorder()
	es.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	var envelope struct {
		Error handlers.ErrorBody `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v (body %q)", err, rec.Body.String())
	}
	if envelope.Error.Code != "NotFound" {
		t.Fatalf("code = %q, want NotFound", envelope.Error.Code)
	}
}

func TestMethodNotAllowedReturnsJSONEnvelope(t *testing.T) {
	t.Parallel()

	es := newTestServer(t)
	req := httptest.NewRequest(http.MethodDelete, "http://example.com/healthz", nil)
	rec := httptest.NewRecorder()
	es.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}

	var envelope struct {
		Error handlers.ErrorBody `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Error.Code != "MethodNotAllowed" {
		t.Fatalf("code = %q, want MethodNotAllowed", envelope.Error.Code)
	}
}
