package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAPIHandlerServesYAML(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.OpenAPIHandler(rr, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/yaml" {
		t.Fatalf("content-type = %q", ct)
	}
	if !strings.Contains(rr.Body.String(), "/optimize-routes") {
		t.Fatal("document does not describe /optimize-routes")
	}
}

func TestOpenAPIHandlerServesJSON(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.OpenAPIHandler(rr, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var doc map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &doc); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	paths, ok := doc["paths"].(map[string]any)
	if !ok {
		t.Fatal("document has no paths object")
	}
	if _, ok := paths["/optimize-routes"]; !ok {
		t.Fatal("paths is missing /optimize-routes")
	}
}

func TestDocsHandler(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.DocsHandler(rr, httptest.NewRequest(http.MethodGet, "/docs", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "redoc") {
		t.Fatal("docs page does not embed the viewer")
	}
}
