package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/handlers"

	"vizboard/dashboard/internal/handler"
)

func testCORS() func(http.Handler) http.Handler {
	// Same policy as in the Run method.
	return handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "Bearer", "X-Requested-With"}),
	)
}

func TestCORSPreflightRequest(t *testing.T) {
	uploadHandler := &handler.UploadHandler{}
	datasetHandler := &handler.DatasetHandler{}
	server := NewServer(uploadHandler, datasetHandler)

	req := httptest.NewRequest("OPTIONS", "/api/upload", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type, Bearer")

	rr := httptest.NewRecorder()
	testCORS()(server.router).ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %v, want *", got)
	}
	if rr.Header().Get("Access-Control-Allow-Headers") == "" {
		t.Error("Access-Control-Allow-Headers should not be empty for a preflight request")
	}
}

func TestEventsEndpointServedAtRoot(t *testing.T) {
	uploadHandler := &handler.UploadHandler{}
	datasetHandler := &handler.DatasetHandler{}
	server := NewServer(uploadHandler, datasetHandler)

	// The websocket endpoint lives at the root, not under /api. Without a
	// token the handler rejects before upgrading, so a 401 proves the route
	// is registered while /api/ws/events is not.
	req := httptest.NewRequest("GET", "/ws/events", nil)
	rr := httptest.NewRecorder()
	server.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("GET /ws/events = %d, want %d", rr.Code, http.StatusUnauthorized)
	}

	req = httptest.NewRequest("GET", "/api/ws/events", nil)
	rr = httptest.NewRecorder()
	server.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Errorf("GET /api/ws/events = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestCORSWithActualRequest(t *testing.T) {
	uploadHandler := &handler.UploadHandler{}
	datasetHandler := &handler.DatasetHandler{}
	server := NewServer(uploadHandler, datasetHandler)

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("Origin", "http://example.com")

	rr := httptest.NewRecorder()
	testCORS()(server.router).ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %v, want *", got)
	}
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}
