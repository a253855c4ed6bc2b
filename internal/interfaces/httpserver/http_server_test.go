package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"jan-server/services/envchat-api/internal/config"
	"jan-server/services/envchat-api/internal/interfaces/httpserver/handlers/chathandler"
	"jan-server/services/envchat-api/internal/interfaces/httpserver/handlers/environmenthandler"
	"jan-server/services/envchat-api/internal/interfaces/httpserver/handlers/historyhandler"
	"jan-server/services/envchat-api/internal/interfaces/httpserver/routes"
	"jan-server/services/envchat-api/internal/interfaces/httpserver/routes/chat"
	"jan-server/services/envchat-api/internal/interfaces/httpserver/routes/environment"
	"jan-server/services/envchat-api/internal/interfaces/httpserver/routes/history"
	"jan-server/services/envchat-api/internal/utils/readiness"
)

func newTestServer(gate *readiness.Gate) *HTTPServer {
	apiRoute := routes.NewAPIRoute(
		chat.NewChatRoute(chathandler.NewChatHandler(nil, nil, nil, nil)),
		history.NewHistoryRoute(historyhandler.NewHistoryHandler(nil)),
		environment.NewEnvironmentRoute(environmenthandler.NewEnvironmentHandler(nil)),
		gate,
	)
	cfg := &config.Config{CORSOrigins: "http://localhost:3000"}
	return NewHttpServer(apiRoute, nil, gate, nil, cfg, zerolog.Nop())
}

func get(server *HTTPServer, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestProbes(t *testing.T) {
	gate := readiness.NewGate()
	server := newTestServer(gate)

	assert.Equal(t, http.StatusOK, get(server, "/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(server, "/readyz").Code)

	gate.Signal()
	assert.Equal(t, http.StatusOK, get(server, "/readyz").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(readiness.NewGate())

	rec := get(server, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestProtectedRoutesRequireIdentity(t *testing.T) {
	server := newTestServer(readiness.NewGate())

	rec := get(server, "/api/environments")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}
