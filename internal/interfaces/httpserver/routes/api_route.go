package routes

import (
	"github.com/gin-gonic/gin"

	"jan-server/services/envchat-api/internal/interfaces/httpserver/middlewares"
	"jan-server/services/envchat-api/internal/interfaces/httpserver/routes/chat"
	"jan-server/services/envchat-api/internal/interfaces/httpserver/routes/environment"
	"jan-server/services/envchat-api/internal/interfaces/httpserver/routes/history"
	"jan-server/services/envchat-api/internal/utils/readiness"
)

// APIRoute groups every authenticated endpoint.
type APIRoute struct {
	chat        *chat.ChatRoute
	history     *history.HistoryRoute
	environment *environment.EnvironmentRoute
	gate        *readiness.Gate
}

func NewAPIRoute(
	chat *chat.ChatRoute,
	history *history.HistoryRoute,
	environment *environment.EnvironmentRoute,
	gate *readiness.Gate,
) *APIRoute {
	return &APIRoute{
		chat:        chat,
		history:     history,
		environment: environment,
		gate:        gate,
	}
}

// RegisterRouter mounts the routes on router. History endpoints wait for the
// history store to finish initializing.
func (route *APIRoute) RegisterRouter(router gin.IRouter) {
	historyGroup := router.Group("/history", middlewares.WaitForReady(route.gate))

	route.environment.RegisterRouter(router)
	route.chat.RegisterRouter(router, historyGroup)
	route.history.RegisterRouter(historyGroup)
}
