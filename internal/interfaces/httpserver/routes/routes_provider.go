package routes

import (
	"github.com/google/wire"

	"jan-server/services/envchat-api/internal/interfaces/httpserver/handlers"
	"jan-server/services/envchat-api/internal/interfaces/httpserver/routes/chat"
	"jan-server/services/envchat-api/internal/interfaces/httpserver/routes/environment"
	"jan-server/services/envchat-api/internal/interfaces/httpserver/routes/history"
)

var RouteProvider = wire.NewSet(
	// Handlers
	handlers.HandlerProvider,

	// Routes
	NewAPIRoute,
	chat.NewChatRoute,
	history.NewHistoryRoute,
	environment.NewEnvironmentRoute,
)
