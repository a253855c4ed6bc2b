package handlers

import (
	"github.com/google/wire"

	"jan-server/services/envchat-api/internal/domain/completion"
	"jan-server/services/envchat-api/internal/domain/conversation"
	"jan-server/services/envchat-api/internal/domain/environment"
	"jan-server/services/envchat-api/internal/interfaces/httpserver/handlers/chathandler"
	"jan-server/services/envchat-api/internal/interfaces/httpserver/handlers/environmenthandler"
	"jan-server/services/envchat-api/internal/interfaces/httpserver/handlers/historyhandler"
)

var HandlerProvider = wire.NewSet(
	chathandler.NewChatHandler,
	historyhandler.NewHistoryHandler,
	environmenthandler.NewEnvironmentHandler,

	wire.Bind(new(chathandler.Completer), new(*completion.Service)),
	wire.Bind(new(chathandler.EnvironmentResolver), new(*environment.Registry)),
	wire.Bind(new(chathandler.HistoryWriter), new(*conversation.ConversationService)),
	wire.Bind(new(historyhandler.History), new(*conversation.ConversationService)),
	wire.Bind(new(environmenthandler.Registry), new(*environment.Registry)),
)
