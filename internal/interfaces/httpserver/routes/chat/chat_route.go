package chat

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"jan-server/services/envchat-api/internal/domain/completion"
	"jan-server/services/envchat-api/internal/infrastructure/logger"
	"jan-server/services/envchat-api/internal/infrastructure/metrics"
	"jan-server/services/envchat-api/internal/interfaces/httpserver/handlers/chathandler"
	"jan-server/services/envchat-api/internal/interfaces/httpserver/middlewares"
	"jan-server/services/envchat-api/internal/interfaces/httpserver/requests"
	chatrequests "jan-server/services/envchat-api/internal/interfaces/httpserver/requests/chat"
	historyresponses "jan-server/services/envchat-api/internal/interfaces/httpserver/responses/history"
	"jan-server/services/envchat-api/internal/utils/platformerrors"
)

const forwardedForHeader = "X-Forwarded-For"

type ChatRoute struct {
	handler *chathandler.ChatHandler
	log     zerolog.Logger
}

func NewChatRoute(handler *chathandler.ChatHandler) *ChatRoute {
	return &ChatRoute{
		handler: handler,
		log:     logger.Component("chat_route"),
	}
}

// RegisterRouter mounts the stateless completion endpoint on router and the
// history-backed ones on history.
func (route *ChatRoute) RegisterRouter(router gin.IRouter, history gin.IRouter) {
	router.POST("/conversation", route.postConversation)
	history.POST("/generate", route.postGenerate)
	history.POST("/update", route.postUpdate)
}

// postConversation runs a completion without touching chat history.
func (route *ChatRoute) postConversation(reqCtx *gin.Context) {
	turn, ok := route.bindTurn(reqCtx)
	if !ok {
		return
	}
	result, err := route.handler.Complete(reqCtx.Request.Context(), turn)
	if err != nil {
		platformerrors.WriteError(reqCtx, err, route.log)
		return
	}
	route.writeResult(reqCtx, result)
}

// postGenerate stores the user turn, creating the conversation when needed,
// and runs the completion.
func (route *ChatRoute) postGenerate(reqCtx *gin.Context) {
	turn, ok := route.bindTurn(reqCtx)
	if !ok {
		return
	}
	result, err := route.handler.Generate(reqCtx.Request.Context(), turn)
	if err != nil {
		platformerrors.WriteError(reqCtx, err, route.log)
		return
	}
	route.writeResult(reqCtx, result)
}

// postUpdate stores the assistant answer once the client has received it.
func (route *ChatRoute) postUpdate(reqCtx *gin.Context) {
	turn, ok := route.bindTurn(reqCtx)
	if !ok {
		return
	}
	if err := route.handler.RecordAssistantTurn(reqCtx.Request.Context(), turn); err != nil {
		platformerrors.WriteError(reqCtx, err, route.log)
		return
	}
	reqCtx.JSON(http.StatusOK, historyresponses.SuccessResponse{Success: true})
}

func (route *ChatRoute) bindTurn(reqCtx *gin.Context) (chathandler.Turn, bool) {
	principal, ok := middlewares.PrincipalFromContext(reqCtx)
	if !ok {
		platformerrors.WriteUnauthorized(reqCtx, "authentication required")
		return chathandler.Turn{}, false
	}
	var request chatrequests.ConversationRequest
	if err := requests.BindJSON(reqCtx, &request); err != nil {
		platformerrors.WriteError(reqCtx, err, route.log)
		return chathandler.Turn{}, false
	}
	return chathandler.Turn{
		Principal:    principal,
		ForwardedFor: reqCtx.GetHeader(forwardedForHeader),
		Request:      request,
	}, true
}

// writeResult writes a batch result as one JSON envelope and a stream as
// newline-delimited envelopes, flushed per fragment.
func (route *ChatRoute) writeResult(reqCtx *gin.Context, result *chathandler.TurnResult) {
	if !result.Streaming() {
		reqCtx.JSON(http.StatusOK, completion.Normalize(result.Outcome.Result, result.HistoryMetadata))
		return
	}

	reqCtx.Header("Content-Type", completion.ContentTypeNDJSON)
	reqCtx.Header("Cache-Control", "no-cache")
	reqCtx.Status(http.StatusOK)

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	written, err := completion.WriteStream(reqCtx.Request.Context(), reqCtx.Writer, reqCtx.Writer.Flush, result.Outcome.Stream, result.HistoryMetadata, "")
	metrics.StreamFragments.Observe(float64(written))
	metrics.RecordCompletion(true, result.Grounded, err, time.Since(result.Started).Seconds())
	if err != nil {
		route.log.Warn().
			Err(err).
			Int("fragments", written).
			Str("request_id", middlewares.RequestIDFromContext(reqCtx)).
			Msg("stream ended with error")
		_ = reqCtx.Error(err)
	}
}
