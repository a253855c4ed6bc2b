package history

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"jan-server/services/envchat-api/internal/infrastructure/logger"
	"jan-server/services/envchat-api/internal/interfaces/httpserver/handlers/historyhandler"
	"jan-server/services/envchat-api/internal/interfaces/httpserver/middlewares"
	"jan-server/services/envchat-api/internal/interfaces/httpserver/requests"
	historyrequests "jan-server/services/envchat-api/internal/interfaces/httpserver/requests/history"
	"jan-server/services/envchat-api/internal/utils/platformerrors"
)

type HistoryRoute struct {
	handler *historyhandler.HistoryHandler
	log     zerolog.Logger
}

func NewHistoryRoute(handler *historyhandler.HistoryHandler) *HistoryRoute {
	return &HistoryRoute{
		handler: handler,
		log:     logger.Component("history_route"),
	}
}

// RegisterRouter mounts the history endpoints on router, which is expected to
// be the /history group.
func (route *HistoryRoute) RegisterRouter(router gin.IRouter) {
	router.GET("/list", route.list)
	router.POST("/read", route.read)
	router.POST("/rename", route.rename)
	router.POST("/message_feedback", route.feedback)
	router.DELETE("/delete", route.delete)
	router.DELETE("/delete_all", route.deleteAll)
	router.POST("/clear", route.clear)
	router.GET("/ensure", route.ensure)
}

func (route *HistoryRoute) list(reqCtx *gin.Context) {
	userID, ok := route.userID(reqCtx)
	if !ok {
		return
	}
	var params historyrequests.ListQueryParams
	if err := reqCtx.ShouldBindQuery(&params); err != nil {
		platformerrors.WriteValidationError(reqCtx, "invalid query parameters: "+err.Error())
		return
	}
	conversations, err := route.handler.List(reqCtx.Request.Context(), userID, params)
	if err != nil {
		platformerrors.WriteError(reqCtx, err, route.log)
		return
	}
	reqCtx.JSON(http.StatusOK, conversations)
}

func (route *HistoryRoute) read(reqCtx *gin.Context) {
	userID, ok := route.userID(reqCtx)
	if !ok {
		return
	}
	var request historyrequests.ConversationRequest
	if !route.bind(reqCtx, &request) || !route.require(reqCtx, "conversation_id", request.ConversationID) {
		return
	}
	response, err := route.handler.Read(reqCtx.Request.Context(), userID, request.ConversationID)
	if err != nil {
		platformerrors.WriteError(reqCtx, err, route.log)
		return
	}
	reqCtx.JSON(http.StatusOK, response)
}

func (route *HistoryRoute) rename(reqCtx *gin.Context) {
	userID, ok := route.userID(reqCtx)
	if !ok {
		return
	}
	var request historyrequests.RenameRequest
	if !route.bind(reqCtx, &request) ||
		!route.require(reqCtx, "conversation_id", request.ConversationID) ||
		!route.require(reqCtx, "title", request.Title) {
		return
	}
	conv, err := route.handler.Rename(reqCtx.Request.Context(), userID, request)
	if err != nil {
		platformerrors.WriteError(reqCtx, err, route.log)
		return
	}
	reqCtx.JSON(http.StatusOK, conv)
}

func (route *HistoryRoute) feedback(reqCtx *gin.Context) {
	userID, ok := route.userID(reqCtx)
	if !ok {
		return
	}
	var request historyrequests.FeedbackRequest
	if !route.bind(reqCtx, &request) ||
		!route.require(reqCtx, "message_id", request.MessageID) ||
		!route.require(reqCtx, "message_feedback", request.MessageFeedback) {
		return
	}
	response, err := route.handler.Feedback(reqCtx.Request.Context(), userID, request)
	if err != nil {
		platformerrors.WriteError(reqCtx, err, route.log)
		return
	}
	reqCtx.JSON(http.StatusOK, response)
}

func (route *HistoryRoute) delete(reqCtx *gin.Context) {
	userID, ok := route.userID(reqCtx)
	if !ok {
		return
	}
	var request historyrequests.ConversationRequest
	if !route.bind(reqCtx, &request) || !route.require(reqCtx, "conversation_id", request.ConversationID) {
		return
	}
	response, err := route.handler.Delete(reqCtx.Request.Context(), userID, request.ConversationID)
	if err != nil {
		platformerrors.WriteError(reqCtx, err, route.log)
		return
	}
	reqCtx.JSON(http.StatusOK, response)
}

func (route *HistoryRoute) deleteAll(reqCtx *gin.Context) {
	userID, ok := route.userID(reqCtx)
	if !ok {
		return
	}
	response, err := route.handler.DeleteAll(reqCtx.Request.Context(), userID)
	if err != nil {
		platformerrors.WriteError(reqCtx, err, route.log)
		return
	}
	reqCtx.JSON(http.StatusOK, response)
}

func (route *HistoryRoute) clear(reqCtx *gin.Context) {
	userID, ok := route.userID(reqCtx)
	if !ok {
		return
	}
	var request historyrequests.ConversationRequest
	if !route.bind(reqCtx, &request) || !route.require(reqCtx, "conversation_id", request.ConversationID) {
		return
	}
	response, err := route.handler.Clear(reqCtx.Request.Context(), userID, request.ConversationID)
	if err != nil {
		platformerrors.WriteError(reqCtx, err, route.log)
		return
	}
	reqCtx.JSON(http.StatusOK, response)
}

func (route *HistoryRoute) ensure(reqCtx *gin.Context) {
	status, message := route.handler.Ensure(reqCtx.Request.Context())
	if status == http.StatusOK {
		reqCtx.JSON(status, gin.H{"message": message})
		return
	}
	reqCtx.JSON(status, gin.H{"error": message})
}

func (route *HistoryRoute) userID(reqCtx *gin.Context) (string, bool) {
	principal, ok := middlewares.PrincipalFromContext(reqCtx)
	if !ok {
		platformerrors.WriteUnauthorized(reqCtx, "authentication required")
		return "", false
	}
	return principal.ID, true
}

func (route *HistoryRoute) bind(reqCtx *gin.Context, dst any) bool {
	if err := requests.BindJSON(reqCtx, dst); err != nil {
		platformerrors.WriteError(reqCtx, err, route.log)
		return false
	}
	return true
}

func (route *HistoryRoute) require(reqCtx *gin.Context, field, value string) bool {
	if err := requests.Required(reqCtx, field, value); err != nil {
		platformerrors.WriteError(reqCtx, err, route.log)
		return false
	}
	return true
}
