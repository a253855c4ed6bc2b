package environment

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"jan-server/services/envchat-api/internal/domain/identity"
	"jan-server/services/envchat-api/internal/infrastructure/logger"
	"jan-server/services/envchat-api/internal/interfaces/httpserver/handlers/environmenthandler"
	"jan-server/services/envchat-api/internal/interfaces/httpserver/middlewares"
	"jan-server/services/envchat-api/internal/interfaces/httpserver/requests"
	environmentrequests "jan-server/services/envchat-api/internal/interfaces/httpserver/requests/environment"
	"jan-server/services/envchat-api/internal/utils/platformerrors"
)

type EnvironmentRoute struct {
	handler *environmenthandler.EnvironmentHandler
	log     zerolog.Logger
}

func NewEnvironmentRoute(handler *environmenthandler.EnvironmentHandler) *EnvironmentRoute {
	return &EnvironmentRoute{
		handler: handler,
		log:     logger.Component("environment_route"),
	}
}

func (route *EnvironmentRoute) RegisterRouter(router gin.IRouter) {
	router.GET("/frontend_settings", route.frontendSettings)

	environments := router.Group("/api/environments")
	environments.GET("", route.list)
	environments.GET("/schema", route.schema)
	environments.POST("", route.create)
	environments.PUT("/:id", route.update)
	environments.DELETE("/:id", route.delete)
}

func (route *EnvironmentRoute) list(reqCtx *gin.Context) {
	principal, ok := route.principal(reqCtx)
	if !ok {
		return
	}
	summaries, err := route.handler.List(reqCtx.Request.Context(), principal)
	if err != nil {
		platformerrors.WriteError(reqCtx, err, route.log)
		return
	}
	reqCtx.JSON(http.StatusOK, summaries)
}

func (route *EnvironmentRoute) schema(reqCtx *gin.Context) {
	reqCtx.JSON(http.StatusOK, route.handler.Schema())
}

func (route *EnvironmentRoute) frontendSettings(reqCtx *gin.Context) {
	principal, ok := route.principal(reqCtx)
	if !ok {
		return
	}
	var params environmentrequests.FrontendSettingsQueryParams
	if err := reqCtx.ShouldBindQuery(&params); err != nil {
		platformerrors.WriteValidationError(reqCtx, "invalid query parameters: "+err.Error())
		return
	}
	settings, err := route.handler.FrontendSettings(reqCtx.Request.Context(), principal, params.EnvironmentID)
	if err != nil {
		platformerrors.WriteError(reqCtx, err, route.log)
		return
	}
	reqCtx.JSON(http.StatusOK, settings)
}

func (route *EnvironmentRoute) create(reqCtx *gin.Context) {
	principal, ok := route.principal(reqCtx)
	if !ok {
		return
	}
	var request environmentrequests.CreateEnvironmentRequest
	if err := requests.BindJSON(reqCtx, &request); err != nil {
		platformerrors.WriteError(reqCtx, err, route.log)
		return
	}
	env, err := route.handler.Create(reqCtx.Request.Context(), principal, request)
	if err != nil {
		platformerrors.WriteError(reqCtx, err, route.log)
		return
	}
	reqCtx.JSON(http.StatusCreated, env)
}

func (route *EnvironmentRoute) update(reqCtx *gin.Context) {
	principal, ok := route.principal(reqCtx)
	if !ok {
		return
	}
	var request environmentrequests.UpdateEnvironmentRequest
	if err := requests.BindJSON(reqCtx, &request); err != nil {
		platformerrors.WriteError(reqCtx, err, route.log)
		return
	}
	env, err := route.handler.Update(reqCtx.Request.Context(), principal, reqCtx.Param("id"), request)
	if err != nil {
		platformerrors.WriteError(reqCtx, err, route.log)
		return
	}
	reqCtx.JSON(http.StatusOK, env)
}

func (route *EnvironmentRoute) delete(reqCtx *gin.Context) {
	principal, ok := route.principal(reqCtx)
	if !ok {
		return
	}
	if err := route.handler.Delete(reqCtx.Request.Context(), principal, reqCtx.Param("id")); err != nil {
		platformerrors.WriteError(reqCtx, err, route.log)
		return
	}
	reqCtx.Status(http.StatusNoContent)
}

func (route *EnvironmentRoute) principal(reqCtx *gin.Context) (identity.Principal, bool) {
	principal, ok := middlewares.PrincipalFromContext(reqCtx)
	if !ok {
		platformerrors.WriteUnauthorized(reqCtx, "authentication required")
	}
	return principal, ok
}
