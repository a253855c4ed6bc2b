package requests

import (
	"errors"

	"github.com/gin-gonic/gin"

	"jan-server/services/envchat-api/internal/domain/content"
	"jan-server/services/envchat-api/internal/utils/platformerrors"
)

// BindJSON decodes the request body into dst. Message content that matches no
// accepted shape is reported as malformed content, anything else as a
// validation error.
func BindJSON(reqCtx *gin.Context, dst any) error {
	err := reqCtx.ShouldBindJSON(dst)
	if err == nil {
		return nil
	}
	ctx := reqCtx.Request.Context()
	var malformed *content.MalformedError
	if errors.As(err, &malformed) {
		return platformerrors.NewError(ctx, platformerrors.LayerRoute, platformerrors.ErrorTypeMalformedContent, malformed.Error(), err, "5d0f7a3e-92c1-4b8e-a6f4-1e7c2b9d8a05")
	}
	return platformerrors.NewError(ctx, platformerrors.LayerRoute, platformerrors.ErrorTypeValidation, "invalid request body: "+err.Error(), err, "c3a81e6f-0b4d-4f29-9e57-7d2a6c1b4f80")
}

// Required returns a validation error naming field when value is empty.
func Required(reqCtx *gin.Context, field, value string) error {
	if value != "" {
		return nil
	}
	return platformerrors.NewError(reqCtx.Request.Context(), platformerrors.LayerRoute, platformerrors.ErrorTypeValidation, field+" is required", nil, "8e4b2c71-6a3f-4d05-b1e9-2f7c9a0d3e64")
}
