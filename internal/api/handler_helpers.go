package api

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/response"
)

// StatusFor maps the engine error taxonomy onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case internal.IsValidation(err):
		return 400
	case errors.Is(err, internal.ErrSessionNotFound):
		return 404
	case errors.Is(err, internal.ErrInvalidTransition):
		return 409
	default:
		return 500
	}
}

func HandleError(c *gin.Context, logger internal.Logger, err error, status int, msg string) {
	requestID := c.GetString("request_id")
	logger.Errorf("[request_id=%s] %s: %v", requestID, msg, err)
	var resp response.APIResponse
	switch status {
	case 400:
		resp = response.BadRequest(msg + ": " + err.Error())
	case 404:
		resp = response.NotFound(msg + ": " + err.Error())
	case 409:
		resp = response.Conflict(msg + ": " + err.Error())
	case 500:
		resp = response.InternalError(msg + ": " + err.Error())
	default:
		resp = response.NewAppError(status, msg+": "+err.Error())
	}
	c.JSON(status, resp)
}

func HandleSuccess(c *gin.Context, logger internal.Logger, data interface{}, meta map[string]any) {
	requestID := c.GetString("request_id")
	logger.Infof("[request_id=%s] Success", requestID)
	c.JSON(200, response.Success(data, meta))
}
