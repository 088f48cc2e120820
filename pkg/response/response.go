// Package response writes dev-backend JSON replies. Success bodies are the
// bare entity, failures are {"error": "..."}.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/livesync/pkg/logger"
)

type ErrorBody struct {
	Error string `json:"error"`
}

func Success(c *gin.Context, data any) {
	if data == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, data)
}

func Created(c *gin.Context, data any) { c.JSON(http.StatusCreated, data) }

func Fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, ErrorBody{Error: msg})
}

func BadRequest(c *gin.Context, msg string)   { Fail(c, http.StatusBadRequest, msg) }
func Unauthorized(c *gin.Context, msg string) { Fail(c, http.StatusUnauthorized, msg) }
func Forbidden(c *gin.Context, msg string)    { Fail(c, http.StatusForbidden, msg) }
func NotFound(c *gin.Context, msg string)     { Fail(c, http.StatusNotFound, msg) }

// InternalError hides err from the client and logs it.
func InternalError(c *gin.Context, err error) {
	logger.Error("internal error", zap.String("path", c.FullPath()), zap.Error(err))
	Fail(c, http.StatusInternalServerError, "internal error")
}
