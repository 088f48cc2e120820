package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/livesync/internal/service"
	"github.com/d60-Lab/livesync/pkg/response"
)

type Handler struct {
	authService      service.AuthService
	messageService   service.MessageService
	communityService service.CommunityService
}

func NewHandler(auth service.AuthService, messages service.MessageService, community service.CommunityService) *Handler {
	return &Handler{authService: auth, messageService: messages, communityService: community}
}

// fail 把服务层错误映射为 HTTP 状态
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		response.NotFound(c, "not found")
	case errors.Is(err, service.ErrChatClosed):
		response.Forbidden(c, "This conversation has been closed by the administrator.")
	case errors.Is(err, service.ErrForbidden):
		response.Forbidden(c, "forbidden")
	case errors.Is(err, service.ErrInvalid):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrBadLogin):
		response.Unauthorized(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
