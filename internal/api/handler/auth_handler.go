package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/livesync/pkg/response"
)

type loginRequest struct {
	UserID   int64  `json:"user_id" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 开发环境登录，返回 JWT
// @Router /api/auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	token, err := h.authService.Login(c.Request.Context(), req.UserID, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"token": token})
}
