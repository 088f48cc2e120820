package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/livesync/internal/api/middleware"
	"github.com/d60-Lab/livesync/pkg/response"
)

type sendRequest struct {
	ConversationID int64  `json:"conversationId" binding:"required"`
	Content        string `json:"content" binding:"required"`
}

type getOrCreateRequest struct {
	TargetUserID int64 `json:"targetUserId" binding:"required"`
}

type disconnectRequest struct {
	ConversationID int64 `json:"conversationId" binding:"required"`
}

// ListConversations 当前用户的会话列表
// @Router /api/messages/conversations [get]
func (h *Handler) ListConversations(c *gin.Context) {
	list, err := h.messageService.ListConversations(c.Request.Context(), middleware.Identity(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, list)
}

// ListMessages 会话消息，顺带标记已读
// @Router /api/messages/conversations/{id} [get]
func (h *Handler) ListMessages(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid conversation id")
		return
	}
	list, err := h.messageService.ListMessages(c.Request.Context(), middleware.Identity(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, list)
}

// SendMessage 发送消息
// @Router /api/messages/send [post]
func (h *Handler) SendMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	msg, err := h.messageService.Send(c.Request.Context(), middleware.Identity(c), req.ConversationID, req.Content)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, msg)
}

// SearchUsers 搜索可以私信的用户
// @Router /api/messages/search-users [get]
func (h *Handler) SearchUsers(c *gin.Context) {
	users, err := h.messageService.SearchUsers(c.Request.Context(), middleware.Identity(c), c.Query("query"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"users": users})
}

// GetOrCreateConversation 新建时返回 201
// @Router /api/messages/conversation/get-or-create [post]
func (h *Handler) GetOrCreateConversation(c *gin.Context) {
	var req getOrCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	id, created, err := h.messageService.GetOrCreate(c.Request.Context(), middleware.Identity(c), req.TargetUserID)
	if err != nil {
		fail(c, err)
		return
	}
	if created {
		response.Created(c, gin.H{"conversationId": id})
		return
	}
	response.Success(c, gin.H{"conversationId": id})
}

// DisconnectChat 管理员关闭会话
// @Router /api/messages/admin/disconnect [post]
func (h *Handler) DisconnectChat(c *gin.Context) {
	var req disconnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.messageService.Disconnect(c.Request.Context(), middleware.Identity(c), req.ConversationID); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"success": true})
}
