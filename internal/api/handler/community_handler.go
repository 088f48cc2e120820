package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/livesync/internal/api/middleware"
	"github.com/d60-Lab/livesync/pkg/response"
)

type askRequest struct {
	Title string   `json:"title" binding:"required"`
	Body  string   `json:"body" binding:"required"`
	Tags  []string `json:"tags"`
}

type answerRequest struct {
	Body string `json:"body" binding:"required"`
}

type voteRequest struct {
	Delta int `json:"delta" binding:"required,oneof=-1 1"`
}

// ListQuestions 问题列表，按创建时间倒序
// @Router /api/community/questions [get]
func (h *Handler) ListQuestions(c *gin.Context) {
	list, err := h.communityService.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, list)
}

// AskQuestion 提问
// @Router /api/community/questions [post]
func (h *Handler) AskQuestion(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	q, err := h.communityService.Ask(c.Request.Context(), middleware.Identity(c), req.Title, req.Body, req.Tags)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, q)
}

// GetQuestion 问题详情和全部回答
// @Router /api/community/questions/{slug} [get]
func (h *Handler) GetQuestion(c *gin.Context) {
	q, err := h.communityService.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, q)
}

// DeleteQuestion 删除问题（作者或管理员）
// @Router /api/community/questions/{id} [delete]
func (h *Handler) DeleteQuestion(c *gin.Context) {
	if err := h.communityService.Delete(c.Request.Context(), middleware.Identity(c), c.Param("slug")); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, nil)
}

// AnswerQuestion 回答
// @Router /api/community/questions/{id}/answers [post]
func (h *Handler) AnswerQuestion(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	a, err := h.communityService.Answer(c.Request.Context(), middleware.Identity(c), c.Param("slug"), req.Body)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, a)
}

// LikeQuestion 切换点赞
// @Router /api/community/questions/{id}/like [post]
func (h *Handler) LikeQuestion(c *gin.Context) {
	res, err := h.communityService.ToggleLike(c.Request.Context(), middleware.Identity(c), c.Param("slug"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, res)
}

// ViewQuestion 浏览数 +1
// @Router /api/community/questions/{id}/view [post]
func (h *Handler) ViewQuestion(c *gin.Context) {
	views, err := h.communityService.View(c.Request.Context(), c.Param("slug"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"views": views})
}

// VoteQuestion 问题投票，delta 只能是 ±1
// @Router /api/community/questions/{id}/vote [post]
func (h *Handler) VoteQuestion(c *gin.Context) {
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	votes, err := h.communityService.VoteQuestion(c.Request.Context(), c.Param("slug"), req.Delta)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"votes": votes})
}

// @Router /api/community/answers/{id}/vote [post]
func (h *Handler) VoteAnswer(c *gin.Context) {
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	votes, err := h.communityService.VoteAnswer(c.Request.Context(), c.Param("id"), req.Delta)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"votes": votes})
}

// AcceptAnswer 采纳回答（问题作者）
// @Router /api/community/answers/{id}/accept [post]
func (h *Handler) AcceptAnswer(c *gin.Context) {
	a, err := h.communityService.Accept(c.Request.Context(), middleware.Identity(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, a)
}
