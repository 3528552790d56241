package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"realtime-poll-backend/models"
	"realtime-poll-backend/service"
)

const (
	// 浏览器令牌cookie，首次访问时签发，有效期一年
	browserTokenCookie = "browser_token"
	browserTokenMaxAge = 365 * 24 * 60 * 60
)

// PollHandler 处理投票相关API请求
type PollHandler struct {
	pollService *service.PollService
}

// NewPollHandler 创建投票处理器
func NewPollHandler(pollService *service.PollService) *PollHandler {
	return &PollHandler{pollService: pollService}
}

// CreatePollInput 创建投票请求体
type CreatePollInput struct {
	Question string   `json:"question" binding:"required"`
	Options  []string `json:"options" binding:"required"`
}

// VoteInput 提交投票请求体
type VoteInput struct {
	OptionID uint `json:"option_id" binding:"required"`
}

// CreatePoll 创建投票
func (h *PollHandler) CreatePoll(c *gin.Context) {
	ip := c.ClientIP()
	if !h.pollService.CheckRateLimit(ip) {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"success":      false,
			"error":        "Too many requests. Please try again later.",
			"rate_limited": true,
		})
		return
	}

	var input CreatePollInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	poll, err := h.pollService.CreatePoll(c.Request.Context(), input.Question, input.Options)
	if err != nil {
		var validationErr *service.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": validationErr.Reason})
			return
		}
		log.Printf("创建投票失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "An error occurred. Please try again."})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "poll": poll})
}

// GetPoll 查询投票详情，附带当前结果和该浏览器是否已投票
func (h *PollHandler) GetPoll(c *gin.Context) {
	ctx := c.Request.Context()

	poll, err := h.pollService.GetPollByCode(ctx, c.Param("code"))
	if err != nil {
		if errors.Is(err, service.ErrPollNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Poll not found"})
			return
		}
		log.Printf("查询投票失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to get poll"})
		return
	}

	token := h.ensureBrowserToken(c)
	hasVoted, votedOptionID, err := h.pollService.HasVoted(ctx, poll.ID, token)
	if err != nil {
		log.Printf("查询投票记录失败: %v", err)
		hasVoted = false
	}

	results, err := h.pollService.GetResults(ctx, poll.PollCode)
	if err != nil {
		log.Printf("计算投票结果失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to get results"})
		return
	}

	resp := gin.H{
		"success":   true,
		"poll":      poll,
		"results":   results,
		"has_voted": hasVoted,
	}
	if hasVoted {
		resp["voted_option_id"] = votedOptionID
	}
	c.JSON(http.StatusOK, resp)
}

// SubmitVote 提交投票并返回最新结果快照
func (h *PollHandler) SubmitVote(c *gin.Context) {
	var input VoteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Please select an option"})
		return
	}

	ip := c.ClientIP()
	token := h.ensureBrowserToken(c)

	snapshot, err := h.pollService.SubmitVote(c.Request.Context(), c.Param("code"), input.OptionID, ip, token)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success":      false,
				"error":        "Too many requests. Please try again later.",
				"rate_limited": true,
			})
		case errors.Is(err, service.ErrPollNotFound):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Poll not found"})
		case errors.Is(err, service.ErrInvalidOption):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid option selected"})
		case errors.Is(err, service.ErrDuplicateVote):
			c.JSON(http.StatusConflict, gin.H{
				"success":       false,
				"error":         "You have already voted",
				"already_voted": true,
			})
		default:
			log.Printf("提交投票失败: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to submit vote"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "results": snapshot})
}

// GetResults 查询结果快照，供无WebSocket的客户端轮询
func (h *PollHandler) GetResults(c *gin.Context) {
	snapshot, err := h.pollService.GetResults(c.Request.Context(), c.Param("code"))
	if err != nil {
		if errors.Is(err, service.ErrPollNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Poll not found"})
			return
		}
		log.Printf("计算投票结果失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get results"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// ensureBrowserToken 读取浏览器令牌cookie，缺失时签发新令牌
func (h *PollHandler) ensureBrowserToken(c *gin.Context) string {
	token, err := c.Cookie(browserTokenCookie)
	if err != nil || token == "" {
		token = models.GenerateBrowserToken()
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(browserTokenCookie, token, browserTokenMaxAge, "/", "", false, true)
	}
	return token
}
