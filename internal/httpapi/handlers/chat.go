package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/kairos/internal/ai"
	"github.com/suPer8Hu/kairos/internal/chat"
	"github.com/suPer8Hu/kairos/internal/common"
	"github.com/suPer8Hu/kairos/internal/dispatch"
	"github.com/suPer8Hu/kairos/internal/httpapi/middleware"
	"github.com/suPer8Hu/kairos/internal/quota"
	"gorm.io/gorm"
)

const OrganizationHeader = "X-Organization-ID"

const unavailableReply = "Sorry, the assistant is unavailable right now. Your message was saved; please try again shortly."

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}

type createSessionReq struct {
	Mode           string  `json:"mode"`
	OrganizationID *string `json:"organization_id"`
}

func (h *Handler) CreateChatSession(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req createSessionReq
	_ = c.ShouldBindJSON(&req) // allow empty {}

	mode := ai.ModeGeneral
	if req.Mode != "" {
		m, err := ai.ParseMode(req.Mode)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10004, err.Error())
			return
		}
		mode = m
	}

	orgID := req.OrganizationID
	if hdr := strings.TrimSpace(c.GetHeader(OrganizationHeader)); hdr != "" {
		orgID = &hdr
	}

	sess, err := h.ChatSvc.CreateSession(c.Request.Context(), uid, orgID, mode)
	if err != nil {
		if errors.Is(err, quota.ErrQuotaExceeded) {
			common.Fail(c, http.StatusConflict, 40901, err.Error())
			return
		}
		log.Printf("[CreateChatSession] failed uid=%d mode=%s err=%v", uid, mode, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to create session")
		return
	}

	common.OK(c, gin.H{"session_id": sess.SessionID, "mode": sess.Mode, "organization_id": sess.OrganizationID})
}

type sendMessageReq struct {
	SessionID string `json:"session_id" binding:"required"`
	Message   string `json:"message" binding:"required"`
	ImageURL  string `json:"image_url"`
}

func (h *Handler) SendChatMessage(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	reply, err := h.ChatSvc.SendMessage(c.Request.Context(), chat.SendInput{
		UserID:    uid,
		SessionID: req.SessionID,
		Content:   req.Message,
		ImageURL:  req.ImageURL,
		Token:     c.GetString(middleware.TokenKey),
	})
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			common.Fail(c, http.StatusBadRequest, 10002, "message is empty")
		case errors.Is(err, gorm.ErrRecordNotFound):
			common.Fail(c, http.StatusNotFound, 40004, "session not found")
		case errors.Is(err, dispatch.ErrGeneralUnavailable):
			log.Printf("[SendChatMessage] general unavailable uid=%d session_id=%s err=%v", uid, req.SessionID, err)
			common.FailWith(c, http.StatusBadGateway, 50201, "assistant unavailable", gin.H{
				"session_id": req.SessionID,
				"reply":      unavailableReply,
			})
		default:
			log.Printf("[SendChatMessage] failed uid=%d session_id=%s err=%v", uid, req.SessionID, err)
			common.Fail(c, http.StatusInternalServerError, 50003, "failed to send message")
		}
		return
	}

	common.OK(c, gin.H{
		"session_id":           req.SessionID,
		"reply":                reply.AssistantMessage.Content,
		"message_id":           reply.AssistantMessage.ID,
		"source":               reply.Route.Source,
		"fell_back_to_general": reply.Route.FellBackToGeneral,
		"fallback_reason":      reply.Route.FallbackReason,
		"intent":               reply.Intent,
		"action":               reply.Action,
	})
}

func (h *Handler) ListChatMessages(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	sessionID := c.Param("session_id")

	limit, _ := strconv.Atoi(c.Query("limit"))
	var beforeID uint64
	if s := c.Query("before_id"); s != "" {
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			beforeID = n
		}
	}

	msgs, err := h.ChatSvc.ListMessages(c.Request.Context(), uid, sessionID, limit, beforeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40004, "session not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list messages")
		return
	}

	var nextBeforeID uint64
	if len(msgs) > 0 {
		nextBeforeID = msgs[len(msgs)-1].ID
	}

	common.OK(c, gin.H{
		"messages":       msgs,
		"next_before_id": nextBeforeID,
	})
}

type setModeReq struct {
	Mode string `json:"mode" binding:"required"`
}

func (h *Handler) SetChatMode(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req setModeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	mode, err := ai.ParseMode(req.Mode)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, err.Error())
		return
	}

	sessionID := c.Param("session_id")
	if err := h.ChatSvc.SetMode(c.Request.Context(), uid, sessionID, mode); err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			common.Fail(c, http.StatusNotFound, 40004, "session not found")
		case errors.Is(err, quota.ErrQuotaExceeded):
			common.Fail(c, http.StatusConflict, 40901, err.Error())
		default:
			log.Printf("[SetChatMode] failed uid=%d session_id=%s mode=%s err=%v", uid, sessionID, mode, err)
			common.Fail(c, http.StatusInternalServerError, 50004, "failed to set mode")
		}
		return
	}
	common.OK(c, gin.H{"session_id": sessionID, "mode": mode})
}

func (h *Handler) GetChatQuota(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	st, err := h.ChatSvc.State(c.Request.Context(), uid, c.Param("session_id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40004, "session not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50005, "failed to read quota")
		return
	}
	common.OK(c, st)
}

type classifyReq struct {
	Message string `json:"message" binding:"required"`
}

func (h *Handler) ClassifyMessage(c *gin.Context) {
	var req classifyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	common.OK(c, h.ChatSvc.Classify(req.Message))
}
