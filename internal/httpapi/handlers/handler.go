package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/kairos/internal/chat"
	"github.com/suPer8Hu/kairos/internal/common"
)

// Pinger is anything /ping should check, such as the database or Redis.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	ChatSvc *chat.Service
	Deps    map[string]Pinger
}

func NewHandler(chatSvc *chat.Service, deps map[string]Pinger) *Handler {
	return &Handler{ChatSvc: chatSvc, Deps: deps}
}

func (h *Handler) Ping(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := gin.H{}
	healthy := true
	for name, p := range h.Deps {
		if err := p.Ping(ctx); err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}
	if !healthy {
		common.FailWith(c, http.StatusServiceUnavailable, 50300, "dependency down", status)
		return
	}
	common.OK(c, gin.H{"pong": true, "deps": status})
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }
