package handlers

import (
	"errors"
	"io"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/helpdesk-relay/internal/chat"
	"github.com/suPer8Hu/helpdesk-relay/internal/httpapi/middleware"
)

// chatReq keeps message untyped so a non-string value reaches validation
// instead of failing JSON binding.
type chatReq struct {
	Message   any `json:"message"`
	SessionID any `json:"sessionId"`
}

func (r chatReq) sessionID() string {
	if s, ok := r.SessionID.(string); ok {
		return s
	}
	return ""
}

// bindChatReq treats a body that is not a JSON object as {}, so it fails
// message validation like a missing field.
func bindChatReq(c *gin.Context) chatReq {
	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		if !errors.Is(err, io.EOF) {
			log.Printf("[chat] unreadable body request_id=%s err=%v", c.GetString(middleware.RequestIDKey), err)
		}
		return chatReq{}
	}
	return req
}

func (h *Handler) SendChatMessage(c *gin.Context) {
	req := bindChatReq(c)

	out := h.ChatSvc.Handle(c.Request.Context(), chat.Request{
		SessionID: req.sessionID(),
		Message:   req.Message,
	})
	c.JSON(out.Status, out.Body)
}
