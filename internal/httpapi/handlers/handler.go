package handlers

import (
	"github.com/suPer8Hu/helpdesk-relay/internal/chat"
	"github.com/suPer8Hu/helpdesk-relay/internal/jobs"
)

type Handler struct {
	ChatSvc *chat.Service
	// JobSvc is nil when async chat is disabled.
	JobSvc *jobs.Service
}

func NewHandler(chatSvc *chat.Service, jobSvc *jobs.Service) *Handler {
	return &Handler{ChatSvc: chatSvc, JobSvc: jobSvc}
}
