package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/helpdesk-relay/internal/chat"
	"github.com/suPer8Hu/helpdesk-relay/internal/common"
	"github.com/suPer8Hu/helpdesk-relay/internal/jobs"
)

func (h *Handler) SendChatMessageAsync(c *gin.Context) {
	req := bindChatReq(c)

	message, err := chat.MessageText(req.Message)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, err.Error())
		return
	}

	idempoKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(idempoKey) > 128 {
		common.Fail(c, http.StatusBadRequest, "idempotency key too long")
		return
	}

	sid := strings.TrimSpace(req.sessionID())
	if sid == "" {
		sid = chat.DefaultSessionID
	}

	job, created, err := h.JobSvc.Submit(c.Request.Context(), sid, message, idempoKey)
	if err != nil {
		log.Printf("[SendChatMessageAsync] Submit failed session_id=%s key=%s err=%v", sid, idempoKey, err)
		common.FailWithDetails(c, http.StatusInternalServerError, "enqueue failed", err.Error())
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"jobId": job.ID, "created": created})
}

func (h *Handler) GetChatJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if jobID == "" {
		common.Fail(c, http.StatusBadRequest, "job_id required")
		return
	}

	j, err := h.JobSvc.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			common.Fail(c, http.StatusNotFound, "job not found")
			return
		}
		log.Printf("[GetChatJob] job_id=%s err=%v", jobID, err)
		common.FailWithDetails(c, http.StatusInternalServerError, "server error", err.Error())
		return
	}

	var result json.RawMessage
	if j.ResultBody != nil {
		result = json.RawMessage(*j.ResultBody)
	}

	c.JSON(http.StatusOK, gin.H{
		"job":    j,
		"result": result,
	})
}
