package httpapi

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/helpdesk-relay/internal/common"
	"github.com/suPer8Hu/helpdesk-relay/internal/httpapi/handlers"
	"github.com/suPer8Hu/helpdesk-relay/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Idempotency-Key", middleware.RequestIDHeader},
		ExposeHeaders:   []string{middleware.RequestIDHeader},
	}))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, "Method not allowed")
	})

	for _, prefix := range []string{"", "/api"} {
		r.GET(prefix+"/health", h.Health)
		r.POST(prefix+"/chat", h.SendChatMessage)

		if h.JobSvc != nil {
			r.POST(prefix+"/chat/async", h.SendChatMessageAsync)
			r.GET(prefix+"/chat/jobs/:job_id", h.GetChatJob)
		}
	}
	return r
}
