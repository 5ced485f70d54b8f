package middleware

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/helpdesk-relay/internal/common"
)

// Recovery turns a handler panic into a 500 JSON body instead of a dropped
// connection.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[Recovery] panic request_id=%s path=%s err=%v", c.GetString(RequestIDKey), c.Request.URL.Path, r)
				if !c.Writer.Written() {
					common.FailWithDetails(c, http.StatusInternalServerError, "server error", fmt.Sprint(r))
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}
