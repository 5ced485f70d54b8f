package common

import "github.com/gin-gonic/gin"

// Fail writes the error body every failure path shares: {"error": msg}.
func Fail(c *gin.Context, httpStatus int, msg string) {
	c.JSON(httpStatus, gin.H{"error": msg})
}

// FailWithDetails is Fail plus a details field.
func FailWithDetails(c *gin.Context, httpStatus int, msg string, details any) {
	c.JSON(httpStatus, gin.H{"error": msg, "details": details})
}
