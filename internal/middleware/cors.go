package middleware

import "github.com/gin-gonic/gin"

// Cors allows cross-origin FHIR clients (web-based viewers, SMART apps) to
// call the REST API directly.
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS, HEAD")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Accept, Prefer, If-Match, If-None-Match, If-None-Exist")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
