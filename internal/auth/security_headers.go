package auth

import (
	"github.com/gin-gonic/gin"
)

// apiHeaders are set on every response. Only JSON, event streams and cover
// images are served, so the content policy allows nothing but same-origin
// images.
var apiHeaders = [][2]string{
	{"X-Frame-Options", "DENY"},
	{"X-Content-Type-Options", "nosniff"},
	{"Referrer-Policy", "no-referrer"},
	{"Cross-Origin-Resource-Policy", "same-origin"},
	{"Content-Security-Policy", "default-src 'none'; img-src 'self'; frame-ancestors 'none'"},
}

const hstsValue = "max-age=31536000; includeSubDomains"

// SecurityHeaders sets the API response headers. With hsts, requests that
// reached the server over HTTPS, directly or behind a proxy, also get
// Strict-Transport-Security.
func SecurityHeaders(hsts bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		for _, kv := range apiHeaders {
			h.Set(kv[0], kv[1])
		}
		if hsts && (c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https") {
			h.Set("Strict-Transport-Security", hstsValue)
		}
		c.Next()
	}
}
