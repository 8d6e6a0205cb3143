// Package validation provides input validation helpers for the PanelPay API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxNoteLength bounds free-text fields like grant notes and refund reasons
const MaxNoteLength = 500

// MaxUserIDLength bounds user ids coming in from URLs and checkout metadata
const MaxUserIDLength = 128

// userIDRegex matches the app's account ids: URL-safe, no whitespace
var userIDRegex = regexp.MustCompile(`^[A-Za-z0-9_.:@-]+$`)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidUserID checks if a string is an acceptable account id
func IsValidUserID(id string) bool {
	if id == "" || len(id) > MaxUserIDLength {
		return false
	}
	return userIDRegex.MatchString(id)
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	s = strings.ReplaceAll(s, "\x00", "")
	return s
}
