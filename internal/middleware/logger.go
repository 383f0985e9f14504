package middleware

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// sensitiveHeaderPatterns matches headers that must never reach the logs
var sensitiveHeaderPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)authorization`),
	regexp.MustCompile(`(?i)api[-_]?key`),
	regexp.MustCompile(`(?i)x-goog-api-key`),
	regexp.MustCompile(`(?i)token`),
	regexp.MustCompile(`(?i)secret`),
	regexp.MustCompile(`(?i)cookie`),
}

// LogEntry represents a structured request log entry
type LogEntry struct {
	Timestamp  string            `json:"timestamp"`
	Method     string            `json:"method"`
	Path       string            `json:"path"`
	StatusCode int               `json:"status_code"`
	Latency    string            `json:"latency"`
	ClientIP   string            `json:"client_ip"`
	RequestID  string            `json:"request_id,omitempty"`
	Headers    map[string]string `json:"headers"`
	Error      string            `json:"error,omitempty"`
}

// RequestLogger creates a middleware that logs every request as one JSON
// line after it completes
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		entry := LogEntry{
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
			Method:     c.Request.Method,
			Path:       c.Request.URL.Path,
			StatusCode: c.Writer.Status(),
			Latency:    time.Since(startTime).String(),
			ClientIP:   c.ClientIP(),
			RequestID:  c.GetString(RequestIDKey),
			Headers:    redactHeaders(c.Request.Header),
		}
		if len(c.Errors) > 0 {
			entry.Error = c.Errors.String()
		}

		jsonBytes, err := json.Marshal(entry)
		if err != nil {
			fmt.Printf(`{"error": "failed to marshal log entry: %v"}%s`, err, "\n")
			return
		}
		fmt.Println(string(jsonBytes))
	}
}

// redactHeaders replaces sensitive header values before logging
func redactHeaders(headers map[string][]string) map[string]string {
	redacted := make(map[string]string)
	for key, values := range headers {
		if isSensitiveHeader(key) {
			redacted[key] = "[REDACTED]"
		} else {
			redacted[key] = strings.Join(values, ", ")
		}
	}
	return redacted
}

func isSensitiveHeader(headerName string) bool {
	for _, pattern := range sensitiveHeaderPatterns {
		if pattern.MatchString(headerName) {
			return true
		}
	}
	return false
}
