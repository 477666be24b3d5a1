package server

import (
	"bytes"
	"crypto/hmac"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"spread-trader/internal/notify"
)

// maxBodyBytes caps request bodies read for signature checks.
const maxBodyBytes = 1 << 20

// RequestLogger logs one line per request.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := logger.Info()
		if status >= http.StatusInternalServerError {
			event = logger.Error()
		} else if status >= http.StatusBadRequest {
			event = logger.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

// RateLimit rejects requests once the shared token bucket is empty.
func RateLimit(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			fail(c, http.StatusTooManyRequests, ErrCodeRateLimited, "Rate limit exceeded. Please try again later.")
			return
		}
		c.Next()
	}
}

// VerifySignature requires the hex HMAC-SHA256 of the raw body, keyed by
// secret, in the signature header. The body is restored for the handler.
func VerifySignature(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Unreadable request body")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		got := c.GetHeader(notify.SignatureHeader)
		if got == "" {
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "Missing "+notify.SignatureHeader+" header")
			return
		}
		want := notify.Sign(secret, body)
		if !hmac.Equal([]byte(got), []byte(want)) {
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "Invalid signature")
			return
		}
		c.Next()
	}
}
