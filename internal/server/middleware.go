package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/signalwatch/signalwatch/internal/common"
)

// adminKeyHeader carries the admin credential.
const adminKeyHeader = "X-Admin-Key"

// actorKey is the context key holding the authenticated actor fingerprint.
const actorKey = "actor"

type scope int

const (
	scopeRead scope = iota
	scopeWrite
)

// fingerprint derives a short stable identifier from a key, safe to store
// in audit logs.
func fingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}

func keysEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// requireScope authenticates X-Admin-Key against the configured keys. The
// write key implies read; the legacy single key implies both. With no
// keys configured the admin surface is open.
func (s *Server) requireScope(want scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg := s.cfg.Server
		if cfg.AdminKey == "" && cfg.AdminReadKey == "" && cfg.AdminWriteKey == "" {
			c.Set(actorKey, "anonymous")
			c.Next()
			return
		}

		key := c.GetHeader(adminKeyHeader)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + adminKeyHeader})
			return
		}

		allowed := keysEqual(key, cfg.AdminKey) || keysEqual(key, cfg.AdminWriteKey)
		if want == scopeRead {
			allowed = allowed || keysEqual(key, cfg.AdminReadKey)
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			return
		}

		c.Set(actorKey, fingerprint(key))
		c.Next()
	}
}

// actor returns the authenticated actor fingerprint for audit entries.
func actor(c *gin.Context) string {
	if v, ok := c.Get(actorKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return "anonymous"
}

// rateLimit guards one admin action with the sliding-window limiter.
func (s *Server) rateLimit(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.limiter.allow(action, actor(c)); err != nil {
			respondError(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

// requestLogger emits one structured log line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := common.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			common.LogInfo("request failed", fields)
			return
		}
		common.LogDebug("request", fields)
	}
}
