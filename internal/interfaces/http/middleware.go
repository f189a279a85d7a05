package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/memberhub/approval-workflow/internal/application/workflow"
	"github.com/memberhub/approval-workflow/internal/domain/event"
	domainwf "github.com/memberhub/approval-workflow/internal/domain/workflow"
)

const (
	actorKey        = "workflow.actor"
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-ID"
)

// requestIDMiddleware propagates X-Request-ID or assigns a fresh one
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		// events raised by this request share its id as correlation id
		c.Request = c.Request.WithContext(event.ContextWithCorrelation(c.Request.Context(), id))
		c.Next()
	}
}

// loggingMiddleware logs each request and feeds the request metrics
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		if s.metrics != nil {
			s.metrics.ObserveHTTP(method, route, status, latency)
		}

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", status,
			"latency", latency.String(),
			"client_ip", c.ClientIP(),
			"request_id", c.GetString(requestIDKey),
		)
	}
}

// authMiddleware resolves the bearer token into the acting reviewer
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   &ErrorBody{Code: codeUnauthorized, Message: "authorization token is not provided"},
			})
			return
		}

		claims, err := s.tokens.ValidateToken(token)
		if err != nil {
			s.logger.Warn("Rejected bearer token",
				"path", c.Request.URL.Path,
				"client_ip", c.ClientIP(),
				"error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   &ErrorBody{Code: codeUnauthorized, Message: err.Error()},
			})
			return
		}

		c.Set(actorKey, workflow.Actor{UserID: claims.UserID, Role: claims.Role})
		c.Next()
	}
}

// requireRole limits a route group to one workflow role
func (s *Server) requireRole(role domainwf.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := actorFrom(c)
		if actor.Role != role {
			s.logger.Warn("Forbidden request",
				"security_event", true,
				"user_id", actor.UserID,
				"role", actor.Role,
				"required_role", role,
				"path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusForbidden, Response{
				Success: false,
				Error:   errorBody(domainwf.Forbidden("role %s required", role)),
			})
			return
		}
		c.Next()
	}
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func actorFrom(c *gin.Context) workflow.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(workflow.Actor); ok {
			return actor
		}
	}
	return workflow.Actor{}
}
