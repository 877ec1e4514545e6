package httpapi

import (
	"strings"
	"time"

	"github.com/dmitrijs2005/paykeeper/internal/common"
	"github.com/dmitrijs2005/paykeeper/internal/server/actor"
	"github.com/dmitrijs2005/paykeeper/internal/server/auth"
	"github.com/gin-gonic/gin"
)

const actorKey = "actor"

func (s *Server) authenticate(c *gin.Context) {
	header := c.GetHeader(common.AuthorizationHeaderName)
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		s.abort(c, common.ErrUnauthorized)
		return
	}

	a, err := auth.ActorFromToken(token, s.jwtSecret)
	if err != nil {
		s.abort(c, err)
		return
	}

	c.Set(actorKey, a)
	c.Request = c.Request.WithContext(actor.WithActor(c.Request.Context(), a))
	c.Next()
}

func (s *Server) require(obj, act string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authz.Authorize(currentActor(c), obj, act); err != nil {
			s.abort(c, err)
			return
		}
		c.Next()
	}
}

func currentActor(c *gin.Context) actor.Actor {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(actor.Actor); ok {
			return a
		}
	}
	return actor.Actor{}
}

func (s *Server) requestLogger(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Debug(c.Request.Context(), "request",
		"method", c.Request.Method,
		"path", c.FullPath(),
		"status", c.Writer.Status(),
		"duration", time.Since(start).String())
}
