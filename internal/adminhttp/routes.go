// Package adminhttp exposes an auxiliary gin HTTP surface alongside the
// host's primary JSON-RPC transport: health/status endpoints for
// operators, never used by the agent protocol itself.
package adminhttp

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kandev/kaiak/internal/common/logger"
	"github.com/kandev/kaiak/internal/session"
)

// SessionLister is the subset of *session.Manager the admin surface needs.
type SessionLister interface {
	ListSessions() []session.SessionSummary
}

// RegisterRoutes wires the admin health/status routes onto router.
func RegisterRoutes(router *gin.Engine, sessions SessionLister, log *logger.Logger) {
	router.GET("/healthz", httpHealthz)
	router.GET("/api/v1/sessions", httpListSessions(sessions))
}

func httpHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type sessionStatusDTO struct {
	ID        string `json:"session_id"`
	Workspace string `json:"workspace"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
	Locked    bool   `json:"locked"`
	LockedAt  string `json:"locked_at,omitempty"`
}

func httpListSessions(sessions SessionLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		summaries := sessions.ListSessions()
		out := make([]sessionStatusDTO, 0, len(summaries))
		for _, s := range summaries {
			dto := sessionStatusDTO{
				ID:        s.ID,
				Workspace: s.Workspace,
				Name:      s.Name,
				CreatedAt: s.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
				Locked:    s.Locked,
			}
			if s.Locked {
				dto.LockedAt = s.LockedAt.Format("2006-01-02T15:04:05Z07:00")
			}
			out = append(out, dto)
		}
		c.JSON(http.StatusOK, gin.H{"sessions": out, "count": len(out)})
	}
}

// NewEngine builds a gin.Engine in release mode with the admin routes
// registered, ready to be served on cfg.Addr.
func NewEngine(sessions SessionLister, log *logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	RegisterRoutes(router, sessions, log)
	return router
}
