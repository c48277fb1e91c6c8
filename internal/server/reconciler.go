package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HandleReconcilerPoll triggers one sweep on demand, used by operators when a
// provider reports a delivery incident.
func (s *Server) HandleReconcilerPoll(c *gin.Context) {
	if s.reconciler == nil {
		AbortWithError(c, ErrInternal)
		return
	}
	if err := s.reconciler.PollOnce(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
