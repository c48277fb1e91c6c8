package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	gatewaydomain "github.com/ovationhq/ovation/internal/gateway/domain"
)

// HandleProviderWebhook receives raw provider deliveries. Rejections that the
// provider cannot fix by retrying still answer 200 so delivery queues drain;
// only transient processing errors surface as 5xx.
func (s *Server) HandleProviderWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	err = s.webhookSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		switch {
		case errors.Is(err, gatewaydomain.ErrProviderNotFound):
			AbortWithError(c, ErrNotFound)
		case errors.Is(err, gatewaydomain.ErrInvalidSignature),
			errors.Is(err, gatewaydomain.ErrInvalidPayload),
			errors.Is(err, gatewaydomain.ErrInvalidEvent):
			c.JSON(http.StatusOK, gin.H{"ok": false, "reason": err.Error()})
		default:
			AbortWithError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
