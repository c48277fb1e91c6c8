package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	transactiondomain "github.com/ovationhq/ovation/internal/transaction/domain"
)

type initiateTransactionRequest struct {
	Provider       string         `json:"provider" binding:"required"`
	Reference      string         `json:"reference"`
	Amount         int64          `json:"amount" binding:"required"`
	Currency       string         `json:"currency" binding:"required"`
	Quantity       int            `json:"quantity"`
	BuyerEmail     string         `json:"buyer_email"`
	Metadata       map[string]any `json:"metadata"`
	IdempotencyKey string         `json:"idempotency_key"`
}

type initiateTransactionResponse struct {
	Transaction      *transactiondomain.Transaction `json:"transaction"`
	AuthorizationURL string                         `json:"authorization_url"`
	AccessCode       string                         `json:"access_code,omitempty"`
	Cached           bool                           `json:"cached"`
}

func (s *Server) HandleInitiateTransaction(c *gin.Context) {
	var req initiateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if key := strings.TrimSpace(c.GetHeader("Idempotency-Key")); key != "" {
		req.IdempotencyKey = key
	}

	resp, err := s.transactionSvc.Initiate(c.Request.Context(), transactiondomain.RegisterRequest{
		Provider:       req.Provider,
		Reference:      req.Reference,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Quantity:       req.Quantity,
		BuyerEmail:     req.BuyerEmail,
		Metadata:       req.Metadata,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, initiateTransactionResponse{
		Transaction:      resp.Transaction,
		AuthorizationURL: resp.AuthorizationURL,
		AccessCode:       resp.AccessCode,
		Cached:           resp.IsCachedResponse,
	})
}

func (s *Server) HandleGetTransaction(c *gin.Context) {
	reference := strings.TrimSpace(c.Param("reference"))
	txn, err := s.transactionSvc.GetByReference(c.Request.Context(), reference)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": txn})
}
