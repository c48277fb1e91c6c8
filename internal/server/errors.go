package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	gatewaydomain "github.com/ovationhq/ovation/internal/gateway/domain"
	settlementdomain "github.com/ovationhq/ovation/internal/settlement/domain"
	transactiondomain "github.com/ovationhq/ovation/internal/transaction/domain"
	walletdomain "github.com/ovationhq/ovation/internal/wallet/domain"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrNotFound       = errors.New("not_found")
	ErrInternal       = errors.New("internal_error")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case errors.Is(err, ErrNotFound),
		errors.Is(err, transactiondomain.ErrNotFound),
		errors.Is(err, walletdomain.ErrWalletNotFound),
		errors.Is(err, gatewaydomain.ErrProviderNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, walletdomain.ErrInsufficientFunds):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "insufficient funds",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, transactiondomain.ErrInvalidProvider),
		errors.Is(err, transactiondomain.ErrInvalidReference),
		errors.Is(err, transactiondomain.ErrInvalidAmount),
		errors.Is(err, transactiondomain.ErrInvalidCurrency),
		errors.Is(err, transactiondomain.ErrInvalidOwner),
		errors.Is(err, settlementdomain.ErrInvalidEvent),
		errors.Is(err, walletdomain.ErrInvalidOwner),
		errors.Is(err, walletdomain.ErrInvalidAmount),
		errors.Is(err, walletdomain.ErrInvalidReference):
		return true
	default:
		return false
	}
}
