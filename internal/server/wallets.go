package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	transactiondomain "github.com/ovationhq/ovation/internal/transaction/domain"
)

func (s *Server) HandleGetWallet(c *gin.Context) {
	ownerType, ownerID, currency, ok := s.walletParams(c)
	if !ok {
		return
	}

	wallet, err := s.walletSvc.Get(c.Request.Context(), ownerType, ownerID, currency)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallet": wallet})
}

func (s *Server) HandleGetWalletLedger(c *gin.Context) {
	ownerType, ownerID, currency, ok := s.walletParams(c)
	if !ok {
		return
	}

	wallet, err := s.walletSvc.Get(c.Request.Context(), ownerType, ownerID, currency)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	entries, err := s.walletSvc.Ledger(c.Request.Context(), wallet.ID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallet": wallet, "entries": entries})
}

func (s *Server) walletParams(c *gin.Context) (transactiondomain.OwnerType, snowflake.ID, string, bool) {
	ownerType := transactiondomain.OwnerType(strings.ToLower(strings.TrimSpace(c.Param("ownerType"))))
	switch ownerType {
	case transactiondomain.OwnerTypeEvent, transactiondomain.OwnerTypeGroup, transactiondomain.OwnerTypeUser:
	default:
		AbortWithError(c, ErrInvalidRequest)
		return "", 0, "", false
	}

	ownerID, err := snowflake.ParseString(strings.TrimSpace(c.Param("ownerId")))
	if err != nil || ownerID == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return "", 0, "", false
	}

	currency := strings.ToUpper(strings.TrimSpace(c.DefaultQuery("currency", "NGN")))
	return ownerType, ownerID, currency, true
}
