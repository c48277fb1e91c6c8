package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ovationhq/ovation/internal/config"
	"github.com/ovationhq/ovation/internal/reconciler"
	settlementdomain "github.com/ovationhq/ovation/internal/settlement/domain"
	transactiondomain "github.com/ovationhq/ovation/internal/transaction/domain"
	walletdomain "github.com/ovationhq/ovation/internal/wallet/domain"
	"github.com/ovationhq/ovation/internal/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogMiddleware(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	db             *gorm.DB
	genID          *snowflake.Node
	transactionSvc transactiondomain.Service
	settlementSvc  settlementdomain.Service
	walletSvc      walletdomain.Service
	webhookSvc     *webhook.Service
	reconciler     *reconciler.Reconciler
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	DB             *gorm.DB
	GenID          *snowflake.Node
	TransactionSvc transactiondomain.Service
	SettlementSvc  settlementdomain.Service
	WalletSvc      walletdomain.Service
	WebhookSvc     *webhook.Service
	Reconciler     *reconciler.Reconciler `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		db:             p.DB,
		genID:          p.GenID,
		transactionSvc: p.TransactionSvc,
		settlementSvc:  p.SettlementSvc,
		walletSvc:      p.WalletSvc,
		webhookSvc:     p.WebhookSvc,
		reconciler:     p.Reconciler,
	}

	svc.registerWebhookRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/:provider", s.HandleProviderWebhook)
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")
	v1.POST("/transactions", s.HandleInitiateTransaction)
	v1.GET("/transactions/:reference", s.HandleGetTransaction)
	v1.GET("/wallets/:ownerType/:ownerId", s.HandleGetWallet)
	v1.GET("/wallets/:ownerType/:ownerId/ledger", s.HandleGetWalletLedger)
	v1.POST("/reconciler/poll", s.HandleReconcilerPoll)
}
