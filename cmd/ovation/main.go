package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/ovationhq/ovation/internal/clock"
	"github.com/ovationhq/ovation/internal/config"
	"github.com/ovationhq/ovation/internal/gateway"
	"github.com/ovationhq/ovation/internal/identity"
	"github.com/ovationhq/ovation/internal/lock"
	"github.com/ovationhq/ovation/internal/logger"
	"github.com/ovationhq/ovation/internal/migration"
	"github.com/ovationhq/ovation/internal/notify"
	"github.com/ovationhq/ovation/internal/observability"
	"github.com/ovationhq/ovation/internal/reconciler"
	"github.com/ovationhq/ovation/internal/server"
	"github.com/ovationhq/ovation/internal/settlement"
	"github.com/ovationhq/ovation/internal/ticket"
	"github.com/ovationhq/ovation/internal/transaction"
	"github.com/ovationhq/ovation/internal/wallet"
	"github.com/ovationhq/ovation/internal/webhook"
	"github.com/ovationhq/ovation/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		lock.Module,
		migration.Module,

		// Functional domains
		gateway.Module,
		transaction.Module,
		wallet.Module,
		ticket.Module,
		notify.Module,
		identity.Module,
		settlement.Module,
		webhook.Module,
		reconciler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
