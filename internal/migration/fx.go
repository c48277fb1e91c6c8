package migration

import (
	"github.com/ovationhq/ovation/internal/config"
	ticketdomain "github.com/ovationhq/ovation/internal/ticket/domain"
	transactiondomain "github.com/ovationhq/ovation/internal/transaction/domain"
	walletdomain "github.com/ovationhq/ovation/internal/wallet/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// Local sqlite setups skip the migrate tooling and let gorm
			// shape the schema.
			return conn.AutoMigrate(
				&transactiondomain.Transaction{},
				&walletdomain.Wallet{},
				&walletdomain.LedgerEntry{},
				&ticketdomain.Ticket{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
