package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// SettlementUpdate is applied atomically when a transaction settles. The fee
// split is locked here and never recomputed afterwards.
type SettlementUpdate struct {
	BaseAmount            int64
	GatewayFee            int64
	FeePercent            float64
	ProviderTransactionID string
	Raw                   []byte
	SettledAt             time.Time
}

type Repository interface {
	// Create inserts the transaction. When (provider, reference) already
	// exists it reports created=false and returns the existing row instead
	// of failing; the unique constraint is the authority, not this code.
	Create(ctx context.Context, db *gorm.DB, txn *Transaction) (created bool, existing *Transaction, err error)
	FindByProviderAndReference(ctx context.Context, db *gorm.DB, provider, reference string) (*Transaction, error)
	FindByReference(ctx context.Context, db *gorm.DB, reference string) (*Transaction, error)
	FindByIdempotencyKey(ctx context.Context, db *gorm.DB, provider, key string) (*Transaction, error)
	Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
	// FindReconcilable returns transactions that a poll sweep should
	// re-verify: pending, or created with a provider transaction id
	// attached, created within [oldest, now].
	FindReconcilable(ctx context.Context, db *gorm.DB, provider string, oldest time.Time, limit int) ([]Transaction, error)
	// MarkSettled flips the row to successful iff it is not successful yet.
	// It reports whether this caller won the transition.
	MarkSettled(ctx context.Context, db *gorm.DB, id snowflake.ID, update SettlementUpdate) (bool, error)
	// MarkFailed records a definitive gateway failure. It never overwrites
	// a successful row.
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, raw []byte, at time.Time) (bool, error)
}
