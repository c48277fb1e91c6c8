package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	transactiondomain "github.com/ovationhq/ovation/internal/transaction/domain"
	"gorm.io/datatypes"
)

// EntryType classifies what produced a ledger entry.
type EntryType string

const (
	EntryTypeCharge     EntryType = "CHARGE"
	EntryTypeRefund     EntryType = "REFUND"
	EntryTypeAdjustment EntryType = "ADJUSTMENT"
	EntryTypePayout     EntryType = "PAYOUT"
)

// Direction is the sign of a ledger entry. Amounts are always positive;
// direction carries the sign.
type Direction string

const (
	DirectionCredit Direction = "CREDIT"
	DirectionDebit  Direction = "DEBIT"
)

// Wallet holds the running balance for one owner and currency. The balance is
// derivable by replaying the ledger; the column is a cache of that replay.
type Wallet struct {
	ID        snowflake.ID                `json:"id" gorm:"primaryKey"`
	OwnerType transactiondomain.OwnerType `json:"owner_type" gorm:"type:text;not null;uniqueIndex:ux_wallets_owner,priority:1"`
	OwnerID   snowflake.ID                `json:"owner_id" gorm:"not null;uniqueIndex:ux_wallets_owner,priority:2"`
	Currency  string                      `json:"currency" gorm:"type:text;not null;uniqueIndex:ux_wallets_owner,priority:3"`
	Balance   int64                       `json:"balance" gorm:"not null;default:0"`
	CreatedAt time.Time                   `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time                   `json:"updated_at" gorm:"not null"`
}

func (Wallet) TableName() string { return "wallets" }

// LedgerEntry is one immutable mutation of a wallet. (wallet_id, type,
// reference) is unique so replayed settlements and refunds cannot double
// apply.
type LedgerEntry struct {
	ID            snowflake.ID      `json:"id" gorm:"primaryKey"`
	WalletID      snowflake.ID      `json:"wallet_id" gorm:"not null;uniqueIndex:ux_wallet_ledger_entry,priority:1;index"`
	Type          EntryType         `json:"type" gorm:"type:text;not null;uniqueIndex:ux_wallet_ledger_entry,priority:2"`
	Reference     string            `json:"reference" gorm:"type:text;not null;uniqueIndex:ux_wallet_ledger_entry,priority:3"`
	Direction     Direction         `json:"direction" gorm:"type:text;not null"`
	Amount        int64             `json:"amount" gorm:"not null"`
	BalanceAfter  int64             `json:"balance_after" gorm:"not null"`
	Currency      string            `json:"currency" gorm:"type:text;not null"`
	TransactionID snowflake.ID      `json:"transaction_id" gorm:"index"`
	Description   string            `json:"description" gorm:"type:text"`
	Metadata      datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`
	CreatedAt     time.Time         `json:"created_at" gorm:"not null"`
}

func (LedgerEntry) TableName() string { return "wallet_ledger_entries" }

// Signed returns the entry amount with its direction applied.
func (e LedgerEntry) Signed() int64 {
	if e.Direction == DirectionDebit {
		return -e.Amount
	}
	return e.Amount
}
