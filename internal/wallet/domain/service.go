package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	transactiondomain "github.com/ovationhq/ovation/internal/transaction/domain"
)

// MutationRequest applies one entry to an owner's wallet. Reference plus Type
// is the idempotency guard; replaying the same mutation is a no-op.
type MutationRequest struct {
	OwnerType     transactiondomain.OwnerType
	OwnerID       snowflake.ID
	Currency      string
	Amount        int64
	Type          EntryType
	Reference     string
	TransactionID snowflake.ID
	Description   string
	Metadata      map[string]any
}

// MutationResult reports the applied entry. AlreadyApplied is set when the
// guard matched an earlier entry and the balance was left untouched.
type MutationResult struct {
	Entry          *LedgerEntry
	Wallet         *Wallet
	AlreadyApplied bool
}

type Service interface {
	// Credit adds funds, creating the wallet on first use.
	Credit(ctx context.Context, req MutationRequest) (*MutationResult, error)
	// Debit removes funds. The balance may not go negative.
	Debit(ctx context.Context, req MutationRequest) (*MutationResult, error)
	Get(ctx context.Context, ownerType transactiondomain.OwnerType, ownerID snowflake.ID, currency string) (*Wallet, error)
	Ledger(ctx context.Context, walletID snowflake.ID, limit int) ([]LedgerEntry, error)
	// Entry looks up a single ledger entry by its idempotency guard. A nil
	// entry with nil error means it was never applied.
	Entry(ctx context.Context, ownerType transactiondomain.OwnerType, ownerID snowflake.ID, currency string, entryType EntryType, reference string) (*LedgerEntry, error)
}
