package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidTransaction = errors.New("invalid_ticket_transaction")
	ErrInvalidQuantity    = errors.New("invalid_ticket_quantity")
)

// Ticket is one admission issued for a settled transaction. (transaction_id,
// seq) is unique so a replayed settlement cannot mint extra tickets.
type Ticket struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	TransactionID snowflake.ID `json:"transaction_id" gorm:"not null;uniqueIndex:ux_tickets_transaction_seq,priority:1"`
	Seq           int          `json:"seq" gorm:"not null;uniqueIndex:ux_tickets_transaction_seq,priority:2"`
	EventID       snowflake.ID `json:"event_id" gorm:"index"`
	BuyerUserID   snowflake.ID `json:"buyer_user_id" gorm:"index"`
	BuyerEmail    string       `json:"buyer_email" gorm:"type:text"`
	Code          string       `json:"code" gorm:"type:text;not null;uniqueIndex"`
	IssuedAt      time.Time    `json:"issued_at" gorm:"not null"`
}

func (Ticket) TableName() string { return "tickets" }

type IssueRequest struct {
	TransactionID snowflake.ID
	EventID       snowflake.ID
	BuyerUserID   snowflake.ID
	BuyerEmail    string
	Quantity      int
}

// Issuer mints tickets for a settled transaction. Issue is idempotent on the
// transaction id.
type Issuer interface {
	Issue(ctx context.Context, req IssueRequest) ([]Ticket, error)
	ByTransaction(ctx context.Context, transactionID snowflake.ID) ([]Ticket, error)
}
