package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status is the transaction lifecycle state. It moves forward only:
// created -> pending -> successful | failed | cancelled. A failed transaction
// may still settle if a fresh verification reports success; a successful one
// never changes again.
type Status string

const (
	StatusCreated    Status = "created"
	StatusPending    Status = "pending"
	StatusSuccessful Status = "successful"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// OwnerType tags who receives the wallet credit for a settled payment.
// Decided once at registration time and stored, never re-derived.
type OwnerType string

const (
	OwnerTypeEvent OwnerType = "event"
	OwnerTypeGroup OwnerType = "group"
	OwnerTypeUser  OwnerType = "user"
)

// Transaction is one record per attempted payment. (provider, reference) is
// the natural key; rows are never deleted.
type Transaction struct {
	ID                    snowflake.ID      `json:"id" gorm:"primaryKey"`
	Provider              string            `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_transactions_provider_reference,priority:1"`
	Reference             string            `json:"reference" gorm:"type:text;not null;uniqueIndex:ux_transactions_provider_reference,priority:2"`
	ProviderTransactionID string            `json:"provider_transaction_id" gorm:"type:text;index"`
	IdempotencyKey        string            `json:"idempotency_key" gorm:"type:text;index"`
	Amount                int64             `json:"amount" gorm:"not null"`
	BaseAmount            int64             `json:"base_amount"`
	GatewayFee            int64             `json:"gateway_fee"`
	FeePercent            float64           `json:"fee_percent"`
	Currency              string            `json:"currency" gorm:"type:text;not null"`
	Quantity              int               `json:"quantity" gorm:"not null;default:1"`
	Status                Status            `json:"status" gorm:"type:text;not null;index"`
	FailureReason         string            `json:"failure_reason" gorm:"type:text"`
	OwnerType             OwnerType         `json:"owner_type" gorm:"type:text;not null"`
	OwnerID               snowflake.ID      `json:"owner_id" gorm:"not null;index"`
	BuyerUserID           snowflake.ID      `json:"buyer_user_id" gorm:"index"`
	BuyerEmail            string            `json:"buyer_email" gorm:"type:text"`
	AuthorizationURL      string            `json:"authorization_url" gorm:"type:text"`
	AccessCode            string            `json:"access_code" gorm:"type:text"`
	Metadata              datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`
	Raw                   datatypes.JSON    `json:"raw" gorm:"type:jsonb"`
	CreatedAt             time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt             time.Time         `json:"updated_at" gorm:"not null"`
	SettledAt             *time.Time        `json:"settled_at"`
}

func (Transaction) TableName() string { return "transactions" }

// OwnerFromMetadata picks the credited owner from loosely-typed initialization
// metadata, preferring event over group over user.
func OwnerFromMetadata(metadata map[string]any) (OwnerType, snowflake.ID, error) {
	if id, ok := metadataID(metadata, "eventId"); ok {
		return OwnerTypeEvent, id, nil
	}
	if id, ok := metadataID(metadata, "groupId"); ok {
		return OwnerTypeGroup, id, nil
	}
	if id, ok := metadataID(metadata, "userId"); ok {
		return OwnerTypeUser, id, nil
	}
	return "", 0, ErrInvalidOwner
}

// MetadataID reads a snowflake id out of an opaque metadata map.
func MetadataID(metadata map[string]any, key string) (snowflake.ID, bool) {
	return metadataID(metadata, key)
}

func metadataID(metadata map[string]any, key string) (snowflake.ID, bool) {
	raw := readMetadataValue(metadata, key)
	if raw == "" {
		return 0, false
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func readMetadataValue(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	switch cast := value.(type) {
	case string:
		return strings.TrimSpace(cast)
	case float64:
		if cast == 0 {
			return ""
		}
		return strconv.FormatInt(int64(cast), 10)
	case json.Number:
		return cast.String()
	case int64:
		return strconv.FormatInt(cast, 10)
	case int:
		return strconv.Itoa(cast)
	}
	return ""
}
