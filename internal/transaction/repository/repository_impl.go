package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ovationhq/ovation/internal/transaction/domain"
	"github.com/ovationhq/ovation/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, conn *gorm.DB, txn *domain.Transaction) (bool, *domain.Transaction, error) {
	err := conn.WithContext(ctx).Create(txn).Error
	if err == nil {
		return true, txn, nil
	}
	if !db.IsDuplicateKeyErr(err) {
		return false, nil, err
	}

	existing, ferr := r.FindByProviderAndReference(ctx, conn, txn.Provider, txn.Reference)
	if ferr != nil {
		return false, nil, ferr
	}
	if existing == nil {
		return false, nil, err
	}
	return false, existing, nil
}

func (r *repo) FindByProviderAndReference(ctx context.Context, conn *gorm.DB, provider, reference string) (*domain.Transaction, error) {
	var item domain.Transaction
	err := conn.WithContext(ctx).
		Where("provider = ? AND reference = ?", provider, reference).
		Limit(1).
		Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByReference(ctx context.Context, conn *gorm.DB, reference string) (*domain.Transaction, error) {
	var item domain.Transaction
	err := conn.WithContext(ctx).
		Where("reference = ?", reference).
		Limit(1).
		Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByIdempotencyKey(ctx context.Context, conn *gorm.DB, provider, key string) (*domain.Transaction, error) {
	var item domain.Transaction
	err := conn.WithContext(ctx).
		Where("provider = ? AND idempotency_key = ?", provider, key).
		Limit(1).
		Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Update(ctx context.Context, conn *gorm.DB, id snowflake.ID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	fields["updated_at"] = time.Now().UTC()
	return conn.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *repo) FindReconcilable(ctx context.Context, conn *gorm.DB, provider string, oldest time.Time, limit int) ([]domain.Transaction, error) {
	var items []domain.Transaction
	err := conn.WithContext(ctx).
		Where("provider = ?", provider).
		Where("created_at >= ?", oldest).
		Where("status = ? OR (status = ? AND provider_transaction_id <> '')",
			domain.StatusPending, domain.StatusCreated).
		Order("created_at ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkSettled(ctx context.Context, conn *gorm.DB, id snowflake.ID, update domain.SettlementUpdate) (bool, error) {
	settledAt := update.SettledAt.UTC()
	result := conn.WithContext(ctx).Exec(
		`UPDATE transactions
		 SET status = ?,
			 base_amount = ?,
			 gateway_fee = ?,
			 fee_percent = ?,
			 provider_transaction_id = CASE WHEN ? <> '' THEN ? ELSE provider_transaction_id END,
			 raw = CASE WHEN ? <> '' THEN ? ELSE raw END,
			 failure_reason = '',
			 settled_at = ?,
			 updated_at = ?
		 WHERE id = ? AND status <> ?`,
		domain.StatusSuccessful,
		update.BaseAmount,
		update.GatewayFee,
		update.FeePercent,
		update.ProviderTransactionID,
		update.ProviderTransactionID,
		string(update.Raw),
		string(update.Raw),
		settledAt,
		settledAt,
		id,
		domain.StatusSuccessful,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkFailed(ctx context.Context, conn *gorm.DB, id snowflake.ID, reason string, raw []byte, at time.Time) (bool, error) {
	result := conn.WithContext(ctx).Exec(
		`UPDATE transactions
		 SET status = ?,
			 failure_reason = ?,
			 raw = CASE WHEN ? <> '' THEN ? ELSE raw END,
			 updated_at = ?
		 WHERE id = ? AND status NOT IN (?, ?)`,
		domain.StatusFailed,
		reason,
		string(raw),
		string(raw),
		at.UTC(),
		id,
		domain.StatusSuccessful,
		domain.StatusFailed,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
