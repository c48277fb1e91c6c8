package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/ovationhq/ovation/internal/clock"
	obsmetrics "github.com/ovationhq/ovation/internal/observability/metrics"
	transactiondomain "github.com/ovationhq/ovation/internal/transaction/domain"
	"github.com/ovationhq/ovation/internal/wallet/domain"
	"github.com/ovationhq/ovation/pkg/db"
	"github.com/ovationhq/ovation/pkg/keymutex"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
	locks      *keymutex.KeyMutex
}

func NewService(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("wallet.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		obsMetrics: p.ObsMetrics,
		locks:      keymutex.New(),
	}
}

var _ domain.Service = (*Service)(nil)

func (s *Service) Credit(ctx context.Context, req domain.MutationRequest) (*domain.MutationResult, error) {
	return s.mutate(ctx, req, domain.DirectionCredit)
}

func (s *Service) Debit(ctx context.Context, req domain.MutationRequest) (*domain.MutationResult, error) {
	return s.mutate(ctx, req, domain.DirectionDebit)
}

func (s *Service) mutate(ctx context.Context, req domain.MutationRequest, direction domain.Direction) (*domain.MutationResult, error) {
	if err := normalize(&req); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(walletKey(req.OwnerType, req.OwnerID, req.Currency))
	defer unlock()

	var result domain.MutationResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wallet, err := s.ensureWallet(ctx, tx, req.OwnerType, req.OwnerID, req.Currency)
		if err != nil {
			return err
		}

		existing, err := s.findEntry(ctx, tx, wallet.ID, req.Type, req.Reference)
		if err != nil {
			return err
		}
		if existing != nil {
			result = domain.MutationResult{Entry: existing, Wallet: wallet, AlreadyApplied: true}
			return nil
		}

		balance := wallet.Balance
		if direction == domain.DirectionDebit {
			if balance < req.Amount {
				return domain.ErrInsufficientFunds
			}
			balance -= req.Amount
		} else {
			balance += req.Amount
		}

		now := s.clock.Now()
		entry := &domain.LedgerEntry{
			ID:            s.genID.Generate(),
			WalletID:      wallet.ID,
			Type:          req.Type,
			Reference:     req.Reference,
			Direction:     direction,
			Amount:        req.Amount,
			BalanceAfter:  balance,
			Currency:      req.Currency,
			TransactionID: req.TransactionID,
			Description:   req.Description,
			Metadata:      req.Metadata,
			CreatedAt:     now,
		}
		if err := tx.Create(entry).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				// Lost a race with another process. The guard held, reload
				// the winning entry.
				winner, ferr := s.findEntry(ctx, tx, wallet.ID, req.Type, req.Reference)
				if ferr != nil {
					return ferr
				}
				if winner != nil {
					result = domain.MutationResult{Entry: winner, Wallet: wallet, AlreadyApplied: true}
					return nil
				}
			}
			return err
		}

		if err := tx.Model(&domain.Wallet{}).
			Where("id = ?", wallet.ID).
			Updates(map[string]any{"balance": balance, "updated_at": now}).Error; err != nil {
			return err
		}
		wallet.Balance = balance
		wallet.UpdatedAt = now

		result = domain.MutationResult{Entry: entry, Wallet: wallet}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.AlreadyApplied {
		s.obsMetrics.IncLedgerMutation(string(req.Type))
		s.log.Info("wallet ledger entry applied",
			zap.String("owner_type", string(req.OwnerType)),
			zap.String("owner_id", req.OwnerID.String()),
			zap.String("type", string(req.Type)),
			zap.String("direction", string(direction)),
			zap.Int64("amount", req.Amount),
			zap.Int64("balance_after", result.Entry.BalanceAfter),
		)
	}
	return &result, nil
}

func (s *Service) Get(ctx context.Context, ownerType transactiondomain.OwnerType, ownerID snowflake.ID, currency string) (*domain.Wallet, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	var wallet domain.Wallet
	err := s.db.WithContext(ctx).
		Where("owner_type = ? AND owner_id = ? AND currency = ?", ownerType, ownerID, currency).
		Limit(1).
		Find(&wallet).Error
	if err != nil {
		return nil, err
	}
	if wallet.ID == 0 {
		return nil, domain.ErrWalletNotFound
	}
	return &wallet, nil
}

func (s *Service) Ledger(ctx context.Context, walletID snowflake.ID, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var entries []domain.LedgerEntry
	err := s.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Service) Entry(ctx context.Context, ownerType transactiondomain.OwnerType, ownerID snowflake.ID, currency string, entryType domain.EntryType, reference string) (*domain.LedgerEntry, error) {
	wallet, err := s.Get(ctx, ownerType, ownerID, currency)
	if err != nil {
		if err == domain.ErrWalletNotFound {
			return nil, nil
		}
		return nil, err
	}
	return s.findEntry(ctx, s.db, wallet.ID, entryType, strings.TrimSpace(reference))
}

func (s *Service) ensureWallet(ctx context.Context, tx *gorm.DB, ownerType transactiondomain.OwnerType, ownerID snowflake.ID, currency string) (*domain.Wallet, error) {
	var wallet domain.Wallet
	err := tx.WithContext(ctx).
		Where("owner_type = ? AND owner_id = ? AND currency = ?", ownerType, ownerID, currency).
		Limit(1).
		Find(&wallet).Error
	if err != nil {
		return nil, err
	}
	if wallet.ID != 0 {
		return &wallet, nil
	}

	now := s.clock.Now()
	wallet = domain.Wallet{
		ID:        s.genID.Generate(),
		OwnerType: ownerType,
		OwnerID:   ownerID,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.Create(&wallet).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			var existing domain.Wallet
			ferr := tx.WithContext(ctx).
				Where("owner_type = ? AND owner_id = ? AND currency = ?", ownerType, ownerID, currency).
				Limit(1).
				Find(&existing).Error
			if ferr != nil {
				return nil, ferr
			}
			if existing.ID != 0 {
				return &existing, nil
			}
		}
		return nil, err
	}
	return &wallet, nil
}

func (s *Service) findEntry(ctx context.Context, tx *gorm.DB, walletID snowflake.ID, entryType domain.EntryType, reference string) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	err := tx.WithContext(ctx).
		Where("wallet_id = ? AND type = ? AND reference = ?", walletID, entryType, reference).
		Limit(1).
		Find(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == 0 {
		return nil, nil
	}
	return &entry, nil
}

func normalize(req *domain.MutationRequest) error {
	if req.OwnerType == "" || req.OwnerID == 0 {
		return domain.ErrInvalidOwner
	}
	if req.Amount <= 0 {
		return domain.ErrInvalidAmount
	}
	req.Reference = strings.TrimSpace(req.Reference)
	if req.Reference == "" {
		return domain.ErrInvalidReference
	}
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if req.Currency == "" {
		return domain.ErrInvalidAmount
	}
	if req.Type == "" {
		req.Type = domain.EntryTypeAdjustment
	}
	return nil
}

func walletKey(ownerType transactiondomain.OwnerType, ownerID snowflake.ID, currency string) string {
	return fmt.Sprintf("%s:%d:%s", ownerType, ownerID, currency)
}
