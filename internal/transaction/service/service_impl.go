package service

import (
	"context"
	"crypto/rand"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/ovationhq/ovation/internal/clock"
	"github.com/ovationhq/ovation/internal/gateway/adapters"
	gatewaydomain "github.com/ovationhq/ovation/internal/gateway/domain"
	"github.com/ovationhq/ovation/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Registry *adapters.Registry
	Repo     domain.Repository
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	registry *adapters.Registry
	repo     domain.Repository
}

func NewService(p Params) *Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("transaction.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		registry: p.Registry,
		repo:     p.Repo,
	}
}

var _ domain.Service = (*Service)(nil)

func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.Transaction, error) {
	txn, err := s.register(ctx, req)
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *Service) register(ctx context.Context, req domain.RegisterRequest) (*domain.Transaction, error) {
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if !s.registry.ProviderExists(provider) {
		return nil, domain.ErrInvalidProvider
	}
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return nil, domain.ErrInvalidCurrency
	}
	ownerType, ownerID, err := domain.OwnerFromMetadata(req.Metadata)
	if err != nil {
		return nil, err
	}

	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		reference = s.newReference()
	}
	quantity := req.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	buyerID, _ := domain.MetadataID(req.Metadata, "buyerUserId")

	now := s.clock.Now()
	txn := &domain.Transaction{
		ID:             s.genID.Generate(),
		Provider:       provider,
		Reference:      reference,
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
		Amount:         req.Amount,
		Currency:       currency,
		Quantity:       quantity,
		Status:         domain.StatusCreated,
		OwnerType:      ownerType,
		OwnerID:        ownerID,
		BuyerUserID:    buyerID,
		BuyerEmail:     strings.TrimSpace(req.BuyerEmail),
		Metadata:       req.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	created, existing, err := s.repo.Create(ctx, s.db, txn)
	if err != nil {
		return nil, err
	}
	if !created {
		s.log.Info("transaction already registered",
			zap.String("provider", provider),
			zap.String("reference", reference),
		)
		return existing, nil
	}
	return txn, nil
}

func (s *Service) Initiate(ctx context.Context, req domain.RegisterRequest) (*domain.InitiateResponse, error) {
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	key := strings.TrimSpace(req.IdempotencyKey)

	if key != "" {
		cached, err := s.repo.FindByIdempotencyKey(ctx, s.db, provider, key)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			return &domain.InitiateResponse{
				Transaction:      cached,
				AuthorizationURL: cached.AuthorizationURL,
				AccessCode:       cached.AccessCode,
				IsCachedResponse: true,
			}, nil
		}
	}

	txn, err := s.register(ctx, req)
	if err != nil {
		return nil, err
	}
	if txn.AuthorizationURL != "" {
		// Register returned an existing row that was already initiated.
		return &domain.InitiateResponse{
			Transaction:      txn,
			AuthorizationURL: txn.AuthorizationURL,
			AccessCode:       txn.AccessCode,
			IsCachedResponse: true,
		}, nil
	}

	adapter, err := s.registry.Adapter(txn.Provider)
	if err != nil {
		return nil, err
	}
	resp, err := adapter.InitializePayment(ctx, gatewaydomain.InitializeRequest{
		Amount:         txn.Amount,
		Currency:       txn.Currency,
		Email:          txn.BuyerEmail,
		Reference:      txn.Reference,
		Metadata:       req.Metadata,
		IdempotencyKey: key,
	})
	if err != nil {
		return nil, err
	}

	if resp.IsCachedResponse && resp.AuthorizationURL == "" {
		// The gateway reported the key as used but returned no body. The
		// durable row holds the authorization from the first attempt.
		stored, ferr := s.repo.FindByProviderAndReference(ctx, s.db, txn.Provider, txn.Reference)
		if ferr != nil {
			return nil, ferr
		}
		if stored != nil {
			return &domain.InitiateResponse{
				Transaction:      stored,
				AuthorizationURL: stored.AuthorizationURL,
				AccessCode:       stored.AccessCode,
				IsCachedResponse: true,
			}, nil
		}
	}

	fields := map[string]any{
		"status":            domain.StatusPending,
		"authorization_url": resp.AuthorizationURL,
		"access_code":       resp.AccessCode,
	}
	if err := s.repo.Update(ctx, s.db, txn.ID, fields); err != nil {
		return nil, err
	}
	txn.Status = domain.StatusPending
	txn.AuthorizationURL = resp.AuthorizationURL
	txn.AccessCode = resp.AccessCode

	return &domain.InitiateResponse{
		Transaction:      txn,
		AuthorizationURL: resp.AuthorizationURL,
		AccessCode:       resp.AccessCode,
		IsCachedResponse: resp.IsCachedResponse,
	}, nil
}

func (s *Service) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, domain.ErrInvalidReference
	}
	txn, err := s.repo.FindByReference(ctx, s.db, reference)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, domain.ErrNotFound
	}
	return txn, nil
}

func (s *Service) newReference() string {
	now := s.clock.Now()
	return "ovn_" + strings.ToLower(ulid.MustNew(ulid.Timestamp(now), rand.Reader).String())
}
