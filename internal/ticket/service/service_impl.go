package service

import (
	"context"
	"crypto/rand"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/ovationhq/ovation/internal/clock"
	"github.com/ovationhq/ovation/internal/ticket/domain"
	"github.com/ovationhq/ovation/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("ticket.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

var _ domain.Issuer = (*Service)(nil)

func (s *Service) Issue(ctx context.Context, req domain.IssueRequest) ([]domain.Ticket, error) {
	if req.TransactionID == 0 {
		return nil, domain.ErrInvalidTransaction
	}
	if req.Quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	existing, err := s.ByTransaction(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	now := s.clock.Now()
	tickets := make([]domain.Ticket, 0, req.Quantity)
	for seq := 1; seq <= req.Quantity; seq++ {
		tickets = append(tickets, domain.Ticket{
			ID:            s.genID.Generate(),
			TransactionID: req.TransactionID,
			Seq:           seq,
			EventID:       req.EventID,
			BuyerUserID:   req.BuyerUserID,
			BuyerEmail:    strings.TrimSpace(req.BuyerEmail),
			Code:          "tkt_" + strings.ToLower(ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()),
			IssuedAt:      now,
		})
	}

	if err := s.db.WithContext(ctx).Create(&tickets).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			// Another settlement attempt minted them first.
			return s.ByTransaction(ctx, req.TransactionID)
		}
		return nil, err
	}

	s.log.Info("tickets issued",
		zap.String("transaction_id", req.TransactionID.String()),
		zap.Int("quantity", req.Quantity),
	)
	return tickets, nil
}

func (s *Service) ByTransaction(ctx context.Context, transactionID snowflake.ID) ([]domain.Ticket, error) {
	var tickets []domain.Ticket
	err := s.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("seq ASC").
		Find(&tickets).Error
	if err != nil {
		return nil, err
	}
	return tickets, nil
}
