package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/ovationhq/ovation/internal/clock"
	"github.com/ovationhq/ovation/internal/config"
	gatewaydomain "github.com/ovationhq/ovation/internal/gateway/domain"
	"github.com/ovationhq/ovation/internal/identity"
	"github.com/ovationhq/ovation/internal/notify/email"
	"github.com/ovationhq/ovation/internal/notify/push"
	obsmetrics "github.com/ovationhq/ovation/internal/observability/metrics"
	"github.com/ovationhq/ovation/internal/settlement/domain"
	ticketdomain "github.com/ovationhq/ovation/internal/ticket/domain"
	transactiondomain "github.com/ovationhq/ovation/internal/transaction/domain"
	walletdomain "github.com/ovationhq/ovation/internal/wallet/domain"
	"github.com/ovationhq/ovation/pkg/keymutex"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	settlementResultSettled   = "settled"
	settlementResultDuplicate = "duplicate"
	settlementResultFailed    = "failed"
	settlementResultOrphan    = "orphan"
	settlementResultMismatch  = "mismatch"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Fees       *config.FeePolicyHolder
	Repo       transactiondomain.Repository
	Wallets    walletdomain.Service
	Tickets    ticketdomain.Issuer
	Email      email.Provider
	Push       push.Provider
	Identity   identity.Resolver
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	fees       *config.FeePolicyHolder
	repo       transactiondomain.Repository
	wallets    walletdomain.Service
	tickets    ticketdomain.Issuer
	email      email.Provider
	push       push.Provider
	identity   identity.Resolver
	obsMetrics *obsmetrics.Metrics
	locks      *keymutex.KeyMutex
}

func NewService(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("settlement.service"),
		clock:      p.Clock,
		fees:       p.Fees,
		repo:       p.Repo,
		wallets:    p.Wallets,
		tickets:    p.Tickets,
		email:      p.Email,
		push:       p.Push,
		identity:   p.Identity,
		obsMetrics: p.ObsMetrics,
		locks:      keymutex.New(),
	}
}

var _ domain.Service = (*Service)(nil)

// Settle applies one charge event. It is safe to call any number of times
// with the same event from any number of goroutines; exactly one caller wins
// the created/pending to successful transition and runs the side effects.
func (s *Service) Settle(ctx context.Context, event *gatewaydomain.PaymentEvent) (*domain.Result, error) {
	if event == nil || event.Type != gatewaydomain.EventTypeCharge {
		return nil, domain.ErrInvalidEvent
	}
	provider := strings.ToLower(strings.TrimSpace(event.Provider))
	reference := strings.TrimSpace(event.Reference)
	if provider == "" || reference == "" {
		return nil, domain.ErrInvalidEvent
	}

	txn, err := s.repo.FindByProviderAndReference(ctx, s.db, provider, reference)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		s.obsMetrics.IncOrphanEvent(provider)
		s.obsMetrics.IncSettlement(provider, settlementResultOrphan)
		s.log.Warn("payment event has no matching transaction",
			zap.String("provider", provider),
			zap.String("reference", reference),
		)
		return nil, domain.ErrOrphanEvent
	}

	if !event.OK {
		return s.settleFailure(ctx, txn, event)
	}

	if event.Amount > 0 && event.Amount != txn.Amount {
		s.obsMetrics.IncSettlement(provider, settlementResultMismatch)
		s.log.Warn("settlement amount mismatch, leaving transaction untouched",
			zap.String("provider", provider),
			zap.String("reference", reference),
			zap.Int64("expected", txn.Amount),
			zap.Int64("reported", event.Amount),
		)
		return nil, domain.ErrAmountMismatch
	}

	// The lock covers only the settle decision, never the effects. Each
	// effect is idempotent on its own key.
	unlock := s.locks.Lock(provider + ":" + reference)

	percent := s.fees.Get().PercentFor(provider)
	fee := feeFor(txn.Amount, percent)
	update := transactiondomain.SettlementUpdate{
		BaseAmount:            txn.Amount - fee,
		GatewayFee:            fee,
		FeePercent:            percent,
		ProviderTransactionID: event.ProviderTransactionID,
		Raw:                   event.RawPayload,
		SettledAt:             s.clock.Now(),
	}

	won, err := s.repo.MarkSettled(ctx, s.db, txn.ID, update)
	unlock()
	if err != nil {
		return nil, err
	}
	if !won {
		s.obsMetrics.IncSettlement(provider, settlementResultDuplicate)
		return &domain.Result{TransactionID: txn.ID, AlreadyProcessed: true}, nil
	}

	txn.Status = transactiondomain.StatusSuccessful
	txn.BaseAmount = update.BaseAmount
	txn.GatewayFee = update.GatewayFee
	txn.FeePercent = update.FeePercent
	if event.ProviderTransactionID != "" {
		txn.ProviderTransactionID = event.ProviderTransactionID
	}
	if len(event.RawPayload) > 0 {
		txn.Raw = datatypes.JSON(event.RawPayload)
	}

	result := &domain.Result{TransactionID: txn.ID}
	s.runEffects(ctx, txn, result)

	s.obsMetrics.IncSettlement(provider, settlementResultSettled)
	s.log.Info("transaction settled",
		zap.String("provider", provider),
		zap.String("reference", reference),
		zap.Int64("amount", txn.Amount),
		zap.Int64("base_amount", txn.BaseAmount),
		zap.Int64("gateway_fee", txn.GatewayFee),
		zap.Float64("fee_percent", txn.FeePercent),
	)
	return result, nil
}

func (s *Service) settleFailure(ctx context.Context, txn *transactiondomain.Transaction, event *gatewaydomain.PaymentEvent) (*domain.Result, error) {
	reason := event.FailureReason
	if reason == "" {
		reason = "declined"
	}
	marked, err := s.repo.MarkFailed(ctx, s.db, txn.ID, reason, event.RawPayload, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !marked {
		// Already successful or already failed. A success never regresses.
		s.obsMetrics.IncSettlement(txn.Provider, settlementResultDuplicate)
		return &domain.Result{TransactionID: txn.ID, AlreadyProcessed: true}, nil
	}
	s.obsMetrics.IncSettlement(txn.Provider, settlementResultFailed)
	s.log.Info("transaction failed",
		zap.String("provider", txn.Provider),
		zap.String("reference", txn.Reference),
		zap.String("reason", reason),
	)
	return &domain.Result{TransactionID: txn.ID, Failed: true}, nil
}

// runEffects executes the post-settlement side effects. Each one is best
// effort; the settlement itself is already durable and a failed effect must
// not unwind it.
func (s *Service) runEffects(ctx context.Context, txn *transactiondomain.Transaction, result *domain.Result) {
	if txn.OwnerType == transactiondomain.OwnerTypeEvent {
		tickets, err := s.tickets.Issue(ctx, ticketdomain.IssueRequest{
			TransactionID: txn.ID,
			EventID:       txn.OwnerID,
			BuyerUserID:   txn.BuyerUserID,
			BuyerEmail:    txn.BuyerEmail,
			Quantity:      txn.Quantity,
		})
		if err != nil {
			s.obsMetrics.IncEffectFailure("ticket_issue")
			s.log.Warn("ticket issuance failed",
				zap.String("reference", txn.Reference),
				zap.Error(err),
			)
		} else {
			result.TicketsIssued = len(tickets)
		}
	}

	if txn.BuyerEmail != "" {
		subject := "Payment received"
		body := fmt.Sprintf(
			"<p>Your payment of %s %s was confirmed.</p><p>Reference: %s</p>",
			txn.Currency, formatMinor(txn.Amount), txn.Reference,
		)
		if err := s.email.Send(ctx, []string{txn.BuyerEmail}, subject, body); err != nil {
			s.obsMetrics.IncEffectFailure("buyer_email")
			s.log.Warn("buyer receipt email failed",
				zap.String("reference", txn.Reference),
				zap.Error(err),
			)
		}
	}

	mutation, err := s.wallets.Credit(ctx, walletdomain.MutationRequest{
		OwnerType:     txn.OwnerType,
		OwnerID:       txn.OwnerID,
		Currency:      txn.Currency,
		Amount:        txn.BaseAmount,
		Type:          walletdomain.EntryTypeCharge,
		Reference:     txn.Reference,
		TransactionID: txn.ID,
		Description:   "sale proceeds",
	})
	if err != nil {
		s.obsMetrics.IncEffectFailure("wallet_credit")
		s.log.Error("wallet credit failed, ledger is behind settlement",
			zap.String("reference", txn.Reference),
			zap.Error(err),
		)
	} else if !mutation.AlreadyApplied {
		result.CreditedAmount = mutation.Entry.Amount
	}

	s.notifyOwner(ctx, txn)
}

func (s *Service) notifyOwner(ctx context.Context, txn *transactiondomain.Transaction) {
	if txn.OwnerType != transactiondomain.OwnerTypeUser {
		// Event and group owners are notified through their dashboards.
		return
	}
	contact, err := s.identity.Resolve(ctx, txn.OwnerID)
	if err != nil || contact.UserID == 0 {
		return
	}
	msg := push.Message{
		UserID: contact.UserID,
		Title:  "You made a sale",
		Body:   fmt.Sprintf("%s %s received", txn.Currency, formatMinor(txn.BaseAmount)),
		Data:   map[string]string{"reference": txn.Reference},
	}
	if err := s.push.Send(ctx, msg); err != nil {
		s.obsMetrics.IncEffectFailure("owner_push")
		s.log.Warn("owner push notification failed",
			zap.String("reference", txn.Reference),
			zap.Error(err),
		)
	}
}

// HandleRefund debits the owner wallet by the refunded share of the proceeds.
// The split uses the fee percentage stored on the transaction at settlement
// time, not the current policy.
func (s *Service) HandleRefund(ctx context.Context, event *gatewaydomain.PaymentEvent) error {
	if event == nil || event.Type != gatewaydomain.EventTypeRefund {
		return domain.ErrInvalidEvent
	}
	provider := strings.ToLower(strings.TrimSpace(event.Provider))
	reference := strings.TrimSpace(event.Reference)
	if provider == "" || reference == "" {
		return domain.ErrInvalidEvent
	}

	txn, err := s.repo.FindByProviderAndReference(ctx, s.db, provider, reference)
	if err != nil {
		return err
	}
	if txn == nil {
		s.obsMetrics.IncOrphanEvent(provider)
		return domain.ErrOrphanEvent
	}
	if txn.Status != transactiondomain.StatusSuccessful {
		s.log.Warn("refund event for unsettled transaction ignored",
			zap.String("provider", provider),
			zap.String("reference", reference),
			zap.String("status", string(txn.Status)),
		)
		return nil
	}

	refunded := event.Amount
	if refunded <= 0 || refunded > txn.Amount {
		refunded = txn.Amount
	}
	refundedBase := refunded - feeFor(refunded, txn.FeePercent)

	mutation, err := s.wallets.Debit(ctx, walletdomain.MutationRequest{
		OwnerType:     txn.OwnerType,
		OwnerID:       txn.OwnerID,
		Currency:      txn.Currency,
		Amount:        refundedBase,
		Type:          walletdomain.EntryTypeRefund,
		Reference:     txn.Reference,
		TransactionID: txn.ID,
		Description:   "refund",
	})
	if err != nil {
		s.obsMetrics.IncEffectFailure("wallet_refund")
		return err
	}
	if mutation.AlreadyApplied {
		return nil
	}

	s.log.Info("refund applied",
		zap.String("provider", provider),
		zap.String("reference", reference),
		zap.Int64("refunded", refunded),
		zap.Int64("debited", refundedBase),
	)
	return nil
}

// HandleTransfer reconciles payout events against the owner wallet. A
// successful disbursement records the payout debit; a failure or reversal
// credits the funds back.
func (s *Service) HandleTransfer(ctx context.Context, event *gatewaydomain.PaymentEvent) error {
	if event == nil || event.Type != gatewaydomain.EventTypeTransfer {
		return domain.ErrInvalidEvent
	}
	provider := strings.ToLower(strings.TrimSpace(event.Provider))
	reference := strings.TrimSpace(event.Reference)
	if provider == "" || reference == "" || event.Amount <= 0 {
		return domain.ErrInvalidEvent
	}

	ownerType, ownerID, err := transactiondomain.OwnerFromMetadata(event.Metadata)
	if err != nil {
		s.obsMetrics.IncOrphanEvent(provider)
		s.log.Warn("transfer event carries no owner",
			zap.String("provider", provider),
			zap.String("reference", reference),
		)
		return domain.ErrOrphanEvent
	}

	currency := strings.ToUpper(strings.TrimSpace(event.Currency))

	if event.OK {
		_, err = s.wallets.Debit(ctx, walletdomain.MutationRequest{
			OwnerType:   ownerType,
			OwnerID:     ownerID,
			Currency:    currency,
			Amount:      event.Amount,
			Type:        walletdomain.EntryTypePayout,
			Reference:   reference,
			Description: "payout",
		})
		if err != nil {
			s.obsMetrics.IncEffectFailure("wallet_payout")
			return err
		}
		return nil
	}

	// Failed or reversed disbursement. Return the funds only if the payout
	// debit was recorded first.
	debit, err := s.wallets.Entry(ctx, ownerType, ownerID, currency, walletdomain.EntryTypePayout, reference)
	if err != nil {
		return err
	}
	if debit == nil {
		return nil
	}

	_, err = s.wallets.Credit(ctx, walletdomain.MutationRequest{
		OwnerType:   ownerType,
		OwnerID:     ownerID,
		Currency:    currency,
		Amount:      event.Amount,
		Type:        walletdomain.EntryTypeAdjustment,
		Reference:   "reversal:" + reference,
		Description: "payout reversal",
	})
	if err != nil {
		s.obsMetrics.IncEffectFailure("wallet_payout_reversal")
		return err
	}
	s.log.Info("payout reversal credited",
		zap.String("provider", provider),
		zap.String("reference", reference),
		zap.Int64("amount", event.Amount),
	)
	return nil
}

func feeFor(amount int64, percent float64) int64 {
	if amount <= 0 || percent <= 0 {
		return 0
	}
	return int64(math.Round(float64(amount) * percent / 100))
}

func formatMinor(amount int64) string {
	return fmt.Sprintf("%d.%02d", amount/100, amount%100)
}
