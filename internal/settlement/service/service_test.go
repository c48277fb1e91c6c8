package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/ovationhq/ovation/internal/clock"
	"github.com/ovationhq/ovation/internal/config"
	gatewaydomain "github.com/ovationhq/ovation/internal/gateway/domain"
	"github.com/ovationhq/ovation/internal/identity"
	"github.com/ovationhq/ovation/internal/notify/email"
	"github.com/ovationhq/ovation/internal/notify/push"
	"github.com/ovationhq/ovation/internal/settlement/domain"
	settlementservice "github.com/ovationhq/ovation/internal/settlement/service"
	ticketdomain "github.com/ovationhq/ovation/internal/ticket/domain"
	ticketservice "github.com/ovationhq/ovation/internal/ticket/service"
	transactiondomain "github.com/ovationhq/ovation/internal/transaction/domain"
	transactionrepo "github.com/ovationhq/ovation/internal/transaction/repository"
	walletdomain "github.com/ovationhq/ovation/internal/wallet/domain"
	walletservice "github.com/ovationhq/ovation/internal/wallet/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type countingEmail struct {
	sent atomic.Int64
}

func (c *countingEmail) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	c.sent.Add(1)
	return nil
}

type stubResolver struct{}

func (stubResolver) Resolve(ctx context.Context, userID snowflake.ID) (identity.Contact, error) {
	return identity.Contact{UserID: userID, Email: "owner@example.test"}, nil
}

type fixture struct {
	db      *gorm.DB
	node    *snowflake.Node
	repo    transactiondomain.Repository
	wallets walletdomain.Service
	tickets ticketdomain.Issuer
	email   *countingEmail
	svc     *settlementservice.Service
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = db.AutoMigrate(
		&transactiondomain.Transaction{},
		&walletdomain.Wallet{},
		&walletdomain.LedgerEntry{},
		&ticketdomain.Ticket{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	// sqlite serializes writers; a single connection avoids busy errors in
	// the concurrency tests.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return db
}

func newFixture(t *testing.T, feePercent float64) *fixture {
	t.Helper()
	db := setupTestDB(t)
	return newFixtureWithDB(t, db, feePercent)
}

func newFixtureWithDB(t *testing.T, db *gorm.DB, feePercent float64) *fixture {
	t.Helper()

	node, err := snowflake.NewNode(50)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	fakeClock := clock.NewFakeClock(time.Now())
	wallets := walletservice.NewService(walletservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fakeClock,
	})
	tickets := ticketservice.NewService(ticketservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fakeClock,
	})

	mail := &countingEmail{}
	repo := transactionrepo.Provide()
	svc := settlementservice.NewService(settlementservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: fakeClock,
		Fees: config.NewStaticFeePolicyHolder(config.FeePolicy{
			DefaultPercent: feePercent,
		}),
		Repo:     repo,
		Wallets:  wallets,
		Tickets:  tickets,
		Email:    mail,
		Push:     &push.NoOpProvider{},
		Identity: stubResolver{},
	})

	return &fixture{
		db:      db,
		node:    node,
		repo:    repo,
		wallets: wallets,
		tickets: tickets,
		email:   mail,
		svc:     svc,
	}
}

var _ email.Provider = (*countingEmail)(nil)

type blockingEmail struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingEmail) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	close(b.entered)
	<-b.release
	return nil
}

var _ email.Provider = (*blockingEmail)(nil)

func (f *fixture) seedTransaction(t *testing.T, reference string, amount int64, quantity int) *transactiondomain.Transaction {
	t.Helper()

	now := time.Now().UTC()
	txn := &transactiondomain.Transaction{
		ID:         f.node.Generate(),
		Provider:   "paystack",
		Reference:  reference,
		Amount:     amount,
		Currency:   "NGN",
		Quantity:   quantity,
		Status:     transactiondomain.StatusPending,
		OwnerType:  transactiondomain.OwnerTypeEvent,
		OwnerID:    f.node.Generate(),
		BuyerEmail: "buyer@example.test",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	created, _, err := f.repo.Create(context.Background(), f.db, txn)
	if err != nil || !created {
		t.Fatalf("seed transaction: created=%v err=%v", created, err)
	}
	return txn
}

func chargeEvent(txn *transactiondomain.Transaction) *gatewaydomain.PaymentEvent {
	return &gatewaydomain.PaymentEvent{
		OK:                    true,
		Type:                  gatewaydomain.EventTypeCharge,
		Provider:              txn.Provider,
		Reference:             txn.Reference,
		ProviderTransactionID: "ps_evt_1",
		Amount:                txn.Amount,
		Currency:              txn.Currency,
		RawPayload:            []byte(`{"event":"charge.success"}`),
	}
}

func TestSettleCreditsBaseAmount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	txn := f.seedTransaction(t, "ovn_one", 100000, 2)

	result, err := f.svc.Settle(ctx, chargeEvent(txn))
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if result.AlreadyProcessed {
		t.Fatal("first settlement must not be a duplicate")
	}
	if result.TicketsIssued != 2 {
		t.Fatalf("expected 2 tickets, got %d", result.TicketsIssued)
	}
	if result.CreditedAmount != 90000 {
		t.Fatalf("expected 90000 credited, got %d", result.CreditedAmount)
	}

	stored, err := f.repo.FindByReference(ctx, f.db, txn.Reference)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.Status != transactiondomain.StatusSuccessful {
		t.Fatalf("expected successful, got %s", stored.Status)
	}
	if stored.GatewayFee != 10000 || stored.BaseAmount != 90000 || stored.FeePercent != 10 {
		t.Fatalf("fee split wrong: %+v", stored)
	}

	wallet, err := f.wallets.Get(ctx, txn.OwnerType, txn.OwnerID, "NGN")
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	if wallet.Balance != 90000 {
		t.Fatalf("expected wallet balance 90000, got %d", wallet.Balance)
	}
	if f.email.sent.Load() != 1 {
		t.Fatalf("expected 1 buyer email, got %d", f.email.sent.Load())
	}
}

func TestSettleConcurrentDeliveries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	txn := f.seedTransaction(t, "ovn_race", 200000, 3)

	const workers = 10
	var wg sync.WaitGroup
	wins := atomic.Int64{}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.svc.Settle(ctx, chargeEvent(txn))
			if err != nil {
				t.Errorf("settle: %v", err)
				return
			}
			if !result.AlreadyProcessed {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winning settlement, got %d", wins.Load())
	}

	wallet, err := f.wallets.Get(ctx, txn.OwnerType, txn.OwnerID, "NGN")
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	if wallet.Balance != 180000 {
		t.Fatalf("expected single credit of 180000, got %d", wallet.Balance)
	}

	tickets, err := f.tickets.ByTransaction(ctx, txn.ID)
	if err != nil {
		t.Fatalf("tickets: %v", err)
	}
	if len(tickets) != 3 {
		t.Fatalf("expected 3 tickets total, got %d", len(tickets))
	}
}

func TestSettleDuplicateDoesNotWaitOnWinnerEffects(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	node, err := snowflake.NewNode(51)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	fakeClock := clock.NewFakeClock(time.Now())
	wallets := walletservice.NewService(walletservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fakeClock,
	})
	tickets := ticketservice.NewService(ticketservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fakeClock,
	})
	mail := &blockingEmail{entered: make(chan struct{}), release: make(chan struct{})}
	repo := transactionrepo.Provide()
	svc := settlementservice.NewService(settlementservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: fakeClock,
		Fees: config.NewStaticFeePolicyHolder(config.FeePolicy{
			DefaultPercent: 10,
		}),
		Repo:     repo,
		Wallets:  wallets,
		Tickets:  tickets,
		Email:    mail,
		Push:     &push.NoOpProvider{},
		Identity: stubResolver{},
	})

	f := &fixture{db: db, node: node, repo: repo, wallets: wallets, tickets: tickets, svc: svc}
	txn := f.seedTransaction(t, "ovn_slow_mail", 100000, 1)

	winnerDone := make(chan struct{})
	go func() {
		defer close(winnerDone)
		if _, err := svc.Settle(ctx, chargeEvent(txn)); err != nil {
			t.Errorf("winner settle: %v", err)
		}
	}()

	// The winner is now inside its effects, stuck on the email send.
	<-mail.entered

	dupDone := make(chan *domain.Result, 1)
	go func() {
		result, err := svc.Settle(ctx, chargeEvent(txn))
		if err != nil {
			t.Errorf("duplicate settle: %v", err)
			return
		}
		dupDone <- result
	}()

	select {
	case result := <-dupDone:
		if !result.AlreadyProcessed {
			t.Fatal("expected the duplicate to be reported as already processed")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("duplicate delivery blocked behind the winner's effects")
	}

	close(mail.release)
	<-winnerDone
}

func TestSettleReplayedWebhook(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	txn := f.seedTransaction(t, "ovn_replay", 50000, 1)

	if _, err := f.svc.Settle(ctx, chargeEvent(txn)); err != nil {
		t.Fatalf("settle: %v", err)
	}
	result, err := f.svc.Settle(ctx, chargeEvent(txn))
	if err != nil {
		t.Fatalf("replayed settle: %v", err)
	}
	if !result.AlreadyProcessed {
		t.Fatal("expected replay to be reported as already processed")
	}
	if f.email.sent.Load() != 1 {
		t.Fatalf("replay must not email again, got %d", f.email.sent.Load())
	}
}

func TestSettleOrphanEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)

	_, err := f.svc.Settle(ctx, &gatewaydomain.PaymentEvent{
		OK:        true,
		Type:      gatewaydomain.EventTypeCharge,
		Provider:  "paystack",
		Reference: "ovn_ghost",
		Amount:    1000,
	})
	if !errors.Is(err, domain.ErrOrphanEvent) {
		t.Fatalf("expected ErrOrphanEvent, got %v", err)
	}
}

func TestSettleAmountMismatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	txn := f.seedTransaction(t, "ovn_mismatch", 100000, 1)

	event := chargeEvent(txn)
	event.Amount = 99999

	_, err := f.svc.Settle(ctx, event)
	if !errors.Is(err, domain.ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}

	stored, err := f.repo.FindByReference(ctx, f.db, txn.Reference)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.Status != transactiondomain.StatusPending {
		t.Fatalf("mismatch must leave transaction pending, got %s", stored.Status)
	}
}

func TestFailureThenLateSuccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	txn := f.seedTransaction(t, "ovn_flaky", 80000, 1)

	failed := chargeEvent(txn)
	failed.OK = false
	failed.FailureReason = "insufficient_funds"

	result, err := f.svc.Settle(ctx, failed)
	if err != nil {
		t.Fatalf("settle failure: %v", err)
	}
	if !result.Failed {
		t.Fatal("expected failure result")
	}

	stored, _ := f.repo.FindByReference(ctx, f.db, txn.Reference)
	if stored.Status != transactiondomain.StatusFailed {
		t.Fatalf("expected failed, got %s", stored.Status)
	}

	// The gateway later reports success for the same reference.
	result, err = f.svc.Settle(ctx, chargeEvent(txn))
	if err != nil {
		t.Fatalf("late settle: %v", err)
	}
	if result.AlreadyProcessed {
		t.Fatal("late success must settle, not dedupe")
	}

	stored, _ = f.repo.FindByReference(ctx, f.db, txn.Reference)
	if stored.Status != transactiondomain.StatusSuccessful {
		t.Fatalf("expected successful, got %s", stored.Status)
	}
}

func TestRefundUsesFeeLockedAtSettlement(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	// Settle under a 10 percent policy.
	settleFixture := newFixtureWithDB(t, db, 10)
	txn := settleFixture.seedTransaction(t, "ovn_refund", 100000, 1)
	if _, err := settleFixture.svc.Settle(ctx, chargeEvent(txn)); err != nil {
		t.Fatalf("settle: %v", err)
	}

	// The platform later raises the fee to 20 percent. The refund must still
	// use the split stored on the transaction.
	refundFixture := newFixtureWithDB(t, db, 20)
	err := refundFixture.svc.HandleRefund(ctx, &gatewaydomain.PaymentEvent{
		OK:        true,
		Type:      gatewaydomain.EventTypeRefund,
		Provider:  txn.Provider,
		Reference: txn.Reference,
		Amount:    txn.Amount,
	})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}

	wallet, err := refundFixture.wallets.Get(ctx, txn.OwnerType, txn.OwnerID, "NGN")
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	// Credited 90000 at settlement, debited 90000 on refund.
	if wallet.Balance != 0 {
		t.Fatalf("expected zero balance after refund, got %d", wallet.Balance)
	}
}

func TestRefundReplayIsNoOp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	txn := f.seedTransaction(t, "ovn_refund2", 60000, 1)
	if _, err := f.svc.Settle(ctx, chargeEvent(txn)); err != nil {
		t.Fatalf("settle: %v", err)
	}

	refund := &gatewaydomain.PaymentEvent{
		OK:        true,
		Type:      gatewaydomain.EventTypeRefund,
		Provider:  txn.Provider,
		Reference: txn.Reference,
		Amount:    txn.Amount,
	}
	if err := f.svc.HandleRefund(ctx, refund); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if err := f.svc.HandleRefund(ctx, refund); err != nil {
		t.Fatalf("replayed refund: %v", err)
	}

	wallet, err := f.wallets.Get(ctx, txn.OwnerType, txn.OwnerID, "NGN")
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	if wallet.Balance != 0 {
		t.Fatalf("replayed refund must not double debit, balance %d", wallet.Balance)
	}
}

func TestTransferReversalRequiresPayout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)

	ownerID := f.node.Generate()
	metadata := map[string]any{"userId": ownerID.String()}

	// A reversal for a payout this engine never recorded must not mint funds.
	err := f.svc.HandleTransfer(ctx, &gatewaydomain.PaymentEvent{
		OK:        false,
		Type:      gatewaydomain.EventTypeTransfer,
		Provider:  "paystack",
		Reference: "trf_unknown",
		Amount:    40000,
		Currency:  "NGN",
		Metadata:  metadata,
	})
	if err != nil {
		t.Fatalf("reversal without payout: %v", err)
	}
	if _, err := f.wallets.Get(ctx, transactiondomain.OwnerTypeUser, ownerID, "NGN"); !errors.Is(err, walletdomain.ErrWalletNotFound) {
		t.Fatalf("expected no wallet, got %v", err)
	}

	// Fund the wallet, record the payout, then reverse it.
	if _, err := f.wallets.Credit(ctx, walletdomain.MutationRequest{
		OwnerType: transactiondomain.OwnerTypeUser,
		OwnerID:   ownerID,
		Currency:  "NGN",
		Amount:    40000,
		Type:      walletdomain.EntryTypeCharge,
		Reference: "seed",
	}); err != nil {
		t.Fatalf("seed credit: %v", err)
	}

	payout := &gatewaydomain.PaymentEvent{
		OK:        true,
		Type:      gatewaydomain.EventTypeTransfer,
		Provider:  "paystack",
		Reference: "trf_1",
		Amount:    40000,
		Currency:  "NGN",
		Metadata:  metadata,
	}
	if err := f.svc.HandleTransfer(ctx, payout); err != nil {
		t.Fatalf("payout: %v", err)
	}

	reversal := *payout
	reversal.OK = false
	if err := f.svc.HandleTransfer(ctx, &reversal); err != nil {
		t.Fatalf("reversal: %v", err)
	}

	wallet, err := f.wallets.Get(ctx, transactiondomain.OwnerTypeUser, ownerID, "NGN")
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	if wallet.Balance != 40000 {
		t.Fatalf("expected funds returned, balance %d", wallet.Balance)
	}
}
