package service

import (
	"context"
	"errors"
	"testing"

	"cyberpark/internal/model"
	"cyberpark/internal/repository"

	"github.com/shopspring/decimal"
)

func TestDeduct(t *testing.T) {
	db, rdb, cfg := newTestEnv(t)
	svc := NewLedgerService(db, rdb, cfg)
	ctx := context.Background()

	user := seedUser(t, db, "100.00", 1)

	entry, levelUp, err := svc.Deduct(ctx, user.ID, decimal.NewFromInt(30), "行程扣费")
	if err != nil {
		t.Fatalf("deduct: %v", err)
	}
	if levelUp {
		t.Fatalf("unexpected level up")
	}
	if entry.Status != model.TransactionStatusCompleted {
		t.Fatalf("entry status: got %s, want COMPLETED", entry.Status)
	}
	if entry.Type != model.TransactionTypeRidePayment {
		t.Fatalf("entry type: got %s, want RIDE_PAYMENT", entry.Type)
	}
	if !entry.BalanceBefore.Equal(decimal.NewFromInt(100)) || !entry.BalanceAfter.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("snapshots: before=%s after=%s", entry.BalanceBefore, entry.BalanceAfter)
	}

	got := getUser(t, db, user.ID)
	if !got.Balance.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("balance: got %s, want 70", got.Balance)
	}
	if !got.TotalSpent.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("total spent: got %s, want 30", got.TotalSpent)
	}
	if n := countOutbox(t, db, "wallet.deducted"); n != 1 {
		t.Fatalf("wallet events: got %d, want 1", n)
	}
}

func TestDeductLevelUp(t *testing.T) {
	db, rdb, cfg := newTestEnv(t)
	svc := NewLedgerService(db, rdb, cfg)
	ctx := context.Background()

	user := seedUser(t, db, "500.00", 1)

	// 140 + 20 = 160，跨过 150 升到 2 级
	if err := db.Model(&model.User{}).Where("id = ?", user.ID).
		Update("total_spent", decimal.NewFromInt(140)).Error; err != nil {
		t.Fatalf("seed total spent: %v", err)
	}

	_, levelUp, err := svc.Deduct(ctx, user.ID, decimal.NewFromInt(20), "行程扣费")
	if err != nil {
		t.Fatalf("deduct: %v", err)
	}
	if !levelUp {
		t.Fatalf("expected level up")
	}

	got := getUser(t, db, user.ID)
	if got.Level != 2 {
		t.Fatalf("level: got %d, want 2", got.Level)
	}
	if !got.TotalSpent.Equal(decimal.NewFromInt(160)) {
		t.Fatalf("total spent: got %s, want 160", got.TotalSpent)
	}
}

func TestDeductInsufficientBalance(t *testing.T) {
	db, rdb, cfg := newTestEnv(t)
	svc := NewLedgerService(db, rdb, cfg)
	ctx := context.Background()

	user := seedUser(t, db, "10.00", 1)

	_, _, err := svc.Deduct(ctx, user.ID, decimal.NewFromInt(11), "行程扣费")
	if !errors.Is(err, repository.ErrBalanceNotEnough) {
		t.Fatalf("deduct: got %v, want ErrBalanceNotEnough", err)
	}

	got := getUser(t, db, user.ID)
	if !got.Balance.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("balance changed after failed deduct: %s", got.Balance)
	}

	entries, err := svc.GetTransactions(ctx, user.ID, 10)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no ledger entries, got %d", len(entries))
	}
}

func TestDeductRejectsNonPositiveAmount(t *testing.T) {
	db, rdb, cfg := newTestEnv(t)
	svc := NewLedgerService(db, rdb, cfg)
	ctx := context.Background()

	user := seedUser(t, db, "100.00", 1)

	if _, _, err := svc.Deduct(ctx, user.ID, decimal.Zero, "x"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero amount: got %v, want ErrInvalidAmount", err)
	}
	if _, _, err := svc.Deduct(ctx, user.ID, decimal.NewFromInt(-5), "x"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative amount: got %v, want ErrInvalidAmount", err)
	}
}

func TestLedgerSumMatchesBalance(t *testing.T) {
	db, rdb, cfg := newTestEnv(t)
	svc := NewLedgerService(db, rdb, cfg)
	ctx := context.Background()

	user := seedUser(t, db, "0.00", 1)

	// 充值 500，回调完成后入账
	if _, err := svc.RecordPending(ctx, user.ID, model.TransactionTypeDeposit, decimal.NewFromInt(500), "充值", "pay-sum-1"); err != nil {
		t.Fatalf("record deposit: %v", err)
	}
	if err := svc.CompleteTransaction(ctx, "pay-sum-1", model.TransactionStatusCompleted); err != nil {
		t.Fatalf("complete deposit: %v", err)
	}

	// 行程扣费 120
	if _, _, err := svc.Deduct(ctx, user.ID, decimal.NewFromInt(120), "行程扣费"); err != nil {
		t.Fatalf("deduct: %v", err)
	}

	// 退款 80 回支付渠道，回调完成后出账
	if _, err := svc.RecordPending(ctx, user.ID, model.TransactionTypeWithdrawal, decimal.NewFromInt(80), "退款", "pay-sum-2"); err != nil {
		t.Fatalf("record withdrawal: %v", err)
	}
	if err := svc.CompleteTransaction(ctx, "pay-sum-2", model.TransactionStatusCompleted); err != nil {
		t.Fatalf("complete withdrawal: %v", err)
	}

	entries, err := svc.GetTransactions(ctx, user.ID, 50)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}

	// 所有已完成流水的带符号金额之和必须等于当前余额
	sum := decimal.Zero
	for _, entry := range entries {
		if entry.Status != model.TransactionStatusCompleted {
			continue
		}
		if model.IsCreditType(entry.Type) {
			sum = sum.Add(entry.Amount)
		} else {
			sum = sum.Sub(entry.Amount)
		}
	}

	balance, err := svc.GetBalance(ctx, user.ID)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("balance: got %s, want 300", balance)
	}
	if !sum.Equal(balance) {
		t.Fatalf("ledger sum %s does not match balance %s", sum, balance)
	}
}

func TestCompleteTransactionIdempotent(t *testing.T) {
	db, rdb, cfg := newTestEnv(t)
	svc := NewLedgerService(db, rdb, cfg)
	ctx := context.Background()

	user := seedUser(t, db, "0.00", 1)

	entry, err := svc.RecordPending(ctx, user.ID, model.TransactionTypeDeposit,
		decimal.NewFromInt(200), "充值", "pay-1")
	if err != nil {
		t.Fatalf("record pending: %v", err)
	}
	if entry.Status != model.TransactionStatusPending {
		t.Fatalf("entry status: got %s, want PENDING", entry.Status)
	}

	// 网关重复投递两次
	if err := svc.CompleteTransaction(ctx, "pay-1", model.TransactionStatusCompleted); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := svc.CompleteTransaction(ctx, "pay-1", model.TransactionStatusCompleted); err != nil {
		t.Fatalf("second delivery: %v", err)
	}

	got := getUser(t, db, user.ID)
	if !got.Balance.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("balance applied more than once: %s", got.Balance)
	}

	entries, err := svc.GetTransactions(ctx, user.ID, 10)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(entries) != 1 || entries[0].Status != model.TransactionStatusCompleted {
		t.Fatalf("unexpected ledger entries: %+v", entries)
	}
}

func TestCompleteTransactionCanceled(t *testing.T) {
	db, rdb, cfg := newTestEnv(t)
	svc := NewLedgerService(db, rdb, cfg)
	ctx := context.Background()

	user := seedUser(t, db, "0.00", 1)

	if _, err := svc.RecordPending(ctx, user.ID, model.TransactionTypeDeposit,
		decimal.NewFromInt(200), "充值", "pay-2"); err != nil {
		t.Fatalf("record pending: %v", err)
	}

	if err := svc.CompleteTransaction(ctx, "pay-2", model.TransactionStatusCanceled); err != nil {
		t.Fatalf("canceled delivery: %v", err)
	}

	got := getUser(t, db, user.ID)
	if !got.Balance.Equal(decimal.Zero) {
		t.Fatalf("balance changed on canceled payment: %s", got.Balance)
	}

	entries, err := svc.GetTransactions(ctx, user.ID, 10)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(entries) != 1 || entries[0].Status != model.TransactionStatusCanceled {
		t.Fatalf("unexpected ledger entries: %+v", entries)
	}
}

func TestCompleteTransactionUnknownPayment(t *testing.T) {
	db, rdb, cfg := newTestEnv(t)
	svc := NewLedgerService(db, rdb, cfg)

	// 未匹配到流水只记日志，不报错（网关可能先于登记送达）
	if err := svc.CompleteTransaction(context.Background(), "missing", model.TransactionStatusCompleted); err != nil {
		t.Fatalf("unknown payment: %v", err)
	}
}

func TestRecordPendingValidation(t *testing.T) {
	db, rdb, cfg := newTestEnv(t)
	svc := NewLedgerService(db, rdb, cfg)
	ctx := context.Background()

	user := seedUser(t, db, "0.00", 1)

	if _, err := svc.RecordPending(ctx, user.ID, model.TransactionTypeDeposit,
		decimal.Zero, "x", ""); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero amount: got %v, want ErrInvalidAmount", err)
	}
	if _, err := svc.RecordPending(ctx, user.ID, "TELEPORT",
		decimal.NewFromInt(10), "x", ""); !errors.Is(err, ErrInvalidType) {
		t.Fatalf("unknown type: got %v, want ErrInvalidType", err)
	}
	if _, err := svc.RecordPending(ctx, "missing", model.TransactionTypeDeposit,
		decimal.NewFromInt(10), "x", ""); !errors.Is(err, repository.ErrUserNotFound) {
		t.Fatalf("missing user: got %v, want ErrUserNotFound", err)
	}
}
