package repository

import (
	"context"
	"errors"
	"testing"

	"cyberpark/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func seedUser(t *testing.T, repo *UserRepository, balance string) *model.User {
	t.Helper()
	bal, err := decimal.NewFromString(balance)
	if err != nil {
		t.Fatalf("parse balance: %v", err)
	}
	user := &model.User{
		ID:         uuid.NewString(),
		Email:      uuid.NewString() + "@example.com",
		FullName:   "Test User",
		Balance:    bal,
		Level:      1,
		TotalSpent: decimal.Zero,
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func TestCreditAndDebit(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := seedUser(t, repo, "100.00")

	if err := repo.Credit(ctx, nil, user.ID, decimal.NewFromInt(50)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := repo.Debit(ctx, nil, user.ID, decimal.NewFromInt(30)); err != nil {
		t.Fatalf("debit: %v", err)
	}

	got, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !got.Balance.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("balance: got %s, want 120", got.Balance)
	}
}

func TestDebitInsufficientBalance(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := seedUser(t, repo, "10.00")

	err := repo.Debit(ctx, nil, user.ID, decimal.NewFromInt(11))
	if !errors.Is(err, ErrBalanceNotEnough) {
		t.Fatalf("debit: got %v, want ErrBalanceNotEnough", err)
	}

	got, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !got.Balance.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("balance changed after failed debit: %s", got.Balance)
	}
}

func TestDebitMissingUser(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)

	err := repo.Debit(context.Background(), nil, "missing", decimal.NewFromInt(1))
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("debit: got %v, want ErrUserNotFound", err)
	}
}

func TestUpdateSpending(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := seedUser(t, repo, "500.00")

	spent := decimal.NewFromInt(300)
	if err := repo.UpdateSpending(ctx, nil, user.ID, spent, 3); err != nil {
		t.Fatalf("update spending: %v", err)
	}

	got, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !got.TotalSpent.Equal(spent) {
		t.Fatalf("total spent: got %s, want 300", got.TotalSpent)
	}
	if got.Level != 3 {
		t.Fatalf("level: got %d, want 3", got.Level)
	}
}
