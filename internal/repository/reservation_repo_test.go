package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"cyberpark/internal/model"

	"github.com/google/uuid"
)

func seedReservation(t *testing.T, repo *ReservationRepository, userID string, expiresAt time.Time) *model.Reservation {
	t.Helper()
	reservation := &model.Reservation{
		ID:            uuid.NewString(),
		ReservationNo: "RSV" + uuid.NewString(),
		CarTypeID:     "type-a",
		CarUnitID:     uuid.NewString(),
		UserID:        userID,
		StartTime:     time.Now(),
		ExpiresAt:     expiresAt,
		Status:        model.ReservationStatusActive,
	}
	if err := repo.Create(context.Background(), nil, reservation); err != nil {
		t.Fatalf("create reservation: %v", err)
	}
	return reservation
}

func TestUpdateStatusSingleWinner(t *testing.T) {
	db := newTestDB(t)
	repo := NewReservationRepository(db)
	ctx := context.Background()

	reservation := seedReservation(t, repo, "user-1", time.Now().Add(10*time.Minute))

	won, err := repo.UpdateStatus(ctx, nil, reservation.ID,
		model.ReservationStatusActive, model.ReservationStatusExpired)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if !won {
		t.Fatalf("expected first transition to win")
	}

	won, err = repo.UpdateStatus(ctx, nil, reservation.ID,
		model.ReservationStatusActive, model.ReservationStatusExpired)
	if err != nil {
		t.Fatalf("repeated update status: %v", err)
	}
	if won {
		t.Fatalf("expected repeated transition to lose")
	}
}

func TestUpdateStatusRejectsInvalidTransition(t *testing.T) {
	db := newTestDB(t)
	repo := NewReservationRepository(db)
	ctx := context.Background()

	reservation := seedReservation(t, repo, "user-1", time.Now().Add(10*time.Minute))

	_, err := repo.UpdateStatus(ctx, nil, reservation.ID,
		model.ReservationStatusExpired, model.ReservationStatusActive)
	if !errors.Is(err, ErrReservationNotActive) {
		t.Fatalf("invalid transition: got %v, want ErrReservationNotActive", err)
	}
}

func TestListExpiredActive(t *testing.T) {
	db := newTestDB(t)
	repo := NewReservationRepository(db)
	ctx := context.Background()

	overdue := seedReservation(t, repo, "user-1", time.Now().Add(-time.Minute))
	seedReservation(t, repo, "user-2", time.Now().Add(10*time.Minute))

	expired, err := repo.ListExpiredActive(ctx, 100)
	if err != nil {
		t.Fatalf("list expired: %v", err)
	}
	if len(expired) != 1 {
		t.Fatalf("expired: got %d, want 1", len(expired))
	}
	if expired[0].ID != overdue.ID {
		t.Fatalf("expected reservation %s, got %s", overdue.ID, expired[0].ID)
	}
}

func TestGetActiveByUser(t *testing.T) {
	db := newTestDB(t)
	repo := NewReservationRepository(db)
	ctx := context.Background()

	got, err := repo.GetActiveByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no active reservation, got %+v", got)
	}

	reservation := seedReservation(t, repo, "user-1", time.Now().Add(10*time.Minute))
	got, err = repo.GetActiveByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if got == nil || got.ID != reservation.ID {
		t.Fatalf("expected reservation %s, got %+v", reservation.ID, got)
	}
}
