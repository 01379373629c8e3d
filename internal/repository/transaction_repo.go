package repository

import (
	"context"
	"errors"

	"cyberpark/internal/model"

	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.WalletTransaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(trans).Error
}

func (r *TransactionRepository) GetByTransactionNo(ctx context.Context, transactionNo string) (*model.WalletTransaction, error) {
	var trans model.WalletTransaction
	err := r.db.WithContext(ctx).Where("transaction_no = ?", transactionNo).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

// GetByPaymentID 按支付网关单号查流水，取最近一条；没有则返回 (nil, nil)。
func (r *TransactionRepository) GetByPaymentID(ctx context.Context, paymentID string) (*model.WalletTransaction, error) {
	var trans model.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at DESC").
		First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

// MarkCompleted 将流水置为 COMPLETED。条件 UPDATE 保证只有第一次调用生效：
// 返回 false 表示该流水已经是 COMPLETED（重复回调），调用方不得再次应用余额。
func (r *TransactionRepository) MarkCompleted(ctx context.Context, tx *gorm.DB, id int64) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.WalletTransaction{}).
		Where("id = ? AND status <> ?", id, model.TransactionStatusCompleted).
		Update("status", model.TransactionStatusCompleted)

	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// UpdateStatusIfNotCompleted 更新非终态流水的状态。
// COMPLETED 的流水不可再修改。
func (r *TransactionRepository) UpdateStatusIfNotCompleted(ctx context.Context, tx *gorm.DB, id int64, status string) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.WalletTransaction{}).
		Where("id = ? AND status <> ?", id, model.TransactionStatusCompleted).
		Update("status", status).Error
}

// ListByUser 用户流水，按时间倒序，条数有界。
func (r *TransactionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*model.WalletTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var transactions []*model.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&transactions).Error
	return transactions, err
}
