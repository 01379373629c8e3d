package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"cyberpark/internal/config"
	"cyberpark/internal/infrastructure/lock"
	"cyberpark/internal/model"
	"cyberpark/internal/repository"
	"cyberpark/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrInvalidAmount = errors.New("金额必须大于0")
	ErrInvalidType   = errors.New("未知的交易类型")
)

var validTransactionTypes = map[string]bool{
	model.TransactionTypeDeposit:     true,
	model.TransactionTypeWithdrawal:  true,
	model.TransactionTypeRidePayment: true,
	model.TransactionTypeRefund:      true,
	model.TransactionTypeBonus:       true,
	model.TransactionTypePenalty:     true,
}

// LedgerService 钱包流水服务，余额的唯一修改入口。
//
// 【关键点】
// 1. 幂等性：支付网关回调至少一次投递，完成动作靠流水状态 CAS 去重；
// 2. 原子性：余额变更和流水落库在同一个数据库事务内，任何一步失败
//    整体回滚，绝不允许"余额改了流水没记"或反过来；
// 3. 并发安全：同一用户的余额变更通过钱包锁串行，扣费本身还有
//    余额护栏的条件 UPDATE 兜底，不可能扣成负数。
type LedgerService struct {
	db              *gorm.DB
	redisClient     *redis.Client
	cfg             *config.Config
	userRepo        *repository.UserRepository
	transactionRepo *repository.TransactionRepository
	outboxRepo      *repository.OutboxRepository
}

func NewLedgerService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *LedgerService {
	return &LedgerService{
		db:              db,
		redisClient:     redisClient,
		cfg:             cfg,
		userRepo:        repository.NewUserRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
	}
}

func (s *LedgerService) levelStep() decimal.Decimal {
	step, err := decimal.NewFromString(s.cfg.Business.LevelStepAmount)
	if err != nil || !step.IsPositive() {
		return decimal.NewFromInt(150)
	}
	return step
}

// RecordPending 登记一笔待完成流水，不动余额。
// 前后余额按当前余额快照预先计算，方向由交易类型决定。
func (s *LedgerService) RecordPending(ctx context.Context, userID, txType string, amount decimal.Decimal, description, paymentID string) (*model.WalletTransaction, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !validTransactionTypes[txType] {
		return nil, ErrInvalidType
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	before := user.Balance
	var after decimal.Decimal
	if model.IsCreditType(txType) {
		after = before.Add(amount)
	} else {
		after = before.Sub(amount)
	}

	metadata, _ := json.Marshal(map[string]string{
		"recorded_at": time.Now().Format(time.RFC3339),
	})
	entry := &model.WalletTransaction{
		TransactionNo: idgen.GenerateTransactionNo(),
		UserID:        userID,
		Type:          txType,
		Status:        model.TransactionStatusPending,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Description:   description,
		Metadata:      string(metadata),
	}
	if paymentID != "" {
		entry.PaymentID = &paymentID
	}

	if err := s.transactionRepo.Create(ctx, nil, entry); err != nil {
		return nil, fmt.Errorf("记录流水失败: %w", err)
	}
	return entry, nil
}

// CompleteTransaction 按支付网关单号完成流水。
//
// 至少一次投递的回调可以安全地重复调用：只有第一次把流水从非 COMPLETED
// 置为 COMPLETED 的调用会应用余额变更，之后的重复调用全部是 no-op。
// 找不到流水时记日志后返回（网关可能先于登记送达，由补偿查询兜底）。
// status 不是 COMPLETED 时只更新流水状态，不动余额。
func (s *LedgerService) CompleteTransaction(ctx context.Context, paymentID, status string) error {
	entry, err := s.transactionRepo.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return err
	}
	if entry == nil {
		log.Printf("[Ledger] 回调未匹配到流水: paymentID=%s, status=%s", paymentID, status)
		return nil
	}
	if entry.Status == model.TransactionStatusCompleted {
		log.Printf("[Ledger] 流水已完成，忽略重复回调: transactionNo=%s", entry.TransactionNo)
		return nil
	}

	if status != model.TransactionStatusCompleted {
		return s.transactionRepo.UpdateStatusIfNotCompleted(ctx, nil, entry.ID, status)
	}

	walletLock := lock.NewWalletLock(s.redisClient, entry.UserID)
	if err := walletLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer walletLock.Unlock(ctx)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		won, err := s.transactionRepo.MarkCompleted(ctx, tx, entry.ID)
		if err != nil {
			return err
		}
		if !won {
			// 重复回调，余额已经应用过
			return nil
		}

		// 余额变更失败必须让整个事务回滚，绝不能吞掉继续
		if model.IsCreditType(entry.Type) {
			if err := s.userRepo.Credit(ctx, tx, entry.UserID, entry.Amount); err != nil {
				return fmt.Errorf("入账失败: %w", err)
			}
		} else {
			if err := s.userRepo.Debit(ctx, tx, entry.UserID, entry.Amount); err != nil {
				return fmt.Errorf("出账失败: %w", err)
			}
		}

		return s.enqueueWalletEvent(ctx, tx, "payment.completed", entry)
	})
	if err != nil {
		return err
	}

	log.Printf("[Ledger] 流水完成: transactionNo=%s, type=%s, amount=%s",
		entry.TransactionNo, entry.Type, entry.Amount.String())
	return nil
}

// Deduct 行程扣费：原子扣减余额并落一条 COMPLETED 的 RIDE_PAYMENT 流水，
// 同时累加消费并重算等级。返回流水和是否升级。
// 余额不足时返回 repository.ErrBalanceNotEnough，余额保持不变。
func (s *LedgerService) Deduct(ctx context.Context, userID string, amount decimal.Decimal, description string) (*model.WalletTransaction, bool, error) {
	if !amount.IsPositive() {
		return nil, false, ErrInvalidAmount
	}

	walletLock := lock.NewWalletLock(s.redisClient, userID)
	if err := walletLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, false, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer walletLock.Unlock(ctx)

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if user.Balance.LessThan(amount) {
		return nil, false, repository.ErrBalanceNotEnough
	}

	var entry *model.WalletTransaction
	levelUp := false
	err = s.db.Transaction(func(tx *gorm.DB) error {
		// 条件 UPDATE 带余额护栏，锁外的并发写也扣不成负数
		if err := s.userRepo.Debit(ctx, tx, userID, amount); err != nil {
			return err
		}

		entry = &model.WalletTransaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        userID,
			Type:          model.TransactionTypeRidePayment,
			Status:        model.TransactionStatusCompleted,
			Amount:        amount,
			BalanceBefore: user.Balance,
			BalanceAfter:  user.Balance.Sub(amount),
			Description:   description,
		}
		if err := s.transactionRepo.Create(ctx, tx, entry); err != nil {
			return fmt.Errorf("记录流水失败: %w", err)
		}

		newSpent := user.TotalSpent.Add(amount)
		newLevel := model.LevelForSpent(newSpent, s.levelStep())
		levelUp = newLevel > user.Level
		if err := s.userRepo.UpdateSpending(ctx, tx, userID, newSpent, newLevel); err != nil {
			return fmt.Errorf("更新消费累计失败: %w", err)
		}

		return s.enqueueWalletEvent(ctx, tx, "wallet.deducted", entry)
	})
	if err != nil {
		return nil, false, err
	}

	log.Printf("[Ledger] 行程扣费成功: userID=%s, amount=%s, levelUp=%v",
		userID, amount.String(), levelUp)
	return entry, levelUp, nil
}

func (s *LedgerService) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return user.Balance, nil
}

func (s *LedgerService) GetTransactions(ctx context.Context, userID string, limit int) ([]*model.WalletTransaction, error) {
	return s.transactionRepo.ListByUser(ctx, userID, limit)
}

func (s *LedgerService) GetUser(ctx context.Context, userID string) (*model.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

func (s *LedgerService) enqueueWalletEvent(ctx context.Context, tx *gorm.DB, eventType string, entry *model.WalletTransaction) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"event":          eventType,
		"transaction_no": entry.TransactionNo,
		"user_id":        entry.UserID,
		"type":           entry.Type,
		"amount":         entry.Amount.String(),
	})
	msg := &model.OutboxMessage{
		MessageKey: entry.TransactionNo,
		Topic:      s.cfg.Kafka.Topic.WalletEvents,
		EventType:  eventType,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	return nil
}
