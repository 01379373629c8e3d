package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 交易类型常量
// ============================================================================

const (
	TransactionTypeDeposit     = "DEPOSIT"      // 充值入账
	TransactionTypeWithdrawal  = "WITHDRAWAL"   // 提现/退回支付渠道
	TransactionTypeRidePayment = "RIDE_PAYMENT" // 行程扣费
	TransactionTypeRefund      = "REFUND"       // 费用退回钱包
	TransactionTypeBonus       = "BONUS"        // 奖励入账
	TransactionTypePenalty     = "PENALTY"      // 罚金扣款
)

const (
	TransactionStatusPending   = "PENDING"
	TransactionStatusCompleted = "COMPLETED"
	TransactionStatusFailed    = "FAILED"
	TransactionStatusCanceled  = "CANCELED"
)

// IsCreditType 判断交易类型的方向：入账返回 true，出账返回 false。
// 入账：DEPOSIT / REFUND / BONUS；出账：WITHDRAWAL / RIDE_PAYMENT / PENALTY。
func IsCreditType(txType string) bool {
	switch txType {
	case TransactionTypeDeposit, TransactionTypeRefund, TransactionTypeBonus:
		return true
	default:
		return false
	}
}

// ============================================================================
// 钱包流水实体
// ============================================================================

// WalletTransaction 钱包流水表
// 记录余额的每一笔变动，是对账的核心依据
//
// 【重要】流水表设计原则：
// 1. COMPLETED 后不可再修改 —— 保证审计可追溯
// 2. 记录交易前后余额快照 —— 便于校验余额一致性
// 3. 同一笔流水对余额的影响至多生效一次 —— 支付网关回调是至少一次投递，
//    重复回调靠状态 CAS 去重
//
// amount 恒为正数，方向由 type 决定：
// balance_after = balance_before + amount（入账类型）
// balance_after = balance_before - amount（出账类型）
type WalletTransaction struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	UserID        string          `gorm:"index;size:36;not null" json:"user_id"`
	Type          string          `gorm:"type:varchar(20);not null" json:"type"`
	Status        string          `gorm:"type:varchar(20);index;not null" json:"status"`
	Amount        decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	BalanceBefore decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"balance_before"`
	BalanceAfter  decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"balance_after"`
	Description   string          `gorm:"size:256" json:"description"`
	PaymentID     *string         `gorm:"index;size:64" json:"payment_id,omitempty"`
	Metadata      string          `gorm:"type:text" json:"metadata,omitempty"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (WalletTransaction) TableName() string {
	return "wallet_transaction"
}
