package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"cyberpark/internal/config"
	"cyberpark/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrGatewayUnavailable = errors.New("支付网关暂时不可用")

// PaymentSpec 发起支付时提交给网关的参数。
type PaymentSpec struct {
	Amount      decimal.Decimal
	Currency    string
	Description string
	Metadata    map[string]string
}

// PaymentRef 网关返回的支付单引用。
type PaymentRef struct {
	ID              string
	Status          string
	ConfirmationURL string
}

// RefundSpec 发起退款时提交给网关的参数。
type RefundSpec struct {
	PaymentID   string
	Amount      decimal.Decimal
	Currency    string
	Description string
}

// RefundRef 网关返回的退款单引用。
type RefundRef struct {
	ID     string
	Status string
}

// PaymentGateway 抽象支付网关。同一个幂等键的重复请求必须返回
// 同一个支付单，这是重试安全的前提。
type PaymentGateway interface {
	CreatePayment(ctx context.Context, spec PaymentSpec, idempotencyKey string) (*PaymentRef, error)
	GetPayment(ctx context.Context, id string) (*PaymentRef, error)
	CreateRefund(ctx context.Context, spec RefundSpec, idempotencyKey string) (*RefundRef, error)
}

// mockGateway 网关凭证未配置时的本地实现，直接返回 pending 状态的
// 假支付单，方便本地联调和测试。
type mockGateway struct{}

func (mockGateway) CreatePayment(ctx context.Context, spec PaymentSpec, idempotencyKey string) (*PaymentRef, error) {
	return &PaymentRef{
		ID:              "mock-" + idempotencyKey,
		Status:          "pending",
		ConfirmationURL: "https://pay.example.com/confirm/" + idempotencyKey,
	}, nil
}

func (mockGateway) GetPayment(ctx context.Context, id string) (*PaymentRef, error) {
	return &PaymentRef{ID: id, Status: "pending"}, nil
}

func (mockGateway) CreateRefund(ctx context.Context, spec RefundSpec, idempotencyKey string) (*RefundRef, error) {
	return &RefundRef{ID: "mock-refund-" + idempotencyKey, Status: "succeeded"}, nil
}

// PaymentService 对接支付网关：发起充值、发起退款、接收回调。
// 余额本身不在这里动，统一交给 LedgerService。
type PaymentService struct {
	gateway PaymentGateway
	ledger  *LedgerService
	cfg     *config.Config
}

func NewPaymentService(gateway PaymentGateway, ledger *LedgerService, cfg *config.Config) *PaymentService {
	if gateway == nil {
		if cfg.Gateway.ShopID != "" && cfg.Gateway.SecretKey != "" {
			log.Println("[Payment] 已配置网关凭证但未注入网关实现，降级为 mock 网关")
		} else {
			log.Println("[Payment] 网关凭证未配置，使用 mock 网关")
		}
		gateway = mockGateway{}
	}
	return &PaymentService{
		gateway: gateway,
		ledger:  ledger,
		cfg:     cfg,
	}
}

// CreateDeposit 发起一笔充值。
//
// 幂等键在重试之间复用：网关保证同键返回同一个支付单，所以即使第一次
// 请求实际成功但响应丢失，重试也不会重复扣用户的卡。网关侧成功后再
// 落一条 PENDING 的 DEPOSIT 流水，等回调把它置为 COMPLETED。
func (s *PaymentService) CreateDeposit(ctx context.Context, userID string, amount decimal.Decimal, description string) (*model.WalletTransaction, *PaymentRef, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, nil, ErrInvalidAmount
	}
	if _, err := s.ledger.GetUser(ctx, userID); err != nil {
		return nil, nil, err
	}

	idempotencyKey := uuid.NewString()
	spec := PaymentSpec{
		Amount:      amount,
		Currency:    "RUB",
		Description: description,
		Metadata:    map[string]string{"user_id": userID},
	}

	var ref *PaymentRef
	var err error
	for attempt := 1; attempt <= s.cfg.Business.MaxRetryCount; attempt++ {
		ref, err = s.gateway.CreatePayment(ctx, spec, idempotencyKey)
		if err == nil {
			break
		}
		log.Printf("[Payment] 创建支付单失败(第%d次): %v", attempt, err)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	entry, err := s.ledger.RecordPending(ctx, userID, model.TransactionTypeDeposit, amount, description, ref.ID)
	if err != nil {
		return nil, nil, err
	}
	return entry, ref, nil
}

// RequestRefund 对某笔支付发起退款。网关侧退款成功后落一条 PENDING
// 的 WITHDRAWAL 流水，等 refund.succeeded 回调再扣减余额。
func (s *PaymentService) RequestRefund(ctx context.Context, userID, paymentID string, amount decimal.Decimal, description string) (*model.WalletTransaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	idempotencyKey := uuid.NewString()
	spec := RefundSpec{
		PaymentID:   paymentID,
		Amount:      amount,
		Currency:    "RUB",
		Description: description,
	}

	var ref *RefundRef
	var err error
	for attempt := 1; attempt <= s.cfg.Business.MaxRetryCount; attempt++ {
		ref, err = s.gateway.CreateRefund(ctx, spec, idempotencyKey)
		if err == nil {
			break
		}
		log.Printf("[Payment] 创建退款单失败(第%d次): %v", attempt, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	return s.ledger.RecordPending(ctx, userID, model.TransactionTypeWithdrawal, amount, description, ref.ID)
}

// WebhookEvent 网关回调报文。object.id 是网关侧的支付/退款单号。
type WebhookEvent struct {
	Event  string `json:"event"`
	Object struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"object"`
}

// HandleWebhook 处理网关回调。回调是至少一次投递，这里只负责解析和
// 路由，幂等由 LedgerService.CompleteTransaction 保证。
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte) error {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("回调报文解析失败: %w", err)
	}
	if event.Object.ID == "" {
		return errors.New("回调报文缺少单号")
	}

	switch event.Event {
	case "payment.succeeded":
		return s.ledger.CompleteTransaction(ctx, event.Object.ID, model.TransactionStatusCompleted)
	case "payment.canceled":
		return s.ledger.CompleteTransaction(ctx, event.Object.ID, model.TransactionStatusCanceled)
	case "refund.succeeded":
		return s.ledger.CompleteTransaction(ctx, event.Object.ID, model.TransactionStatusCompleted)
	default:
		log.Printf("[Payment] 忽略未知回调事件: %s", event.Event)
		return nil
	}
}
