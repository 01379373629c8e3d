package handler

import (
	"errors"
	"io"
	"strconv"

	"cyberpark/internal/config"
	"cyberpark/internal/infrastructure/lock"
	"cyberpark/internal/repository"
	"cyberpark/internal/service"
	"cyberpark/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	carService         *service.CarService
	reservationService *service.ReservationService
	rideService        *service.RideService
	ledgerService      *service.LedgerService
	paymentService     *service.PaymentService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	ledger := service.NewLedgerService(db, rdb, cfg)
	return &Handler{
		carService:         service.NewCarService(db),
		reservationService: service.NewReservationService(db, rdb, cfg),
		rideService:        service.NewRideService(db, ledger, cfg),
		ledgerService:      ledger,
		paymentService:     service.NewPaymentService(nil, ledger, cfg),
	}
}

// businessError 把服务层的哨兵错误映射为业务状态码。
// 未匹配到的错误按服务器内部错误处理。
func businessError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNoAvailableUnits):
		response.Error(c, response.CodeNoAvailableUnits, err.Error())
	case errors.Is(err, service.ErrAlreadyHasActiveReservation):
		response.Error(c, response.CodeAlreadyHasActive, err.Error())
	case errors.Is(err, service.ErrLevelTooLow):
		response.Error(c, response.CodeLevelTooLow, err.Error())
	case errors.Is(err, repository.ErrBalanceNotEnough):
		response.Error(c, response.CodeBalanceNotEnough, err.Error())
	case errors.Is(err, lock.ErrLockFailed):
		response.Error(c, response.CodeReservationConflict, err.Error())
	case errors.Is(err, repository.ErrConcurrentUpdate):
		response.Error(c, response.CodeReservationConflict, err.Error())
	case errors.Is(err, repository.ErrUnitStateConflict),
		errors.Is(err, repository.ErrUnitNotAvailable),
		errors.Is(err, repository.ErrReservationNotActive):
		response.Error(c, response.CodeUnitStateConflict, err.Error())
	case errors.Is(err, service.ErrGatewayUnavailable):
		response.Error(c, response.CodeGatewayError, err.Error())
	case errors.Is(err, service.ErrNotReservationOwner),
		errors.Is(err, service.ErrNotUnitDriver):
		response.Forbidden(c, err.Error())
	case errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrCarTypeNotFound),
		errors.Is(err, repository.ErrUnitNotFound),
		errors.Is(err, repository.ErrReservationNotFound),
		errors.Is(err, service.ErrNoUnitInUse):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidRide):
		response.ParamError(c, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

// ============================================================
// 车型相关接口
// ============================================================

// ListCarTypes 车型目录，按用户等级过滤，带实时可用数
// GET /api/v1/car/list?user_id=xxx
func (h *Handler) ListCarTypes(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.ParamError(c, "user_id 参数不能为空")
		return
	}

	user, err := h.ledgerService.GetUser(c.Request.Context(), userID)
	if err != nil {
		businessError(c, err)
		return
	}

	cars, err := h.carService.ListForUser(c.Request.Context(), user)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":  cars,
		"count": len(cars),
	})
}

// GetCarType 车型详情
// GET /api/v1/car/detail?car_type_id=xxx
func (h *Handler) GetCarType(c *gin.Context) {
	carTypeID := c.Query("car_type_id")
	if carTypeID == "" {
		response.ParamError(c, "car_type_id 参数不能为空")
		return
	}

	car, err := h.carService.GetByID(c.Request.Context(), carTypeID)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, car)
}

// ============================================================
// 预订相关接口
// ============================================================

// CreateReservationRequest 创建预订请求
type CreateReservationRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	CarTypeID string `json:"car_type_id" binding:"required"`
}

// CreateReservation 创建预订
// POST /api/v1/reservation/create
//
// 【关键点】同一用户同一时刻只能有一个进行中的预订，车辆分配必须
// 并发安全：通过分布式锁 + 条件更新保证同一辆车不会被分给两个人。
func (h *Handler) CreateReservation(c *gin.Context) {
	var req CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	reservation, err := h.reservationService.Create(c.Request.Context(), req.UserID, req.CarTypeID)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"reservation_id": reservation.ID,
		"reservation_no": reservation.ReservationNo,
		"car_unit_id":    reservation.CarUnitID,
		"status":         reservation.Status,
		"expires_at":     reservation.ExpiresAt,
	})
}

// GetActiveReservation 查询用户进行中的预订
// GET /api/v1/reservation/active?user_id=xxx
func (h *Handler) GetActiveReservation(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.ParamError(c, "user_id 参数不能为空")
		return
	}

	reservation, err := h.reservationService.FindActiveByUser(c.Request.Context(), userID)
	if err != nil {
		businessError(c, err)
		return
	}
	if reservation == nil {
		response.NotFound(c, "当前没有进行中的预订")
		return
	}

	response.Success(c, reservation)
}

// ListReservations 查询用户预订历史
// GET /api/v1/reservation/list?user_id=xxx&limit=20
func (h *Handler) ListReservations(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.ParamError(c, "user_id 参数不能为空")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	reservations, err := h.reservationService.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":  reservations,
		"count": len(reservations),
	})
}

// CancelReservationRequest 取消预订请求
type CancelReservationRequest struct {
	UserID        string `json:"user_id" binding:"required"`
	ReservationID string `json:"reservation_id" binding:"required"`
}

// CancelReservation 取消预订，车辆立即释放回可用池
// POST /api/v1/reservation/cancel
func (h *Handler) CancelReservation(c *gin.Context) {
	var req CancelReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.reservationService.Cancel(c.Request.Context(), req.UserID, req.ReservationID); err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"message": "预订已取消",
	})
}

// UseReservationRequest 开始用车请求
type UseReservationRequest struct {
	UserID        string `json:"user_id" binding:"required"`
	ReservationID string `json:"reservation_id" binding:"required"`
}

// UseReservation 凭预订开始用车，车辆进入使用中
// POST /api/v1/reservation/use
func (h *Handler) UseReservation(c *gin.Context) {
	var req UseReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.reservationService.Use(c.Request.Context(), req.UserID, req.ReservationID); err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"message": "已开始用车",
	})
}

// ============================================================
// 行程相关接口
// ============================================================

// FinishRideRequest 结束行程请求。unit_id 可省略，省略时按
// 用户当前使用中的车辆处理。
type FinishRideRequest struct {
	UserID string `json:"user_id" binding:"required"`
	UnitID string `json:"unit_id"`
}

// FinishRide 结束行程，车辆释放回可用池
// POST /api/v1/ride/finish
func (h *Handler) FinishRide(c *gin.Context) {
	var req FinishRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	unit, err := h.rideService.FinishRide(c.Request.Context(), req.UserID, req.UnitID)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"unit_id": unit.ID,
		"status":  unit.Status,
	})
}

// ChargeRideRequest 行程计费请求
type ChargeRideRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	CarTypeID string `json:"car_type_id" binding:"required"`
	Minutes   int64  `json:"minutes" binding:"required,gt=0"`
}

// ChargeRide 按时长结算行程费用
// POST /api/v1/ride/charge
func (h *Handler) ChargeRide(c *gin.Context) {
	var req ChargeRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	entry, levelUp, err := h.rideService.ChargeRide(c.Request.Context(), req.UserID, req.CarTypeID, req.Minutes)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"transaction_no": entry.TransactionNo,
		"amount":         entry.Amount,
		"balance_after":  entry.BalanceAfter,
		"level_up":       levelUp,
	})
}

// ============================================================
// 钱包相关接口
// ============================================================

// GetBalance 查询用户余额
// GET /api/v1/wallet/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.ParamError(c, "user_id 参数不能为空")
		return
	}

	user, err := h.ledgerService.GetUser(c.Request.Context(), userID)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id":     user.ID,
		"balance":     user.Balance,
		"total_spent": user.TotalSpent,
		"level":       user.Level,
	})
}

// ListTransactions 查询用户流水
// GET /api/v1/wallet/transactions?user_id=xxx&limit=20
func (h *Handler) ListTransactions(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.ParamError(c, "user_id 参数不能为空")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	entries, err := h.ledgerService.GetTransactions(c.Request.Context(), userID, limit)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":  entries,
		"count": len(entries),
	})
}

// DepositRequest 充值请求，金额用字符串承载避免浮点误差
type DepositRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	Amount      string `json:"amount" binding:"required"`
	Description string `json:"description"`
}

// Deposit 发起充值，返回网关确认链接
// POST /api/v1/wallet/deposit
func (h *Handler) Deposit(c *gin.Context) {
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.ParamError(c, "amount 参数错误")
		return
	}

	entry, ref, err := h.paymentService.CreateDeposit(c.Request.Context(), req.UserID, amount, req.Description)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"transaction_no":   entry.TransactionNo,
		"payment_id":       ref.ID,
		"status":           entry.Status,
		"confirmation_url": ref.ConfirmationURL,
	})
}

// RefundRequest 退款请求
type RefundRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	PaymentID   string `json:"payment_id" binding:"required"`
	Amount      string `json:"amount" binding:"required"`
	Description string `json:"description"`
}

// Refund 对某笔支付发起退款
// POST /api/v1/wallet/refund
func (h *Handler) Refund(c *gin.Context) {
	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.ParamError(c, "amount 参数错误")
		return
	}

	entry, err := h.paymentService.RequestRefund(c.Request.Context(), req.UserID, req.PaymentID, amount, req.Description)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"transaction_no": entry.TransactionNo,
		"status":         entry.Status,
	})
}

// ============================================================
// 网关回调接口
// ============================================================

// PaymentWebhook 支付网关回调入口
// POST /api/v1/payment/webhook
//
// 【关键点】网关按至少一次语义投递，这里必须对重复投递幂等。
// 处理失败时返回 5xx 让网关稍后重试。
func (h *Handler) PaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.ParamError(c, "读取回调报文失败")
		return
	}

	if err := h.paymentService.HandleWebhook(c.Request.Context(), body); err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"message": "ok",
	})
}
