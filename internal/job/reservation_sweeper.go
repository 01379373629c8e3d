package job

import (
	"context"
	"log"
	"time"

	"cyberpark/internal/config"
	"cyberpark/internal/service"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// ReservationSweeper 定期扫描已到期但仍是进行中的预订，把它们置为
// 过期并释放车辆。读路径上的惰性过期已经保证正确性，这个任务只是
// 兜底：就算用户再也不来查询，车辆也不会被永远占着。
type ReservationSweeper struct {
	reservationService *service.ReservationService
	stopCh             chan struct{}
	interval           time.Duration
	batchSize          int
}

func NewReservationSweeper(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *ReservationSweeper {
	return &ReservationSweeper{
		reservationService: service.NewReservationService(db, rdb, cfg),
		stopCh:             make(chan struct{}),
		interval:           time.Duration(cfg.Business.SweeperIntervalSec) * time.Second,
		batchSize:          cfg.Business.SweeperBatchSize,
	}
}

func (j *ReservationSweeper) Start(ctx context.Context) {
	log.Println("[ReservationSweeper] 预订过期任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[ReservationSweeper] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[ReservationSweeper] 任务停止")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *ReservationSweeper) Stop() {
	close(j.stopCh)
}

func (j *ReservationSweeper) sweep(ctx context.Context) {
	expired, err := j.reservationService.ExpireOverdue(ctx, j.batchSize)
	if err != nil {
		log.Printf("[ReservationSweeper] 扫描过期预订失败: %v", err)
		return
	}
	if expired > 0 {
		log.Printf("[ReservationSweeper] 本轮处理过期预订 %d 条", expired)
	}
}
