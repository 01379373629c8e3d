package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ============================================================================
// 分布式锁
// ============================================================================
//
// 预订和钱包都要求"同一用户的写操作串行化"：
//   - 两个并发的创建预订请求不能同时通过"无进行中预订"检查；
//   - 充值回调和行程扣费并发时不能丢失余额更新。
// 数据库层的条件 UPDATE 已经保证不变式不被破坏，这把锁把同一用户的
// 请求在入口处排队，避免无谓的冲突重试。
//
// 加锁：SET key value NX EX timeout（NX 保证互斥，EX 防止死锁）。
// 释放：Lua 脚本先校验 value 再删除，防止误删他人持有的锁。
// ============================================================================

var ErrLockFailed = errors.New("获取分布式锁失败")

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string        // 锁的 key
	value      string        // 锁的 value（持有者标识，释放时校验）
	expiration time.Duration // 锁的过期时间
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁。Lua 脚本保证"检查+删除"的原子性：
// 锁已过期且被他人持有时不会误删。
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// ============================================================================
// 便捷函数：按用户维度的业务锁
// ============================================================================

// NewReservationLock 预订锁。同一用户的创建/取消/用车请求串行，
// 不同用户互不影响。value 用随机 UUID，保证过期后他人的锁不被误删。
func NewReservationLock(client *redis.Client, userID string) *DistributedLock {
	key := fmt.Sprintf("reservation:lock:user:%s", userID)
	return NewDistributedLock(client, key, uuid.NewString(), 30*time.Second)
}

// NewWalletLock 钱包锁。同一用户的余额变更（充值完成、行程扣费、退款）
// 串行执行。
func NewWalletLock(client *redis.Client, userID string) *DistributedLock {
	key := fmt.Sprintf("wallet:lock:user:%s", userID)
	return NewDistributedLock(client, key, uuid.NewString(), 30*time.Second)
}
