package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// 加锁: SET key value NX EX ttl，value 标识持有者
// 解锁: Lua 脚本比较 value 后删除，避免删掉过期后被别人拿到的锁

var ErrLockFailed = errors.New("获取分布式锁失败")

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// DistributedLock Redis 分布式锁
type DistributedLock struct {
	client     redis.UniversalClient
	key        string
	value      string
	expiration time.Duration
}

func NewDistributedLock(client redis.UniversalClient, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

func (l *DistributedLock) Key() string {
	return l.key
}

// TryLock 非阻塞获取
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 阻塞获取，超过重试次数返回 ErrLockFailed
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		ok, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
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

// Unlock 只释放自己持有的锁，返回是否真正删除
func (l *DistributedLock) Unlock(ctx context.Context) (bool, error) {
	n, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// NewWithdrawLock 按账户维度的提现锁，同一账户的提现请求串行
func NewWithdrawLock(client redis.UniversalClient, accountID int64, requestID string) *DistributedLock {
	key := fmt.Sprintf("wallet:lock:withdraw:%d", accountID)
	return NewDistributedLock(client, key, requestID, 30*time.Second)
}

// NewJobLock 批处理任务锁，多实例部署时只有一个实例执行
func NewJobLock(client redis.UniversalClient, job, owner string, ttl time.Duration) *DistributedLock {
	return NewDistributedLock(client, "wallet:lock:job:"+job, owner, ttl)
}
