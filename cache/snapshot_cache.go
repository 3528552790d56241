package cache

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// 快照缓存的键前缀与重建锁前缀
const (
	snapshotKeyPrefix = "poll:snapshot:"
	rebuildLockPrefix = "poll:snapshot_lock:"
)

// SnapshotCache 缓存每个投票的结果快照JSON。
// 写票时失效，读结果时回填，热点投票的重建由分布式锁串行化，
// 避免同一短码的并发重建压垮数据库。
// client为nil时所有操作降级为未命中/直通
type SnapshotCache struct {
	client *redis.Client
	rs     *redsync.Redsync
	ttl    time.Duration
}

// NewSnapshotCache 创建快照缓存，client可以为nil（缓存停用）
func NewSnapshotCache(client *redis.Client, ttl time.Duration) *SnapshotCache {
	c := &SnapshotCache{
		client: client,
		ttl:    ttl,
	}
	if client != nil {
		c.rs = redsync.New(goredis.NewPool(client))
	}
	return c
}

// Enabled 缓存是否可用
func (c *SnapshotCache) Enabled() bool {
	return c != nil && c.client != nil
}

// Get 读取缓存的快照JSON，未命中或缓存停用时返回false
func (c *SnapshotCache) Get(ctx context.Context, pollCode string) ([]byte, bool) {
	if !c.Enabled() {
		return nil, false
	}

	payload, err := c.client.Get(ctx, snapshotKeyPrefix+pollCode).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("读取快照缓存失败 [%s]: %v", pollCode, err)
		}
		return nil, false
	}
	return payload, true
}

// Set 写入快照JSON，带TTL
func (c *SnapshotCache) Set(ctx context.Context, pollCode string, payload []byte) {
	if !c.Enabled() {
		return
	}
	if err := c.client.Set(ctx, snapshotKeyPrefix+pollCode, payload, c.ttl).Err(); err != nil {
		log.Printf("写入快照缓存失败 [%s]: %v", pollCode, err)
	}
}

// Invalidate 使快照失效，票成功落库后调用
func (c *SnapshotCache) Invalidate(ctx context.Context, pollCode string) {
	if !c.Enabled() {
		return
	}
	if err := c.client.Del(ctx, snapshotKeyPrefix+pollCode).Err(); err != nil {
		log.Printf("失效快照缓存失败 [%s]: %v", pollCode, err)
	}
}

// WithRebuildLock 在该短码的重建锁内执行rebuild。
// 拿不到锁或Redis不可用时直接执行，锁只是防击穿手段，不是正确性前提
func (c *SnapshotCache) WithRebuildLock(ctx context.Context, pollCode string, rebuild func() error) error {
	if !c.Enabled() {
		return rebuild()
	}

	mutex := c.rs.NewMutex(rebuildLockPrefix+pollCode,
		redsync.WithExpiry(3*time.Second),
		redsync.WithTries(3),
	)

	if err := mutex.LockContext(ctx); err != nil {
		log.Printf("获取快照重建锁失败 [%s]: %v", pollCode, err)
		return rebuild()
	}
	defer func() {
		if _, err := mutex.UnlockContext(ctx); err != nil {
			log.Printf("释放快照重建锁失败 [%s]: %v", pollCode, err)
		}
	}()

	return rebuild()
}
