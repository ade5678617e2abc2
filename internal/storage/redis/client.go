package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"agencysite/backend/internal/storage"
)

// outcomeChannel 提交结果事件的发布频道
const outcomeChannel = "contact:outcomes"

// Client Redis 键值存储实现，同时提供冲刷锁与结果事件发布。
type Client struct {
	rdb *redis.Client
}

// NewClient 创建 Redis 存储客户端
//
// 参数:
//   - address: Redis 服务地址，格式 "host:port"
//   - password: 认证密码，留空表示无密码
//   - db: 数据库编号
//
// 返回值:
//   - *Client: 连接成功的客户端
//   - error: 连接探活失败时返回错误
func NewClient(address, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Get 读取键对应的值
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, storage.ErrKeyNotFound
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return value, nil
}

// Set 写入键值，不设置过期时间
func (c *Client) Set(ctx context.Context, key string, value []byte) error {
	if err := c.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Remove 删除键
func (c *Client) Remove(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// TryLock 通过 SET NX 获取命名锁
//
// 锁值固定为 "1"，释放不校验持有者；冲刷锁 TTL 远小于冲刷周期，
// 误释放窗口可以接受。
func (c *Client) TryLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, lockKey(name), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	return ok, nil
}

// Unlock 释放命名锁
func (c *Client) Unlock(ctx context.Context, name string) error {
	deleted, err := c.rdb.Del(ctx, lockKey(name)).Result()
	if err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	if deleted == 0 {
		return storage.ErrLockNotHeld
	}
	return nil
}

// PublishOutcome 向结果频道发布事件，供其他实例的事件枢纽转发
func (c *Client) PublishOutcome(ctx context.Context, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome event: %w", err)
	}
	if err := c.rdb.Publish(ctx, outcomeChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}
	return nil
}

// Health 检查 Redis 连接状态
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close 关闭客户端连接
func (c *Client) Close() error {
	return c.rdb.Close()
}

func lockKey(name string) string {
	return "contact:lock:" + name
}
