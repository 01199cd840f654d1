package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/z-wentao/voicestudio/pkg/models"
)

// RedisStore Redis 存储
// 实体以 JSON 保存，插入顺序由 Sorted Set 维护（score 为自增序号）
type RedisStore[T Entity[T]] struct {
	client *redis.Client
	kind   string
	ttl    time.Duration // 0 表示不过期
	ctx    context.Context
}

// NewRedisClient 创建并测试 Redis 连接
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}

	return client, nil
}

// NewRedisStore 创建 Redis 存储，client 由调用方负责关闭
func NewRedisStore[T Entity[T]](client *redis.Client, kind string, ttl time.Duration) *RedisStore[T] {
	return &RedisStore[T]{
		client: client,
		kind:   kind,
		ttl:    ttl,
		ctx:    context.Background(),
	}
}

// 格式: "voicestudio:{kind}:item:{id}"
func (rs *RedisStore[T]) itemKey(id string) string {
	return fmt.Sprintf("voicestudio:%s:item:%s", rs.kind, id)
}

func (rs *RedisStore[T]) indexKey() string {
	return fmt.Sprintf("voicestudio:%s:index", rs.kind)
}

func (rs *RedisStore[T]) seqKey() string {
	return fmt.Sprintf("voicestudio:%s:seq", rs.kind)
}

// Save 保存到 Redis
func (rs *RedisStore[T]) Save(item T) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("序列化失败: %w", err)
	}

	// 1. 先取序号，已存在的成员由 ZAddNX 保留原顺序
	seq, err := rs.client.Incr(rs.ctx, rs.seqKey()).Result()
	if err != nil {
		return fmt.Errorf("获取序号失败: %w", err)
	}

	// 2. 数据和索引在同一个事务里写入
	_, err = rs.client.TxPipelined(rs.ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(rs.ctx, rs.itemKey(item.EntityID()), data, rs.ttl)
		pipe.ZAddNX(rs.ctx, rs.indexKey(), redis.Z{Score: float64(seq), Member: item.EntityID()})
		return nil
	})
	if err != nil {
		return fmt.Errorf("保存到 Redis 失败: %w", err)
	}
	return nil
}

// Get 从 Redis 获取
func (rs *RedisStore[T]) Get(id string) (T, error) {
	var item T

	data, err := rs.client.Get(rs.ctx, rs.itemKey(id)).Bytes()
	if err == redis.Nil {
		return item, fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}
	if err != nil {
		return item, fmt.Errorf("从 Redis 获取失败: %w", err)
	}

	if err := json.Unmarshal(data, &item); err != nil {
		return item, fmt.Errorf("反序列化失败: %w", err)
	}
	return item, nil
}

// List 按插入顺序列出
func (rs *RedisStore[T]) List() ([]T, error) {
	ids, err := rs.client.ZRange(rs.ctx, rs.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("获取索引失败: %w", err)
	}
	if len(ids) == 0 {
		return []T{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = rs.itemKey(id)
	}
	values, err := rs.client.MGet(rs.ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("批量获取失败: %w", err)
	}

	items := make([]T, 0, len(ids))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			// 已过期，顺便清理索引
			rs.client.ZRem(rs.ctx, rs.indexKey(), ids[i])
			continue
		}
		var item T
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			logrus.Warnf("⚠️ 跳过无法解析的记录 %s: %v", ids[i], err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// Delete 删除
func (rs *RedisStore[T]) Delete(id string) error {
	deleted, err := rs.client.Del(rs.ctx, rs.itemKey(id)).Result()
	if err != nil {
		return fmt.Errorf("删除失败: %w", err)
	}
	rs.client.ZRem(rs.ctx, rs.indexKey(), id)

	if deleted == 0 {
		return fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}
	return nil
}

// Clear 清空该类实体
func (rs *RedisStore[T]) Clear() error {
	ids, err := rs.client.ZRange(rs.ctx, rs.indexKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("获取索引失败: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, rs.itemKey(id))
	}
	keys = append(keys, rs.indexKey())

	if err := rs.client.Del(rs.ctx, keys...).Err(); err != nil {
		return fmt.Errorf("清空失败: %w", err)
	}
	return nil
}

// Close client 是共享的，这里不关闭
func (rs *RedisStore[T]) Close() error {
	return nil
}
