package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/z-wentao/voicestudio/pkg/models"
)

// RedisLog 基于 Redis List 的实现，LPUSH + LTRIM 在同一个事务里执行
type RedisLog struct {
	client   *redis.Client
	key      string
	capacity int
	ctx      context.Context
	now      func() time.Time
}

// NewRedisLog 创建 Redis 历史记录，client 由调用方负责关闭
// 格式: "voicestudio:history:{name}"
func NewRedisLog(client *redis.Client, name string, capacity int) (*RedisLog, error) {
	if err := checkCap(capacity); err != nil {
		return nil, err
	}
	return &RedisLog{
		client:   client,
		key:      fmt.Sprintf("voicestudio:history:%s", name),
		capacity: capacity,
		ctx:      context.Background(),
		now:      time.Now,
	}, nil
}

func (l *RedisLog) Append(entry models.HistoryEntry) (models.HistoryEntry, error) {
	entry = stamp(entry, l.now)

	data, err := json.Marshal(entry)
	if err != nil {
		return models.HistoryEntry{}, fmt.Errorf("序列化失败: %w", err)
	}

	_, err = l.client.TxPipelined(l.ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(l.ctx, l.key, data)
		pipe.LTrim(l.ctx, l.key, 0, int64(l.capacity-1))
		return nil
	})
	if err != nil {
		return models.HistoryEntry{}, fmt.Errorf("写入历史记录失败: %w", err)
	}
	return entry, nil
}

func (l *RedisLog) List() ([]models.HistoryEntry, error) {
	raws, err := l.client.LRange(l.ctx, l.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("读取历史记录失败: %w", err)
	}

	entries := make([]models.HistoryEntry, 0, len(raws))
	for _, raw := range raws {
		var e models.HistoryEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			logrus.Warnf("⚠️ 跳过无法解析的历史记录: %v", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (l *RedisLog) Get(id string) (models.HistoryEntry, error) {
	entries, err := l.List()
	if err != nil {
		return models.HistoryEntry{}, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	return models.HistoryEntry{}, fmt.Errorf("%w: %s", models.ErrNotFound, id)
}

// Remove 按原始值 LREM，条目追加后不再修改，所以原始值是稳定的
func (l *RedisLog) Remove(id string) error {
	raws, err := l.client.LRange(l.ctx, l.key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("读取历史记录失败: %w", err)
	}
	for _, raw := range raws {
		var e models.HistoryEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		if e.ID == id {
			if err := l.client.LRem(l.ctx, l.key, 1, raw).Err(); err != nil {
				return fmt.Errorf("删除历史记录失败: %w", err)
			}
			return nil
		}
	}
	return nil
}

func (l *RedisLog) Clear() error {
	if err := l.client.Del(l.ctx, l.key).Err(); err != nil {
		return fmt.Errorf("清空历史记录失败: %w", err)
	}
	return nil
}

func (l *RedisLog) Cap() int { return l.capacity }
