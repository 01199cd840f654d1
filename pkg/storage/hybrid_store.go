package storage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/z-wentao/voicestudio/pkg/models"
)

type opKind int

const (
	opSave opKind = iota
	opDelete
	opClear
)

// syncOp 待同步到数据库的操作，按入队顺序执行
// done 非空时调用方会等待该操作落库
type syncOp[T Entity[T]] struct {
	kind opKind
	id   string
	item T
	done chan struct{}
}

// HybridStore 混合存储：Redis（热数据） + PostgreSQL（持久化）
// 写操作立即落 Redis，再由后台 Worker 按顺序批量同步到数据库
type HybridStore[T Entity[T]] struct {
	cache     Store[T]
	db        Store[T]
	syncQueue chan syncOp[T]
	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// NewHybridStore 创建混合存储
func NewHybridStore[T Entity[T]](cache, db Store[T]) *HybridStore[T] {
	store := &HybridStore[T]{
		cache:     cache,
		db:        db,
		syncQueue: make(chan syncOp[T], 100),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}

	// 启动后台同步 Worker
	go store.syncWorker()

	logrus.Info("✓ 混合存储初始化成功（Redis + PostgreSQL）")
	return store
}

// Save 立即写 Redis，异步写数据库
func (s *HybridStore[T]) Save(item T) error {
	if err := s.cache.Save(item); err != nil {
		logrus.Warnf("⚠️ Redis 写入失败: %v", err)
	}
	s.enqueue(syncOp[T]{kind: opSave, id: item.EntityID(), item: item.Clone()})
	return nil
}

// Get 优先 Redis，未命中查数据库并回写
func (s *HybridStore[T]) Get(id string) (T, error) {
	item, err := s.cache.Get(id)
	if err == nil {
		return item, nil
	}

	logrus.Debugf("📚 Redis 缓存未命中，查询数据库: %s", id)
	item, err = s.db.Get(id)
	if err != nil {
		return item, err
	}

	if err := s.cache.Save(item); err != nil {
		logrus.Warnf("⚠️ 回写 Redis 失败: %v", err)
	}
	return item, nil
}

// List 以数据库为准，合并 Redis 里尚未同步的写入
// Redis 只保存部分数据（Get 回写、TTL 过期）时不能单独作为列表来源
// 同步队列按顺序落库，数据库里的记录是插入顺序的前缀，缓存独有的记录排在后面
func (s *HybridStore[T]) List() ([]T, error) {
	cached, cacheErr := s.cache.List()
	if cacheErr != nil {
		logrus.Warnf("⚠️ Redis 列表查询失败: %v", cacheErr)
	}

	stored, err := s.db.List()
	if err != nil {
		if cacheErr != nil {
			return nil, err
		}
		logrus.Warnf("⚠️ 数据库列表查询失败: %v, 只返回 Redis 数据", err)
		return cached, nil
	}

	fresh := make(map[string]T, len(cached))
	for _, item := range cached {
		fresh[item.EntityID()] = item
	}

	items := make([]T, 0, len(stored)+len(cached))
	seen := make(map[string]bool, len(stored))
	for _, item := range stored {
		id := item.EntityID()
		seen[id] = true
		if newer, ok := fresh[id]; ok {
			items = append(items, newer)
			continue
		}
		items = append(items, item)
		if err := s.cache.Save(item); err != nil {
			logrus.Warnf("⚠️ 回写 Redis 失败: %v", err)
		}
	}
	for _, item := range cached {
		if !seen[item.EntityID()] {
			items = append(items, item)
		}
	}
	return items, nil
}

// Delete 两边都删除
// 数据库删除走同步队列（排在之前的写入之后），并等待落库，避免读到旧数据
func (s *HybridStore[T]) Delete(id string) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	if err := s.cache.Delete(id); err != nil && !errors.Is(err, models.ErrNotFound) {
		logrus.Warnf("⚠️ Redis 删除失败: %v", err)
	}
	s.enqueueAndWait(syncOp[T]{kind: opDelete, id: id})
	return nil
}

// Clear 清空
func (s *HybridStore[T]) Clear() error {
	if err := s.cache.Clear(); err != nil {
		return fmt.Errorf("清空 Redis 失败: %w", err)
	}
	s.enqueueAndWait(syncOp[T]{kind: opClear})
	return nil
}

// Close 停止 Worker（最多等待 5 秒把队列写完），再关闭两端
func (s *HybridStore[T]) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)

		select {
		case <-s.doneCh:
		case <-time.After(5 * time.Second):
			logrus.Warnf("⚠️ 同步队列清空超时，剩余 %d 个操作", len(s.syncQueue))
		}

		s.cache.Close()
		s.db.Close()
		logrus.Info("✓ 混合存储已关闭")
	})
	return nil
}

// enqueue 队列满时阻塞，保证数据库端的操作顺序
func (s *HybridStore[T]) enqueue(op syncOp[T]) {
	select {
	case <-s.stopCh:
		s.applyNow(op)
		return
	default:
	}

	select {
	case s.syncQueue <- op:
	case <-s.stopCh:
		logrus.Warnf("⚠️ 存储已关闭，直接写入数据库")
		s.applyNow(op)
	}
}

func (s *HybridStore[T]) enqueueAndWait(op syncOp[T]) {
	op.done = make(chan struct{})
	s.enqueue(op)

	select {
	case <-op.done:
	case <-s.doneCh:
		// Worker 已退出，队列里的操作由 Close 兜底
	}
}

func (s *HybridStore[T]) applyNow(op syncOp[T]) {
	if err := s.apply(op); err != nil {
		logrus.Errorf("❌ 同步失败: %s, 错误: %v", op.id, err)
	}
	if op.done != nil {
		close(op.done)
	}
}

// syncWorker 批量写入（50 条或 2 秒）
func (s *HybridStore[T]) syncWorker() {
	defer close(s.doneCh)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	batch := make([]syncOp[T], 0, 50)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		s.batchApply(batch)
		batch = batch[:0]
	}

	for {
		select {
		case op := <-s.syncQueue:
			batch = append(batch, op)
			if len(batch) >= 50 || op.done != nil {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-s.stopCh:
			// 收到停止信号，写完队列里剩余的操作
			for {
				select {
				case op := <-s.syncQueue:
					batch = append(batch, op)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (s *HybridStore[T]) batchApply(ops []syncOp[T]) {
	successCount := 0
	for _, op := range ops {
		err := s.apply(op)
		if op.done != nil {
			close(op.done)
		}
		if err != nil {
			logrus.Errorf("❌ 同步失败: %s, 错误: %v", op.id, err)
			continue
		}
		successCount++
	}
	logrus.Debugf("✓ 成功同步 %d/%d 个操作到数据库", successCount, len(ops))
}

func (s *HybridStore[T]) apply(op syncOp[T]) error {
	switch op.kind {
	case opSave:
		return s.db.Save(op.item)
	case opDelete:
		if err := s.db.Delete(op.id); err != nil && !errors.Is(err, models.ErrNotFound) {
			return err
		}
		return nil
	case opClear:
		return s.db.Clear()
	}
	return nil
}
