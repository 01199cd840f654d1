package storage

import (
	"fmt"
	"sync"

	"github.com/z-wentao/voicestudio/pkg/models"
)

// MemoryStore 内存存储，进程重启后清空
type MemoryStore[T Entity[T]] struct {
	items map[string]T
	order []string
	mu    sync.RWMutex
}

// NewMemoryStore 创建内存存储
func NewMemoryStore[T Entity[T]]() *MemoryStore[T] {
	return &MemoryStore[T]{
		items: make(map[string]T),
	}
}

// Save 保存（存的是拷贝）
func (ms *MemoryStore[T]) Save(item T) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	id := item.EntityID()
	if _, exists := ms.items[id]; !exists {
		ms.order = append(ms.order, id)
	}
	ms.items[id] = item.Clone()
	return nil
}

// Get 获取
func (ms *MemoryStore[T]) Get(id string) (T, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	item, exists := ms.items[id]
	if !exists {
		var zero T
		return zero, fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}
	return item.Clone(), nil
}

// List 按插入顺序列出
func (ms *MemoryStore[T]) List() ([]T, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	items := make([]T, 0, len(ms.order))
	for _, id := range ms.order {
		items = append(items, ms.items[id].Clone())
	}
	return items, nil
}

// Delete 删除
func (ms *MemoryStore[T]) Delete(id string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.items[id]; !exists {
		return fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}
	delete(ms.items, id)
	for i, existing := range ms.order {
		if existing == id {
			ms.order = append(ms.order[:i], ms.order[i+1:]...)
			break
		}
	}
	return nil
}

// Clear 清空
func (ms *MemoryStore[T]) Clear() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.items = make(map[string]T)
	ms.order = nil
	return nil
}

// Close 内存存储无需关闭
func (ms *MemoryStore[T]) Close() error {
	return nil
}
