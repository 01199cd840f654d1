package events

import (
	"context"
	"fmt"
	"sync"
)

// MemoryPublisher 基于 Channel 的内存发布者
// 缓冲区满时直接返回错误，不阻塞业务
type MemoryPublisher struct {
	events chan Event
	mu     sync.RWMutex
	closed bool
}

// NewMemoryPublisher 创建内存发布者
func NewMemoryPublisher(bufferSize int) *MemoryPublisher {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &MemoryPublisher{
		events: make(chan Event, bufferSize),
	}
}

// Publish 放入缓冲区
func (mp *MemoryPublisher) Publish(ctx context.Context, event Event) error {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	if mp.closed {
		return fmt.Errorf("发布者已关闭")
	}

	select {
	case mp.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("事件缓冲区已满")
	}
}

// Events 读取已发布的事件
func (mp *MemoryPublisher) Events() <-chan Event {
	return mp.events
}

// Close 关闭
func (mp *MemoryPublisher) Close() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.closed {
		return nil
	}
	mp.closed = true
	close(mp.events)
	return nil
}
