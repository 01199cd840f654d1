package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Bus 进程内事件总线
// Emit 不阻塞调用方（调用方可能持有锁），由后台 goroutine 负责扇出给订阅者和 Publisher
type Bus struct {
	publisher Publisher
	queue     chan Event

	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int

	closeOnce sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewBus 创建总线，publisher 可以为 nil
func NewBus(publisher Publisher, bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	b := &Bus{
		publisher: publisher,
		queue:     make(chan Event, bufferSize),
		subs:      make(map[int]chan Event),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	go b.dispatch()
	return b
}

// Emit 发出事件；nil Bus 上调用是空操作
func (b *Bus) Emit(eventType string, payload any) {
	if b == nil {
		return
	}

	event := Event{
		ID:      uuid.New().String(),
		Type:    eventType,
		Time:    time.Now(),
		Payload: payload,
	}

	select {
	case <-b.stopCh:
		return
	default:
	}

	select {
	case b.queue <- event:
	default:
		logrus.Warnf("⚠️ 事件队列已满，丢弃事件: %s", eventType)
	}
}

// Subscribe 订阅全部事件，返回的函数用于取消订阅
// 订阅者消费太慢时事件会被丢弃
func (b *Bus) Subscribe(bufferSize int) (<-chan Event, func()) {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	ch := make(chan Event, bufferSize)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(ch)
			}
			b.mu.Unlock()
		})
	}
	return ch, unsubscribe
}

func (b *Bus) dispatch() {
	defer close(b.doneCh)

	for {
		select {
		case event := <-b.queue:
			b.deliver(event)
		case <-b.stopCh:
			// 发完剩余事件
			for {
				select {
				case event := <-b.queue:
					b.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) deliver(event Event) {
	b.mu.RLock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			logrus.Debugf("订阅者处理太慢，丢弃事件: %s", event.Type)
		}
	}
	b.mu.RUnlock()

	if b.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.publisher.Publish(ctx, event); err != nil {
		logrus.Warnf("⚠️ 发布事件失败 (%s): %v", event.Type, err)
	}
}

// Close 停止分发，关闭所有订阅和 Publisher
func (b *Bus) Close() error {
	if b == nil {
		return nil
	}

	var err error
	b.closeOnce.Do(func() {
		close(b.stopCh)
		<-b.doneCh

		b.mu.Lock()
		for id, ch := range b.subs {
			close(ch)
			delete(b.subs, id)
		}
		b.mu.Unlock()

		if b.publisher != nil {
			err = b.publisher.Close()
		}
	})
	return err
}
