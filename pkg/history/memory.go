package history

import (
	"fmt"
	"sync"
	"time"

	"github.com/z-wentao/voicestudio/pkg/models"
)

// MemoryLog 内存实现
type MemoryLog struct {
	mu       sync.RWMutex
	entries  []models.HistoryEntry
	capacity int
	now      func() time.Time
}

// NewMemoryLog 创建内存历史记录
func NewMemoryLog(capacity int) (*MemoryLog, error) {
	if err := checkCap(capacity); err != nil {
		return nil, err
	}
	return &MemoryLog{
		entries:  make([]models.HistoryEntry, 0, capacity),
		capacity: capacity,
		now:      time.Now,
	}, nil
}

func (l *MemoryLog) Append(entry models.HistoryEntry) (models.HistoryEntry, error) {
	entry = stamp(entry, l.now)

	l.mu.Lock()
	defer l.mu.Unlock()

	next := make([]models.HistoryEntry, 0, l.capacity)
	next = append(next, entry)
	for _, e := range l.entries {
		if len(next) == l.capacity {
			break
		}
		next = append(next, e)
	}
	l.entries = next
	return entry, nil
}

func (l *MemoryLog) List() ([]models.HistoryEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.HistoryEntry, len(l.entries))
	copy(out, l.entries)
	return out, nil
}

func (l *MemoryLog) Get(id string) (models.HistoryEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, e := range l.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return models.HistoryEntry{}, fmt.Errorf("%w: %s", models.ErrNotFound, id)
}

func (l *MemoryLog) Remove(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, e := range l.entries {
		if e.ID == id {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (l *MemoryLog) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = make([]models.HistoryEntry, 0, l.capacity)
	return nil
}

func (l *MemoryLog) Cap() int { return l.capacity }
