package history

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/z-wentao/voicestudio/pkg/models"
)

// 默认容量
const (
	TranscriptionCap = 15
	DiarizationCap   = 15
	TTSCap           = 20
)

// Log 有界、最新在前的历史记录
// 超过容量时按插入顺序淘汰最旧的记录，读取不会改变顺序
type Log interface {
	// Append 插到最前面并截断到容量，返回补全了 ID 和时间戳的条目
	Append(entry models.HistoryEntry) (models.HistoryEntry, error)

	// List 最新在前
	List() ([]models.HistoryEntry, error)

	// Get 按 ID 查找
	Get(id string) (models.HistoryEntry, error)

	// Remove 按 ID 删除，不存在时不报错
	Remove(id string) error

	// Clear 清空
	Clear() error

	// Cap 容量
	Cap() int
}

func checkCap(capacity int) error {
	if capacity <= 0 {
		return fmt.Errorf("%w: 历史记录容量必须大于 0 (当前 %d)", models.ErrInvalidInput, capacity)
	}
	return nil
}

func stamp(entry models.HistoryEntry, now func() time.Time) models.HistoryEntry {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now()
	}
	return entry
}
