package events

import (
	"context"
	"time"
)

// 事件类型
const (
	VoiceAdded   = "voice.added"
	VoiceUpdated = "voice.updated"
	VoiceRemoved = "voice.removed"

	SpeakerAdded   = "speaker.added"
	SpeakerUpdated = "speaker.updated"
	SpeakerRemoved = "speaker.removed"
	SpeakersClear  = "speaker.cleared"

	SelectionChanged  = "selection.changed"
	NavigationChanged = "navigation.changed"
	PlaybackChanged   = "playback.changed"
	TaskChanged       = "task.changed"
	HistoryChanged    = "history.changed"
	SegmentAdded      = "diarization.segment"
)

// Event 共享状态变化的通知
type Event struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload,omitempty"`
}

// Publisher 事件外发接口
// 进程内订阅走 Bus，Publisher 负责把事件送到进程外（或测试用的内存通道）
type Publisher interface {
	// Publish 发布一条事件，不保证送达
	Publish(ctx context.Context, event Event) error

	// Close 关闭连接
	Close() error
}

// Emitter 只负责发出事件，业务组件依赖这个接口
type Emitter interface {
	Emit(eventType string, payload any)
}

type discard struct{}

func (discard) Emit(string, any) {}

// Discard 丢弃所有事件
var Discard Emitter = discard{}
