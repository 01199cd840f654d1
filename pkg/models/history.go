package models

import "time"

// HistoryEntry 历史记录条目，追加后不再修改
type HistoryEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
	Duration  float64   `json:"duration,omitempty"`
	Tag       string    `json:"tag,omitempty"`

	// TTS 记录才有
	VoiceID   string `json:"voice_id,omitempty"`
	VoiceName string `json:"voice_name,omitempty"`
	AudioURL  string `json:"audio_url,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}
