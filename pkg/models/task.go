package models

import "time"

type TaskKind string

const (
	KindTranscribe TaskKind = "transcribe"
	KindSynthesize TaskKind = "synthesize"
	KindDiarize    TaskKind = "diarize"
	KindClone      TaskKind = "clone"
)

type TaskStatus string

const (
	TaskIdle      TaskStatus = "idle"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Terminal 是否为终态
func (s TaskStatus) Terminal() bool {
	return s == TaskSucceeded || s == TaskFailed || s == TaskCancelled
}

// Task 模拟的异步任务（快照）
type Task struct {
	ID           string     `json:"id,omitempty"`
	Scope        string     `json:"scope"`
	Kind         TaskKind   `json:"kind"`
	Status       TaskStatus `json:"status"`
	StartedAt    time.Time  `json:"started_at,omitempty"`
	FinishedAt   time.Time  `json:"finished_at,omitempty"`
	Result       any        `json:"result,omitempty"`
	ErrorMessage string     `json:"error,omitempty"`
}

// TranscriptResult 转写结果
type TranscriptResult struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
}

// AudioRef 合成音频的引用
type AudioRef struct {
	URL      string  `json:"url"`
	Path     string  `json:"path,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// SynthesisResult 合成结果
type SynthesisResult struct {
	Audio   AudioRef `json:"audio"`
	VoiceID string   `json:"voice_id"`
	Text    string   `json:"text"`
}

// DiarizationResult 声纹分析结果
type DiarizationResult struct {
	Segments []SpeakerSegment `json:"segments"`
}

// CloneResult 克隆训练产出的声音
type CloneResult struct {
	Voice Voice `json:"voice"`
}
