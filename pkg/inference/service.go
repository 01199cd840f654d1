package inference

import (
	"context"
	"io"
	"strings"

	"github.com/z-wentao/voicestudio/pkg/models"
)

// VoiceParams 合成参数
type VoiceParams struct {
	VoiceID string        `json:"voice_id"`
	Gender  models.Gender `json:"gender,omitempty"`
	Speed   float64       `json:"speed"`
	Pitch   float64       `json:"pitch"`
	Volume  float64       `json:"volume"`
	Emotion string        `json:"emotion"`
}

// 可选的情绪
var Emotions = []string{"natural", "happy", "sad", "angry", "excited", "whisper", "friendly", "serious"}

// Normalize 补默认值并检查范围
func (p *VoiceParams) Normalize() error {
	if p.Speed == 0 {
		p.Speed = 1.0
	}
	if p.Volume == 0 {
		p.Volume = 1.0
	}
	if p.Emotion == "" {
		p.Emotion = "natural"
	}

	if p.Speed < 0.5 || p.Speed > 2.0 {
		return models.Invalidf("语速超出范围 (0.5 ~ 2.0): %.2f", p.Speed)
	}
	if p.Pitch < -12 || p.Pitch > 12 {
		return models.Invalidf("音调超出范围 (-12 ~ 12): %.2f", p.Pitch)
	}
	if p.Volume < 0 || p.Volume > 2.0 {
		return models.Invalidf("音量超出范围 (0 ~ 2.0): %.2f", p.Volume)
	}
	for _, e := range Emotions {
		if e == p.Emotion {
			return nil
		}
	}
	return models.Invalidf("不支持的情绪: %s", p.Emotion)
}

// Utterance 分析结果里的一句话，Speaker 为模型给出的说话人标签或 id
type Utterance struct {
	Speaker     string  `json:"speaker"`
	SpeakerName string  `json:"speaker_name,omitempty"`
	Known       bool    `json:"known,omitempty"`
	Text        string  `json:"text"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Confidence  float64 `json:"confidence,omitempty"`
}

// CloneSample 克隆训练的声音样本
type CloneSample struct {
	Filename   string  `json:"filename"`
	SampleRate int     `json:"sample_rate"`
	Duration   float64 `json:"duration"`
	Size       int64   `json:"size"`
}

// Transcriber 语音转文字
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Synthesizer 文字转语音
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, params VoiceParams) (models.AudioRef, error)
}

// Diarizer 说话人分离
type Diarizer interface {
	Diarize(ctx context.Context, audio []byte, mimeType string) ([]Utterance, error)
}

// Cloner 声音克隆训练，返回新音色的试听音频
type Cloner interface {
	Clone(ctx context.Context, sample CloneSample) (models.AudioRef, error)
}

// Service 推理服务边界：结果或失败都在任意延迟后返回，必须响应 ctx 取消
type Service interface {
	Transcriber
	Synthesizer
	Diarizer
	Cloner
}

// LiveDiarizer 实时说话人分离，每识别出一句调用一次 emit，直到流结束或 ctx 取消
type LiveDiarizer interface {
	DiarizeLive(ctx context.Context, emit func(Utterance)) error
}

// AudioSink 保存合成出的音频
type AudioSink interface {
	Save(ctx context.Context, r io.Reader, ext string) (models.AudioRef, error)
}

// audioFilename 根据 MIME 类型给上传的音频起一个带扩展名的文件名（Whisper 按扩展名识别格式）
func audioFilename(mimeType string) string {
	ext := "wav"
	switch {
	case strings.Contains(mimeType, "mpeg"), strings.Contains(mimeType, "mp3"):
		ext = "mp3"
	case strings.Contains(mimeType, "mp4"), strings.Contains(mimeType, "m4a"):
		ext = "m4a"
	case strings.Contains(mimeType, "webm"):
		ext = "webm"
	case strings.Contains(mimeType, "ogg"):
		ext = "ogg"
	case strings.Contains(mimeType, "flac"):
		ext = "flac"
	}
	return "audio." + ext
}
