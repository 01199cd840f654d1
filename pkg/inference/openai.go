package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
	"github.com/z-wentao/voicestudio/pkg/models"
)

// OpenAIService 基于 OpenAI 的推理服务
// Whisper 转写，TTS 合成，说话人分离由 Whisper 分段 + Chat Completion 归属说话人
// OpenAI 没有声音克隆接口，Clone 交给 cloner（一般是 Mock）
type OpenAIService struct {
	client *openai.Client
	sink   AudioSink
	cloner Cloner
}

// NewOpenAIService 创建服务，baseURL 为空时使用官方地址
func NewOpenAIService(apiKey, baseURL string, sink AudioSink, cloner Cloner) *OpenAIService {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIService{
		client: openai.NewClientWithConfig(config),
		sink:   sink,
		cloner: cloner,
	}
}

func (s *OpenAIService) transcribe(ctx context.Context, audio []byte, mimeType string) (openai.AudioResponse, error) {
	if len(audio) == 0 {
		return openai.AudioResponse{}, models.Failf("音频内容为空")
	}
	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: audioFilename(mimeType),
		Reader:   bytes.NewReader(audio),
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return openai.AudioResponse{}, fmt.Errorf("调用 Whisper API 失败: %w", err)
	}
	return resp, nil
}

// Transcribe 语音转文字
func (s *OpenAIService) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	resp, err := s.transcribe(ctx, audio, mimeType)
	if err != nil {
		return "", err
	}
	logrus.Infof("✓ Whisper 转写完成，语言: %s，时长: %.1f 秒", resp.Language, resp.Duration)
	return strings.TrimSpace(resp.Text), nil
}

// speechVoice 按性别挑一个 OpenAI 音色
func speechVoice(g models.Gender) openai.SpeechVoice {
	if g == models.GenderFemale {
		return openai.VoiceNova
	}
	return openai.VoiceOnyx
}

// Synthesize 文字转语音，音频写入 sink
func (s *OpenAIService) Synthesize(ctx context.Context, text string, params VoiceParams) (models.AudioRef, error) {
	if strings.TrimSpace(text) == "" {
		return models.AudioRef{}, models.Failf("合成文本为空")
	}

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          speechVoice(params.Gender),
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          params.Speed,
	})
	if err != nil {
		return models.AudioRef{}, fmt.Errorf("调用 TTS API 失败: %w", err)
	}
	defer resp.Close()

	ref, err := s.sink.Save(ctx, resp, "mp3")
	if err != nil {
		return models.AudioRef{}, fmt.Errorf("保存合成音频失败: %w", err)
	}
	return ref, nil
}

// Diarize 先用 Whisper 分段，再让模型判断每段的说话人
func (s *OpenAIService) Diarize(ctx context.Context, audio []byte, mimeType string) ([]Utterance, error) {
	transcript, err := s.transcribe(ctx, audio, mimeType)
	if err != nil {
		return nil, err
	}
	if len(transcript.Segments) == 0 {
		return []Utterance{}, nil
	}

	segments := make([]Utterance, len(transcript.Segments))
	for i, seg := range transcript.Segments {
		segments[i] = Utterance{Text: strings.TrimSpace(seg.Text), Start: seg.Start, End: seg.End}
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: openai.GPT4oMini,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "你是一个会议记录助手。你的任务是根据上下文判断每一段话的说话人。只返回 JSON 格式的数据，不要有任何其他文字。",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildDiarizePrompt(segments),
			},
		},
		Temperature: 0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("调用 OpenAI API 失败: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("OpenAI API 未返回结果")
	}

	return parseSpeakerLabels(resp.Choices[0].Message.Content, segments)
}

// parseSpeakerLabels 把模型给出的标签合并回分段，缺失的段落记为 Speaker A
func parseSpeakerLabels(content string, segments []Utterance) ([]Utterance, error) {
	var result struct {
		Speakers []struct {
			Index   int    `json:"index"`
			Speaker string `json:"speaker"`
		} `json:"speakers"`
	}
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, fmt.Errorf("解析 AI 响应失败: %w, 原始响应: %s", err, content)
	}

	labels := make(map[int]string, len(result.Speakers))
	for _, sp := range result.Speakers {
		if label := strings.TrimSpace(sp.Speaker); label != "" {
			labels[sp.Index] = label
		}
	}

	out := make([]Utterance, len(segments))
	for i, seg := range segments {
		seg.Speaker = labels[i]
		if seg.Speaker == "" {
			seg.Speaker = "Speaker A"
		}
		out[i] = seg
	}
	return out, nil
}

func buildDiarizePrompt(segments []Utterance) string {
	var b strings.Builder
	for i, seg := range segments {
		fmt.Fprintf(&b, "[%d] (%.1fs - %.1fs) %s\n", i, seg.Start, seg.End, seg.Text)
	}

	return fmt.Sprintf(`下面是一段多人对话的转写分段，请判断每一段的说话人。要求：

1. 用 "Speaker A"、"Speaker B" 这样的标签区分说话人，同一个人始终使用同一个标签
2. 每一段都必须给出标签
3. 输出格式（严格遵循 JSON 格式）：
{
  "speakers": [
    {"index": 0, "speaker": "Speaker A"},
    {"index": 1, "speaker": "Speaker B"}
  ]
}

对话分段：
%s
请严格按照 JSON 格式输出，不要包含任何其他说明文字。`, b.String())
}

// Clone 交给 cloner
func (s *OpenAIService) Clone(ctx context.Context, sample CloneSample) (models.AudioRef, error) {
	if s.cloner == nil {
		return models.AudioRef{}, models.Failf("当前推理服务不支持声音克隆")
	}
	return s.cloner.Clone(ctx, sample)
}
