package screens

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/z-wentao/voicestudio/pkg/events"
	"github.com/z-wentao/voicestudio/pkg/history"
	"github.com/z-wentao/voicestudio/pkg/inference"
	"github.com/z-wentao/voicestudio/pkg/models"
	"github.com/z-wentao/voicestudio/pkg/player"
	"github.com/z-wentao/voicestudio/pkg/selection"
	"github.com/z-wentao/voicestudio/pkg/task"
)

// historyTextLimit TTS 历史记录只保留文本开头
const historyTextLimit = 150

// TTSState 语音合成页面快照
type TTSState struct {
	Text          string                `json:"text"`
	Params        inference.VoiceParams `json:"params"`
	SelectedVoice models.Voice          `json:"selected_voice"`
	Generating    bool                  `json:"generating"`
	Error         string                `json:"error,omitempty"`
	Task          models.Task           `json:"task"`
	History       []models.HistoryEntry `json:"history"`
}

// TTS 语音合成
type TTS struct {
	runner    *task.Runner
	svc       inference.Synthesizer
	selection *selection.Selection
	player    *player.Player
	log       history.Log
	bus       events.Emitter

	// 自动播放在回调之外进行，不占用执行器的投递锁
	playWG sync.WaitGroup

	opMu sync.Mutex

	mu      sync.Mutex
	text    string
	params  inference.VoiceParams
	errMsg  string
	session uint64
}

// NewTTS 创建页面
func NewTTS(runner *task.Runner, svc inference.Synthesizer, sel *selection.Selection, p *player.Player, log history.Log, bus events.Emitter) *TTS {
	params := inference.VoiceParams{}
	params.Normalize()
	return &TTS{
		runner:    runner,
		svc:       svc,
		selection: sel,
		player:    p,
		log:       log,
		bus:       orDiscard(bus),
		params:    params,
	}
}

// SetText 设置待合成文本
func (s *TTS) SetText(text string) TTSState {
	s.mu.Lock()
	s.text = text
	s.mu.Unlock()
	return s.State()
}

// Generate 用当前选中的声音合成文本
// 先关闭全局播放，合成成功后写入历史记录并自动播放结果
func (s *TTS) Generate(params inference.VoiceParams) (models.Task, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	text := s.text
	s.mu.Unlock()
	if strings.TrimSpace(text) == "" {
		return s.runner.Get(models.KindSynthesize), models.Invalidf("合成文本不能为空")
	}
	if err := params.Normalize(); err != nil {
		return s.runner.Get(models.KindSynthesize), err
	}

	voice, err := s.selection.SelectedVoice()
	if err != nil {
		return s.runner.Get(models.KindSynthesize), fmt.Errorf("获取选中声音失败: %w", err)
	}
	params.VoiceID = voice.ID
	params.Gender = voice.Gender

	if err := prepare(s.runner, models.KindSynthesize); err != nil {
		return s.runner.Get(models.KindSynthesize), err
	}

	s.player.Close()
	epoch := s.selection.Epoch()

	s.mu.Lock()
	s.session++
	session := s.session
	s.params = params
	s.errMsg = ""
	s.mu.Unlock()

	return s.runner.Start(models.KindSynthesize, task.Reject,
		func(ctx context.Context, _ func(any)) (any, error) {
			audio, err := s.svc.Synthesize(ctx, text, params)
			if err != nil {
				return nil, err
			}
			return models.SynthesisResult{Audio: audio, VoiceID: voice.ID, Text: text}, nil
		},
		task.Hooks{OnDone: func(t models.Task) {
			s.mu.Lock()
			stale := s.session != session
			if !stale && t.Status == models.TaskFailed {
				s.errMsg = t.ErrorMessage
			}
			s.mu.Unlock()

			res, ok := t.Result.(models.SynthesisResult)
			if stale || t.Status != models.TaskSucceeded || !ok {
				return
			}
			s.finish(voice, res, epoch)
		}},
	)
}

// finish 记录历史并播放合成结果
// 合成期间切换过模块时只记录历史，不再自动播放
func (s *TTS) finish(voice models.Voice, res models.SynthesisResult, epoch uint64) {
	entry, err := appendHistory(s.bus, s.runner.Scope(), s.log, models.HistoryEntry{
		ID:        fmt.Sprintf("tts_gen_%d", time.Now().UnixNano()),
		Text:      truncate(res.Text, historyTextLimit),
		Duration:  res.Audio.Duration,
		Tag:       string(voice.Category),
		VoiceID:   voice.ID,
		VoiceName: voice.Name,
		AudioURL:  res.Audio.URL,
		AvatarURL: voice.AvatarURL,
	})
	if err != nil {
		logrus.Warnf("⚠️ %v", err)
		return
	}

	item := player.Item{
		ID:        entry.ID,
		Title:     voice.Name + " (合成结果)",
		VoiceID:   voice.ID,
		AudioURL:  res.Audio.URL,
		AvatarURL: voice.AvatarURL,
	}
	s.playWG.Add(1)
	go func() {
		defer s.playWG.Done()
		if !s.selection.InModule(models.ModuleAIVoice, epoch) {
			logrus.Debug("已离开语音模块，跳过自动播放")
			return
		}
		if _, err := s.player.Play(context.Background(), item); err != nil {
			logrus.Warnf("⚠️ 自动播放合成结果失败: %v", err)
			return
		}
		// 播放开始前刚好切换了模块，切换时的停止没有覆盖到这次播放
		if !s.selection.InModule(models.ModuleAIVoice, epoch) {
			s.player.CloseIfItem(item.ID)
		}
	}()
}

// PlayHistory 播放一条历史记录
func (s *TTS) PlayHistory(ctx context.Context, id string) (player.Snapshot, error) {
	entry, err := s.log.Get(id)
	if err != nil {
		return s.player.Snapshot(), err
	}
	return s.player.Play(ctx, player.Item{
		ID:        entry.ID,
		Title:     entry.VoiceName + " (历史记录)",
		VoiceID:   entry.VoiceID,
		AudioURL:  entry.AudioURL,
		AvatarURL: entry.AvatarURL,
	})
}

// DeleteHistory 删除一条历史记录
func (s *TTS) DeleteHistory(id string) error {
	return removeHistory(s.bus, s.runner.Scope(), s.log, id)
}

// ClearHistory 清空历史记录
func (s *TTS) ClearHistory() error {
	return clearHistory(s.bus, s.runner.Scope(), s.log)
}

// State 页面快照
func (s *TTS) State() TTSState {
	t := s.runner.Get(models.KindSynthesize)

	s.mu.Lock()
	st := TTSState{
		Text:       s.text,
		Params:     s.params,
		Generating: t.Status == models.TaskRunning,
		Error:      s.errMsg,
		Task:       t,
	}
	s.mu.Unlock()

	if v, err := s.selection.SelectedVoice(); err == nil {
		st.SelectedVoice = v
	}
	st.History = listHistory(s.log)
	return st
}

// Close 页面销毁：取消合成，等待进行中的自动播放返回
func (s *TTS) Close() {
	s.runner.Close()
	s.playWG.Wait()
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
