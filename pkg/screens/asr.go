package screens

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/z-wentao/voicestudio/pkg/events"
	"github.com/z-wentao/voicestudio/pkg/history"
	"github.com/z-wentao/voicestudio/pkg/inference"
	"github.com/z-wentao/voicestudio/pkg/models"
	"github.com/z-wentao/voicestudio/pkg/task"
)

// MaxRecording 单次录音的最长时间，到点自动停止
const MaxRecording = 180 * time.Second

// ASRState 语音识别页面快照
type ASRState struct {
	Recording   bool                  `json:"recording"`
	Processing  bool                  `json:"processing"`
	Duration    int                   `json:"duration"`
	MaxDuration int                   `json:"max_duration"`
	Transcript  string                `json:"transcript"`
	Error       string                `json:"error,omitempty"`
	Task        models.Task           `json:"task"`
	History     []models.HistoryEntry `json:"history"`
}

// ASROption ASR 配置项
type ASROption func(*ASR)

// WithMaxRecording 录音自动停止的时间
func WithMaxRecording(d time.Duration) ASROption {
	return func(a *ASR) { a.maxRecording = d }
}

// WithStreamDelay 录音开始到出现流式文本的延迟
func WithStreamDelay(d time.Duration) ASROption {
	return func(a *ASR) { a.streamDelay = d }
}

// ASR 语音识别：实时录音转写 + 上传文件转写
type ASR struct {
	runner       *task.Runner
	svc          inference.Transcriber
	log          history.Log
	bus          events.Emitter
	now          func() time.Time
	maxRecording time.Duration
	streamDelay  time.Duration

	opMu sync.Mutex

	mu         sync.Mutex
	recording  bool
	recStart   time.Time
	duration   int
	stop       chan struct{}
	transcript string
	errMsg     string
	// 每次开始录音或上传递增，旧会话的回调据此丢弃
	session uint64
}

// NewASR 创建页面
func NewASR(runner *task.Runner, svc inference.Transcriber, log history.Log, bus events.Emitter, opts ...ASROption) *ASR {
	a := &ASR{
		runner:       runner,
		svc:          svc,
		log:          log,
		bus:          orDiscard(bus),
		now:          time.Now,
		maxRecording: MaxRecording,
		streamDelay:  100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// StartRecording 开始录音
// 当前转写先归档到历史记录，正在进行的转写任务被取代
func (a *ASR) StartRecording() (ASRState, error) {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	a.mu.Lock()
	if err := a.archiveLocked(); err != nil {
		a.mu.Unlock()
		return a.State(), err
	}
	a.session++
	session := a.session
	stop := make(chan struct{})
	a.stop = stop
	a.recording = true
	a.recStart = a.now()
	a.duration = 0
	a.transcript = ""
	a.errMsg = ""
	a.mu.Unlock()

	_, err := a.runner.Start(models.KindTranscribe, task.Supersede, a.record(stop), task.Hooks{
		OnProgress: func(_ models.Task, progress any) {
			text, ok := progress.(string)
			if !ok {
				return
			}
			a.mu.Lock()
			if a.session == session {
				a.transcript = text
			}
			a.mu.Unlock()
		},
		OnDone: func(t models.Task) {
			a.mu.Lock()
			defer a.mu.Unlock()
			if a.session != session {
				return
			}
			a.recording = false
			a.stop = nil
			if res, ok := t.Result.(models.TranscriptResult); ok {
				a.duration = int(res.Duration)
			}
			if t.Status == models.TaskFailed {
				a.errMsg = t.ErrorMessage
			}
		},
	})
	if err != nil {
		a.mu.Lock()
		a.recording = false
		a.stop = nil
		a.mu.Unlock()
		return a.State(), fmt.Errorf("开始录音失败: %w", err)
	}

	logrus.Info("🎙️ 开始录音")
	return a.State(), nil
}

// record 录音任务：先吐出流式文本，然后等待停止或到达最长时间
func (a *ASR) record(stop <-chan struct{}) task.Func {
	return func(ctx context.Context, report func(any)) (any, error) {
		start := a.now()

		delay := time.NewTimer(a.streamDelay)
		defer delay.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-delay.C:
			report(inference.StreamingTranscript)
		case <-stop:
			report(inference.StreamingTranscript)
		}

		limit := time.NewTimer(a.maxRecording - a.now().Sub(start))
		defer limit.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-stop:
		case <-limit.C:
			logrus.Info("⚠️ 录音达到最长时间，自动停止")
		}

		elapsed := math.Min(a.now().Sub(start).Seconds(), a.maxRecording.Seconds())
		return models.TranscriptResult{Text: inference.StreamingTranscript, Duration: math.Floor(elapsed)}, nil
	}
}

// StopRecording 停止录音，等待录音任务结束
func (a *ASR) StopRecording(ctx context.Context) (ASRState, error) {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	a.mu.Lock()
	if !a.recording || a.stop == nil {
		a.mu.Unlock()
		return a.State(), fmt.Errorf("%w: 当前没有在录音", models.ErrInvalidTransition)
	}
	close(a.stop)
	a.stop = nil
	a.mu.Unlock()

	if _, err := a.runner.Wait(ctx, models.KindTranscribe); err != nil {
		return a.State(), err
	}
	logrus.Info("⏹️ 录音已停止")
	return a.State(), nil
}

// UploadFile 上传音频文件转写，已有转写任务时拒绝
func (a *ASR) UploadFile(audio []byte, mimeType string) (models.Task, error) {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	if len(audio) == 0 {
		return a.runner.Get(models.KindTranscribe), models.Invalidf("音频文件为空")
	}
	if mimeType == "" {
		mimeType = "audio/wav"
	}
	if err := prepare(a.runner, models.KindTranscribe); err != nil {
		return a.runner.Get(models.KindTranscribe), err
	}

	a.mu.Lock()
	a.session++
	session := a.session
	a.transcript = ""
	a.errMsg = ""
	a.mu.Unlock()

	return a.runner.Start(models.KindTranscribe, task.Reject,
		func(ctx context.Context, _ func(any)) (any, error) {
			text, err := a.svc.Transcribe(ctx, audio, mimeType)
			if err != nil {
				return nil, err
			}
			return models.TranscriptResult{Text: text}, nil
		},
		task.Hooks{OnDone: func(t models.Task) {
			a.mu.Lock()
			if a.session != session {
				a.mu.Unlock()
				return
			}
			res, ok := t.Result.(models.TranscriptResult)
			if t.Status != models.TaskSucceeded || !ok {
				a.errMsg = t.ErrorMessage
				if a.errMsg == "" {
					a.errMsg = "文件转录失败"
				}
				a.mu.Unlock()
				return
			}
			a.transcript = res.Text
			a.duration = 0
			a.mu.Unlock()

			if _, err := appendHistory(a.bus, a.runner.Scope(), a.log, models.HistoryEntry{Text: res.Text}); err != nil {
				logrus.Warnf("⚠️ %v", err)
			}
		}},
	)
}

// Clear 清空当前转写，非录音状态下先归档
func (a *ASR) Clear() (ASRState, error) {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	a.mu.Lock()
	if !a.recording {
		if err := a.archiveLocked(); err != nil {
			a.mu.Unlock()
			return a.State(), err
		}
	}
	a.transcript = ""
	a.duration = 0
	a.errMsg = ""
	a.mu.Unlock()
	return a.State(), nil
}

// archiveLocked 把当前转写写入历史记录，调用方持有 a.mu
func (a *ASR) archiveLocked() error {
	if a.transcript == "" {
		return nil
	}
	_, err := appendHistory(a.bus, a.runner.Scope(), a.log, models.HistoryEntry{
		Text:     a.transcript,
		Duration: float64(a.durationLocked()),
	})
	return err
}

func (a *ASR) durationLocked() int {
	if !a.recording {
		return a.duration
	}
	elapsed := a.now().Sub(a.recStart)
	if elapsed > a.maxRecording {
		elapsed = a.maxRecording
	}
	return int(elapsed.Seconds())
}

// DeleteHistory 删除一条历史记录
func (a *ASR) DeleteHistory(id string) error {
	return removeHistory(a.bus, a.runner.Scope(), a.log, id)
}

// ClearHistory 清空历史记录
func (a *ASR) ClearHistory() error {
	return clearHistory(a.bus, a.runner.Scope(), a.log)
}

// State 页面快照
func (a *ASR) State() ASRState {
	t := a.runner.Get(models.KindTranscribe)

	a.mu.Lock()
	st := ASRState{
		Recording:   a.recording,
		Duration:    a.durationLocked(),
		MaxDuration: int(a.maxRecording.Seconds()),
		Transcript:  a.transcript,
		Error:       a.errMsg,
		Task:        t,
	}
	a.mu.Unlock()

	st.Processing = t.Status == models.TaskRunning && !st.Recording
	st.History = listHistory(a.log)
	return st
}

// Close 页面销毁，取消所有任务
func (a *ASR) Close() {
	a.runner.Close()
}
