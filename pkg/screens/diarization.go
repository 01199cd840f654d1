package screens

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/z-wentao/voicestudio/pkg/events"
	"github.com/z-wentao/voicestudio/pkg/history"
	"github.com/z-wentao/voicestudio/pkg/inference"
	"github.com/z-wentao/voicestudio/pkg/models"
	"github.com/z-wentao/voicestudio/pkg/registry"
	"github.com/z-wentao/voicestudio/pkg/subtitle"
	"github.com/z-wentao/voicestudio/pkg/task"
)

const fileConfidence = 0.95

// 历史记录的标签，区分会话来源
const (
	tagFile = "file"
	tagLive = "live"
)

var (
	fileColors = [2]string{"bg-indigo-600", "bg-rose-500"}
	liveColors = [2]string{"bg-blue-600", "bg-purple-600"}
)

// SpeakerAvatarURL 声纹身份头像
func SpeakerAvatarURL(s models.SpeakerIdentity) string {
	seed := s.AvatarSeed
	if seed == "" {
		seed = s.ID
	}
	return "https://api.dicebear.com/7.x/avataaars/svg?seed=" + seed + "&backgroundColor=b6e3f4,c0aede,d1d4f9"
}

// SpeakerView 身份列表项，Active 表示当前会话里有该说话人的片段
type SpeakerView struct {
	models.SpeakerIdentity
	AvatarURL string `json:"avatar_url"`
	Active    bool   `json:"active"`
}

// DiarizationState 声纹分离页面快照
type DiarizationState struct {
	Segments   []models.SpeakerSegment `json:"segments"`
	Speakers   []SpeakerView           `json:"speakers"`
	Live       bool                    `json:"live"`
	RecordTime int                     `json:"record_time"`
	Processing bool                    `json:"processing"`
	Error      string                  `json:"error,omitempty"`
	Task       models.Task             `json:"task"`
	History    []models.HistoryEntry   `json:"history"`
}

// Diarization 声纹分离：上传文件分析 + 实时分离
type Diarization struct {
	runner   *task.Runner
	svc      inference.Diarizer
	live     inference.LiveDiarizer
	speakers *registry.SpeakerRegistry
	log      history.Log
	bus      events.Emitter
	now      func() time.Time

	opMu sync.Mutex
	// speakerMu 让“注册身份 + 追加片段”和删除身份互斥，片段引用的身份始终存在
	// 顺序：speakerMu -> 注册表锁 -> mu
	speakerMu sync.Mutex

	mu       sync.Mutex
	segments []models.SpeakerSegment
	tag      string
	liveOn   bool
	recStart time.Time
	recEnd   time.Time
	errMsg   string
	session  uint64
}

// NewDiarization 创建页面
func NewDiarization(runner *task.Runner, svc inference.Diarizer, live inference.LiveDiarizer, speakers *registry.SpeakerRegistry, log history.Log, bus events.Emitter) *Diarization {
	return &Diarization{
		runner:   runner,
		svc:      svc,
		live:     live,
		speakers: speakers,
		log:      log,
		bus:      orDiscard(bus),
		now:      time.Now,
		segments: []models.SpeakerSegment{},
	}
}

// AnalyzeFile 分析上传的音频，已有分析任务时拒绝
// 上一个会话的片段先归档到历史记录
func (d *Diarization) AnalyzeFile(audio []byte, mimeType string) (models.Task, error) {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	if len(audio) == 0 {
		return d.runner.Get(models.KindDiarize), models.Invalidf("音频文件为空")
	}
	if mimeType == "" {
		mimeType = "audio/wav"
	}
	if err := prepare(d.runner, models.KindDiarize); err != nil {
		return d.runner.Get(models.KindDiarize), err
	}
	if err := d.archive(); err != nil {
		return d.runner.Get(models.KindDiarize), err
	}

	session := d.newSession(false)

	return d.runner.Start(models.KindDiarize, task.Reject,
		func(ctx context.Context, _ func(any)) (any, error) {
			return d.svc.Diarize(ctx, audio, mimeType)
		},
		task.Hooks{OnDone: func(t models.Task) {
			if !d.current(session) {
				return
			}
			utterances, ok := t.Result.([]inference.Utterance)
			if t.Status != models.TaskSucceeded || !ok {
				d.fail(t.ErrorMessage, "分析失败")
				return
			}

			d.speakerMu.Lock()
			defer d.speakerMu.Unlock()

			stamp := d.now().UnixMilli()
			segments := make([]models.SpeakerSegment, 0, len(utterances))
			for idx, u := range utterances {
				id := registry.SpeakerIDFromLabel(u.Speaker)
				d.ensureSpeaker(models.SpeakerIdentity{
					ID:    id,
					Name:  u.Speaker,
					Color: fileColors[idx%2],
				})
				segments = append(segments, models.SpeakerSegment{
					ID:         fmt.Sprintf("seg_%d_%d", stamp, idx),
					SpeakerID:  id,
					Text:       u.Text,
					StartTime:  u.Start,
					EndTime:    u.End,
					Confidence: fileConfidence,
				})
			}

			d.mu.Lock()
			if d.session == session {
				d.segments = segments
			}
			d.mu.Unlock()
			logrus.Infof("✓ 声纹分析完成，共 %d 个片段", len(segments))
		}},
	)
}

// StartLive 开始实时分离，取代正在进行的分析
func (d *Diarization) StartLive() (DiarizationState, error) {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	if d.live == nil {
		return d.State(), fmt.Errorf("%w: 未配置实时分离服务", models.ErrInvalidTransition)
	}
	if err := d.archive(); err != nil {
		return d.State(), err
	}

	session := d.newSession(true)

	_, err := d.runner.Start(models.KindDiarize, task.Supersede,
		func(ctx context.Context, report func(any)) (any, error) {
			return nil, d.live.DiarizeLive(ctx, func(u inference.Utterance) { report(u) })
		},
		task.Hooks{
			OnProgress: func(_ models.Task, progress any) {
				u, ok := progress.(inference.Utterance)
				if !ok || !d.current(session) {
					return
				}
				d.appendLive(session, u)
			},
			OnDone: func(t models.Task) {
				d.mu.Lock()
				if d.session == session {
					d.liveOn = false
					d.recEnd = d.now()
					if t.Status == models.TaskFailed {
						d.errMsg = t.ErrorMessage
					}
				}
				d.mu.Unlock()
			},
		},
	)
	if err != nil {
		d.mu.Lock()
		d.liveOn = false
		d.mu.Unlock()
		return d.State(), fmt.Errorf("开始实时分离失败: %w", err)
	}

	logrus.Info("🎙️ 开始实时声纹分离")
	return d.State(), nil
}

func (d *Diarization) appendLive(session uint64, u inference.Utterance) {
	d.speakerMu.Lock()
	defer d.speakerMu.Unlock()

	d.mu.Lock()
	idx := len(d.segments)
	d.mu.Unlock()

	d.ensureSpeaker(models.SpeakerIdentity{
		ID:      u.Speaker,
		Name:    u.SpeakerName,
		Color:   liveColors[idx%2],
		IsKnown: u.Known,
	})

	seg := models.SpeakerSegment{
		ID:         fmt.Sprintf("seg_%d_%d", d.now().UnixMilli(), idx),
		SpeakerID:  u.Speaker,
		Text:       u.Text,
		StartTime:  u.Start,
		EndTime:    u.End,
		Confidence: u.Confidence,
	}

	d.mu.Lock()
	if d.session != session {
		d.mu.Unlock()
		return
	}
	d.segments = append(d.segments, seg)
	d.mu.Unlock()

	d.bus.Emit(events.SegmentAdded, seg)
}

// StopLive 停止实时分离
func (d *Diarization) StopLive() (DiarizationState, error) {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	d.mu.Lock()
	on := d.liveOn
	d.mu.Unlock()
	if !on {
		return d.State(), fmt.Errorf("%w: 当前没有实时分离", models.ErrInvalidTransition)
	}

	if _, err := d.runner.Cancel(models.KindDiarize); err != nil {
		return d.State(), err
	}

	d.mu.Lock()
	d.liveOn = false
	d.recEnd = d.now()
	d.mu.Unlock()

	logrus.Info("⏹️ 实时声纹分离已停止")
	return d.State(), nil
}

// RenameSpeaker 命名即确认身份
func (d *Diarization) RenameSpeaker(id, name string) (models.SpeakerIdentity, error) {
	return d.speakers.Rename(id, name)
}

// RemoveSpeaker 已确认的身份降级，未确认的删除
// 当前会话仍引用该身份时拒绝删除
func (d *Diarization) RemoveSpeaker(id string) (registry.RemoveResult, error) {
	d.speakerMu.Lock()
	defer d.speakerMu.Unlock()

	return d.speakers.Remove(id, d.unreferenced)
}

// ClearSpeakers 清空身份列表：当前会话先归档并清空，再逐个降级或删除身份
// 实时分离进行中时拒绝
func (d *Diarization) ClearSpeakers() ([]registry.RemoveResult, error) {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	d.mu.Lock()
	on := d.liveOn
	d.mu.Unlock()
	if on {
		return nil, fmt.Errorf("%w: 实时分离进行中", models.ErrInvalidTransition)
	}

	d.speakerMu.Lock()
	defer d.speakerMu.Unlock()

	if err := d.archive(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.segments = []models.SpeakerSegment{}
	d.mu.Unlock()

	results, err := d.speakers.RemoveAll(d.unreferenced)
	if err != nil {
		return results, fmt.Errorf("清空身份失败: %w", err)
	}
	logrus.Infof("🗑️ 已清空身份列表，共处理 %d 个", len(results))
	return results, nil
}

func (d *Diarization) unreferenced(s models.SpeakerIdentity) error {
	if d.references(s.ID) {
		return fmt.Errorf("%w: 当前会话仍引用身份 %s", models.ErrInvalidTransition, s.ID)
	}
	return nil
}

// ClearSegments 归档并清空当前会话的片段，实时分离进行中时拒绝
func (d *Diarization) ClearSegments() (DiarizationState, error) {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	d.mu.Lock()
	on := d.liveOn
	d.mu.Unlock()
	if on {
		return d.State(), fmt.Errorf("%w: 实时分离进行中", models.ErrInvalidTransition)
	}
	if err := d.archive(); err != nil {
		return d.State(), err
	}

	d.mu.Lock()
	d.segments = []models.SpeakerSegment{}
	d.mu.Unlock()
	return d.State(), nil
}

// archive 把当前会话写成一条历史记录，每行一句“说话人: 内容”
// 查询说话人名称会拿注册表的锁，调用时不能持有 d.mu
func (d *Diarization) archive() error {
	d.mu.Lock()
	segments := append([]models.SpeakerSegment(nil), d.segments...)
	tag := d.tag
	d.mu.Unlock()
	if len(segments) == 0 {
		return nil
	}

	lines := make([]string, len(segments))
	for i, seg := range segments {
		lines[i] = d.speakerName(seg.SpeakerID) + ": " + seg.Text
	}
	_, err := appendHistory(d.bus, d.runner.Scope(), d.log, models.HistoryEntry{
		Text:     strings.Join(lines, "\n"),
		Duration: segments[len(segments)-1].EndTime,
		Tag:      tag,
	})
	return err
}

// DeleteHistory 删除一条历史记录
func (d *Diarization) DeleteHistory(id string) error {
	return removeHistory(d.bus, d.runner.Scope(), d.log, id)
}

// ClearHistory 清空历史记录
func (d *Diarization) ClearHistory() error {
	return clearHistory(d.bus, d.runner.Scope(), d.log)
}

func (d *Diarization) speakerName(id string) string {
	if s, err := d.speakers.Get(id); err == nil {
		return s.Name
	}
	return "未知"
}

// Export 按格式导出当前会话的字幕，说话人使用注册表里的名称
func (d *Diarization) Export(w io.Writer, format subtitle.Format) error {
	if format != subtitle.FormatSRT && format != subtitle.FormatVTT {
		return models.Invalidf("不支持的字幕格式: %s", format)
	}

	d.mu.Lock()
	segments := append([]models.SpeakerSegment(nil), d.segments...)
	d.mu.Unlock()
	if len(segments) == 0 {
		return models.Invalidf("没有可导出的片段")
	}

	cues := make([]subtitle.Cue, len(segments))
	for i, seg := range segments {
		cues[i] = subtitle.Cue{Start: seg.StartTime, End: seg.EndTime, Speaker: d.speakerName(seg.SpeakerID), Text: seg.Text}
	}

	if err := subtitle.Write(w, format, cues); err != nil {
		return fmt.Errorf("导出字幕失败: %w", err)
	}
	return nil
}

// State 页面快照
func (d *Diarization) State() DiarizationState {
	t := d.runner.Get(models.KindDiarize)

	d.mu.Lock()
	st := DiarizationState{
		Segments: append([]models.SpeakerSegment{}, d.segments...),
		Live:     d.liveOn,
		Error:    d.errMsg,
		Task:     t,
	}
	if !d.recStart.IsZero() {
		end := d.recEnd
		if d.liveOn {
			end = d.now()
		}
		st.RecordTime = int(end.Sub(d.recStart).Seconds())
	}
	d.mu.Unlock()

	st.Processing = t.Status == models.TaskRunning && !st.Live
	st.History = listHistory(d.log)

	speakers, err := d.speakers.List()
	if err != nil {
		logrus.Warnf("⚠️ 读取声纹身份失败: %v", err)
	}
	st.Speakers = make([]SpeakerView, 0, len(speakers))
	for _, s := range speakers {
		st.Speakers = append(st.Speakers, SpeakerView{
			SpeakerIdentity: s,
			AvatarURL:       SpeakerAvatarURL(s),
			Active:          containsSpeaker(st.Segments, s.ID),
		})
	}
	return st
}

// Close 页面销毁
func (d *Diarization) Close() {
	d.runner.Close()
}

// newSession 开始新会话：清空片段和错误
func (d *Diarization) newSession(live bool) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.session++
	d.segments = []models.SpeakerSegment{}
	d.errMsg = ""
	d.liveOn = live
	d.tag = tagFile
	if live {
		d.tag = tagLive
		d.recStart = d.now()
		d.recEnd = time.Time{}
	}
	return d.session
}

func (d *Diarization) current(session uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session == session
}

func (d *Diarization) fail(msg, fallback string) {
	if msg == "" {
		msg = fallback
	}
	d.mu.Lock()
	d.errMsg = msg
	d.mu.Unlock()
}

func (d *Diarization) references(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return containsSpeaker(d.segments, id)
}

// ensureSpeaker 调用时不能持有 d.mu：删除身份时注册表会回调 references
func (d *Diarization) ensureSpeaker(s models.SpeakerIdentity) {
	if _, _, err := d.speakers.EnsureRegistered(s); err != nil {
		logrus.Warnf("⚠️ 自动注册说话人失败: %v", err)
	}
}

func containsSpeaker(segments []models.SpeakerSegment, id string) bool {
	for _, seg := range segments {
		if seg.SpeakerID == id {
			return true
		}
	}
	return false
}
