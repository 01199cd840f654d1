package player

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/z-wentao/voicestudio/pkg/events"
	"github.com/z-wentao/voicestudio/pkg/metrics"
	"github.com/z-wentao/voicestudio/pkg/models"
)

// ErrSuperseded 加载过程中又有新的 Play/Close，本次加载结果被丢弃
var ErrSuperseded = errors.New("播放请求已被新的请求取代")

type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
	StateError   State = "error"
)

// Item 可播放的条目：声音试听或一次合成结果
type Item struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	VoiceID   string `json:"voice_id,omitempty"`
	AudioURL  string `json:"audio_url"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Snapshot 播放会话快照
type Snapshot struct {
	State     State   `json:"state"`
	Item      *Item   `json:"item"`
	IsPlaying bool    `json:"is_playing"`
	Position  float64 `json:"position"`
	Duration  float64 `json:"duration"`
	Error     string  `json:"error,omitempty"`
}

type playOptions struct {
	restart bool
}

// PlayOption Play 的可选参数
type PlayOption func(*playOptions)

// WithRestart 同一条目正在播放或暂停时从头开始，而不是保持当前位置
func WithRestart() PlayOption {
	return func(o *playOptions) { o.restart = true }
}

// Player 全局唯一的播放会话
// 同一时刻最多一个条目处于播放状态：播放新条目前先停掉当前条目
type Player struct {
	loader      MediaLoader
	loadTimeout time.Duration
	bus         events.Emitter
	metrics     *metrics.Metrics
	now         func() time.Time

	mu       sync.Mutex
	state    State
	item     *Item
	duration float64
	// 播放中的位置 = offset + (now - since)
	offset float64
	since  time.Time
	errMsg string
	// 每次 Play/Close 递增，用于识别过期的加载结果
	gen uint64
}

// Option Player 配置项
type Option func(*Player)

func WithClock(now func() time.Time) Option {
	return func(p *Player) { p.now = now }
}

func WithEmitter(e events.Emitter) Option {
	return func(p *Player) {
		if e != nil {
			p.bus = e
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Player) { p.metrics = m }
}

// WithLoadTimeout 单次加载的超时时间
func WithLoadTimeout(d time.Duration) Option {
	return func(p *Player) { p.loadTimeout = d }
}

// New 创建播放器
func New(loader MediaLoader, opts ...Option) *Player {
	p := &Player{
		loader:      loader,
		loadTimeout: 10 * time.Second,
		bus:         events.Discard,
		now:         time.Now,
		state:       StateIdle,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Play 播放条目
// 同一条目正在播放时是空操作，暂停时继续播放；WithRestart 时从头开始
// 其他条目：停掉当前条目，进入 loading，加载完成后进入 playing
func (p *Player) Play(ctx context.Context, item Item, opts ...PlayOption) (Snapshot, error) {
	if item.AudioURL == "" {
		return p.Snapshot(), models.Invalidf("条目没有可播放的音频: %s", item.ID)
	}
	var o playOptions
	for _, opt := range opts {
		opt(&o)
	}

	p.mu.Lock()
	p.advanceLocked()

	if p.item != nil && p.item.ID == item.ID {
		switch p.state {
		case StatePlaying, StatePaused:
			if o.restart {
				p.offset = 0
				p.since = p.now()
				p.setStateLocked(StatePlaying)
			} else if p.state == StatePaused {
				p.resumeLocked()
			}
			snap := p.snapshotLocked()
			p.mu.Unlock()
			return snap, nil
		case StateLoading:
			snap := p.snapshotLocked()
			p.mu.Unlock()
			return snap, nil
		}
	}

	if p.item != nil && p.state != StateIdle {
		logrus.WithField("item_id", p.item.ID).Debug("停止当前播放")
	}
	p.gen++
	gen := p.gen
	copied := item
	p.item = &copied
	p.duration = 0
	p.offset = 0
	p.errMsg = ""
	p.setStateLocked(StateLoading)
	p.mu.Unlock()

	loadCtx, cancel := context.WithTimeout(ctx, p.loadTimeout)
	media, err := p.loader.Load(loadCtx, item.AudioURL)
	cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.gen != gen {
		return p.snapshotLocked(), ErrSuperseded
	}
	if err != nil {
		p.errMsg = err.Error()
		p.setStateLocked(StateError)
		logrus.WithField("item_id", item.ID).Warnf("❌ 加载音频失败: %v", err)
		return p.snapshotLocked(), fmt.Errorf("加载音频失败: %w", err)
	}

	p.duration = media.Duration
	p.offset = 0
	p.since = p.now()
	p.setStateLocked(StatePlaying)
	logrus.WithField("item_id", item.ID).Infof("▶️ 开始播放: %s (%.1f 秒)", item.Title, media.Duration)
	return p.snapshotLocked(), nil
}

// Toggle 同一条目在播放和暂停之间切换，其他条目直接播放
func (p *Player) Toggle(ctx context.Context, item Item) (Snapshot, error) {
	p.mu.Lock()
	p.advanceLocked()
	if p.item != nil && p.item.ID == item.ID {
		switch p.state {
		case StatePlaying:
			p.pauseLocked()
			snap := p.snapshotLocked()
			p.mu.Unlock()
			return snap, nil
		case StatePaused:
			p.resumeLocked()
			snap := p.snapshotLocked()
			p.mu.Unlock()
			return snap, nil
		}
	}
	p.mu.Unlock()
	return p.Play(ctx, item)
}

// Pause 暂停；空闲时是空操作
func (p *Player) Pause() (Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advanceLocked()

	switch p.state {
	case StateIdle, StatePaused:
	case StatePlaying:
		p.pauseLocked()
	default:
		return p.snapshotLocked(), fmt.Errorf("%w: %s 状态下不能暂停", models.ErrInvalidTransition, p.state)
	}
	return p.snapshotLocked(), nil
}

// Resume 继续播放；空闲时是空操作
func (p *Player) Resume() (Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advanceLocked()

	switch p.state {
	case StateIdle, StatePlaying:
	case StatePaused:
		p.resumeLocked()
	default:
		return p.snapshotLocked(), fmt.Errorf("%w: %s 状态下不能继续播放", models.ErrInvalidTransition, p.state)
	}
	return p.snapshotLocked(), nil
}

// Seek 跳转，位置限制在 [0, duration]
func (p *Player) Seek(seconds float64) (Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advanceLocked()

	if p.state != StatePlaying && p.state != StatePaused {
		return p.snapshotLocked(), fmt.Errorf("%w: %s 状态下不能跳转", models.ErrInvalidTransition, p.state)
	}
	if math.IsNaN(seconds) {
		return p.snapshotLocked(), models.Invalidf("无效的跳转位置")
	}

	p.offset = math.Max(0, math.Min(seconds, p.duration))
	p.since = p.now()
	p.bus.Emit(events.PlaybackChanged, p.snapshotLocked())
	return p.snapshotLocked(), nil
}

// Close 释放当前条目，回到 idle；正在加载的结果会被丢弃
func (p *Player) Close() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

func (p *Player) closeLocked() Snapshot {
	p.gen++
	if p.state == StateIdle && p.item == nil {
		return p.snapshotLocked()
	}
	p.item = nil
	p.duration = 0
	p.offset = 0
	p.errMsg = ""
	p.setStateLocked(StateIdle)
	return p.snapshotLocked()
}

// Stop 同 Close
func (p *Player) Stop() {
	p.Close()
}

// CloseIfVoice 当前条目属于该声音时关闭，返回是否关闭
func (p *Player) CloseIfVoice(voiceID string) bool {
	p.mu.Lock()
	match := p.item != nil && (p.item.ID == voiceID || p.item.VoiceID == voiceID)
	p.mu.Unlock()

	if match {
		p.Close()
		logrus.WithField("voice_id", voiceID).Info("声音已删除，关闭播放")
	}
	return match
}

// CloseIfItem 当前条目是 itemID 时关闭，返回是否关闭
func (p *Player) CloseIfItem(itemID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.item == nil || p.item.ID != itemID {
		return false
	}
	p.closeLocked()
	return true
}

// Snapshot 当前状态
func (p *Player) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advanceLocked()
	return p.snapshotLocked()
}

// advanceLocked 播放到结尾时停在结尾（暂停）
func (p *Player) advanceLocked() {
	if p.state != StatePlaying {
		return
	}
	if p.positionLocked() >= p.duration {
		p.offset = p.duration
		p.setStateLocked(StatePaused)
	}
}

func (p *Player) positionLocked() float64 {
	if p.state != StatePlaying {
		return p.offset
	}
	pos := p.offset + p.now().Sub(p.since).Seconds()
	return math.Min(pos, p.duration)
}

func (p *Player) pauseLocked() {
	p.offset = p.positionLocked()
	p.setStateLocked(StatePaused)
}

// resumeLocked 停在结尾时从头播放
func (p *Player) resumeLocked() {
	if p.offset >= p.duration {
		p.offset = 0
	}
	p.since = p.now()
	p.setStateLocked(StatePlaying)
}

func (p *Player) setStateLocked(s State) {
	p.state = s
	p.metrics.RecordPlayback(string(s))
	p.bus.Emit(events.PlaybackChanged, p.snapshotLocked())
}

func (p *Player) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:     p.state,
		IsPlaying: p.state == StatePlaying,
		Position:  p.positionLocked(),
		Duration:  p.duration,
		Error:     p.errMsg,
	}
	if p.item != nil {
		item := *p.item
		snap.Item = &item
	}
	return snap
}
