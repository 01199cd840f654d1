package selection

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/z-wentao/voicestudio/pkg/events"
	"github.com/z-wentao/voicestudio/pkg/models"
)

// VoiceSource 选中状态依赖的声音查询
type VoiceSource interface {
	Get(id string) (models.Voice, error)
	FirstPreset() (models.Voice, bool)
}

// Stopper 切换模块时需要停掉的播放会话
type Stopper interface {
	Stop()
}

// Navigation 当前模块和页面
type Navigation struct {
	Module models.Module `json:"module"`
	Page   models.Page   `json:"page"`
}

// State 选中状态快照
type State struct {
	SelectedVoice models.Voice `json:"selected_voice"`
	Navigation
}

// Selection 合成用的选中声音 + 导航游标
// 选中的声音永远不为空：被删除后回落到默认声音
type Selection struct {
	voices         VoiceSource
	player         Stopper
	bus            events.Emitter
	defaultVoiceID string

	mu       sync.Mutex
	selected string
	nav      Navigation
	epoch    uint64
}

// New 创建选中状态，defaultVoiceID 为空或不存在时使用第一个预置声音
func New(voices VoiceSource, player Stopper, bus events.Emitter, defaultVoiceID string) (*Selection, error) {
	if bus == nil {
		bus = events.Discard
	}
	s := &Selection{
		voices:         voices,
		player:         player,
		bus:            bus,
		defaultVoiceID: defaultVoiceID,
		nav:            Navigation{Module: models.ModuleAIVoice, Page: models.ModuleAIVoice.DefaultPage()},
	}

	def, err := s.defaultVoice()
	if err != nil {
		return nil, err
	}
	s.selected = def.ID
	return s, nil
}

func (s *Selection) defaultVoice() (models.Voice, error) {
	if s.defaultVoiceID != "" {
		if v, err := s.voices.Get(s.defaultVoiceID); err == nil {
			return v, nil
		}
		logrus.Warnf("⚠️ 默认声音 %s 不存在，使用第一个预置声音", s.defaultVoiceID)
	}
	if v, ok := s.voices.FirstPreset(); ok {
		return v, nil
	}
	return models.Voice{}, fmt.Errorf("%w: 没有可用的声音", models.ErrNotFound)
}

// SelectedVoice 读取时重新查注册表；记录已不存在时回落到默认声音
func (s *Selection) SelectedVoice() (models.Voice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveLocked()
}

func (s *Selection) resolveLocked() (models.Voice, error) {
	v, err := s.voices.Get(s.selected)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return models.Voice{}, err
	}

	def, err := s.defaultVoice()
	if err != nil {
		return models.Voice{}, err
	}
	s.selected = def.ID
	s.bus.Emit(events.SelectionChanged, def)
	return def, nil
}

// SetSelectedVoice 选中声音，id 必须存在
func (s *Selection) SetSelectedVoice(id string) (models.Voice, error) {
	v, err := s.voices.Get(id)
	if err != nil {
		return models.Voice{}, err
	}

	s.mu.Lock()
	s.selected = v.ID
	s.mu.Unlock()

	s.bus.Emit(events.SelectionChanged, v)
	return v, nil
}

// Reconcile 声音被删除后调用：被删的正好是选中的声音时回落到默认声音
func (s *Selection) Reconcile(removedID string) (models.Voice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected != removedID {
		return s.resolveLocked()
	}

	def, err := s.defaultVoice()
	if err != nil {
		return models.Voice{}, err
	}
	s.selected = def.ID
	s.bus.Emit(events.SelectionChanged, def)
	logrus.WithField("voice_id", removedID).Infof("选中的声音已删除，回落到 %s", def.Name)
	return def, nil
}

// Navigation 当前导航
func (s *Selection) Navigation() Navigation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav
}

// Epoch 模块切换计数，每次实际切换模块加一
func (s *Selection) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// InModule 自 epoch 以来没有切换过模块，且当前模块是 m
func (s *Selection) InModule(m models.Module, epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch == epoch && s.nav.Module == m
}

// SetModule 切换模块：页面重置为该模块的落地页，并停止播放
// 切换到当前模块是空操作
func (s *Selection) SetModule(m models.Module) (Navigation, error) {
	if !m.Valid() {
		return s.Navigation(), models.Invalidf("未知模块: %s", m)
	}

	s.mu.Lock()
	if s.nav.Module == m {
		nav := s.nav
		s.mu.Unlock()
		return nav, nil
	}
	s.nav = Navigation{Module: m, Page: m.DefaultPage()}
	s.epoch++
	nav := s.nav
	s.mu.Unlock()

	if s.player != nil {
		s.player.Stop()
	}
	s.bus.Emit(events.NavigationChanged, nav)
	return nav, nil
}

// SetPage 切换当前模块下的页面
func (s *Selection) SetPage(p models.Page) (Navigation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.nav.Module.HasPage(p) {
		return s.nav, models.Invalidf("页面 %s 不属于模块 %s", p, s.nav.Module)
	}
	if s.nav.Page != p {
		s.nav.Page = p
		s.bus.Emit(events.NavigationChanged, s.nav)
	}
	return s.nav, nil
}

// Navigate 切换模块后再切换页面
func (s *Selection) Navigate(m models.Module, p models.Page) (Navigation, error) {
	nav, err := s.SetModule(m)
	if err != nil {
		return nav, err
	}
	if p == models.PageNone {
		return nav, nil
	}
	return s.SetPage(p)
}

// State 快照
func (s *Selection) State() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.resolveLocked()
	if err != nil {
		return State{}, err
	}
	return State{SelectedVoice: v, Navigation: s.nav}, nil
}
