package registry

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/z-wentao/voicestudio/pkg/events"
	"github.com/z-wentao/voicestudio/pkg/metrics"
	"github.com/z-wentao/voicestudio/pkg/models"
	"github.com/z-wentao/voicestudio/pkg/storage"
)

// VoiceTab 声音库页签
type VoiceTab string

const (
	TabAll    VoiceTab = ""
	TabPreset VoiceTab = "preset"
	TabCustom VoiceTab = "custom"
)

// VoiceFilter 声音筛选条件，零值表示不过滤
type VoiceFilter struct {
	Tab           VoiceTab        `form:"tab" json:"tab"`
	Gender        models.Gender   `form:"gender" json:"gender"`
	Category      models.Category `form:"category" json:"category"`
	Query         string          `form:"q" json:"q"`
	FavoritesOnly bool            `form:"favorites" json:"favorites"`
}

func (f VoiceFilter) match(v models.Voice) bool {
	switch f.Tab {
	case TabPreset:
		if v.IsCustom {
			return false
		}
	case TabCustom:
		if !v.IsCustom {
			return false
		}
	}
	if f.Gender != "" && v.Gender != f.Gender {
		return false
	}
	if f.Category != "" && v.Category != f.Category {
		return false
	}
	if f.FavoritesOnly && !v.IsFavorite {
		return false
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		if !strings.Contains(strings.ToLower(v.Name), strings.ToLower(q)) {
			return false
		}
	}
	return true
}

// VoiceRegistry 声音注册表，所有页面共享的唯一数据源
// 复合操作（先查后写）在注册表锁内完成，底层 Store 只负责单条读写
type VoiceRegistry struct {
	mu      sync.Mutex
	store   storage.Store[models.Voice]
	bus     events.Emitter
	metrics *metrics.Metrics
}

// NewVoiceRegistry 创建声音注册表
func NewVoiceRegistry(store storage.Store[models.Voice], bus events.Emitter, m *metrics.Metrics) *VoiceRegistry {
	if bus == nil {
		bus = events.Discard
	}
	return &VoiceRegistry{store: store, bus: bus, metrics: m}
}

// Seed 写入预置声音，已存在的 id 跳过（持久化存储重启后不会重复）
func (r *VoiceRegistry) Seed(voices []models.Voice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	added := 0
	for _, v := range voices {
		if _, err := r.store.Get(v.ID); err == nil {
			continue
		}
		v.Normalize()
		if err := r.store.Save(v); err != nil {
			return fmt.Errorf("写入预置声音失败: %w", err)
		}
		added++
	}

	r.refreshSize()
	logrus.Infof("✓ 预置声音已加载: 新增 %d 个", added)
	return nil
}

// List 按插入顺序返回全部声音
func (r *VoiceRegistry) List() ([]models.Voice, error) {
	return r.store.List()
}

// Filter 按条件筛选，保持插入顺序
func (r *VoiceRegistry) Filter(f VoiceFilter) ([]models.Voice, error) {
	all, err := r.store.List()
	if err != nil {
		return nil, err
	}
	result := make([]models.Voice, 0, len(all))
	for _, v := range all {
		if f.match(v) {
			result = append(result, v)
		}
	}
	return result, nil
}

// Get 获取声音
func (r *VoiceRegistry) Get(id string) (models.Voice, error) {
	return r.store.Get(id)
}

// Add 新增声音，id 重复返回 ErrDuplicateID
func (r *VoiceRegistry) Add(v models.Voice) (models.Voice, error) {
	if strings.TrimSpace(v.ID) == "" {
		return models.Voice{}, models.Invalidf("声音 ID 不能为空")
	}
	if strings.TrimSpace(v.Name) == "" {
		return models.Voice{}, models.Invalidf("声音名称不能为空")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.store.Get(v.ID); err == nil {
		return models.Voice{}, fmt.Errorf("%w: %s", models.ErrDuplicateID, v.ID)
	}

	v.Normalize()
	if err := r.store.Save(v); err != nil {
		return models.Voice{}, fmt.Errorf("保存声音失败: %w", err)
	}

	r.refreshSize()
	r.bus.Emit(events.VoiceAdded, v)
	logrus.WithField("voice_id", v.ID).Infof("✓ 新增声音: %s", v.Name)
	return v.Clone(), nil
}

// Update 合并补丁，返回更新后的声音
func (r *VoiceRegistry) Update(id string, patch models.VoicePatch) (models.Voice, error) {
	if err := patch.Validate(); err != nil {
		return models.Voice{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	v, err := r.store.Get(id)
	if err != nil {
		return models.Voice{}, err
	}

	patch.Apply(&v)
	v.Normalize()
	if err := r.store.Save(v); err != nil {
		return models.Voice{}, fmt.Errorf("更新声音失败: %w", err)
	}

	r.bus.Emit(events.VoiceUpdated, v)
	return v.Clone(), nil
}

// Remove 删除声音并返回被删除的记录，调用方据此修正选中状态和播放会话
// 预置声音不可删除
func (r *VoiceRegistry) Remove(id string) (models.Voice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, err := r.store.Get(id)
	if err != nil {
		return models.Voice{}, err
	}
	if v.IsPreset() {
		return models.Voice{}, fmt.Errorf("%w: 预置声音不可删除 (%s)", models.ErrInvalidTransition, id)
	}

	if err := r.store.Delete(id); err != nil {
		return models.Voice{}, err
	}

	r.refreshSize()
	r.bus.Emit(events.VoiceRemoved, v)
	logrus.WithField("voice_id", id).Infof("🗑️ 删除声音: %s", v.Name)
	return v, nil
}

// FirstPreset 第一个预置声音，作为选中声音的兜底
func (r *VoiceRegistry) FirstPreset() (models.Voice, bool) {
	all, err := r.store.List()
	if err != nil {
		logrus.Warnf("⚠️ 读取声音列表失败: %v", err)
		return models.Voice{}, false
	}
	for _, v := range all {
		if v.IsPreset() {
			return v, true
		}
	}
	if len(all) > 0 {
		return all[0], true
	}
	return models.Voice{}, false
}

// 调用方持有 r.mu
func (r *VoiceRegistry) refreshSize() {
	if r.metrics == nil {
		return
	}
	if all, err := r.store.List(); err == nil {
		r.metrics.SetRegistrySize("voices", len(all))
	}
}
