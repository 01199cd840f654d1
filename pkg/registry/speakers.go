package registry

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/sirupsen/logrus"
	"github.com/z-wentao/voicestudio/pkg/events"
	"github.com/z-wentao/voicestudio/pkg/metrics"
	"github.com/z-wentao/voicestudio/pkg/models"
	"github.com/z-wentao/voicestudio/pkg/storage"
)

const (
	demotedName      = "未知身份"
	demotedPresetTag = "访客 (已重置)"
)

// SpeakerIDFromLabel 由模型给出的说话人标签生成 id："spk_" + 小写标签，空白替换为 "_"
// 不同标签可能得到同一个 id（例如 "Speaker A" 和 "speaker  a"），此时两者会合并为同一身份
func SpeakerIDFromLabel(label string) string {
	var b strings.Builder
	b.WriteString("spk_")
	inSpace := false
	for _, r := range strings.TrimSpace(label) {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteRune('_')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// SpeakerRegistry 声纹身份注册表
type SpeakerRegistry struct {
	mu      sync.Mutex
	store   storage.Store[models.SpeakerIdentity]
	bus     events.Emitter
	metrics *metrics.Metrics
}

// NewSpeakerRegistry 创建声纹身份注册表
func NewSpeakerRegistry(store storage.Store[models.SpeakerIdentity], bus events.Emitter, m *metrics.Metrics) *SpeakerRegistry {
	if bus == nil {
		bus = events.Discard
	}
	return &SpeakerRegistry{store: store, bus: bus, metrics: m}
}

// List 按注册顺序返回
func (r *SpeakerRegistry) List() ([]models.SpeakerIdentity, error) {
	return r.store.List()
}

// Get 获取身份
func (r *SpeakerRegistry) Get(id string) (models.SpeakerIdentity, error) {
	return r.store.Get(id)
}

// Register 注册新身份，id 重复返回 ErrDuplicateID
func (r *SpeakerRegistry) Register(s models.SpeakerIdentity) (models.SpeakerIdentity, error) {
	if strings.TrimSpace(s.ID) == "" {
		return models.SpeakerIdentity{}, models.Invalidf("身份 ID 不能为空")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.store.Get(s.ID); err == nil {
		return models.SpeakerIdentity{}, fmt.Errorf("%w: %s", models.ErrDuplicateID, s.ID)
	}
	if err := r.insert(s); err != nil {
		return models.SpeakerIdentity{}, err
	}
	return s, nil
}

// EnsureRegistered 片段引用未见过的说话人时自动注册
// 已存在则原样返回现有身份，created 为 false
func (r *SpeakerRegistry) EnsureRegistered(s models.SpeakerIdentity) (models.SpeakerIdentity, bool, error) {
	if strings.TrimSpace(s.ID) == "" {
		return models.SpeakerIdentity{}, false, models.Invalidf("身份 ID 不能为空")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, err := r.store.Get(s.ID); err == nil {
		return existing, false, nil
	}
	if s.AvatarSeed == "" {
		s.AvatarSeed = s.ID
	}
	if s.Source == "" {
		s.Source = models.SpeakerDetected
	}
	if err := r.insert(s); err != nil {
		return models.SpeakerIdentity{}, false, err
	}
	logrus.WithField("speaker_id", s.ID).Infof("✓ 自动注册说话人: %s", s.Name)
	return s, true, nil
}

// Rename 命名即确认身份
func (r *SpeakerRegistry) Rename(id, name string) (models.SpeakerIdentity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.SpeakerIdentity{}, models.Invalidf("名称不能为空")
	}
	known := true
	return r.Update(id, models.SpeakerPatch{Name: &name, IsKnown: &known})
}

// Update 合并补丁
func (r *SpeakerRegistry) Update(id string, patch models.SpeakerPatch) (models.SpeakerIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.store.Get(id)
	if err != nil {
		return models.SpeakerIdentity{}, err
	}
	patch.Apply(&s)
	if err := r.store.Save(s); err != nil {
		return models.SpeakerIdentity{}, fmt.Errorf("更新身份失败: %w", err)
	}

	r.bus.Emit(events.SpeakerUpdated, s)
	return s, nil
}

// RemoveResult 删除结果：已确认的身份被降级，未确认的被清除
type RemoveResult struct {
	Speaker models.SpeakerIdentity `json:"speaker"`
	Purged  bool                   `json:"purged"`
}

// Remove 已确认的身份降级为未知（保留记录），未确认的直接删除
// guard 在清除前调用，返回错误时放弃清除（例如仍被当前会话的片段引用）
func (r *SpeakerRegistry) Remove(id string, guard func(models.SpeakerIdentity) error) (RemoveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.store.Get(id)
	if err != nil {
		return RemoveResult{}, err
	}
	res, err := r.removeLocked(s, guard)
	if err != nil {
		return RemoveResult{}, err
	}
	if res.Purged {
		r.refreshSize()
	}
	return res, nil
}

// RemoveAll 对每个身份执行 Remove 的规则：已确认的降级，未确认的清除
// guard 拒绝的身份保留，并返回第一个错误
func (r *SpeakerRegistry) RemoveAll(guard func(models.SpeakerIdentity) error) ([]RemoveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.store.List()
	if err != nil {
		return nil, err
	}

	results := make([]RemoveResult, 0, len(all))
	var firstErr error
	for _, s := range all {
		res, err := r.removeLocked(s, guard)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = append(results, res)
	}

	r.refreshSize()
	r.bus.Emit(events.SpeakersClear, results)
	return results, firstErr
}

// 调用方持有 r.mu
func (r *SpeakerRegistry) removeLocked(s models.SpeakerIdentity, guard func(models.SpeakerIdentity) error) (RemoveResult, error) {
	if s.IsKnown {
		s.IsKnown = false
		if strings.Contains(s.ID, "known") {
			s.Name = demotedPresetTag
		} else {
			s.Name = demotedName
		}
		if err := r.store.Save(s); err != nil {
			return RemoveResult{}, fmt.Errorf("降级身份失败: %w", err)
		}
		r.bus.Emit(events.SpeakerUpdated, s)
		logrus.WithField("speaker_id", s.ID).Info("⚠️ 身份已降级为未知")
		return RemoveResult{Speaker: s}, nil
	}

	if guard != nil {
		if err := guard(s); err != nil {
			return RemoveResult{}, err
		}
	}
	if err := r.store.Delete(s.ID); err != nil {
		return RemoveResult{}, err
	}

	r.bus.Emit(events.SpeakerRemoved, s)
	logrus.WithField("speaker_id", s.ID).Info("🗑️ 身份已删除")
	return RemoveResult{Speaker: s, Purged: true}, nil
}

// 调用方持有 r.mu
func (r *SpeakerRegistry) insert(s models.SpeakerIdentity) error {
	if err := r.store.Save(s); err != nil {
		return fmt.Errorf("保存身份失败: %w", err)
	}
	r.refreshSize()
	r.bus.Emit(events.SpeakerAdded, s)
	return nil
}

func (r *SpeakerRegistry) refreshSize() {
	if r.metrics == nil {
		return
	}
	if all, err := r.store.List(); err == nil {
		r.metrics.SetRegistrySize("speakers", len(all))
	}
}
