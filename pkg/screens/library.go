package screens

import (
	"context"
	"fmt"
	"strings"

	"github.com/z-wentao/voicestudio/pkg/models"
	"github.com/z-wentao/voicestudio/pkg/player"
	"github.com/z-wentao/voicestudio/pkg/registry"
	"github.com/z-wentao/voicestudio/pkg/selection"
)

// VoiceDeleter 删除声音并级联处理选中状态和播放会话
type VoiceDeleter interface {
	DeleteVoice(id string) (models.Voice, error)
}

// VoiceLibrary 声音库（预置 / 自定义）
type VoiceLibrary struct {
	voices    *registry.VoiceRegistry
	selection *selection.Selection
	player    *player.Player
	deleter   VoiceDeleter
}

// NewVoiceLibrary 创建页面
func NewVoiceLibrary(voices *registry.VoiceRegistry, sel *selection.Selection, p *player.Player, deleter VoiceDeleter) *VoiceLibrary {
	return &VoiceLibrary{voices: voices, selection: sel, player: p, deleter: deleter}
}

// List 按条件列出
func (l *VoiceLibrary) List(filter registry.VoiceFilter) ([]models.Voice, error) {
	return l.voices.Filter(filter)
}

// PreviewItem 声音试听对应的播放条目
func PreviewItem(v models.Voice) player.Item {
	return player.Item{
		ID:        v.ID,
		Title:     v.Name,
		VoiceID:   v.ID,
		AudioURL:  v.PreviewURL,
		AvatarURL: v.AvatarURL,
	}
}

// Preview 试听：同一个声音在播放和暂停之间切换
func (l *VoiceLibrary) Preview(ctx context.Context, id string) (player.Snapshot, error) {
	v, err := l.voices.Get(id)
	if err != nil {
		return l.player.Snapshot(), err
	}
	if v.PreviewURL == "" {
		return l.player.Snapshot(), models.Invalidf("声音 %s 没有试听音频", v.Name)
	}
	return l.player.Toggle(ctx, PreviewItem(v))
}

// Use 选中声音并跳转到语音合成
func (l *VoiceLibrary) Use(id string) (selection.State, error) {
	if _, err := l.selection.SetSelectedVoice(id); err != nil {
		return selection.State{}, err
	}
	if _, err := l.selection.Navigate(models.ModuleAIVoice, models.PageTTS); err != nil {
		return selection.State{}, fmt.Errorf("跳转失败: %w", err)
	}
	return l.selection.State()
}

// Rename 重命名
func (l *VoiceLibrary) Rename(id, name string) (models.Voice, error) {
	name = strings.TrimSpace(name)
	return l.voices.Update(id, models.VoicePatch{Name: &name})
}

// Retag 用逗号或空格分隔的文本整体替换标签
func (l *VoiceLibrary) Retag(id, tags string) (models.Voice, error) {
	list := models.SplitTags(tags)
	return l.voices.Update(id, models.VoicePatch{Tags: &list})
}

// ToggleFavorite 切换收藏
func (l *VoiceLibrary) ToggleFavorite(id string) (models.Voice, error) {
	v, err := l.voices.Get(id)
	if err != nil {
		return models.Voice{}, err
	}
	fav := !v.IsFavorite
	return l.voices.Update(id, models.VoicePatch{IsFavorite: &fav})
}

// Delete 删除自定义声音
func (l *VoiceLibrary) Delete(id string) (models.Voice, error) {
	return l.deleter.DeleteVoice(id)
}
