package screens

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/z-wentao/voicestudio/pkg/models"
	"github.com/z-wentao/voicestudio/pkg/player"
	"github.com/z-wentao/voicestudio/pkg/registry"
)

type recordingDeleter struct {
	voices *registry.VoiceRegistry
	ids    []string
}

func (d *recordingDeleter) DeleteVoice(id string) (models.Voice, error) {
	d.ids = append(d.ids, id)
	return d.voices.Remove(id)
}

func newTestLibrary(t *testing.T, f *fixture) (*VoiceLibrary, *recordingDeleter) {
	t.Helper()
	del := &recordingDeleter{voices: f.voices}
	return NewVoiceLibrary(f.voices, f.selection, f.player, del), del
}

func TestLibraryUse(t *testing.T) {
	f := newFixture(t)
	l, _ := newTestLibrary(t, f)

	st, err := l.Use("preset_b")
	require.NoError(t, err)
	assert.Equal(t, "preset_b", st.SelectedVoice.ID)
	assert.Equal(t, models.ModuleAIVoice, st.Module)
	assert.Equal(t, models.PageTTS, st.Page)

	_, err = l.Use("missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestLibraryPreviewToggles(t *testing.T) {
	f := newFixture(t)
	l, _ := newTestLibrary(t, f)
	ctx := context.Background()

	snap, err := l.Preview(ctx, "preset_a")
	require.NoError(t, err)
	assert.Equal(t, player.StatePlaying, snap.State)
	assert.Equal(t, "preset_a", snap.Item.VoiceID)

	snap, err = l.Preview(ctx, "preset_a")
	require.NoError(t, err)
	assert.Equal(t, player.StatePaused, snap.State)

	// 试听另一个声音时替换当前条目
	snap, err = l.Preview(ctx, "preset_b")
	require.NoError(t, err)
	assert.Equal(t, player.StatePlaying, snap.State)
	assert.Equal(t, "preset_b", snap.Item.ID)
}

func TestLibraryPreviewWithoutURL(t *testing.T) {
	f := newFixture(t)
	l, _ := newTestLibrary(t, f)

	_, err := f.voices.Add(models.Voice{ID: "custom_silent", Name: "无声", IsCustom: true, Source: models.SourceCustom})
	require.NoError(t, err)

	_, err = l.Preview(context.Background(), "custom_silent")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestLibraryEdit(t *testing.T) {
	f := newFixture(t)
	l, del := newTestLibrary(t, f)

	_, err := f.voices.Add(models.Voice{ID: "custom_1", Name: "我的声音", IsCustom: true, Source: models.SourceCustom})
	require.NoError(t, err)

	v, err := l.Rename("custom_1", "  新名字 ")
	require.NoError(t, err)
	assert.Equal(t, "新名字", v.Name)

	v, err = l.Retag("custom_1", "温柔，播客 旁白")
	require.NoError(t, err)
	assert.Equal(t, []string{"温柔", "播客", "旁白"}, v.Tags)

	v, err = l.ToggleFavorite("custom_1")
	require.NoError(t, err)
	assert.True(t, v.IsFavorite)

	favorites, err := l.List(registry.VoiceFilter{Tab: registry.TabCustom})
	require.NoError(t, err)
	require.Len(t, favorites, 1)

	_, err = l.Delete("custom_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"custom_1"}, del.ids)

	custom, err := l.List(registry.VoiceFilter{Tab: registry.TabCustom})
	require.NoError(t, err)
	assert.Empty(t, custom)
}
