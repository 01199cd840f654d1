package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/z-wentao/voicestudio/pkg/models"
	"github.com/z-wentao/voicestudio/pkg/registry"
	"github.com/z-wentao/voicestudio/pkg/storage"
)

type stopCounter struct{ n int }

func (s *stopCounter) Stop() { s.n++ }

func setup(t *testing.T) (*Selection, *registry.VoiceRegistry, *stopCounter) {
	t.Helper()
	voices := registry.NewVoiceRegistry(storage.NewMemoryStore[models.Voice](), nil, nil)
	require.NoError(t, voices.Seed([]models.Voice{
		{ID: "v1", Name: "V1", Source: models.SourcePreset},
		{ID: "v2", Name: "V2", Source: models.SourcePreset},
	}))
	stopper := &stopCounter{}
	sel, err := New(voices, stopper, nil, "")
	require.NoError(t, err)
	return sel, voices, stopper
}

func TestSelection_DefaultsToFirstPreset(t *testing.T) {
	sel, _, _ := setup(t)
	v, err := sel.SelectedVoice()
	require.NoError(t, err)
	assert.Equal(t, "v1", v.ID)
}

func TestSelection_ConfiguredDefault(t *testing.T) {
	_, voices, _ := setup(t)

	sel, err := New(voices, nil, nil, "v2")
	require.NoError(t, err)
	v, err := sel.SelectedVoice()
	require.NoError(t, err)
	assert.Equal(t, "v2", v.ID)

	sel, err = New(voices, nil, nil, "missing")
	require.NoError(t, err)
	v, err = sel.SelectedVoice()
	require.NoError(t, err)
	assert.Equal(t, "v1", v.ID)
}

func TestSelection_FallbackAfterDelete(t *testing.T) {
	sel, voices, _ := setup(t)

	_, err := voices.Add(models.Voice{ID: "v3", Name: "V3", Source: models.SourceCustom})
	require.NoError(t, err)
	_, err = sel.SetSelectedVoice("v3")
	require.NoError(t, err)

	_, err = voices.Remove("v3")
	require.NoError(t, err)
	v, err := sel.Reconcile("v3")
	require.NoError(t, err)
	assert.Equal(t, "v1", v.ID)

	got, err := sel.SelectedVoice()
	require.NoError(t, err)
	assert.Equal(t, "v1", got.ID)
}

func TestSelection_ReadRepairsDanglingSelection(t *testing.T) {
	sel, voices, _ := setup(t)
	_, err := voices.Add(models.Voice{ID: "v3", Name: "V3", Source: models.SourceCustom})
	require.NoError(t, err)
	_, err = sel.SetSelectedVoice("v3")
	require.NoError(t, err)

	// 没有调用 Reconcile 也不会读到悬空的 id
	_, err = voices.Remove("v3")
	require.NoError(t, err)
	v, err := sel.SelectedVoice()
	require.NoError(t, err)
	assert.Equal(t, "v1", v.ID)
}

func TestSelection_ReconcileOtherVoiceKeepsSelection(t *testing.T) {
	sel, _, _ := setup(t)
	_, err := sel.SetSelectedVoice("v2")
	require.NoError(t, err)

	v, err := sel.Reconcile("v9")
	require.NoError(t, err)
	assert.Equal(t, "v2", v.ID)
}

func TestSelection_SetUnknownVoice(t *testing.T) {
	sel, _, _ := setup(t)
	_, err := sel.SetSelectedVoice("missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSelection_ModuleCascade(t *testing.T) {
	sel, _, stopper := setup(t)

	nav := sel.Navigation()
	assert.Equal(t, models.ModuleAIVoice, nav.Module)
	assert.Equal(t, models.PageHome, nav.Page)

	nav, err := sel.SetPage(models.PageTTS)
	require.NoError(t, err)
	assert.Equal(t, models.PageTTS, nav.Page)

	nav, err = sel.SetModule(models.ModulePromptLibrary)
	require.NoError(t, err)
	assert.Equal(t, models.PagePromptDiscover, nav.Page)
	assert.Equal(t, 1, stopper.n, "切换模块必须停止播放")

	// 切到当前模块不触发重置
	_, err = sel.SetPage(models.PagePromptMine)
	require.NoError(t, err)
	nav, err = sel.SetModule(models.ModulePromptLibrary)
	require.NoError(t, err)
	assert.Equal(t, models.PagePromptMine, nav.Page)
	assert.Equal(t, 1, stopper.n)

	nav, err = sel.SetModule(models.ModuleDigitalHuman)
	require.NoError(t, err)
	assert.Equal(t, models.PageNone, nav.Page)
	assert.Equal(t, 2, stopper.n)
}

func TestSelection_Epoch(t *testing.T) {
	sel, _, _ := setup(t)

	epoch := sel.Epoch()
	assert.True(t, sel.InModule(models.ModuleAIVoice, epoch))
	assert.False(t, sel.InModule(models.ModulePromptLibrary, epoch))

	// 页面切换不算模块切换
	_, err := sel.SetPage(models.PageTTS)
	require.NoError(t, err)
	assert.True(t, sel.InModule(models.ModuleAIVoice, epoch))

	// 离开再回来，计数已经变化
	_, err = sel.SetModule(models.ModulePromptLibrary)
	require.NoError(t, err)
	_, err = sel.SetModule(models.ModuleAIVoice)
	require.NoError(t, err)
	assert.False(t, sel.InModule(models.ModuleAIVoice, epoch))
	assert.Equal(t, epoch+2, sel.Epoch())
}

func TestSelection_InvalidNavigation(t *testing.T) {
	sel, _, _ := setup(t)

	_, err := sel.SetPage(models.PagePromptMine)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = sel.SetModule("UNKNOWN")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	nav, err := sel.Navigate(models.ModulePromptLibrary, models.PagePromptCreate)
	require.NoError(t, err)
	assert.Equal(t, models.PagePromptCreate, nav.Page)
}

func TestSelection_NoVoices(t *testing.T) {
	voices := registry.NewVoiceRegistry(storage.NewMemoryStore[models.Voice](), nil, nil)
	_, err := New(voices, nil, nil, "")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
