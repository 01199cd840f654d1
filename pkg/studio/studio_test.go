package studio

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/z-wentao/voicestudio/pkg/config"
	"github.com/z-wentao/voicestudio/pkg/events"
	"github.com/z-wentao/voicestudio/pkg/inference"
	"github.com/z-wentao/voicestudio/pkg/models"
	"github.com/z-wentao/voicestudio/pkg/player"
	"github.com/z-wentao/voicestudio/pkg/prompts"
	"github.com/z-wentao/voicestudio/pkg/screens"
)

type instantLoader struct{}

func (instantLoader) Load(ctx context.Context, url string) (player.Media, error) {
	return player.Media{Duration: 4}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Server.MediaDir = t.TempDir()
	cfg.Inference.TranscribeDelay = 5 * time.Millisecond
	cfg.Inference.SynthesizeDelay = 5 * time.Millisecond
	cfg.Inference.DiarizeDelay = 5 * time.Millisecond
	cfg.Inference.CloneDelay = 5 * time.Millisecond
	cfg.Inference.LiveInterval = 2 * time.Millisecond
	return cfg
}

func newTestStudio(t *testing.T, cfg *config.Config, deps Deps) *Studio {
	t.Helper()
	if deps.Loader == nil {
		deps.Loader = instantLoader{}
	}
	s, err := New(cfg, deps)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, s.Close()) })
	return s
}

func taskDone(status models.TaskStatus) bool {
	return status.Terminal()
}

// cloneVoice 走完整的克隆流程，返回新声音
func cloneVoice(t *testing.T, s *Studio, name string) models.Voice {
	t.Helper()
	_, err := s.Cloning.SetSample(inference.CloneSample{Filename: "sample.wav", SampleRate: 44100})
	require.NoError(t, err)
	_, err = s.Cloning.Create(screens.CloneRequest{Name: name})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return taskDone(s.Cloning.State().Task.Status)
	}, 2*time.Second, 5*time.Millisecond)

	st := s.Cloning.State()
	require.Equal(t, models.TaskSucceeded, st.Task.Status)
	require.Len(t, st.Voices, 1)
	return st.Voices[0]
}

func TestNewSeedsPresets(t *testing.T) {
	s := newTestStudio(t, testConfig(t), Deps{})

	voices, err := s.Voices.List()
	require.NoError(t, err)
	assert.Len(t, voices, len(PresetVoices("")))

	selected, err := s.Selection.SelectedVoice()
	require.NoError(t, err)
	assert.Equal(t, "preset_xiaoxiao", selected.ID)

	found, err := s.Prompts.Search(prompts.Query{})
	require.NoError(t, err)
	assert.Len(t, found, len(prompts.DefaultPrompts()))
}

func TestDeletedSelectedVoiceFallsBackToDefault(t *testing.T) {
	s := newTestStudio(t, testConfig(t), Deps{})

	v3 := cloneVoice(t, s, "我的声音")

	_, err := s.Library.Use(v3.ID)
	require.NoError(t, err)

	_, err = s.DeleteVoice(v3.ID)
	require.NoError(t, err)

	selected, err := s.Selection.SelectedVoice()
	require.NoError(t, err)
	assert.Equal(t, "preset_xiaoxiao", selected.ID)

	s.TTS.SetText("删除后继续合成")
	_, err = s.TTS.Generate(inference.VoiceParams{})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return taskDone(s.TTS.State().Task.Status)
	}, 2*time.Second, 5*time.Millisecond)

	history := s.TTS.State().History
	require.Len(t, history, 1)
	assert.Equal(t, "preset_xiaoxiao", history[0].VoiceID)
	assert.Equal(t, 30.0, history[0].Duration)
}

func TestDeleteVoiceClosesPlayback(t *testing.T) {
	s := newTestStudio(t, testConfig(t), Deps{})

	v3 := cloneVoice(t, s, "试听声音")

	snap, err := s.Library.Preview(context.Background(), v3.ID)
	require.NoError(t, err)
	require.Equal(t, player.StatePlaying, snap.State)

	_, err = s.DeleteVoice(v3.ID)
	require.NoError(t, err)
	assert.Equal(t, player.StateIdle, s.Player.Snapshot().State)

	// 声纹身份保留
	speaker, err := s.Speakers.Get(v3.ID)
	require.NoError(t, err)
	assert.Equal(t, "试听声音", speaker.Name)
}

func TestDeletePresetRejected(t *testing.T) {
	s := newTestStudio(t, testConfig(t), Deps{})

	_, err := s.DeleteVoice("preset_xiaoxiao")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = s.DeleteVoice("missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestEventsReachPublisher(t *testing.T) {
	pub := events.NewMemoryPublisher(64)
	s := newTestStudio(t, testConfig(t), Deps{Publisher: pub})

	_, err := s.Library.Use("preset_yunxi")
	require.NoError(t, err)

	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-pub.Events():
			if e.Type == events.SelectionChanged {
				return
			}
		case <-timeout:
			t.Fatal("没有收到 selection 事件")
		}
	}
}

func TestRedisBackends(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.Storage.Type = "redis"
	cfg.Storage.Redis.Addr = mr.Addr()
	cfg.History.Backend = "redis"
	require.NoError(t, cfg.Validate())

	s := newTestStudio(t, cfg, Deps{})

	v3 := cloneVoice(t, s, "持久化声音")
	got, err := s.Voices.Get(v3.ID)
	require.NoError(t, err)
	assert.Equal(t, "持久化声音", got.Name)

	_, err = s.ASR.UploadFile([]byte("audio"), "audio/wav")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(s.ASR.State().History) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestDigitalHuman(t *testing.T) {
	cfg := testConfig(t)
	cfg.Studio.DigitalHumanURL = "https://example.com/avatar"
	s := newTestStudio(t, cfg, Deps{})

	dh := s.DigitalHuman()
	assert.Equal(t, "https://example.com/avatar", dh.URL)
	assert.True(t, dh.AllowFullscreen)
	assert.Contains(t, dh.Allow, "microphone")

	dh.Allow[0] = "changed"
	assert.Equal(t, "camera", s.DigitalHuman().Allow[0])
}

func TestNewFailsOnBadStorage(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Type = "redis"
	cfg.Storage.Redis.Addr = "127.0.0.1:1"

	_, err := New(cfg, Deps{Loader: instantLoader{}})
	assert.Error(t, err)
}
