package screens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/z-wentao/voicestudio/pkg/inference"
	"github.com/z-wentao/voicestudio/pkg/models"
	"github.com/z-wentao/voicestudio/pkg/task"
)

func newTestCloning(t *testing.T, f *fixture) (*VoiceCloning, *task.Runner) {
	t.Helper()
	r := task.NewRunner("clone")
	c := NewVoiceCloning(r, f.mock, f.voices, f.speakers, inference.DemoAudioURL)
	c.intn = func(int) int { return 2 }
	t.Cleanup(c.Close)
	return c, r
}

func TestCloningRecordSample(t *testing.T) {
	f := newFixture(t)
	c, _ := newTestCloning(t, f)

	_, err := c.StopRecording(3)
	require.ErrorIs(t, err, models.ErrInvalidTransition)

	st := c.StartRecording()
	assert.True(t, st.Recording)
	assert.Equal(t, ReadingTexts[2], st.ReadingText)

	st, err = c.StopRecording(12.5)
	require.NoError(t, err)
	assert.False(t, st.Recording)
	require.NotNil(t, st.Sample)
	assert.True(t, strings.HasPrefix(st.Sample.Filename, "recorded_sample_"))
	assert.Equal(t, 44100, st.Sample.SampleRate)
	assert.Equal(t, 12.5, st.RecordTime)

	st = c.ClearSample()
	assert.Nil(t, st.Sample)
	assert.Zero(t, st.RecordTime)
}

func TestCloningValidation(t *testing.T) {
	f := newFixture(t)
	c, _ := newTestCloning(t, f)

	_, err := c.SetSample(inference.CloneSample{})
	require.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = c.Create(CloneRequest{Name: "我的声音"})
	require.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = c.SetSample(inference.CloneSample{Filename: "me.wav", SampleRate: 48000})
	require.NoError(t, err)
	_, err = c.Create(CloneRequest{Name: "   "})
	require.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestCloningFailureThenRetry(t *testing.T) {
	f := newFixture(t)
	c, r := newTestCloning(t, f)

	_, err := c.SetSample(inference.CloneSample{Filename: "low.wav", SampleRate: 8000})
	require.NoError(t, err)

	_, err = c.Create(CloneRequest{Name: "低质量", Description: "测试"})
	require.NoError(t, err)
	failed := waitTask(t, r, models.KindClone)
	assert.Equal(t, models.TaskFailed, failed.Status)

	st := c.State()
	require.NotNil(t, st.Notice)
	assert.Equal(t, NoticeError, st.Notice.Status)
	assert.Equal(t, inference.CloneFailureMessage, st.Notice.Message)
	assert.NotNil(t, st.Sample, "失败后保留样本以便重试")
	assert.Empty(t, st.Voices)

	// 换一个样本立即重试
	_, err = c.SetSample(inference.CloneSample{Filename: "good.wav", SampleRate: 44100})
	require.NoError(t, err)
	_, err = c.Create(CloneRequest{Name: "我的声音", Description: "温柔, 旁白"})
	require.NoError(t, err)
	done := waitTask(t, r, models.KindClone)
	require.Equal(t, models.TaskSucceeded, done.Status)

	st = c.State()
	require.NotNil(t, st.Notice)
	assert.Equal(t, NoticeSuccess, st.Notice.Status)
	assert.Equal(t, CloneSuccessMessage, st.Notice.Message)
	assert.Nil(t, st.Sample)
	require.Len(t, st.Voices, 1)

	v := st.Voices[0]
	assert.True(t, strings.HasPrefix(v.ID, "custom_"))
	assert.Equal(t, "我的声音", v.Name)
	assert.Equal(t, []string{"温柔", "旁白"}, v.Tags)
	assert.True(t, v.IsCustom)
	assert.Equal(t, models.SourceCustom, v.Source)
	assert.Equal(t, inference.DemoAudioURL, v.PreviewURL)

	speaker, err := f.speakers.Get(v.ID)
	require.NoError(t, err)
	assert.Equal(t, "我的声音", speaker.Name)
	assert.True(t, speaker.IsKnown)
	assert.Equal(t, models.SpeakerCloned, speaker.Source)

	st = c.DismissNotice()
	assert.Nil(t, st.Notice)
}

func TestCloningDefaultTag(t *testing.T) {
	f := newFixture(t)
	c, r := newTestCloning(t, f)

	_, err := c.SetSample(inference.CloneSample{Filename: "a.wav", SampleRate: 22050})
	require.NoError(t, err)
	_, err = c.Create(CloneRequest{Name: "无描述"})
	require.NoError(t, err)
	waitTask(t, r, models.KindClone)

	voices := c.State().Voices
	require.Len(t, voices, 1)
	assert.Equal(t, []string{"Custom"}, voices[0].Tags)
}
