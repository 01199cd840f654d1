package screens

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/z-wentao/voicestudio/pkg/models"
	"github.com/z-wentao/voicestudio/pkg/subtitle"
	"github.com/z-wentao/voicestudio/pkg/task"
)

func newTestDiarization(t *testing.T, f *fixture) (*Diarization, *task.Runner) {
	t.Helper()
	r := task.NewRunner("diarization")
	d := NewDiarization(r, f.mock, f.mock, f.speakers, newLog(t, 15), nil)
	t.Cleanup(d.Close)
	return d, r
}

func TestDiarizationAnalyzeFile(t *testing.T) {
	f := newFixture(t)
	d, r := newTestDiarization(t, f)

	_, err := d.AnalyzeFile(nil, "audio/wav")
	require.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = d.AnalyzeFile([]byte("audio"), "audio/wav")
	require.NoError(t, err)
	assert.True(t, d.State().Processing)

	done := waitTask(t, r, models.KindDiarize)
	require.Equal(t, models.TaskSucceeded, done.Status)

	st := d.State()
	assert.False(t, st.Processing)
	require.Len(t, st.Segments, 4)
	assert.Equal(t, "spk_speaker_a", st.Segments[0].SpeakerID)
	assert.Equal(t, "spk_speaker_b", st.Segments[1].SpeakerID)
	assert.Equal(t, fileConfidence, st.Segments[0].Confidence)

	require.Len(t, st.Speakers, 2)
	for _, s := range st.Speakers {
		assert.True(t, s.Active)
		assert.False(t, s.IsKnown)
		assert.Contains(t, s.AvatarURL, s.ID)
	}
}

func TestDiarizationExport(t *testing.T) {
	f := newFixture(t)
	d, r := newTestDiarization(t, f)

	var buf bytes.Buffer
	require.ErrorIs(t, d.Export(&buf, subtitle.FormatSRT), models.ErrInvalidInput)

	_, err := d.AnalyzeFile([]byte("audio"), "audio/wav")
	require.NoError(t, err)
	waitTask(t, r, models.KindDiarize)

	_, err = d.RenameSpeaker("spk_speaker_a", "李经理")
	require.NoError(t, err)

	require.NoError(t, d.Export(&buf, subtitle.FormatSRT))
	assert.Contains(t, buf.String(), "李经理")
	assert.Contains(t, buf.String(), "Speaker B")
	assert.Contains(t, buf.String(), "00:00:03,400")

	buf.Reset()
	require.NoError(t, d.Export(&buf, subtitle.FormatVTT))
	assert.Contains(t, buf.String(), "WEBVTT")

	assert.ErrorIs(t, d.Export(&buf, subtitle.Format("ass")), models.ErrInvalidInput)
}

func TestDiarizationRemoveSpeakerGuard(t *testing.T) {
	f := newFixture(t)
	d, r := newTestDiarization(t, f)

	_, err := d.AnalyzeFile([]byte("audio"), "audio/wav")
	require.NoError(t, err)
	waitTask(t, r, models.KindDiarize)

	_, err = d.RemoveSpeaker("spk_speaker_a")
	require.ErrorIs(t, err, models.ErrInvalidTransition)

	st, err := d.ClearSegments()
	require.NoError(t, err)
	assert.Empty(t, st.Segments)
	require.Len(t, st.History, 1)
	assert.Equal(t, tagFile, st.History[0].Tag)
	assert.Contains(t, st.History[0].Text, "Speaker A: 今天我们主要对齐一下新版本的上线计划。")
	assert.Equal(t, 13.6, st.History[0].Duration)

	res, err := d.RemoveSpeaker("spk_speaker_a")
	require.NoError(t, err)
	assert.True(t, res.Purged)
	_, err = f.speakers.Get("spk_speaker_a")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDiarizationLive(t *testing.T) {
	f := newFixture(t)
	d, r := newTestDiarization(t, f)

	_, err := d.StopLive()
	require.ErrorIs(t, err, models.ErrInvalidTransition)

	st, err := d.StartLive()
	require.NoError(t, err)
	assert.True(t, st.Live)
	assert.False(t, st.Processing)

	done := waitTask(t, r, models.KindDiarize)
	require.Equal(t, models.TaskSucceeded, done.Status)

	st = d.State()
	assert.False(t, st.Live)
	require.Len(t, st.Segments, 7)
	assert.Equal(t, "spk_known_1", st.Segments[0].SpeakerID)

	known, err := f.speakers.Get("spk_known_1")
	require.NoError(t, err)
	assert.True(t, known.IsKnown)
	assert.Equal(t, "李经理", known.Name)

	visitor, err := f.speakers.Get("spk_new_3")
	require.NoError(t, err)
	assert.False(t, visitor.IsKnown)

	// 已确认的身份只降级，不受片段引用限制
	res, err := d.RemoveSpeaker("spk_known_1")
	require.NoError(t, err)
	assert.False(t, res.Purged)
	assert.False(t, res.Speaker.IsKnown)
}

func TestDiarizationStopLive(t *testing.T) {
	f := newFixture(t)
	d, _ := newTestDiarization(t, f)

	_, err := d.StartLive()
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(d.State().Segments) >= 2
	}, time.Second, time.Millisecond)

	_, err = d.ClearSegments()
	require.ErrorIs(t, err, models.ErrInvalidTransition)

	st, err := d.StopLive()
	require.NoError(t, err)
	assert.False(t, st.Live)
	assert.Equal(t, models.TaskCancelled, st.Task.Status)

	// 停止后不再追加片段
	n := len(st.Segments)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, d.State().Segments, n)

	// 新会话归档上一个会话
	_, err = d.AnalyzeFile([]byte("audio"), "audio/wav")
	require.NoError(t, err)
	history := d.State().History
	require.Len(t, history, 1)
	assert.Equal(t, tagLive, history[0].Tag)
}

func TestDiarizationClearSpeakers(t *testing.T) {
	f := newFixture(t)
	d, r := newTestDiarization(t, f)

	_, err := f.speakers.Register(models.SpeakerIdentity{ID: "cloned_1", Name: "小王", IsKnown: true, Source: models.SpeakerCloned})
	require.NoError(t, err)

	_, err = d.AnalyzeFile([]byte("audio"), "audio/wav")
	require.NoError(t, err)
	waitTask(t, r, models.KindDiarize)

	results, err := d.ClearSpeakers()
	require.NoError(t, err)
	assert.Len(t, results, 3)

	st := d.State()
	assert.Empty(t, st.Segments)
	require.Len(t, st.History, 1)
	assert.Contains(t, st.History[0].Text, "Speaker A: ")

	// 已确认的身份降级保留，检测出的未知身份被删除
	require.Len(t, st.Speakers, 1)
	assert.Equal(t, "cloned_1", st.Speakers[0].ID)
	assert.False(t, st.Speakers[0].IsKnown)
	_, err = f.speakers.Get("spk_speaker_a")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDiarizationClearSpeakersWhileLive(t *testing.T) {
	f := newFixture(t)
	d, _ := newTestDiarization(t, f)

	_, err := d.StartLive()
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return len(d.State().Segments) >= 1
	}, time.Second, time.Millisecond)

	_, err = d.ClearSpeakers()
	require.ErrorIs(t, err, models.ErrInvalidTransition)

	st := d.State()
	for _, seg := range st.Segments {
		_, err := f.speakers.Get(seg.SpeakerID)
		assert.NoError(t, err, seg.SpeakerID)
	}
}

// 实时分离过程中并发删除身份，片段引用的身份必须始终存在
func TestDiarizationRemoveSpeakerDuringLive(t *testing.T) {
	ids := []string{"spk_known_1", "spk_known_2", "spk_new_3"}

	for round := 0; round < 20; round++ {
		f := newFixture(t)
		d, r := newTestDiarization(t, f)

		_, err := d.StartLive()
		require.NoError(t, err)

		stop := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				for _, id := range ids {
					d.RemoveSpeaker(id)
				}
			}
		}()

		done := waitTask(t, r, models.KindDiarize)
		close(stop)
		wg.Wait()
		require.Equal(t, models.TaskSucceeded, done.Status)

		st := d.State()
		require.Len(t, st.Segments, 7)
		for _, seg := range st.Segments {
			_, err := f.speakers.Get(seg.SpeakerID)
			require.NoError(t, err, "round %d: %s", round, seg.SpeakerID)
		}
	}
}
