package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/z-wentao/voicestudio/pkg/media"
	"github.com/z-wentao/voicestudio/pkg/models"
)

func fastMock() *Mock {
	cfg := DefaultMockConfig()
	cfg.TranscribeDelay = 0
	cfg.SynthesizeDelay = 0
	cfg.DiarizeDelay = 0
	cfg.CloneDelay = 0
	cfg.LiveInterval = 5 * time.Millisecond
	return NewMock(cfg)
}

func TestVoiceParams_Normalize(t *testing.T) {
	p := VoiceParams{VoiceID: "v1"}
	require.NoError(t, p.Normalize())
	assert.Equal(t, 1.0, p.Speed)
	assert.Equal(t, 1.0, p.Volume)
	assert.Equal(t, "natural", p.Emotion)

	bad := VoiceParams{Speed: 3}
	assert.ErrorIs(t, bad.Normalize(), models.ErrInvalidInput)

	bad = VoiceParams{Emotion: "bored"}
	assert.ErrorIs(t, bad.Normalize(), models.ErrInvalidInput)
}

func TestMock_Basics(t *testing.T) {
	m := fastMock()
	ctx := context.Background()

	text, err := m.Transcribe(ctx, []byte("RIFF"), "audio/wav")
	require.NoError(t, err)
	assert.NotEmpty(t, text)

	_, err = m.Transcribe(ctx, nil, "audio/wav")
	assert.ErrorIs(t, err, models.ErrSimulatedFailure)

	ref, err := m.Synthesize(ctx, "你好", VoiceParams{})
	require.NoError(t, err)
	assert.Equal(t, DemoAudioURL, ref.URL)

	utts, err := m.Diarize(ctx, []byte("RIFF"), "audio/wav")
	require.NoError(t, err)
	assert.Len(t, utts, len(analysisScript))
}

func TestMock_CloneLowSampleRateFails(t *testing.T) {
	m := fastMock()

	_, err := m.Clone(context.Background(), CloneSample{SampleRate: 8000})
	require.ErrorIs(t, err, models.ErrSimulatedFailure)
	assert.Equal(t, CloneFailureMessage, err.Error())

	ref, err := m.Clone(context.Background(), CloneSample{SampleRate: 44100})
	require.NoError(t, err)
	assert.NotEmpty(t, ref.URL)
}

func TestMock_CancelReleasesTimer(t *testing.T) {
	cfg := DefaultMockConfig()
	cfg.SynthesizeDelay = time.Hour
	m := NewMock(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.Synthesize(ctx, "你好", VoiceParams{})
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("取消后任务没有返回")
	}
}

func TestMock_DiarizeLive(t *testing.T) {
	m := fastMock()
	m.float = func() float64 { return 0.5 }

	var got []Utterance
	err := m.DiarizeLive(context.Background(), func(u Utterance) { got = append(got, u) })
	require.NoError(t, err)
	require.Len(t, got, len(liveScript))

	assert.Equal(t, "spk_known_1", got[0].Speaker)
	assert.Equal(t, "李经理", got[0].SpeakerName)
	assert.True(t, got[0].Known)
	assert.Equal(t, "未知访客", got[2].SpeakerName)
	assert.False(t, got[2].Known)
	assert.Equal(t, 8.0, got[2].Start)
	assert.Equal(t, 12.0, got[2].End)
	assert.InDelta(t, 0.99, got[0].Confidence, 1e-9)
}

func TestMock_DiarizeLiveCancel(t *testing.T) {
	cfg := DefaultMockConfig()
	cfg.LiveInterval = time.Hour
	m := NewMock(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.DiarizeLive(ctx, func(Utterance) { t.Fatal("取消后不应再输出") })
	assert.ErrorIs(t, err, context.Canceled)
}

type countingService struct {
	*Mock
	calls atomic.Int32
}

func (c *countingService) Synthesize(ctx context.Context, text string, p VoiceParams) (models.AudioRef, error) {
	c.calls.Add(1)
	return c.Mock.Synthesize(ctx, text, p)
}

func TestCachedService(t *testing.T) {
	inner := &countingService{Mock: fastMock()}
	svc := NewCachedService(inner, time.Minute, nil)
	ctx := context.Background()

	p := VoiceParams{VoiceID: "v1", Speed: 1, Volume: 1, Emotion: "natural"}
	_, err := svc.Synthesize(ctx, "你好", p)
	require.NoError(t, err)
	_, err = svc.Synthesize(ctx, "你好", p)
	require.NoError(t, err)
	assert.Equal(t, int32(1), inner.calls.Load())

	p.Speed = 1.5
	_, err = svc.Synthesize(ctx, "你好", p)
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())

	// 失败不缓存
	_, err = svc.Synthesize(ctx, " ", p)
	assert.Error(t, err)
	_, err = svc.Synthesize(ctx, " ", p)
	assert.Error(t, err)
	assert.Equal(t, int32(4), inner.calls.Load())

	svc.Flush()
	_, err = svc.Synthesize(ctx, "你好", p)
	require.NoError(t, err)
	assert.Equal(t, int32(5), inner.calls.Load())
}

func newFakeOpenAI(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/audio/transcriptions"):
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"task":     "transcribe",
				"language": "chinese",
				"duration": 5.0,
				"text":     "你好 今天开会",
				"segments": []map[string]any{
					{"id": 0, "start": 0.0, "end": 2.0, "text": " 你好"},
					{"id": 1, "start": 2.0, "end": 5.0, "text": " 今天开会"},
				},
			})
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"id":      "chatcmpl-1",
				"object":  "chat.completion",
				"created": 1,
				"model":   "gpt-4o-mini",
				"choices": []map[string]any{{
					"index":         0,
					"finish_reason": "stop",
					"message": map[string]any{
						"role":    "assistant",
						"content": `{"speakers":[{"index":0,"speaker":"Speaker A"},{"index":1,"speaker":"Speaker B"}]}`,
					},
				}},
			})
		case strings.HasSuffix(r.URL.Path, "/audio/speech"):
			w.Header().Set("Content-Type", "audio/mpeg")
			w.Write([]byte("ID3fake-mp3"))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestOpenAIService(t *testing.T) {
	server := newFakeOpenAI(t)
	defer server.Close()

	store, err := media.NewStore(t.TempDir(), "/media/")
	require.NoError(t, err)
	svc := NewOpenAIService("test-key", server.URL+"/v1", store, fastMock())
	ctx := context.Background()

	text, err := svc.Transcribe(ctx, []byte("RIFF"), "audio/wav")
	require.NoError(t, err)
	assert.Equal(t, "你好 今天开会", text)

	utts, err := svc.Diarize(ctx, []byte("RIFF"), "audio/wav")
	require.NoError(t, err)
	require.Len(t, utts, 2)
	assert.Equal(t, "Speaker A", utts[0].Speaker)
	assert.Equal(t, "Speaker B", utts[1].Speaker)
	assert.Equal(t, "今天开会", utts[1].Text)
	assert.Equal(t, 5.0, utts[1].End)

	ref, err := svc.Synthesize(ctx, "你好", VoiceParams{Speed: 1, Gender: models.GenderFemale})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref.URL, "/media/"))
	assert.FileExists(t, ref.Path)

	_, err = svc.Clone(ctx, CloneSample{SampleRate: 8000})
	assert.ErrorIs(t, err, models.ErrSimulatedFailure)
}

func TestParseSpeakerLabels_MissingIndex(t *testing.T) {
	segs := []Utterance{{Text: "a"}, {Text: "b"}}
	out, err := parseSpeakerLabels(`{"speakers":[{"index":1,"speaker":"Speaker C"}]}`, segs)
	require.NoError(t, err)
	assert.Equal(t, "Speaker A", out[0].Speaker)
	assert.Equal(t, "Speaker C", out[1].Speaker)

	_, err = parseSpeakerLabels("not json", segs)
	assert.Error(t, err)
}

func TestAudioFilename(t *testing.T) {
	assert.Equal(t, "audio.mp3", audioFilename("audio/mpeg"))
	assert.Equal(t, "audio.webm", audioFilename("audio/webm;codecs=opus"))
	assert.Equal(t, "audio.wav", audioFilename(""))
}
