package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/z-wentao/voicestudio/pkg/config"
	"github.com/z-wentao/voicestudio/pkg/events"
	"github.com/z-wentao/voicestudio/pkg/models"
	"github.com/z-wentao/voicestudio/pkg/player"
	"github.com/z-wentao/voicestudio/pkg/screens"
	"github.com/z-wentao/voicestudio/pkg/studio"
)

type instantLoader struct{}

func (instantLoader) Load(ctx context.Context, url string) (player.Media, error) {
	return player.Media{Duration: 4}, nil
}

func newTestApp(t *testing.T) (*App, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Server.MediaDir = t.TempDir()
	cfg.Inference.TranscribeDelay = 5 * time.Millisecond
	cfg.Inference.SynthesizeDelay = 5 * time.Millisecond
	cfg.Inference.DiarizeDelay = 5 * time.Millisecond
	cfg.Inference.CloneDelay = 5 * time.Millisecond
	cfg.Inference.LiveInterval = 2 * time.Millisecond

	s, err := studio.New(cfg, studio.Deps{Loader: instantLoader{}})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	app := &App{config: cfg, studio: s}
	return app, app.setupRouter()
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doUpload(t *testing.T, r http.Handler, path, filename string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("audio", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte("fake audio content"))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("包装: %w", models.ErrNotFound), http.StatusNotFound},
		{models.ErrDuplicateID, http.StatusConflict},
		{models.ErrAlreadyRunning, http.StatusConflict},
		{models.ErrInvalidTransition, http.StatusConflict},
		{player.ErrSuperseded, http.StatusConflict},
		{models.Invalidf("bad"), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestPingAndDigitalHuman(t *testing.T) {
	_, r := newTestApp(t)

	w := doJSON(t, r, http.MethodGet, "/api/ping", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/digital-human", nil)
	require.Equal(t, http.StatusOK, w.Code)
	dh := decode[studio.DigitalHuman](t, w)
	assert.True(t, dh.AllowFullscreen)
	assert.Equal(t, studio.DigitalHumanPermissions, dh.Allow)
}

func TestVoiceEndpoints(t *testing.T) {
	_, r := newTestApp(t)

	w := doJSON(t, r, http.MethodGet, "/api/voices?tab=preset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Voices []models.Voice `json:"voices"`
		Count  int            `json:"count"`
	}](t, w)
	assert.Equal(t, 8, list.Count)

	w = doJSON(t, r, http.MethodPost, "/api/voices", models.Voice{Name: "接口声音"})
	require.Equal(t, http.StatusCreated, w.Code)
	added := decode[models.Voice](t, w)
	assert.True(t, added.IsCustom)

	w = doJSON(t, r, http.MethodPost, "/api/voices", models.Voice{ID: added.ID, Name: "重复"})
	assert.Equal(t, http.StatusConflict, w.Code)

	name := "改名"
	w = doJSON(t, r, http.MethodPatch, "/api/voices/"+added.ID, models.VoicePatch{Name: &name})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "改名", decode[models.Voice](t, w).Name)

	w = doJSON(t, r, http.MethodPut, "/api/library/"+added.ID+"/tags", map[string]string{"tags": "a, b"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"a", "b"}, decode[models.Voice](t, w).Tags)

	w = doJSON(t, r, http.MethodDelete, "/api/voices/preset_xiaoxiao", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, r, http.MethodDelete, "/api/voices/"+added.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/voices/"+added.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "error")
}

func TestSelectionAndNavigation(t *testing.T) {
	_, r := newTestApp(t)

	w := doJSON(t, r, http.MethodPost, "/api/library/preset_yunxi/use", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/selection", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"preset_yunxi"`)
	assert.Contains(t, body, `"TTS"`)

	w = doJSON(t, r, http.MethodPut, "/api/selection", map[string]string{"voice_id": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodPut, "/api/navigation", map[string]string{"module": "PROMPT_LIBRARY"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "PROMPT_DISCOVER")

	w = doJSON(t, r, http.MethodPut, "/api/navigation", map[string]string{"page": "TTS"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPut, "/api/navigation", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPlayerEndpoints(t *testing.T) {
	_, r := newTestApp(t)

	w := doJSON(t, r, http.MethodPost, "/api/library/preset_xiaoxiao/preview", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, player.StatePlaying, decode[player.Snapshot](t, w).State)

	w = doJSON(t, r, http.MethodPost, "/api/player/pause", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, player.StatePaused, decode[player.Snapshot](t, w).State)

	w = doJSON(t, r, http.MethodPost, "/api/player/seek", map[string]float64{"position": 2})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2.0, decode[player.Snapshot](t, w).Position)

	w = doJSON(t, r, http.MethodPost, "/api/player/close", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, player.StateIdle, decode[player.Snapshot](t, w).State)
}

func TestASRUploadFlow(t *testing.T) {
	_, r := newTestApp(t)

	w := doUpload(t, r, "/api/asr/upload", "notes.txt", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doUpload(t, r, "/api/asr/upload", "meeting.wav", nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		st := decode[screens.ASRState](t, doJSON(t, r, http.MethodGet, "/api/asr", nil))
		return len(st.History) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTTSGenerateFlow(t *testing.T) {
	_, r := newTestApp(t)

	w := doJSON(t, r, http.MethodPost, "/api/tts/generate", map[string]any{"text": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/tts/generate", map[string]any{"text": "你好"})
	require.Equal(t, http.StatusAccepted, w.Code)

	var st screens.TTSState
	require.Eventually(t, func() bool {
		st = decode[screens.TTSState](t, doJSON(t, r, http.MethodGet, "/api/tts", nil))
		return len(st.History) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "preset_xiaoxiao", st.History[0].VoiceID)

	w = doJSON(t, r, http.MethodDelete, "/api/tts/history/"+st.History[0].ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCloneFlow(t *testing.T) {
	_, r := newTestApp(t)

	w := doUpload(t, r, "/api/clone/sample", "me.wav", map[string]string{"sample_rate": "48000"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/clone", screens.CloneRequest{Name: "接口克隆"})
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		st := decode[screens.CloningState](t, doJSON(t, r, http.MethodGet, "/api/clone", nil))
		return len(st.Voices) == 1
	}, 2*time.Second, 10*time.Millisecond)

	w = doJSON(t, r, http.MethodGet, "/api/speakers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "接口克隆")
}

func TestDiarizationExportEndpoint(t *testing.T) {
	_, r := newTestApp(t)

	w := doJSON(t, r, http.MethodGet, "/api/diarization/export?format=srt", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doUpload(t, r, "/api/diarization/analyze", "call.mp3", nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		st := decode[screens.DiarizationState](t, doJSON(t, r, http.MethodGet, "/api/diarization", nil))
		return len(st.Segments) == 4
	}, 2*time.Second, 10*time.Millisecond)

	w = doJSON(t, r, http.MethodGet, "/api/diarization/export?format=vtt", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "WEBVTT"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".vtt")

	w = doJSON(t, r, http.MethodDelete, "/api/speakers/spk_speaker_a", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// 清空身份列表时当前会话一并归档，不留下悬空的片段
	w = doJSON(t, r, http.MethodDelete, "/api/speakers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[screens.DiarizationState](t, doJSON(t, r, http.MethodGet, "/api/diarization", nil))
	assert.Empty(t, st.Segments)
	assert.Empty(t, st.Speakers)
	assert.Len(t, st.History, 1)
}

func TestPromptEndpoints(t *testing.T) {
	_, r := newTestApp(t)

	w := doJSON(t, r, http.MethodGet, "/api/prompts?q=python", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "p_python_script")

	w = doJSON(t, r, http.MethodGet, "/api/prompts?logic=XOR", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/prompts/meta", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "categories")

	w = doJSON(t, r, http.MethodPost, "/api/prompts/p_python_script/favorite", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/prompts?view=favorites", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	w = doJSON(t, r, http.MethodGet, "/api/prompts/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEventsWebSocket(t *testing.T) {
	app, r := newTestApp(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// 订阅在升级之后才建立，持续触发事件直到收到
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				app.studio.Selection.SetSelectedVoice("preset_yunxi")
			}
		}
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var e events.Event
		require.NoError(t, conn.ReadJSON(&e))
		if e.Type == events.SelectionChanged {
			return
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, r := newTestApp(t)

	doJSON(t, r, http.MethodGet, "/api/ping", nil)
	w := doJSON(t, r, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "voicestudio_")
}
