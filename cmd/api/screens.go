package main

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/z-wentao/voicestudio/pkg/inference"
	"github.com/z-wentao/voicestudio/pkg/models"
	"github.com/z-wentao/voicestudio/pkg/screens"
	"github.com/z-wentao/voicestudio/pkg/subtitle"
)

// validAudioFormats 可以上传的音频格式
var validAudioFormats = map[string]string{
	".mp3":  "audio/mpeg",
	".mp4":  "audio/mp4",
	".mpeg": "audio/mpeg",
	".mpga": "audio/mpeg",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".webm": "audio/webm",
	".flac": "audio/flac",
	".aac":  "audio/aac",
}

// readUpload 读取表单里的音频文件，返回内容和 MIME 类型
func (app *App) readUpload(c *gin.Context) ([]byte, string, string, error) {
	file, err := c.FormFile("audio")
	if err != nil {
		return nil, "", "", models.Invalidf("请上传文件")
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	mime, ok := validAudioFormats[ext]
	if !ok {
		return nil, "", "", models.Invalidf("不支持的文件格式 %s，支持: .mp3, .wav, .m4a, .mp4, .flac, .aac", ext)
	}
	if file.Size > app.config.Server.MaxUploadSize {
		return nil, "", "", models.Invalidf("文件太大，最大 %.0f MB", float64(app.config.Server.MaxUploadSize)/1024/1024)
	}

	f, err := file.Open()
	if err != nil {
		return nil, "", "", fmt.Errorf("打开上传文件失败: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", "", fmt.Errorf("读取上传文件失败: %w", err)
	}
	logrus.Infof("✓ 收到上传文件: %s (%.2f MB)", file.Filename, float64(file.Size)/1024/1024)
	return data, mime, file.Filename, nil
}

func respondOK(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

// ---------- 语音识别 ----------

func (app *App) handleASRState(c *gin.Context) {
	c.JSON(http.StatusOK, app.studio.ASR.State())
}

func (app *App) handleASRStart(c *gin.Context) {
	st, err := app.studio.ASR.StartRecording()
	respond(c, st, err)
}

func (app *App) handleASRStop(c *gin.Context) {
	st, err := app.studio.ASR.StopRecording(c.Request.Context())
	respond(c, st, err)
}

func (app *App) handleASRUpload(c *gin.Context) {
	data, mime, _, err := app.readUpload(c)
	if err != nil {
		respondError(c, err)
		return
	}
	t, err := app.studio.ASR.UploadFile(data, mime)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, t)
}

func (app *App) handleASRClear(c *gin.Context) {
	st, err := app.studio.ASR.Clear()
	respond(c, st, err)
}

func (app *App) handleASRClearHistory(c *gin.Context) {
	if err := app.studio.ASR.ClearHistory(); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c)
}

func (app *App) handleASRDeleteHistory(c *gin.Context) {
	if err := app.studio.ASR.DeleteHistory(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c)
}

// ---------- 语音合成 ----------

func (app *App) handleTTSState(c *gin.Context) {
	c.JSON(http.StatusOK, app.studio.TTS.State())
}

func (app *App) handleTTSSetText(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if !bindJSON(c, &req) {
		return
	}
	c.JSON(http.StatusOK, app.studio.TTS.SetText(req.Text))
}

func (app *App) handleTTSGenerate(c *gin.Context) {
	var req struct {
		Text   *string               `json:"text"`
		Params inference.VoiceParams `json:"params"`
	}
	if !bindJSON(c, &req) {
		return
	}
	if req.Text != nil {
		app.studio.TTS.SetText(*req.Text)
	}
	t, err := app.studio.TTS.Generate(req.Params)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, t)
}

func (app *App) handleTTSPlayHistory(c *gin.Context) {
	snap, err := app.studio.TTS.PlayHistory(c.Request.Context(), c.Param("id"))
	respond(c, snap, err)
}

func (app *App) handleTTSClearHistory(c *gin.Context) {
	if err := app.studio.TTS.ClearHistory(); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c)
}

func (app *App) handleTTSDeleteHistory(c *gin.Context) {
	if err := app.studio.TTS.DeleteHistory(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c)
}

// ---------- 声音克隆 ----------

func (app *App) handleCloneState(c *gin.Context) {
	c.JSON(http.StatusOK, app.studio.Cloning.State())
}

func (app *App) handleCloneCreate(c *gin.Context) {
	var req screens.CloneRequest
	if !bindJSON(c, &req) {
		return
	}
	t, err := app.studio.Cloning.Create(req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, t)
}

func (app *App) handleCloneRecordStart(c *gin.Context) {
	c.JSON(http.StatusOK, app.studio.Cloning.StartRecording())
}

func (app *App) handleCloneRecordStop(c *gin.Context) {
	var req struct {
		Duration float64 `json:"duration"`
	}
	if !bindJSON(c, &req) {
		return
	}
	st, err := app.studio.Cloning.StopRecording(req.Duration)
	respond(c, st, err)
}

// handleCloneSample 上传样本，采样率由表单字段 sample_rate 给出
func (app *App) handleCloneSample(c *gin.Context) {
	data, _, name, err := app.readUpload(c)
	if err != nil {
		respondError(c, err)
		return
	}

	rate := 0
	if v := c.PostForm("sample_rate"); v != "" {
		if rate, err = strconv.Atoi(v); err != nil {
			respondError(c, models.Invalidf("采样率格式错误: %s", v))
			return
		}
	}
	duration, _ := strconv.ParseFloat(c.PostForm("duration"), 64)

	st, err := app.studio.Cloning.SetSample(inference.CloneSample{
		Filename:   name,
		SampleRate: rate,
		Duration:   duration,
		Size:       int64(len(data)),
	})
	respond(c, st, err)
}

func (app *App) handleCloneClearSample(c *gin.Context) {
	c.JSON(http.StatusOK, app.studio.Cloning.ClearSample())
}

func (app *App) handleCloneDismiss(c *gin.Context) {
	c.JSON(http.StatusOK, app.studio.Cloning.DismissNotice())
}

// ---------- 声纹分离 ----------

func (app *App) handleDiarizationState(c *gin.Context) {
	c.JSON(http.StatusOK, app.studio.Diarization.State())
}

func (app *App) handleDiarizationAnalyze(c *gin.Context) {
	data, mime, _, err := app.readUpload(c)
	if err != nil {
		respondError(c, err)
		return
	}
	t, err := app.studio.Diarization.AnalyzeFile(data, mime)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, t)
}

func (app *App) handleDiarizationLiveStart(c *gin.Context) {
	st, err := app.studio.Diarization.StartLive()
	respond(c, st, err)
}

func (app *App) handleDiarizationLiveStop(c *gin.Context) {
	st, err := app.studio.Diarization.StopLive()
	respond(c, st, err)
}

func (app *App) handleDiarizationClear(c *gin.Context) {
	st, err := app.studio.Diarization.ClearSegments()
	respond(c, st, err)
}

// handleDiarizationExport 下载字幕文件，format 为 srt 或 vtt
func (app *App) handleDiarizationExport(c *gin.Context) {
	format := subtitle.Format(strings.ToLower(c.DefaultQuery("format", string(subtitle.FormatSRT))))

	var buf strings.Builder
	if err := app.studio.Diarization.Export(&buf, format); err != nil {
		respondError(c, err)
		return
	}

	filename := fmt.Sprintf("voiceprint_%s.%s", time.Now().Format("20060102_150405"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, format.ContentType(), []byte(buf.String()))
}

func (app *App) handleDiarizationClearHistory(c *gin.Context) {
	if err := app.studio.Diarization.ClearHistory(); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c)
}

func (app *App) handleDiarizationDeleteHistory(c *gin.Context) {
	if err := app.studio.Diarization.DeleteHistory(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c)
}
