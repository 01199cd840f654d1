package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/z-wentao/voicestudio/pkg/models"
	"github.com/z-wentao/voicestudio/pkg/player"
)

// setupRouter 设置路由
func (app *App) setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), app.studio.Metrics.GinMiddleware())
	r.MaxMultipartMemory = app.config.Server.MaxUploadSize

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(app.studio.Registry, promhttp.HandlerOpts{})))
	// 媒体地址指向外部 CDN 时不挂载本地目录
	if base := app.config.Server.MediaBaseURL; strings.HasPrefix(base, "/") {
		r.Static(strings.TrimSuffix(base, "/"), app.config.Server.MediaDir)
	}

	api := r.Group("/api")
	{
		api.GET("/ping", app.handlePing)
		api.GET("/events", app.handleEvents)
		api.GET("/digital-human", app.handleDigitalHuman)

		api.GET("/voices", app.handleListVoices)
		api.POST("/voices", app.handleAddVoice)
		api.GET("/voices/:id", app.handleGetVoice)
		api.PATCH("/voices/:id", app.handleUpdateVoice)
		api.DELETE("/voices/:id", app.handleDeleteVoice)
		api.POST("/voices/:id/favorite", app.handleToggleFavorite)

		api.GET("/library", app.handleListVoices)
		api.POST("/library/:id/preview", app.handlePreviewVoice)
		api.POST("/library/:id/use", app.handleUseVoice)
		api.PUT("/library/:id/name", app.handleRenameVoice)
		api.PUT("/library/:id/tags", app.handleRetagVoice)
		api.POST("/library/:id/favorite", app.handleToggleFavorite)
		api.DELETE("/library/:id", app.handleDeleteVoice)

		api.GET("/speakers", app.handleListSpeakers)
		api.DELETE("/speakers", app.handleClearSpeakers)
		api.PATCH("/speakers/:id", app.handleRenameSpeaker)
		api.DELETE("/speakers/:id", app.handleRemoveSpeaker)

		api.GET("/selection", app.handleGetSelection)
		api.PUT("/selection", app.handleSetSelection)
		api.GET("/navigation", app.handleGetNavigation)
		api.PUT("/navigation", app.handleNavigate)

		api.GET("/player", app.handlePlayerState)
		api.POST("/player/play", app.handlePlay)
		api.POST("/player/toggle", app.handleToggle)
		api.POST("/player/pause", app.handlePause)
		api.POST("/player/resume", app.handleResume)
		api.POST("/player/seek", app.handleSeek)
		api.POST("/player/close", app.handleClosePlayer)

		asr := api.Group("/asr")
		asr.GET("", app.handleASRState)
		asr.POST("/record/start", app.handleASRStart)
		asr.POST("/record/stop", app.handleASRStop)
		asr.POST("/upload", app.handleASRUpload)
		asr.POST("/clear", app.handleASRClear)
		asr.DELETE("/history", app.handleASRClearHistory)
		asr.DELETE("/history/:id", app.handleASRDeleteHistory)

		tts := api.Group("/tts")
		tts.GET("", app.handleTTSState)
		tts.PUT("/text", app.handleTTSSetText)
		tts.POST("/generate", app.handleTTSGenerate)
		tts.POST("/history/:id/play", app.handleTTSPlayHistory)
		tts.DELETE("/history", app.handleTTSClearHistory)
		tts.DELETE("/history/:id", app.handleTTSDeleteHistory)

		clone := api.Group("/clone")
		clone.GET("", app.handleCloneState)
		clone.POST("", app.handleCloneCreate)
		clone.POST("/record/start", app.handleCloneRecordStart)
		clone.POST("/record/stop", app.handleCloneRecordStop)
		clone.POST("/sample", app.handleCloneSample)
		clone.DELETE("/sample", app.handleCloneClearSample)
		clone.DELETE("/notice", app.handleCloneDismiss)

		diar := api.Group("/diarization")
		diar.GET("", app.handleDiarizationState)
		diar.POST("/analyze", app.handleDiarizationAnalyze)
		diar.POST("/live/start", app.handleDiarizationLiveStart)
		diar.POST("/live/stop", app.handleDiarizationLiveStop)
		diar.DELETE("/segments", app.handleDiarizationClear)
		diar.GET("/export", app.handleDiarizationExport)
		diar.DELETE("/history", app.handleDiarizationClearHistory)
		diar.DELETE("/history/:id", app.handleDiarizationDeleteHistory)

		api.GET("/prompts", app.handleSearchPrompts)
		api.POST("/prompts", app.handleCreatePrompt)
		api.GET("/prompts/meta", app.handlePromptMeta)
		api.GET("/prompts/:id", app.handleGetPrompt)
		api.POST("/prompts/:id/favorite", app.handleFavoritePrompt)
	}

	return r
}

// statusFor 错误类型对应的 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrDuplicateID),
		errors.Is(err, models.ErrAlreadyRunning),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, player.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

// respond 统一的返回：有错误按类型映射状态码，否则 200
func respond(c *gin.Context, data any, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}

// handlePing 健康检查
func (app *App) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
		"version": "1.0.0",
	})
}

func (app *App) handleDigitalHuman(c *gin.Context) {
	c.JSON(http.StatusOK, app.studio.DigitalHuman())
}
