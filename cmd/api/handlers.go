package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/z-wentao/voicestudio/pkg/models"
	"github.com/z-wentao/voicestudio/pkg/player"
	"github.com/z-wentao/voicestudio/pkg/prompts"
	"github.com/z-wentao/voicestudio/pkg/registry"
)

// bindJSON 解析请求体，失败时返回 400
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		respondError(c, models.Invalidf("请求体格式错误: %v", err))
		return false
	}
	return true
}

// ---------- 声音 ----------

func (app *App) handleListVoices(c *gin.Context) {
	var filter registry.VoiceFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respondError(c, models.Invalidf("查询参数错误: %v", err))
		return
	}
	voices, err := app.studio.Library.List(filter)
	respond(c, gin.H{"voices": voices, "count": len(voices)}, err)
}

func (app *App) handleAddVoice(c *gin.Context) {
	var v models.Voice
	if !bindJSON(c, &v) {
		return
	}
	if v.ID == "" {
		v.ID = "custom_" + uuid.New().String()
	}
	if v.Source == "" {
		v.Source = models.SourceCustom
	}
	added, err := app.studio.Voices.Add(v)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, added)
}

func (app *App) handleGetVoice(c *gin.Context) {
	v, err := app.studio.Voices.Get(c.Param("id"))
	respond(c, v, err)
}

func (app *App) handleUpdateVoice(c *gin.Context) {
	var patch models.VoicePatch
	if !bindJSON(c, &patch) {
		return
	}
	v, err := app.studio.Voices.Update(c.Param("id"), patch)
	respond(c, v, err)
}

func (app *App) handleDeleteVoice(c *gin.Context) {
	v, err := app.studio.DeleteVoice(c.Param("id"))
	respond(c, v, err)
}

func (app *App) handleToggleFavorite(c *gin.Context) {
	v, err := app.studio.Library.ToggleFavorite(c.Param("id"))
	respond(c, v, err)
}

func (app *App) handlePreviewVoice(c *gin.Context) {
	snap, err := app.studio.Library.Preview(c.Request.Context(), c.Param("id"))
	respond(c, snap, err)
}

func (app *App) handleUseVoice(c *gin.Context) {
	st, err := app.studio.Library.Use(c.Param("id"))
	respond(c, st, err)
}

func (app *App) handleRenameVoice(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if !bindJSON(c, &req) {
		return
	}
	v, err := app.studio.Library.Rename(c.Param("id"), req.Name)
	respond(c, v, err)
}

func (app *App) handleRetagVoice(c *gin.Context) {
	var req struct {
		Tags string `json:"tags"`
	}
	if !bindJSON(c, &req) {
		return
	}
	v, err := app.studio.Library.Retag(c.Param("id"), req.Tags)
	respond(c, v, err)
}

// ---------- 声纹身份 ----------

func (app *App) handleListSpeakers(c *gin.Context) {
	speakers, err := app.studio.Speakers.List()
	respond(c, gin.H{"speakers": speakers, "count": len(speakers)}, err)
}

func (app *App) handleClearSpeakers(c *gin.Context) {
	results, err := app.studio.Diarization.ClearSpeakers()
	respond(c, gin.H{"results": results, "count": len(results)}, err)
}

func (app *App) handleRenameSpeaker(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if !bindJSON(c, &req) {
		return
	}
	s, err := app.studio.Diarization.RenameSpeaker(c.Param("id"), req.Name)
	respond(c, s, err)
}

func (app *App) handleRemoveSpeaker(c *gin.Context) {
	res, err := app.studio.Diarization.RemoveSpeaker(c.Param("id"))
	respond(c, res, err)
}

// ---------- 选中状态 / 导航 ----------

func (app *App) handleGetSelection(c *gin.Context) {
	st, err := app.studio.Selection.State()
	respond(c, st, err)
}

func (app *App) handleSetSelection(c *gin.Context) {
	var req struct {
		VoiceID string `json:"voice_id"`
	}
	if !bindJSON(c, &req) {
		return
	}
	if _, err := app.studio.Selection.SetSelectedVoice(req.VoiceID); err != nil {
		respondError(c, err)
		return
	}
	st, err := app.studio.Selection.State()
	respond(c, st, err)
}

func (app *App) handleGetNavigation(c *gin.Context) {
	c.JSON(http.StatusOK, app.studio.Selection.Navigation())
}

func (app *App) handleNavigate(c *gin.Context) {
	var req struct {
		Module models.Module `json:"module"`
		Page   models.Page   `json:"page"`
	}
	if !bindJSON(c, &req) {
		return
	}

	sel := app.studio.Selection
	switch {
	case req.Module != "" && req.Page != "":
		nav, err := sel.Navigate(req.Module, req.Page)
		respond(c, nav, err)
	case req.Module != "":
		nav, err := sel.SetModule(req.Module)
		respond(c, nav, err)
	case req.Page != "":
		nav, err := sel.SetPage(req.Page)
		respond(c, nav, err)
	default:
		respondError(c, models.Invalidf("module 和 page 不能同时为空"))
	}
}

// ---------- 播放器 ----------

type playRequest struct {
	Item    player.Item `json:"item"`
	Restart bool        `json:"restart"`
}

func (app *App) handlePlayerState(c *gin.Context) {
	c.JSON(http.StatusOK, app.studio.Player.Snapshot())
}

func (app *App) handlePlay(c *gin.Context) {
	var req playRequest
	if !bindJSON(c, &req) {
		return
	}
	var opts []player.PlayOption
	if req.Restart {
		opts = append(opts, player.WithRestart())
	}
	snap, err := app.studio.Player.Play(c.Request.Context(), req.Item, opts...)
	respond(c, snap, err)
}

func (app *App) handleToggle(c *gin.Context) {
	var req playRequest
	if !bindJSON(c, &req) {
		return
	}
	snap, err := app.studio.Player.Toggle(c.Request.Context(), req.Item)
	respond(c, snap, err)
}

func (app *App) handlePause(c *gin.Context) {
	snap, err := app.studio.Player.Pause()
	respond(c, snap, err)
}

func (app *App) handleResume(c *gin.Context) {
	snap, err := app.studio.Player.Resume()
	respond(c, snap, err)
}

func (app *App) handleSeek(c *gin.Context) {
	var req struct {
		Position float64 `json:"position"`
	}
	if !bindJSON(c, &req) {
		return
	}
	snap, err := app.studio.Player.Seek(req.Position)
	respond(c, snap, err)
}

func (app *App) handleClosePlayer(c *gin.Context) {
	c.JSON(http.StatusOK, app.studio.Player.Close())
}

// ---------- 提示词库 ----------

func (app *App) handleSearchPrompts(c *gin.Context) {
	var q prompts.Query
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, models.Invalidf("查询参数错误: %v", err))
		return
	}
	found, err := app.studio.Prompts.Search(q)
	respond(c, gin.H{"prompts": found, "count": len(found)}, err)
}

func (app *App) handleCreatePrompt(c *gin.Context) {
	var p prompts.Prompt
	if !bindJSON(c, &p) {
		return
	}
	created, err := app.studio.Prompts.Create(p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (app *App) handleGetPrompt(c *gin.Context) {
	p, err := app.studio.Prompts.Get(c.Param("id"))
	respond(c, p, err)
}

func (app *App) handleFavoritePrompt(c *gin.Context) {
	p, err := app.studio.Prompts.ToggleFavorite(c.Param("id"))
	respond(c, p, err)
}

func (app *App) handlePromptMeta(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"categories": prompts.Categories,
		"models":     prompts.Models,
		"tags":       prompts.ThemeTags,
	})
}
