package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/z-wentao/voicestudio/pkg/models"
	"github.com/z-wentao/voicestudio/pkg/registry"
	"github.com/z-wentao/voicestudio/pkg/selection"
)

func TestListVoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/voices", r.URL.Path)
		assert.Equal(t, "custom", r.URL.Query().Get("tab"))
		assert.Equal(t, "晓", r.URL.Query().Get("q"))
		json.NewEncoder(w).Encode(ListVoicesResponse{
			Voices: []models.Voice{{ID: "custom_1", Name: "晓明"}},
			Count:  1,
		})
	}))
	defer srv.Close()

	voices, err := NewClient(srv.URL).ListVoices(context.Background(), registry.VoiceFilter{Tab: registry.TabCustom, Query: "晓"})
	require.NoError(t, err)
	require.Len(t, voices, 1)
	assert.Equal(t, "custom_1", voices[0].ID)
}

func TestUseVoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/library/preset_yunxi/use", r.URL.Path)
		st := selection.State{SelectedVoice: models.Voice{ID: "preset_yunxi"}}
		st.Module = models.ModuleAIVoice
		st.Page = models.PageTTS
		json.NewEncoder(w).Encode(st)
	}))
	defer srv.Close()

	st, err := NewClient(srv.URL).UseVoice(context.Background(), "preset_yunxi")
	require.NoError(t, err)
	assert.Equal(t, "preset_yunxi", st.SelectedVoice.ID)
	assert.Equal(t, models.PageTTS, st.Page)
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(ErrorResponse{Error: "预置声音不可删除"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).DeleteVoice(context.Background(), "preset_xiaoxiao")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "预置声音不可删除", apiErr.Message)
}

func TestNonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).GetSelection(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "bad gateway")
}
