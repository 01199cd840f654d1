package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/z-wentao/voicestudio/pkg/models"
	"github.com/z-wentao/voicestudio/pkg/registry"
	"github.com/z-wentao/voicestudio/pkg/selection"
)

// Client VoiceStudio 服务客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 创建客户端
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ListVoicesResponse 声音列表响应
type ListVoicesResponse struct {
	Voices []models.Voice `json:"voices"`
	Count  int            `json:"count"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error string `json:"error"`
}

// APIError 服务端返回的非 2xx 响应
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API 错误 (%d): %s", e.StatusCode, e.Message)
}

// ListVoices 按条件获取声音列表
func (c *Client) ListVoices(ctx context.Context, filter registry.VoiceFilter) ([]models.Voice, error) {
	q := url.Values{}
	if filter.Tab != registry.TabAll {
		q.Set("tab", string(filter.Tab))
	}
	if filter.Gender != "" {
		q.Set("gender", string(filter.Gender))
	}
	if filter.Category != "" {
		q.Set("category", string(filter.Category))
	}
	if filter.Query != "" {
		q.Set("q", filter.Query)
	}
	if filter.FavoritesOnly {
		q.Set("favorites", "true")
	}

	path := "/api/voices"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var result ListVoicesResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Voices, nil
}

// GetSelection 获取当前选中的声音和导航
func (c *Client) GetSelection(ctx context.Context) (selection.State, error) {
	var st selection.State
	err := c.do(ctx, http.MethodGet, "/api/selection", nil, &st)
	return st, err
}

// UseVoice 选中声音并跳转到语音合成
func (c *Client) UseVoice(ctx context.Context, id string) (selection.State, error) {
	var st selection.State
	err := c.do(ctx, http.MethodPost, "/api/library/"+url.PathEscape(id)+"/use", nil, &st)
	return st, err
}

// DeleteVoice 删除自定义声音
func (c *Client) DeleteVoice(ctx context.Context, id string) (models.Voice, error) {
	var v models.Voice
	err := c.do(ctx, http.MethodDelete, "/api/voices/"+url.PathEscape(id), nil, &v)
	return v, err
}

func (c *Client) do(ctx context.Context, method, path string, reqBody, out any) error {
	var body io.Reader
	if reqBody != nil {
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("序列化请求失败: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应失败: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	return nil
}
