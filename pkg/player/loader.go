package player

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"github.com/z-wentao/voicestudio/pkg/metrics"
)

// Media 加载后的媒体信息
type Media struct {
	Duration float64 `json:"duration"`
	Size     int64   `json:"size"`
}

// MediaLoader 准备媒体资源
type MediaLoader interface {
	Load(ctx context.Context, url string) (Media, error)
}

// HTTPLoader 用 HEAD 请求探测音频大小，按码率估算时长
// 本地媒体目录下的文件直接读取文件大小
type HTTPLoader struct {
	client          *http.Client
	bitrate         int
	defaultDuration float64
	localPrefix     string
	localDir        string
}

// NewHTTPLoader bitrate 单位 bit/s，探测不到大小时使用 defaultDuration
func NewHTTPLoader(bitrate int, defaultDuration time.Duration) *HTTPLoader {
	if bitrate <= 0 {
		bitrate = 128000
	}
	return &HTTPLoader{
		client:          &http.Client{Timeout: 10 * time.Second},
		bitrate:         bitrate,
		defaultDuration: defaultDuration.Seconds(),
	}
}

// WithLocalDir prefix 开头的 URL 映射到 dir 下的文件
func (l *HTTPLoader) WithLocalDir(prefix, dir string) *HTTPLoader {
	l.localPrefix = prefix
	l.localDir = dir
	return l
}

func (l *HTTPLoader) estimate(size int64) Media {
	if size <= 0 {
		return Media{Duration: l.defaultDuration}
	}
	return Media{Duration: float64(size*8) / float64(l.bitrate), Size: size}
}

func (l *HTTPLoader) Load(ctx context.Context, url string) (Media, error) {
	if l.localPrefix != "" && strings.HasPrefix(url, l.localPrefix) {
		name := filepath.Base(strings.TrimPrefix(url, l.localPrefix))
		info, err := os.Stat(filepath.Join(l.localDir, name))
		if err != nil {
			return Media{}, fmt.Errorf("本地音频不存在: %w", err)
		}
		return l.estimate(info.Size()), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return Media{}, fmt.Errorf("创建请求失败: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return Media{}, fmt.Errorf("请求音频失败: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Media{}, fmt.Errorf("音频不可用: HTTP %d", resp.StatusCode)
	}
	return l.estimate(resp.ContentLength), nil
}

// CachedLoader 用 LRU 缓存探测结果，失败不缓存
type CachedLoader struct {
	inner   MediaLoader
	cache   *lru.Cache[string, Media]
	metrics *metrics.Metrics
}

// NewCachedLoader size 为缓存条目数
func NewCachedLoader(inner MediaLoader, size int, m *metrics.Metrics) (*CachedLoader, error) {
	if size <= 0 {
		size = 256
	}
	cache, err := lru.New[string, Media](size)
	if err != nil {
		return nil, fmt.Errorf("创建缓存失败: %w", err)
	}
	return &CachedLoader{inner: inner, cache: cache, metrics: m}, nil
}

func (c *CachedLoader) Load(ctx context.Context, url string) (Media, error) {
	if media, ok := c.cache.Get(url); ok {
		c.metrics.RecordCacheHit("media_probe")
		return media, nil
	}
	c.metrics.RecordCacheMiss("media_probe")

	media, err := c.inner.Load(ctx, url)
	if err != nil {
		return Media{}, err
	}
	c.cache.Add(url, media)
	logrus.Debugf("音频探测完成: %s (%.1f 秒)", url, media.Duration)
	return media, nil
}
