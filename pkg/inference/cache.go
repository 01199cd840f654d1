package inference

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/z-wentao/voicestudio/pkg/metrics"
	"github.com/z-wentao/voicestudio/pkg/models"
)

// CachedService 缓存合成结果：相同文本和参数直接复用上一次的音频
// 其余方法原样转发
type CachedService struct {
	Service
	cache   *gocache.Cache
	metrics *metrics.Metrics
}

// NewCachedService ttl 为缓存有效期
func NewCachedService(inner Service, ttl time.Duration, m *metrics.Metrics) *CachedService {
	return &CachedService{
		Service: inner,
		cache:   gocache.New(ttl, 2*ttl),
		metrics: m,
	}
}

func synthesisKey(text string, p VoiceParams) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%.2f|%.2f|%.2f|%s|%s",
		p.VoiceID, p.Gender, p.Speed, p.Pitch, p.Volume, p.Emotion, text)))
	return hex.EncodeToString(sum[:])
}

func (c *CachedService) Synthesize(ctx context.Context, text string, params VoiceParams) (models.AudioRef, error) {
	key := synthesisKey(text, params)
	if v, ok := c.cache.Get(key); ok {
		c.metrics.RecordCacheHit("synthesis")
		return v.(models.AudioRef), nil
	}
	c.metrics.RecordCacheMiss("synthesis")

	ref, err := c.Service.Synthesize(ctx, text, params)
	if err != nil {
		return models.AudioRef{}, err
	}
	c.cache.SetDefault(key, ref)
	return ref, nil
}

// Flush 清空缓存（例如音频文件被清理后）
func (c *CachedService) Flush() {
	c.cache.Flush()
}
