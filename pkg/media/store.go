package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/z-wentao/voicestudio/pkg/models"
)

// Store 合成音频的本地文件存储，文件通过 baseURL 对外提供
type Store struct {
	dir     string
	baseURL string
}

// NewStore 创建存储目录
func NewStore(dir, baseURL string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建媒体目录失败: %w", err)
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Store{dir: dir, baseURL: baseURL}, nil
}

// Dir 存储目录
func (s *Store) Dir() string { return s.dir }

// Save 写入一个音频文件，文件名为 uuid
func (s *Store) Save(ctx context.Context, r io.Reader, ext string) (models.AudioRef, error) {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "mp3"
	}
	name := fmt.Sprintf("%s.%s", uuid.New().String(), ext)
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return models.AudioRef{}, fmt.Errorf("创建文件失败: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, &ctxReader{ctx: ctx, r: r}); err != nil {
		os.Remove(path)
		return models.AudioRef{}, fmt.Errorf("写入音频失败: %w", err)
	}

	logrus.Debugf("✓ 音频已保存: %s", path)
	return models.AudioRef{URL: s.baseURL + name, Path: path}, nil
}

// Sweep 删除超过 maxAge 的文件，返回删除数量
func (s *Store) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("读取媒体目录失败: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
				logrus.Warnf("⚠️ 删除过期音频失败: %v", err)
				continue
			}
			removed++
		}
	}
	return removed, nil
}

// ctxReader 写文件过程中响应取消
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
