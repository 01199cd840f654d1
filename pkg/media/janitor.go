package media

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Janitor 定时清理过期的合成音频
type Janitor struct {
	c      *cron.Cron
	store  *Store
	maxAge time.Duration
}

// NewJanitor spec 为 cron 表达式，例如 "@every 10m"
func NewJanitor(store *Store, spec string, maxAge time.Duration) (*Janitor, error) {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	j := &Janitor{c: c, store: store, maxAge: maxAge}

	if _, err := c.AddFunc(spec, j.run); err != nil {
		return nil, fmt.Errorf("注册清理任务失败: %w", err)
	}
	return j, nil
}

func (j *Janitor) run() {
	removed, err := j.store.Sweep(j.maxAge)
	if err != nil {
		logrus.Warnf("⚠️ 清理过期音频失败: %v", err)
		return
	}
	if removed > 0 {
		logrus.Infof("🧹 清理过期音频 %d 个", removed)
	}
}

func (j *Janitor) Start() { j.c.Start() }

// Stop 等待正在执行的清理结束
func (j *Janitor) Stop() {
	ctx := j.c.Stop()
	<-ctx.Done()
}
