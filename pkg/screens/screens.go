// Package screens 各功能页面的服务端控制器
//
// 每个页面持有自己的任务执行器和草稿状态，共享对象（注册表、选中状态、播放器、历史记录）由构造函数注入。
// 锁顺序：opMu（页面操作串行） -> 执行器内部锁 -> mu（页面状态）。
// 执行器回调只拿 mu，因此任何持有 mu 的代码都不能调用执行器。
package screens

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/z-wentao/voicestudio/pkg/events"
	"github.com/z-wentao/voicestudio/pkg/history"
	"github.com/z-wentao/voicestudio/pkg/models"
	"github.com/z-wentao/voicestudio/pkg/task"
)

// HistoryEvent history.changed 事件的内容
type HistoryEvent struct {
	Scope   string                `json:"scope"`
	Entries []models.HistoryEntry `json:"entries"`
}

// prepare 在 Reject 策略下启动前调用：运行中返回 ErrAlreadyRunning，上一个已结束的任务先清除
func prepare(r *task.Runner, kind models.TaskKind) error {
	t := r.Get(kind)
	if t.Status == models.TaskRunning {
		return fmt.Errorf("%w: %s/%s", models.ErrAlreadyRunning, r.Scope(), kind)
	}
	if t.Status.Terminal() {
		if _, err := r.Reset(kind); err != nil {
			return err
		}
	}
	return nil
}

func listHistory(log history.Log) []models.HistoryEntry {
	entries, err := log.List()
	if err != nil {
		logrus.Warnf("⚠️ 读取历史记录失败: %v", err)
		return []models.HistoryEntry{}
	}
	return entries
}

func appendHistory(bus events.Emitter, scope string, log history.Log, entry models.HistoryEntry) (models.HistoryEntry, error) {
	saved, err := log.Append(entry)
	if err != nil {
		return saved, fmt.Errorf("写入历史记录失败: %w", err)
	}
	bus.Emit(events.HistoryChanged, HistoryEvent{Scope: scope, Entries: listHistory(log)})
	return saved, nil
}

func removeHistory(bus events.Emitter, scope string, log history.Log, id string) error {
	if err := log.Remove(id); err != nil {
		return fmt.Errorf("删除历史记录失败: %w", err)
	}
	bus.Emit(events.HistoryChanged, HistoryEvent{Scope: scope, Entries: listHistory(log)})
	return nil
}

func clearHistory(bus events.Emitter, scope string, log history.Log) error {
	if err := log.Clear(); err != nil {
		return fmt.Errorf("清空历史记录失败: %w", err)
	}
	bus.Emit(events.HistoryChanged, HistoryEvent{Scope: scope, Entries: []models.HistoryEntry{}})
	return nil
}

func orDiscard(bus events.Emitter) events.Emitter {
	if bus == nil {
		return events.Discard
	}
	return bus
}
