package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/z-wentao/voicestudio/pkg/events"
	"github.com/z-wentao/voicestudio/pkg/metrics"
	"github.com/z-wentao/voicestudio/pkg/models"
)

// Policy 同类任务正在运行时的处理方式
type Policy int

const (
	// Reject 拒绝新任务（重复提交）
	Reject Policy = iota
	// Supersede 取消旧任务后启动新任务（重新录音、重新提交）
	Supersede
)

func (p Policy) String() string {
	if p == Supersede {
		return "supersede"
	}
	return "reject"
}

// TimeoutMessage 任务超时时的错误信息
const TimeoutMessage = "任务超时"

// Func 任务主体，必须响应 ctx 取消；report 用于汇报进度
type Func func(ctx context.Context, report func(any)) (any, error)

// Hooks 任务回调
// 回调在 Runner 的投递锁内执行：同一个 Runner 的回调串行，且 Cancel/Start 返回后旧任务的回调不会再执行
// 回调里不能再调用同一个 Runner 的 Start/Cancel/Reset/Close
type Hooks struct {
	OnProgress func(t models.Task, progress any)
	OnDone     func(t models.Task)
}

type slot struct {
	task   models.Task
	gen    uint64
	cancel context.CancelFunc
	// 当前这一代任务结束（包括回调执行完）时关闭
	done chan struct{}
}

// Runner 一个页面范围内的任务执行器，每种任务同时最多一个在运行
type Runner struct {
	scope   string
	timeout time.Duration
	bus     events.Emitter
	metrics *metrics.Metrics
	now     func() time.Time

	// 投递锁：完成回调和 Start/Cancel/Reset/Close 互斥，保证取消后没有迟到的回调
	deliverMu sync.Mutex

	mu     sync.Mutex
	slots  map[models.TaskKind]*slot
	closed bool
}

// Option Runner 配置项
type Option func(*Runner)

// WithTimeout 单个任务的超时时间，0 表示不限制
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// WithEmitter 任务状态变化时发出事件
func WithEmitter(e events.Emitter) Option {
	return func(r *Runner) {
		if e != nil {
			r.bus = e
		}
	}
}

// WithMetrics 记录任务指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner 创建执行器，scope 一般是页面名（asr、tts ...）
func NewRunner(scope string, opts ...Option) *Runner {
	r := &Runner{
		scope: scope,
		bus:   events.Discard,
		now:   time.Now,
		slots: make(map[models.TaskKind]*slot),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Scope 执行器范围
func (r *Runner) Scope() string { return r.scope }

// Start 启动任务
// Reject：已有运行中的任务返回 ErrAlreadyRunning；上一个任务已结束但未 Reset 返回 ErrInvalidTransition
// Supersede：取消运行中的旧任务（旧任务变为 cancelled），然后启动新任务
func (r *Runner) Start(kind models.TaskKind, policy Policy, fn Func, hooks Hooks) (models.Task, error) {
	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return models.Task{}, fmt.Errorf("%w: 执行器已关闭", models.ErrInvalidTransition)
	}

	s := r.slotLocked(kind)
	var superseded *models.Task
	switch {
	case s.task.Status == models.TaskRunning && policy == Reject:
		current := s.task
		r.mu.Unlock()
		return current, fmt.Errorf("%w: %s/%s", models.ErrAlreadyRunning, r.scope, kind)

	case s.task.Status == models.TaskRunning:
		old := r.cancelLocked(s)
		superseded = &old

	case s.task.Status.Terminal() && policy == Reject:
		current := s.task
		r.mu.Unlock()
		return current, fmt.Errorf("%w: 上一个 %s 任务尚未清除", models.ErrInvalidTransition, kind)
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if r.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), r.timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	s.gen++
	gen := s.gen
	s.cancel = cancel
	s.done = make(chan struct{})
	s.task = models.Task{
		ID:        uuid.New().String(),
		Scope:     r.scope,
		Kind:      kind,
		Status:    models.TaskRunning,
		StartedAt: r.now(),
	}
	started := s.task
	done := s.done
	r.mu.Unlock()

	if superseded != nil {
		r.finished(*superseded)
		logrus.WithFields(logrus.Fields{"scope": r.scope, "kind": kind}).Info("旧任务已被新任务取代")
	}
	logrus.WithFields(logrus.Fields{"scope": r.scope, "kind": kind, "task_id": started.ID}).
		Infof("📝 开始任务 (%s)", policy)
	r.bus.Emit(events.TaskChanged, started)

	go r.run(ctx, cancel, s, gen, done, fn, hooks)
	return started, nil
}

func (r *Runner) run(ctx context.Context, cancel context.CancelFunc, s *slot, gen uint64, done chan struct{}, fn Func, hooks Hooks) {
	defer cancel()

	report := func(progress any) {
		r.deliverMu.Lock()
		defer r.deliverMu.Unlock()

		r.mu.Lock()
		stale := s.gen != gen || s.task.Status != models.TaskRunning
		snapshot := s.task
		r.mu.Unlock()

		if stale || hooks.OnProgress == nil {
			return
		}
		hooks.OnProgress(snapshot, progress)
	}

	result, err := r.call(ctx, fn, report)

	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()

	r.mu.Lock()
	if s.gen != gen || s.task.Status != models.TaskRunning {
		// 已被取消或取代，结果直接丢弃
		r.mu.Unlock()
		logrus.WithFields(logrus.Fields{"scope": r.scope, "kind": s.task.Kind}).Debug("丢弃过期的任务结果")
		return
	}

	s.task.FinishedAt = r.now()
	switch {
	case err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		s.task.Status = models.TaskFailed
		s.task.ErrorMessage = TimeoutMessage
	case err != nil:
		s.task.Status = models.TaskFailed
		s.task.ErrorMessage = err.Error()
	default:
		s.task.Status = models.TaskSucceeded
		s.task.Result = result
	}
	snapshot := s.task
	r.mu.Unlock()

	r.finished(snapshot)
	if hooks.OnDone != nil {
		hooks.OnDone(snapshot)
	}
	close(done)
}

// call 执行任务主体，panic 转为失败
func (r *Runner) call(ctx context.Context, fn Func, report func(any)) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			logrus.Errorf("❌ 任务 panic: %v", p)
			err = fmt.Errorf("任务异常: %v", p)
		}
	}()
	return fn(ctx, report)
}

// Cancel 取消运行中的任务，任务变为 cancelled
// 返回后该任务的任何回调都不会再执行
func (r *Runner) Cancel(kind models.TaskKind) (models.Task, error) {
	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()

	r.mu.Lock()
	s, ok := r.slots[kind]
	if !ok || s.task.Status != models.TaskRunning {
		current := r.snapshotLocked(kind)
		r.mu.Unlock()
		return current, fmt.Errorf("%w: 没有运行中的 %s 任务", models.ErrInvalidTransition, kind)
	}
	cancelled := r.cancelLocked(s)
	r.mu.Unlock()

	r.finished(cancelled)
	logrus.WithFields(logrus.Fields{"scope": r.scope, "kind": kind, "task_id": cancelled.ID}).Info("⚠️ 任务已取消")
	return cancelled, nil
}

// Reset 清除已结束的任务，回到 idle
func (r *Runner) Reset(kind models.TaskKind) (models.Task, error) {
	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()

	r.mu.Lock()
	s := r.slotLocked(kind)
	if s.task.Status == models.TaskRunning {
		current := s.task
		r.mu.Unlock()
		return current, fmt.Errorf("%w: %s 任务仍在运行", models.ErrInvalidTransition, kind)
	}
	s.task = models.Task{Scope: r.scope, Kind: kind, Status: models.TaskIdle}
	idle := s.task
	r.mu.Unlock()

	r.bus.Emit(events.TaskChanged, idle)
	return idle, nil
}

// Get 当前任务快照，从未启动过返回 idle
func (r *Runner) Get(kind models.TaskKind) models.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(kind)
}

// Wait 等待当前这一代任务结束（回调执行完），被取代时继续等新任务
func (r *Runner) Wait(ctx context.Context, kind models.TaskKind) (models.Task, error) {
	for {
		r.mu.Lock()
		s, ok := r.slots[kind]
		if !ok || s.done == nil {
			t := r.snapshotLocked(kind)
			r.mu.Unlock()
			return t, nil
		}
		done := s.done
		r.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return r.Get(kind), ctx.Err()
		}

		r.mu.Lock()
		same := s.done == done
		t := s.task
		r.mu.Unlock()
		if same {
			return t, nil
		}
	}
}

// Close 取消全部运行中的任务，之后不能再启动任务（页面销毁）
func (r *Runner) Close() {
	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true

	var cancelled []models.Task
	for _, s := range r.slots {
		if s.task.Status == models.TaskRunning {
			cancelled = append(cancelled, r.cancelLocked(s))
		}
	}
	r.mu.Unlock()

	for _, t := range cancelled {
		r.finished(t)
	}
	logrus.WithField("scope", r.scope).Debugf("执行器已关闭，取消 %d 个任务", len(cancelled))
}

// 调用方持有 r.mu
func (r *Runner) slotLocked(kind models.TaskKind) *slot {
	s, ok := r.slots[kind]
	if !ok {
		s = &slot{task: models.Task{Scope: r.scope, Kind: kind, Status: models.TaskIdle}}
		r.slots[kind] = s
	}
	return s
}

// 调用方持有 r.mu
func (r *Runner) snapshotLocked(kind models.TaskKind) models.Task {
	if s, ok := r.slots[kind]; ok {
		return s.task
	}
	return models.Task{Scope: r.scope, Kind: kind, Status: models.TaskIdle}
}

// cancelLocked 把运行中的任务标记为 cancelled 并释放 context，调用方持有 r.mu
func (r *Runner) cancelLocked(s *slot) models.Task {
	s.task.Status = models.TaskCancelled
	s.task.FinishedAt = r.now()
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		close(s.done)
	}
	return s.task
}

func (r *Runner) finished(t models.Task) {
	r.metrics.RecordTask(r.scope, string(t.Kind), string(t.Status), t.FinishedAt.Sub(t.StartedAt))
	r.bus.Emit(events.TaskChanged, t)

	if t.Status == models.TaskFailed {
		logrus.WithFields(logrus.Fields{"scope": r.scope, "kind": t.Kind, "task_id": t.ID}).
			Warnf("❌ 任务失败: %s", t.ErrorMessage)
	}
	if t.Status == models.TaskSucceeded {
		logrus.WithFields(logrus.Fields{"scope": r.scope, "kind": t.Kind, "task_id": t.ID}).
			Infof("🎉 任务完成，耗时 %.2f 秒", t.FinishedAt.Sub(t.StartedAt).Seconds())
	}
}
