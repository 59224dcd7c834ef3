package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/xeocast/xeocast-admin-workers-sub001/app/logger"

	"github.com/robfig/cron/v3"
)

// Dispatcher 由定时任务驱动的调度器
type Dispatcher interface {
	TriggerVideoGeneration(ctx context.Context) DispatchResult
}

// cronLogger 将 cron 的日志转到 zap
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}

// Scheduler 定时触发视频生成调度
// 每次 Start 创建新的 context，Stop 后可以再次 Start
type Scheduler struct {
	cron    *cron.Cron
	log     *logger.Logger
	mu      sync.Mutex
	running bool

	ctxMu  sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler 按 cron 表达式注册调度任务，上一次未结束时跳过本次
func NewScheduler(spec string, dispatcher Dispatcher, log *logger.Logger) (*Scheduler, error) {
	adapter := cronLogger{log: log}
	c := cron.New(
		cron.WithLogger(adapter),
		cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
	)

	s := &Scheduler{cron: c, log: log}

	if _, err := c.AddFunc(spec, func() {
		result := dispatcher.TriggerVideoGeneration(s.runContext())
		log.Debugf("视频生成调度结束: %s", result.Outcome)
	}); err != nil {
		return nil, fmt.Errorf("无效的调度表达式 %q: %w", spec, err)
	}

	return s, nil
}

// Start 启动定时任务
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true

	s.ctxMu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.ctxMu.Unlock()

	s.cron.Start()
	s.log.Info("视频生成调度器已启动")
}

// Stop 停止定时任务并等待正在执行的调度结束
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false

	s.ctxMu.Lock()
	s.cancel()
	s.ctxMu.Unlock()

	<-s.cron.Stop().Done()
	s.log.Info("视频生成调度器已停止")
}

func (s *Scheduler) runContext() context.Context {
	s.ctxMu.Lock()
	defer s.ctxMu.Unlock()
	return s.ctx
}
