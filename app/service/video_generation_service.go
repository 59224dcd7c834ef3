package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xeocast/xeocast-admin-workers-sub001/app/logger"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/metrics"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/model"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/repository"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/utils/videogen"

	"go.uber.org/zap"
)

// PodcastStore 视频生成流程需要的播客数据操作
type PodcastStore interface {
	FirstByStatus(ctx context.Context, status model.PodcastStatus) (*model.Podcast, error)
	FindEligibleForVideo(ctx context.Context, offset, limit int) ([]model.Podcast, error)
	FindGeneratingSince(ctx context.Context, before time.Time) ([]model.Podcast, error)
	MarkGenerating(ctx context.Context, id uint) (int64, error)
	TransitionStatus(ctx context.Context, id uint, from, to model.PodcastStatus, fields map[string]interface{}) (int64, error)
	Get(ctx context.Context, id uint) (*model.Podcast, error)
}

// ExternalTaskStore 外部任务关联记录的数据操作
type ExternalTaskStore interface {
	Create(ctx context.Context, task *model.ExternalServiceTask) error
	FindByExternalID(ctx context.Context, externalTaskID string) (*model.ExternalServiceTask, error)
	Finish(ctx context.Context, externalTaskID string, status model.ExternalTaskStatus, errMsg string) (int64, error)
}

// CategoryStore 分类默认背景查询
type CategoryStore interface {
	DefaultBackgroundKey(ctx context.Context, id uint) (string, error)
}

// VideoGenerator 外部视频生成服务
type VideoGenerator interface {
	Health(ctx context.Context) error
	GenerateVideo(ctx context.Context, req videogen.GenerateVideoRequest) (string, error)
}

// DispatchOutcome 单次调度的结果
type DispatchOutcome string

const (
	DispatchSkippedInFlight DispatchOutcome = "skipped_in_flight"
	DispatchNoWork          DispatchOutcome = "no_work"
	DispatchUnresolvable    DispatchOutcome = "skipped_unresolvable"
	DispatchUnhealthy       DispatchOutcome = "unhealthy"
	DispatchFailed          DispatchOutcome = "dispatch_failed"
	DispatchTransitionLost  DispatchOutcome = "transition_lost"
	DispatchStoreError      DispatchOutcome = "store_error"
	DispatchDispatched      DispatchOutcome = "dispatched"
)

// DispatchResult 调度结果，仅用于日志、指标和测试
type DispatchResult struct {
	Outcome   DispatchOutcome `json:"outcome"`
	PodcastID uint            `json:"podcast_id,omitempty"`
	TaskID    string          `json:"task_id,omitempty"`
	Skipped   []uint          `json:"skipped,omitempty"` // 因背景无法解析而跳过的候选
}

var errNoBackground = errors.New("no background image")

// VideoGenerationService 单飞视频生成调度器
// 以 generating 状态作为互斥标记：任一播客处于 generating 时不会发起新的生成
type VideoGenerationService struct {
	podcasts       PodcastStore
	tasks          ExternalTaskStore
	categories     CategoryStore
	generator      VideoGenerator
	log            *logger.Logger
	callbackURL    string
	candidateLimit int
	staleAfter     time.Duration
	now            func() time.Time
}

type VideoGenerationOptions struct {
	CallbackURL    string
	CandidateLimit int
	StaleAfter     time.Duration
}

func NewVideoGenerationService(podcasts PodcastStore, tasks ExternalTaskStore, categories CategoryStore,
	generator VideoGenerator, log *logger.Logger, opts VideoGenerationOptions) *VideoGenerationService {
	if opts.CandidateLimit <= 0 {
		opts.CandidateLimit = 10
	}
	return &VideoGenerationService{
		podcasts:       podcasts,
		tasks:          tasks,
		categories:     categories,
		generator:      generator,
		log:            log,
		callbackURL:    opts.CallbackURL,
		candidateLimit: opts.CandidateLimit,
		staleAfter:     opts.StaleAfter,
		now:            time.Now,
	}
}

// TriggerVideoGeneration 执行一次调度，从不向调用方返回错误
func (s *VideoGenerationService) TriggerVideoGeneration(ctx context.Context) DispatchResult {
	result := s.trigger(ctx)
	metrics.VideoDispatchTotal.WithLabelValues(string(result.Outcome)).Inc()
	return result
}

func (s *VideoGenerationService) trigger(ctx context.Context) DispatchResult {
	inFlight, err := s.podcasts.FirstByStatus(ctx, model.PodcastStatusGenerating)
	if err == nil {
		metrics.VideoGeneratingInFlight.Set(1)
		s.log.Debug("已有播客在生成视频，跳过本次调度", zap.Uint("podcast_id", inFlight.ID))
		s.warnStale(ctx)
		return DispatchResult{Outcome: DispatchSkippedInFlight, PodcastID: inFlight.ID}
	}
	if !errors.Is(err, repository.ErrNotFound) {
		s.log.Error("查询生成中的播客失败", zap.Error(err))
		return DispatchResult{Outcome: DispatchStoreError}
	}
	metrics.VideoGeneratingInFlight.Set(0)

	selected, background, skipped, err := s.selectCandidate(ctx)
	if err != nil {
		s.log.Error("选择待生成视频的播客失败", zap.Error(err))
		return DispatchResult{Outcome: DispatchStoreError, Skipped: skipped}
	}
	if selected == nil {
		if len(skipped) > 0 {
			s.log.Warn("所有待生成视频的播客背景图都无法解析", zap.Uints("skipped", skipped))
			return DispatchResult{Outcome: DispatchUnresolvable, Skipped: skipped}
		}
		s.log.Debug("没有可生成视频的播客")
		return DispatchResult{Outcome: DispatchNoWork}
	}

	fields := []zap.Field{zap.Uint("podcast_id", selected.ID)}

	if err := s.generator.Health(ctx); err != nil {
		s.log.Warn("视频生成服务不可用，等待下次调度", append(fields, zap.Error(err))...)
		return DispatchResult{Outcome: DispatchUnhealthy, PodcastID: selected.ID, Skipped: skipped}
	}

	taskID, err := s.generator.GenerateVideo(ctx, videogen.GenerateVideoRequest{
		CallbackURL:        s.callbackURL,
		AudioFileKey:       selected.SourceAudioKey,
		BackgroundImageKey: background,
	})
	if err != nil {
		s.log.Error("提交视频生成任务失败", append(fields, zap.Error(err))...)
		return DispatchResult{Outcome: DispatchFailed, PodcastID: selected.ID, Skipped: skipped}
	}
	fields = append(fields, zap.String("task_id", taskID))

	s.recordTask(ctx, taskID, selected.ID, fields)

	n, err := s.podcasts.MarkGenerating(ctx, selected.ID)
	if err != nil {
		s.log.Error("更新播客状态为 generating 失败", append(fields, zap.Error(err))...)
		return DispatchResult{Outcome: DispatchStoreError, PodcastID: selected.ID, TaskID: taskID, Skipped: skipped}
	}
	if n == 0 {
		// 期间状态已被修改或已有其他播客进入 generating
		s.log.Warn("播客状态已变化，放弃本次生成", fields...)
		if _, err := s.tasks.Finish(ctx, taskID, model.ExternalTaskStatusError, "dispatch superseded"); err != nil {
			s.log.Error("关闭外部任务记录失败", append(fields, zap.Error(err))...)
		}
		return DispatchResult{Outcome: DispatchTransitionLost, PodcastID: selected.ID, TaskID: taskID, Skipped: skipped}
	}

	metrics.VideoGeneratingInFlight.Set(1)
	s.log.Info("已提交视频生成任务", fields...)
	return DispatchResult{Outcome: DispatchDispatched, PodcastID: selected.ID, TaskID: taskID, Skipped: skipped}
}

// selectCandidate 按优先级分页遍历候选，返回第一个能解析出背景图的播客
// 背景无法解析的候选跳过，不影响排在后面的播客
func (s *VideoGenerationService) selectCandidate(ctx context.Context) (*model.Podcast, string, []uint, error) {
	var skipped []uint
	for offset := 0; ; offset += s.candidateLimit {
		candidates, err := s.podcasts.FindEligibleForVideo(ctx, offset, s.candidateLimit)
		if err != nil {
			return nil, "", skipped, fmt.Errorf("查询候选播客失败: %w", err)
		}

		for i := range candidates {
			p := &candidates[i]
			bg, err := s.resolveBackground(ctx, p)
			if err == nil {
				return p, bg, skipped, nil
			}
			if !errors.Is(err, repository.ErrNotFound) && !errors.Is(err, errNoBackground) {
				return nil, "", skipped, fmt.Errorf("查询播客 %d 的分类默认背景失败: %w", p.ID, err)
			}
			s.log.Warn("播客背景图无法解析，跳过",
				zap.Uint("podcast_id", p.ID), zap.Uint("category_id", p.CategoryID), zap.Error(err))
			metrics.VideoCandidateSkips.Inc()
			skipped = append(skipped, p.ID)
		}

		if len(candidates) < s.candidateLimit {
			return nil, "", skipped, nil
		}
	}
}

func (s *VideoGenerationService) resolveBackground(ctx context.Context, p *model.Podcast) (string, error) {
	if p.SourceBackgroundKey != "" {
		return p.SourceBackgroundKey, nil
	}
	def, err := s.categories.DefaultBackgroundKey(ctx, p.CategoryID)
	if err != nil {
		return "", err
	}
	if def == "" {
		return "", errNoBackground
	}
	return p.ResolveBackgroundKey(def), nil
}

// recordTask 写入关联记录，失败只记录日志
func (s *VideoGenerationService) recordTask(ctx context.Context, taskID string, podcastID uint, fields []zap.Field) {
	task, err := model.NewExternalServiceTask(taskID, model.VideoGenerationPayload{PodcastID: podcastID})
	if err == nil {
		err = s.tasks.Create(ctx, task)
	}
	if err != nil {
		s.log.Error("保存外部任务记录失败，回调将无法关联", append(fields, zap.Error(err))...)
	}
}

// warnStale 对长时间停留在 generating 的播客发出警告，不修改状态
func (s *VideoGenerationService) warnStale(ctx context.Context) {
	if s.staleAfter <= 0 {
		return
	}
	stale, err := s.podcasts.FindGeneratingSince(ctx, s.now().Add(-s.staleAfter))
	if err != nil {
		s.log.Error("查询超时的生成任务失败", zap.Error(err))
		return
	}
	for _, p := range stale {
		s.log.Warn("播客生成视频超时，需要人工处理",
			zap.Uint("podcast_id", p.ID), zap.Timep("since", p.LastStatusChangeAt))
	}
}
