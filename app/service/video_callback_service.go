package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/xeocast/xeocast-admin-workers-sub001/app/logger"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/model"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/repository"

	"go.uber.org/zap"
)

const (
	CallbackStatusCompleted = "completed"
	CallbackStatusError     = "error"
)

var (
	ErrInvalidCallback  = errors.New("invalid callback")
	ErrUnexpectedStatus = errors.New("unexpected callback status")
	ErrTaskNotFound     = errors.New("external task not found")
	ErrPodcastNotFound  = errors.New("podcast not found")
)

// CallbackRequest 视频生成服务的回调内容
type CallbackRequest struct {
	TaskID         string `json:"taskId"`
	Status         string `json:"status"`
	VideoBucketKey string `json:"video_bucket_key"`
	Error          string `json:"error"`
}

// CallbackResult 回调处理结果
type CallbackResult struct {
	PodcastID       uint
	PodcastStatus   model.PodcastStatus
	AlreadyFinished bool // 关联记录已是终态或播客已处于目标状态，本次回调未修改播客
	Ignored         bool // 播客已不在 generating，回调只关闭关联记录
}

// VideoCallbackService 处理视频生成回调，推进或回退播客状态
type VideoCallbackService struct {
	podcasts PodcastStore
	tasks    ExternalTaskStore
	log      *logger.Logger
}

func NewVideoCallbackService(podcasts PodcastStore, tasks ExternalTaskStore, log *logger.Logger) *VideoCallbackService {
	return &VideoCallbackService{podcasts: podcasts, tasks: tasks, log: log}
}

// HandleCallback 处理一次回调
// 返回的错误：ErrInvalidCallback、ErrUnexpectedStatus 对应 400，
// ErrTaskNotFound、ErrPodcastNotFound 对应 404，其余为数据库错误
func (s *VideoCallbackService) HandleCallback(ctx context.Context, req CallbackRequest) (CallbackResult, error) {
	if req.TaskID == "" || req.Status == "" {
		return CallbackResult{}, fmt.Errorf("%w: 缺少 taskId 或 status", ErrInvalidCallback)
	}

	task, err := s.tasks.FindByExternalID(ctx, req.TaskID)
	if errors.Is(err, repository.ErrNotFound) {
		return CallbackResult{}, ErrTaskNotFound
	}
	if err != nil {
		return CallbackResult{}, fmt.Errorf("查询外部任务失败: %w", err)
	}

	podcastID, err := videoPodcastID(task)
	if err != nil {
		return CallbackResult{}, fmt.Errorf("%w: %v", ErrTaskNotFound, err)
	}

	var (
		target model.PodcastStatus
		fields map[string]interface{}
		final  model.ExternalTaskStatus
	)
	switch req.Status {
	case CallbackStatusCompleted:
		if req.VideoBucketKey == "" {
			return CallbackResult{}, fmt.Errorf("%w: 缺少 video_bucket_key", ErrInvalidCallback)
		}
		target = model.PodcastStatusGenerated
		fields = map[string]interface{}{"video_bucket_key": req.VideoBucketKey}
		final = model.ExternalTaskStatusCompleted
	case CallbackStatusError:
		target = model.PodcastStatusAudioGenerated
		final = model.ExternalTaskStatusError
	default:
		return CallbackResult{}, fmt.Errorf("%w: %q", ErrUnexpectedStatus, req.Status)
	}

	logFields := []zap.Field{
		zap.String("task_id", req.TaskID),
		zap.Uint("podcast_id", podcastID),
		zap.String("status", req.Status),
	}

	if task.Status.IsTerminal() {
		s.log.Info("外部任务已处理，忽略重复回调", append(logFields, zap.String("task_status", string(task.Status)))...)
		return CallbackResult{PodcastID: podcastID, AlreadyFinished: true}, nil
	}

	n, err := s.podcasts.TransitionStatus(ctx, podcastID, model.PodcastStatusGenerating, target, fields)
	if err != nil {
		return CallbackResult{}, fmt.Errorf("更新播客状态失败: %w", err)
	}
	if n == 0 {
		return s.resolveNoUpdate(ctx, req, podcastID, target, final, logFields)
	}

	s.finishTask(ctx, req, final, logFields)

	if req.Status == CallbackStatusError {
		s.log.Warn("视频生成失败，播客回退到 audioGenerated 等待重试", append(logFields, zap.String("error", req.Error))...)
	} else {
		s.log.Info("视频生成完成", append(logFields, zap.String("video_bucket_key", req.VideoBucketKey))...)
	}

	return CallbackResult{PodcastID: podcastID, PodcastStatus: target}, nil
}

// resolveNoUpdate 条件更新未命中：播客不存在返回 ErrPodcastNotFound；
// 播客已处于目标状态视为重复投递；其余情况播客已被人工改动，不再修改播客
func (s *VideoCallbackService) resolveNoUpdate(ctx context.Context, req CallbackRequest, podcastID uint,
	target model.PodcastStatus, final model.ExternalTaskStatus, logFields []zap.Field) (CallbackResult, error) {
	p, err := s.podcasts.Get(ctx, podcastID)
	if errors.Is(err, repository.ErrNotFound) {
		return CallbackResult{}, ErrPodcastNotFound
	}
	if err != nil {
		return CallbackResult{}, fmt.Errorf("查询播客失败: %w", err)
	}

	s.finishTask(ctx, req, final, logFields)

	if p.Status == target {
		s.log.Info("播客已处于目标状态，按重复回调处理", logFields...)
		return CallbackResult{PodcastID: podcastID, PodcastStatus: p.Status, AlreadyFinished: true}, nil
	}

	s.log.Warn("播客已不在 generating，忽略回调", append(logFields, zap.String("podcast_status", string(p.Status)))...)
	return CallbackResult{PodcastID: podcastID, PodcastStatus: p.Status, Ignored: true}, nil
}

// finishTask 关闭关联记录，失败只记录日志
func (s *VideoCallbackService) finishTask(ctx context.Context, req CallbackRequest, final model.ExternalTaskStatus, logFields []zap.Field) {
	if _, err := s.tasks.Finish(ctx, req.TaskID, final, req.Error); err != nil {
		s.log.Error("更新外部任务状态失败", append(logFields, zap.Error(err))...)
	}
}

func videoPodcastID(task *model.ExternalServiceTask) (uint, error) {
	payload, err := task.Payload()
	if err != nil {
		return 0, err
	}
	v, ok := payload.(model.VideoGenerationPayload)
	if !ok {
		return 0, fmt.Errorf("%w: 任务类型 %s", model.ErrUnknownTaskType, task.Type)
	}
	return v.PodcastID, nil
}
