package service

import (
	"context"
	"errors"
	"time"

	"github.com/xeocast/xeocast-admin-workers-sub001/app/model"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/repository"

	"github.com/patrickmn/go-cache"
)

const pipelineStatsKey = "pipeline_stats"

// StatsStore 流水线统计所需的查询
type StatsStore interface {
	CountByStatus(ctx context.Context) (map[model.PodcastStatus]int64, error)
	FirstByStatus(ctx context.Context, status model.PodcastStatus) (*model.Podcast, error)
}

// TaskStatsStore 外部任务统计
type TaskStatsStore interface {
	CountByStatus(ctx context.Context, taskType model.TaskType) (map[model.ExternalTaskStatus]int64, error)
}

// PipelineStats 流水线概况
type PipelineStats struct {
	Podcasts    map[model.PodcastStatus]int64      `json:"podcasts"`
	VideoTasks  map[model.ExternalTaskStatus]int64 `json:"video_tasks"`
	InFlight    *model.Podcast                     `json:"in_flight"`
	GeneratedAt time.Time                          `json:"generated_at"`
}

// PipelineStatsService 带缓存的流水线统计
type PipelineStatsService struct {
	podcasts StatsStore
	tasks    TaskStatsStore
	cache    *cache.Cache
}

func NewPipelineStatsService(podcasts StatsStore, tasks TaskStatsStore, ttl time.Duration) *PipelineStatsService {
	return &PipelineStatsService{
		podcasts: podcasts,
		tasks:    tasks,
		cache:    cache.New(ttl, 2*ttl),
	}
}

// Get 返回统计结果，refresh 为 true 时忽略缓存
func (s *PipelineStatsService) Get(ctx context.Context, refresh bool) (*PipelineStats, error) {
	if !refresh {
		if v, ok := s.cache.Get(pipelineStatsKey); ok {
			return v.(*PipelineStats), nil
		}
	}

	podcasts, err := s.podcasts.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	tasks, err := s.tasks.CountByStatus(ctx, model.TaskTypeVideoGeneration)
	if err != nil {
		return nil, err
	}
	inFlight, err := s.podcasts.FirstByStatus(ctx, model.PodcastStatusGenerating)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	stats := &PipelineStats{
		Podcasts:    podcasts,
		VideoTasks:  tasks,
		InFlight:    inFlight,
		GeneratedAt: time.Now(),
	}
	s.cache.Set(pipelineStatsKey, stats, cache.DefaultExpiration)
	return stats, nil
}

// Invalidate 清除缓存
func (s *PipelineStatsService) Invalidate() {
	s.cache.Delete(pipelineStatsKey)
}
