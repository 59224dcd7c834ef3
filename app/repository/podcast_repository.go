package repository

import (
	"context"
	"errors"
	"time"

	"github.com/xeocast/xeocast-admin-workers-sub001/app/model"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("record not found")

type PodcastRepository struct {
	db *gorm.DB
}

func NewPodcastRepository(db *gorm.DB) *PodcastRepository {
	return &PodcastRepository{db: db}
}

// FirstByStatus 返回任意一个处于该状态的播客，没有时返回 ErrNotFound
func (r *PodcastRepository) FirstByStatus(ctx context.Context, status model.PodcastStatus) (*model.Podcast, error) {
	var p model.Podcast
	err := r.db.WithContext(ctx).Where("status = ?", status).Order("id ASC").First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindEligibleForVideo 按优先级分页返回可生成视频的播客
// 有计划发布时间的排在前面，按发布时间升序，再按创建时间升序
func (r *PodcastRepository) FindEligibleForVideo(ctx context.Context, offset, limit int) ([]model.Podcast, error) {
	var podcasts []model.Podcast
	err := r.db.WithContext(ctx).
		Where("status = ?", model.PodcastStatusAudioGenerated).
		Where("source_audio_key IS NOT NULL AND source_audio_key <> ''").
		Order("CASE WHEN scheduled_publish_at IS NULL THEN 1 ELSE 0 END ASC").
		Order("scheduled_publish_at ASC").
		Order("created_at ASC").
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&podcasts).Error
	return podcasts, err
}

// FindGeneratingSince 返回在 before 之前进入 generating 的播客
func (r *PodcastRepository) FindGeneratingSince(ctx context.Context, before time.Time) ([]model.Podcast, error) {
	var podcasts []model.Podcast
	err := r.db.WithContext(ctx).
		Where("status = ? AND last_status_change_at < ?", model.PodcastStatusGenerating, before).
		Find(&podcasts).Error
	return podcasts, err
}

// MarkGenerating 将播客从 audioGenerated 切换为 generating
// 仅当此时没有其他播客处于 generating 时才更新，返回受影响行数
func (r *PodcastRepository) MarkGenerating(ctx context.Context, id uint) (int64, error) {
	now := time.Now()
	inFlight := r.db.Model(&model.Podcast{}).
		Select("1").
		Where("status = ?", model.PodcastStatusGenerating)

	result := r.db.WithContext(ctx).Model(&model.Podcast{}).
		Where("id = ? AND status = ?", id, model.PodcastStatusAudioGenerated).
		Where("NOT EXISTS (?)", inFlight).
		Updates(map[string]interface{}{
			"status":                model.PodcastStatusGenerating,
			"last_status_change_at": now,
			"updated_at":            now,
		})
	return result.RowsAffected, result.Error
}

// TransitionStatus 条件更新：仅当当前状态为 from 时流转到 to，同时写入 fields
func (r *PodcastRepository) TransitionStatus(ctx context.Context, id uint, from, to model.PodcastStatus, fields map[string]interface{}) (int64, error) {
	if err := model.ValidateTransition(from, to); err != nil {
		return 0, err
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":                to,
		"last_status_change_at": now,
		"updated_at":            now,
	}
	for k, v := range fields {
		updates[k] = v
	}

	result := r.db.WithContext(ctx).Model(&model.Podcast{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return result.RowsAffected, result.Error
}

// Get 按 ID 读取播客
func (r *PodcastRepository) Get(ctx context.Context, id uint) (*model.Podcast, error) {
	var p model.Podcast
	err := r.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CountByStatus 统计各状态的播客数量
func (r *PodcastRepository) CountByStatus(ctx context.Context) (map[model.PodcastStatus]int64, error) {
	var rows []struct {
		Status model.PodcastStatus
		Total  int64
	}
	err := r.db.WithContext(ctx).Model(&model.Podcast{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[model.PodcastStatus]int64, len(model.PodcastStatuses))
	for _, s := range model.PodcastStatuses {
		counts[s] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}
