package repository

import (
	"context"
	"errors"
	"time"

	"github.com/xeocast/xeocast-admin-workers-sub001/app/model"

	"gorm.io/gorm"
)

type ExternalTaskRepository struct {
	db *gorm.DB
}

func NewExternalTaskRepository(db *gorm.DB) *ExternalTaskRepository {
	return &ExternalTaskRepository{db: db}
}

func (r *ExternalTaskRepository) Create(ctx context.Context, task *model.ExternalServiceTask) error {
	return r.db.WithContext(ctx).Create(task).Error
}

// FindByExternalID 按外部任务 ID 查找，不存在时返回 ErrNotFound
func (r *ExternalTaskRepository) FindByExternalID(ctx context.Context, externalTaskID string) (*model.ExternalServiceTask, error) {
	var task model.ExternalServiceTask
	err := r.db.WithContext(ctx).Where("external_task_id = ?", externalTaskID).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// Finish 将未结束的任务标记为终态，已经是终态的记录不会被再次修改
func (r *ExternalTaskRepository) Finish(ctx context.Context, externalTaskID string, status model.ExternalTaskStatus, errMsg string) (int64, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&model.ExternalServiceTask{}).
		Where("external_task_id = ?", externalTaskID).
		Where("status NOT IN ?", []model.ExternalTaskStatus{model.ExternalTaskStatusCompleted, model.ExternalTaskStatusError}).
		Updates(map[string]interface{}{
			"status":        status,
			"error_message": errMsg,
			"completed_at":  now,
			"updated_at":    now,
		})
	return result.RowsAffected, result.Error
}

// CountByStatus 统计某类任务各状态数量
func (r *ExternalTaskRepository) CountByStatus(ctx context.Context, taskType model.TaskType) (map[model.ExternalTaskStatus]int64, error) {
	var rows []struct {
		Status model.ExternalTaskStatus
		Total  int64
	}
	err := r.db.WithContext(ctx).Model(&model.ExternalServiceTask{}).
		Select("status, COUNT(*) AS total").
		Where("type = ?", taskType).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := map[model.ExternalTaskStatus]int64{
		model.ExternalTaskStatusPending:    0,
		model.ExternalTaskStatusProcessing: 0,
		model.ExternalTaskStatusCompleted:  0,
		model.ExternalTaskStatusError:      0,
	}
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}
