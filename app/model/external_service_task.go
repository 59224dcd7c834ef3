package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// ExternalTaskStatus 外部任务状态
type ExternalTaskStatus string

const (
	ExternalTaskStatusPending    ExternalTaskStatus = "pending"
	ExternalTaskStatusProcessing ExternalTaskStatus = "processing"
	ExternalTaskStatusCompleted  ExternalTaskStatus = "completed"
	ExternalTaskStatusError      ExternalTaskStatus = "error"
)

// IsTerminal 回调处理后不再变化
func (s ExternalTaskStatus) IsTerminal() bool {
	return s == ExternalTaskStatusCompleted || s == ExternalTaskStatusError
}

// TaskType 外部任务类型，同时决定 Data 的结构
type TaskType string

const (
	TaskTypeVideoGeneration TaskType = "video_generation_request"
)

var (
	ErrUnknownTaskType   = errors.New("unknown external task type")
	ErrMalformedTaskData = errors.New("malformed external task data")
)

// ExternalServiceTask 外部服务任务与内部数据的关联记录
type ExternalServiceTask struct {
	ID             uint               `json:"id" gorm:"primarykey"`
	ExternalTaskID string             `json:"external_task_id" gorm:"uniqueIndex;not null;size:128"`
	Type           TaskType           `json:"type" gorm:"not null;size:64;index"`
	Data           datatypes.JSON     `json:"data"`
	Status         ExternalTaskStatus `json:"status" gorm:"not null;size:20;default:pending;index"`
	ErrorMessage   string             `json:"error_message" gorm:"type:text"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	CompletedAt    *time.Time         `json:"completed_at"`
}

// TableName 指定表名
func (ExternalServiceTask) TableName() string {
	return "external_service_tasks"
}

// Payload 按任务类型解析 Data
func (t *ExternalServiceTask) Payload() (TaskPayload, error) {
	return DecodeTaskPayload(t.Type, t.Data)
}

// TaskPayload 外部任务携带的关联数据，按 TaskType 区分
type TaskPayload interface {
	TaskType() TaskType
}

// VideoGenerationPayload 视频生成任务关联的播客
type VideoGenerationPayload struct {
	PodcastID uint `json:"podcast_id"`
}

func (VideoGenerationPayload) TaskType() TaskType {
	return TaskTypeVideoGeneration
}

var payloadDecoders = map[TaskType]func(raw []byte) (TaskPayload, error){
	TaskTypeVideoGeneration: decodeVideoGenerationPayload,
}

func decodeVideoGenerationPayload(raw []byte) (TaskPayload, error) {
	var v struct {
		PodcastID *uint `json:"podcast_id"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTaskData, err)
	}
	if v.PodcastID == nil || *v.PodcastID == 0 {
		return nil, fmt.Errorf("%w: missing podcast_id", ErrMalformedTaskData)
	}
	return VideoGenerationPayload{PodcastID: *v.PodcastID}, nil
}

// EncodeTaskPayload 将载荷编码为 JSON 列
func EncodeTaskPayload(p TaskPayload) (datatypes.JSON, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// DecodeTaskPayload 根据任务类型解析 JSON 列
func DecodeTaskPayload(t TaskType, data datatypes.JSON) (TaskPayload, error) {
	decode, ok := payloadDecoders[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTaskType, t)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrMalformedTaskData)
	}
	return decode(data)
}

// NewExternalServiceTask 以 processing 状态创建关联记录
func NewExternalServiceTask(externalTaskID string, p TaskPayload) (*ExternalServiceTask, error) {
	data, err := EncodeTaskPayload(p)
	if err != nil {
		return nil, err
	}
	return &ExternalServiceTask{
		ExternalTaskID: externalTaskID,
		Type:           p.TaskType(),
		Data:           data,
		Status:         ExternalTaskStatusProcessing,
	}, nil
}
