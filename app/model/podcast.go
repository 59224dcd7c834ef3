package model

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"gorm.io/gorm"
)

// PodcastStatus 播客在发布流水线中的状态
type PodcastStatus string

const (
	PodcastStatusDraft               PodcastStatus = "draft"
	PodcastStatusDraftApproved       PodcastStatus = "draftApproved"
	PodcastStatusResearching         PodcastStatus = "researching"
	PodcastStatusResearched          PodcastStatus = "researched"
	PodcastStatusGeneratingThumbnail PodcastStatus = "generatingThumbnail"
	PodcastStatusThumbnailGenerated  PodcastStatus = "thumbnailGenerated"
	PodcastStatusGeneratingAudio     PodcastStatus = "generatingAudio"
	PodcastStatusAudioGenerated      PodcastStatus = "audioGenerated"
	PodcastStatusGenerating          PodcastStatus = "generating"
	PodcastStatusGenerated           PodcastStatus = "generated"
	PodcastStatusGeneratedApproved   PodcastStatus = "generatedApproved"
	PodcastStatusUploading           PodcastStatus = "uploading"
	PodcastStatusUploaded            PodcastStatus = "uploaded"
	PodcastStatusPublished           PodcastStatus = "published"
	PodcastStatusUnpublished         PodcastStatus = "unpublished"
)

// PodcastStatuses 按流水线顺序排列的全部状态
var PodcastStatuses = []PodcastStatus{
	PodcastStatusDraft,
	PodcastStatusDraftApproved,
	PodcastStatusResearching,
	PodcastStatusResearched,
	PodcastStatusGeneratingThumbnail,
	PodcastStatusThumbnailGenerated,
	PodcastStatusGeneratingAudio,
	PodcastStatusAudioGenerated,
	PodcastStatusGenerating,
	PodcastStatusGenerated,
	PodcastStatusGeneratedApproved,
	PodcastStatusUploading,
	PodcastStatusUploaded,
	PodcastStatusPublished,
	PodcastStatusUnpublished,
}

// ErrInvalidTransition 状态流转不被允许
var ErrInvalidTransition = errors.New("invalid podcast status transition")

// podcastTransitions 允许的状态流转
// 进行中的状态可以回退到上一个完成状态，以便下一轮重新处理
var podcastTransitions = map[PodcastStatus][]PodcastStatus{
	PodcastStatusDraft:               {PodcastStatusDraftApproved},
	PodcastStatusDraftApproved:       {PodcastStatusResearching, PodcastStatusDraft},
	PodcastStatusResearching:         {PodcastStatusResearched, PodcastStatusDraftApproved},
	PodcastStatusResearched:          {PodcastStatusGeneratingThumbnail},
	PodcastStatusGeneratingThumbnail: {PodcastStatusThumbnailGenerated, PodcastStatusResearched},
	PodcastStatusThumbnailGenerated:  {PodcastStatusGeneratingAudio},
	PodcastStatusGeneratingAudio:     {PodcastStatusAudioGenerated, PodcastStatusThumbnailGenerated},
	PodcastStatusAudioGenerated:      {PodcastStatusGenerating},
	PodcastStatusGenerating:          {PodcastStatusGenerated, PodcastStatusAudioGenerated},
	PodcastStatusGenerated:           {PodcastStatusGeneratedApproved, PodcastStatusAudioGenerated},
	PodcastStatusGeneratedApproved:   {PodcastStatusUploading},
	PodcastStatusUploading:           {PodcastStatusUploaded, PodcastStatusGeneratedApproved},
	PodcastStatusUploaded:            {PodcastStatusPublished},
	PodcastStatusPublished:           {PodcastStatusUnpublished},
	PodcastStatusUnpublished:         {PodcastStatusPublished},
}

// IsValid 是否为已知状态
func (s PodcastStatus) IsValid() bool {
	_, ok := podcastTransitions[s]
	return ok
}

// Order 状态在流水线中的位置，未知状态返回 -1
func (s PodcastStatus) Order() int {
	return slices.Index(PodcastStatuses, s)
}

// CanTransitionTo 检查是否允许从 s 流转到 to
func (s PodcastStatus) CanTransitionTo(to PodcastStatus) bool {
	return slices.Contains(podcastTransitions[s], to)
}

// ValidateTransition 不允许的流转返回 ErrInvalidTransition
func ValidateTransition(from, to PodcastStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Podcast 播客模型
type Podcast struct {
	ID                  uint           `json:"id" gorm:"primarykey"`
	Title               string         `json:"title" gorm:"not null;size:255"`
	Slug                string         `json:"slug" gorm:"index;size:255"`
	Description         string         `json:"description" gorm:"type:text"`
	CategoryID          uint           `json:"category_id" gorm:"not null;index"`
	SeriesID            *uint          `json:"series_id" gorm:"index"`
	Status              PodcastStatus  `json:"status" gorm:"not null;size:32;default:draft;index"`
	SourceAudioKey      string         `json:"source_audio_key" gorm:"size:512"`
	SourceBackgroundKey string         `json:"source_background_key" gorm:"size:512"`
	VideoBucketKey      string         `json:"video_bucket_key" gorm:"size:512"`
	ScheduledPublishAt  *time.Time     `json:"scheduled_publish_at" gorm:"index"`
	LastStatusChangeAt  *time.Time     `json:"last_status_change_at"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	DeletedAt           gorm.DeletedAt `json:"-" gorm:"index"`

	Category *Category `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
	Series   *Series   `json:"series,omitempty" gorm:"foreignKey:SeriesID"`
}

// TableName 指定表名
func (Podcast) TableName() string {
	return "podcasts"
}

// IsEligibleForVideo 是否可以进入视频生成
func (p *Podcast) IsEligibleForVideo() bool {
	return p.Status == PodcastStatusAudioGenerated && p.SourceAudioKey != ""
}

// ResolveBackgroundKey 返回播客自身背景，缺省时使用分类默认背景
func (p *Podcast) ResolveBackgroundKey(categoryDefault string) string {
	if p.SourceBackgroundKey != "" {
		return p.SourceBackgroundKey
	}
	return categoryDefault
}
