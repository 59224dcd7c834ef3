package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/xeocast/xeocast-admin-workers-sub001/app/logger"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/middleware"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/model"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/storage"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/utils/slug"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// StatsInvalidator 播客状态变化后清空统计缓存
type StatsInvalidator interface {
	Invalidate()
}

// PodcastHandler 播客管理
type PodcastHandler struct {
	db    *gorm.DB
	store storage.BlobStore
	stats StatsInvalidator
	log   *logger.Logger
}

func NewPodcastHandler(db *gorm.DB, store storage.BlobStore, stats StatsInvalidator, log *logger.Logger) *PodcastHandler {
	return &PodcastHandler{db: db, store: store, stats: stats, log: log}
}

type CreatePodcastRequest struct {
	Title               string              `json:"title" binding:"required,max=255"`
	Slug                string              `json:"slug" binding:"max=255"`
	Description         string              `json:"description"`
	CategoryID          uint                `json:"category_id" binding:"required"`
	SeriesID            *uint               `json:"series_id"`
	Status              model.PodcastStatus `json:"status"`
	SourceAudioKey      string              `json:"source_audio_key"`
	SourceBackgroundKey string              `json:"source_background_key"`
	ScheduledPublishAt  *time.Time          `json:"scheduled_publish_at"`
}

// UpdatePodcastRequest 仅更新传入的字段；清空排期需显式传 clear_schedule
type UpdatePodcastRequest struct {
	Title               *string              `json:"title" binding:"omitempty,max=255"`
	Slug                *string              `json:"slug" binding:"omitempty,max=255"`
	Description         *string              `json:"description"`
	CategoryID          *uint                `json:"category_id"`
	SeriesID            *uint                `json:"series_id"`
	Status              *model.PodcastStatus `json:"status"`
	SourceAudioKey      *string              `json:"source_audio_key"`
	SourceBackgroundKey *string              `json:"source_background_key"`
	VideoBucketKey      *string              `json:"video_bucket_key"`
	ScheduledPublishAt  *time.Time           `json:"scheduled_publish_at"`
	ClearSchedule       bool                 `json:"clear_schedule"`
}

// PodcastStatusInfo 状态枚举及允许的下一步状态
type PodcastStatusInfo struct {
	Status model.PodcastStatus   `json:"status"`
	Order  int                   `json:"order"`
	Next   []model.PodcastStatus `json:"next"`
}

// ListPodcasts 播客列表，支持按 status、category_id、series_id 过滤
func (h *PodcastHandler) ListPodcasts(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context())

	if status := model.PodcastStatus(c.Query("status")); status != "" {
		if !status.IsValid() {
			fail(c, http.StatusBadRequest, "无效的状态: "+string(status))
			return
		}
		query = query.Where("status = ?", status)
	}
	for _, key := range []string{"category_id", "series_id"} {
		v, ok, err := queryUint(c, key)
		if err != nil {
			fail(c, http.StatusBadRequest, "无效的 "+key)
			return
		}
		if ok {
			query = query.Where(key+" = ?", v)
		}
	}

	result, err := listPage[model.Podcast](c, query, "created_at DESC, id DESC", "Category", "Series")
	if err != nil {
		fail(c, http.StatusInternalServerError, "获取播客列表失败")
		return
	}
	success(c, result, "获取播客列表成功")
}

func (h *PodcastHandler) GetPodcast(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var podcast model.Podcast
	if err := h.db.WithContext(c.Request.Context()).Preload("Category").Preload("Series").
		First(&podcast, id).Error; err != nil {
		dbFail(c, err, "播客不存在", "获取播客失败")
		return
	}
	success(c, podcast, "获取播客成功")
}

func (h *PodcastHandler) CreatePodcast(c *gin.Context) {
	var req CreatePodcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}

	status := req.Status
	if status == "" {
		status = model.PodcastStatusDraft
	}
	if !status.IsValid() {
		fail(c, http.StatusBadRequest, "无效的状态: "+string(status))
		return
	}
	if status == model.PodcastStatusGenerating {
		fail(c, http.StatusConflict, "generating 状态只能由视频调度设置")
		return
	}
	if !categoryExists(c, h.db, req.CategoryID) {
		return
	}
	if req.SeriesID != nil && !h.seriesExists(c, *req.SeriesID) {
		return
	}

	now := time.Now()
	podcast := model.Podcast{
		Title:               req.Title,
		Slug:                slug.OrDefault(req.Slug, req.Title),
		Description:         req.Description,
		CategoryID:          req.CategoryID,
		SeriesID:            req.SeriesID,
		Status:              status,
		SourceAudioKey:      req.SourceAudioKey,
		SourceBackgroundKey: req.SourceBackgroundKey,
		ScheduledPublishAt:  req.ScheduledPublishAt,
		LastStatusChangeAt:  &now,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&podcast).Error; err != nil {
		fail(c, http.StatusInternalServerError, "创建播客失败")
		return
	}

	h.stats.Invalidate()
	success(c, podcast, "创建播客成功")
}

// UpdatePodcast 更新播客，状态变更需符合流转规则，管理员可通过 force=true 跳过
func (h *PodcastHandler) UpdatePodcast(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var podcast model.Podcast
	if err := h.db.WithContext(c.Request.Context()).First(&podcast, id).Error; err != nil {
		dbFail(c, err, "播客不存在", "获取播客失败")
		return
	}

	var req UpdatePodcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}

	updates := make(map[string]interface{})
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Slug != nil {
		updates["slug"] = slug.OrDefault(*req.Slug, podcast.Title)
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.CategoryID != nil && *req.CategoryID != podcast.CategoryID {
		if !categoryExists(c, h.db, *req.CategoryID) {
			return
		}
		updates["category_id"] = *req.CategoryID
	}
	if req.SeriesID != nil {
		if !h.seriesExists(c, *req.SeriesID) {
			return
		}
		updates["series_id"] = *req.SeriesID
	}
	if req.SourceAudioKey != nil {
		updates["source_audio_key"] = *req.SourceAudioKey
	}
	if req.SourceBackgroundKey != nil {
		updates["source_background_key"] = *req.SourceBackgroundKey
	}
	if req.VideoBucketKey != nil {
		updates["video_bucket_key"] = *req.VideoBucketKey
	}
	if req.ClearSchedule {
		updates["scheduled_publish_at"] = nil
	} else if req.ScheduledPublishAt != nil {
		updates["scheduled_publish_at"] = *req.ScheduledPublishAt
	}

	statusChanged := req.Status != nil && *req.Status != podcast.Status
	if statusChanged {
		if err := h.checkStatusChange(c, podcast.Status, *req.Status); err != nil {
			fail(c, http.StatusConflict, err.Error())
			return
		}
		updates["status"] = *req.Status
		updates["last_status_change_at"] = time.Now()
	}

	if len(updates) == 0 {
		success(c, podcast, "无需更新")
		return
	}

	// 以读取时的状态为条件更新，避免覆盖调度器或回调同时写入的状态
	result := h.db.WithContext(c.Request.Context()).Model(&model.Podcast{}).
		Where("id = ? AND status = ?", id, podcast.Status).
		Updates(updates)
	if result.Error != nil {
		fail(c, http.StatusInternalServerError, "更新播客失败")
		return
	}
	if result.RowsAffected == 0 {
		fail(c, http.StatusConflict, "播客状态已被修改，请刷新后重试")
		return
	}

	if statusChanged {
		h.log.Infof("播客 %d 状态由 %s 变更为 %s", id, podcast.Status, *req.Status)
		h.stats.Invalidate()
	}

	h.db.Preload("Category").Preload("Series").First(&podcast, id)
	success(c, podcast, "更新播客成功")
}

// checkStatusChange generating 只能由调度器进入；其余状态遵循流转表，管理员 force 时放行
func (h *PodcastHandler) checkStatusChange(c *gin.Context, from, to model.PodcastStatus) error {
	if !to.IsValid() {
		return fmt.Errorf("无效的状态: %s", to)
	}
	if to == model.PodcastStatusGenerating {
		return errors.New("generating 状态只能由视频调度设置")
	}
	err := model.ValidateTransition(from, to)
	if err == nil {
		return nil
	}
	if force, _ := strconv.ParseBool(c.Query("force")); force {
		if claims, ok := middleware.ClaimsFrom(c); ok && claims.HasAdmin() {
			h.log.Warnf("管理员 %s 强制将状态由 %s 变更为 %s", claims.Username, from, to)
			return nil
		}
	}
	return err
}

func (h *PodcastHandler) DeletePodcast(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	result := h.db.WithContext(c.Request.Context()).
		Where("status <> ?", model.PodcastStatusGenerating).
		Delete(&model.Podcast{}, id)
	if result.Error != nil {
		fail(c, http.StatusInternalServerError, "删除播客失败")
		return
	}
	if result.RowsAffected == 0 {
		var podcast model.Podcast
		if err := h.db.First(&podcast, id).Error; err == nil {
			fail(c, http.StatusConflict, "视频生成中的播客不能删除")
			return
		}
		fail(c, http.StatusNotFound, "播客不存在")
		return
	}

	h.stats.Invalidate()
	success(c, nil, "删除播客成功")
}

// UploadAudio 上传播客音频，写入 source_audio_key
func (h *PodcastHandler) UploadAudio(c *gin.Context) {
	h.upload(c, "audio", "source_audio_key", storeAudio)
}

// UploadBackground 上传播客背景图，写入 source_background_key
func (h *PodcastHandler) UploadBackground(c *gin.Context) {
	h.upload(c, "background", "source_background_key", storeBackground)
}

func (h *PodcastHandler) upload(c *gin.Context, kind, column string,
	save func(*gin.Context, storage.BlobStore, string) (string, error)) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var podcast model.Podcast
	if err := h.db.WithContext(c.Request.Context()).First(&podcast, id).Error; err != nil {
		dbFail(c, err, "播客不存在", "获取播客失败")
		return
	}

	prefix := fmt.Sprintf("podcasts/%d/%s", id, kind)
	key, err := save(c, h.store, prefix)
	if err != nil {
		h.log.Warnf("保存播客 %d 的 %s 失败: %v", id, kind, err)
		respondUpload(c, err)
		return
	}

	previous := podcast.SourceAudioKey
	if column == "source_background_key" {
		previous = podcast.SourceBackgroundKey
	}
	if err := h.db.WithContext(c.Request.Context()).Model(&model.Podcast{}).
		Where("id = ?", id).
		Update(column, key).Error; err != nil {
		fail(c, http.StatusInternalServerError, "更新播客失败")
		return
	}
	removeReplaced(c, h.store, h.log, prefix, previous)

	h.db.First(&podcast, id)
	success(c, podcast, "上传成功")
}

// ListStatuses 按流水线顺序列出全部状态
func (h *PodcastHandler) ListStatuses(c *gin.Context) {
	infos := make([]PodcastStatusInfo, 0, len(model.PodcastStatuses))
	for _, s := range model.PodcastStatuses {
		next := make([]model.PodcastStatus, 0)
		for _, to := range model.PodcastStatuses {
			if s.CanTransitionTo(to) {
				next = append(next, to)
			}
		}
		infos = append(infos, PodcastStatusInfo{Status: s, Order: s.Order(), Next: next})
	}
	success(c, infos, "获取状态列表成功")
}

func (h *PodcastHandler) seriesExists(c *gin.Context, id uint) bool {
	var series model.Series
	err := h.db.WithContext(c.Request.Context()).First(&series, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fail(c, http.StatusBadRequest, "系列不存在")
		return false
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, "获取系列失败")
		return false
	}
	return true
}
