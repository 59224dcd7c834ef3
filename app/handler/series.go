package handler

import (
	"net/http"

	"github.com/xeocast/xeocast-admin-workers-sub001/app/model"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/utils/slug"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SeriesHandler 系列管理
type SeriesHandler struct {
	db *gorm.DB
}

func NewSeriesHandler(db *gorm.DB) *SeriesHandler {
	return &SeriesHandler{db: db}
}

type SeriesRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Slug        string `json:"slug" binding:"max=120"`
	Description string `json:"description"`
	CategoryID  uint   `json:"category_id" binding:"required"`
}

func (h *SeriesHandler) ListSeries(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context())
	if categoryID, ok, err := queryUint(c, "category_id"); err != nil {
		fail(c, http.StatusBadRequest, "无效的 category_id")
		return
	} else if ok {
		query = query.Where("category_id = ?", categoryID)
	}

	result, err := listPage[model.Series](c, query, "name ASC, id ASC", "Category")
	if err != nil {
		fail(c, http.StatusInternalServerError, "获取系列列表失败")
		return
	}
	success(c, result, "获取系列列表成功")
}

func (h *SeriesHandler) GetSeries(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var series model.Series
	if err := h.db.WithContext(c.Request.Context()).Preload("Category").First(&series, id).Error; err != nil {
		dbFail(c, err, "系列不存在", "获取系列失败")
		return
	}
	success(c, series, "获取系列成功")
}

func (h *SeriesHandler) CreateSeries(c *gin.Context) {
	var req SeriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}
	if !categoryExists(c, h.db, req.CategoryID) {
		return
	}

	series := model.Series{
		Name:        req.Name,
		Slug:        slug.OrDefault(req.Slug, req.Name),
		Description: req.Description,
		CategoryID:  req.CategoryID,
	}
	if series.Slug == "" || h.slugTaken(series.Slug, 0) {
		fail(c, http.StatusConflict, "slug 已存在或无效")
		return
	}

	if err := h.db.WithContext(c.Request.Context()).Create(&series).Error; err != nil {
		fail(c, http.StatusInternalServerError, "创建系列失败")
		return
	}
	success(c, series, "创建系列成功")
}

func (h *SeriesHandler) UpdateSeries(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var series model.Series
	if err := h.db.WithContext(c.Request.Context()).First(&series, id).Error; err != nil {
		dbFail(c, err, "系列不存在", "获取系列失败")
		return
	}

	var req SeriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}
	if req.CategoryID != series.CategoryID && !categoryExists(c, h.db, req.CategoryID) {
		return
	}

	series.Name = req.Name
	series.Description = req.Description
	series.CategoryID = req.CategoryID
	if req.Slug != "" {
		series.Slug = slug.Make(req.Slug)
	}
	if series.Slug == "" || h.slugTaken(series.Slug, series.ID) {
		fail(c, http.StatusConflict, "slug 已存在或无效")
		return
	}

	if err := h.db.WithContext(c.Request.Context()).Omit("Category").Save(&series).Error; err != nil {
		fail(c, http.StatusInternalServerError, "更新系列失败")
		return
	}
	success(c, series, "更新系列成功")
}

func (h *SeriesHandler) DeleteSeries(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var refs int64
	h.db.Model(&model.Podcast{}).Where("series_id = ?", id).Count(&refs)
	if refs > 0 {
		fail(c, http.StatusConflict, "系列仍被播客使用")
		return
	}

	result := h.db.WithContext(c.Request.Context()).Delete(&model.Series{}, id)
	if result.Error != nil {
		fail(c, http.StatusInternalServerError, "删除系列失败")
		return
	}
	if result.RowsAffected == 0 {
		fail(c, http.StatusNotFound, "系列不存在")
		return
	}
	success(c, nil, "删除系列成功")
}

func (h *SeriesHandler) slugTaken(s string, exceptID uint) bool {
	var count int64
	h.db.Unscoped().Model(&model.Series{}).Where("slug = ? AND id <> ?", s, exceptID).Count(&count)
	return count > 0
}

// categoryExists 分类不存在时直接写入 400 响应
func categoryExists(c *gin.Context, db *gorm.DB, id uint) bool {
	var count int64
	if err := db.WithContext(c.Request.Context()).Model(&model.Category{}).Where("id = ?", id).Count(&count).Error; err != nil {
		fail(c, http.StatusInternalServerError, "获取分类失败")
		return false
	}
	if count == 0 {
		fail(c, http.StatusBadRequest, "分类不存在")
		return false
	}
	return true
}
