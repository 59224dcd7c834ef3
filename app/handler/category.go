package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/xeocast/xeocast-admin-workers-sub001/app/logger"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/model"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/storage"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/utils/slug"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// CategoryHandler 分类管理
type CategoryHandler struct {
	db    *gorm.DB
	store storage.BlobStore
	log   *logger.Logger
}

func NewCategoryHandler(db *gorm.DB, store storage.BlobStore, log *logger.Logger) *CategoryHandler {
	return &CategoryHandler{db: db, store: store, log: log}
}

type CategoryRequest struct {
	Name                 string  `json:"name" binding:"required,max=100"`
	Slug                 string  `json:"slug" binding:"max=120"`
	Description          string  `json:"description"`
	DefaultBackgroundKey *string `json:"default_background_key"`
}

func (h *CategoryHandler) ListCategories(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context())
	if name := c.Query("name"); name != "" {
		query = query.Where("name LIKE ?", "%"+name+"%")
	}

	result, err := listPage[model.Category](c, query, "name ASC, id ASC")
	if err != nil {
		fail(c, http.StatusInternalServerError, "获取分类列表失败")
		return
	}
	success(c, result, "获取分类列表成功")
}

func (h *CategoryHandler) GetCategory(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var category model.Category
	if err := h.db.WithContext(c.Request.Context()).First(&category, id).Error; err != nil {
		dbFail(c, err, "分类不存在", "获取分类失败")
		return
	}
	success(c, category, "获取分类成功")
}

func (h *CategoryHandler) CreateCategory(c *gin.Context) {
	var req CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}

	category := model.Category{
		Name:        req.Name,
		Slug:        slug.OrDefault(req.Slug, req.Name),
		Description: req.Description,
	}
	if req.DefaultBackgroundKey != nil {
		category.DefaultBackgroundKey = *req.DefaultBackgroundKey
	}
	if category.Slug == "" {
		fail(c, http.StatusBadRequest, "无法从名称生成 slug，请显式指定")
		return
	}
	if h.slugTaken(category.Slug, 0) {
		fail(c, http.StatusConflict, "slug 已存在")
		return
	}

	if err := h.db.WithContext(c.Request.Context()).Create(&category).Error; err != nil {
		fail(c, http.StatusInternalServerError, "创建分类失败")
		return
	}
	success(c, category, "创建分类成功")
}

func (h *CategoryHandler) UpdateCategory(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var category model.Category
	if err := h.db.WithContext(c.Request.Context()).First(&category, id).Error; err != nil {
		dbFail(c, err, "分类不存在", "获取分类失败")
		return
	}

	var req CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}

	category.Name = req.Name
	category.Description = req.Description
	if req.Slug != "" {
		category.Slug = slug.Make(req.Slug)
	}
	if req.DefaultBackgroundKey != nil {
		category.DefaultBackgroundKey = *req.DefaultBackgroundKey
	}
	if category.Slug == "" || h.slugTaken(category.Slug, category.ID) {
		fail(c, http.StatusConflict, "slug 已存在或无效")
		return
	}

	if err := h.db.WithContext(c.Request.Context()).Save(&category).Error; err != nil {
		fail(c, http.StatusInternalServerError, "更新分类失败")
		return
	}
	success(c, category, "更新分类成功")
}

// DeleteCategory 删除分类，仍有播客或系列引用时拒绝
func (h *CategoryHandler) DeleteCategory(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var refs int64
	h.db.Model(&model.Podcast{}).Where("category_id = ?", id).Count(&refs)
	if refs == 0 {
		h.db.Model(&model.Series{}).Where("category_id = ?", id).Count(&refs)
	}
	if refs > 0 {
		fail(c, http.StatusConflict, "分类仍被播客或系列使用")
		return
	}

	result := h.db.WithContext(c.Request.Context()).Delete(&model.Category{}, id)
	if result.Error != nil {
		fail(c, http.StatusInternalServerError, "删除分类失败")
		return
	}
	if result.RowsAffected == 0 {
		fail(c, http.StatusNotFound, "分类不存在")
		return
	}
	success(c, nil, "删除分类成功")
}

// UploadBackground 上传分类默认背景图
func (h *CategoryHandler) UploadBackground(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var category model.Category
	if err := h.db.WithContext(c.Request.Context()).First(&category, id).Error; err != nil {
		dbFail(c, err, "分类不存在", "获取分类失败")
		return
	}

	prefix := fmt.Sprintf("categories/%d/background", id)
	key, err := storeBackground(c, h.store, prefix)
	if err != nil {
		h.log.Warnf("保存分类 %d 背景图失败: %v", id, err)
		respondUpload(c, err)
		return
	}

	previous := category.DefaultBackgroundKey
	if err := h.db.WithContext(c.Request.Context()).Model(&category).
		Update("default_background_key", key).Error; err != nil {
		fail(c, http.StatusInternalServerError, "更新分类失败")
		return
	}
	category.DefaultBackgroundKey = key
	removeReplaced(c, h.store, h.log, prefix, previous)

	success(c, category, "上传背景图成功")
}

func (h *CategoryHandler) slugTaken(s string, exceptID uint) bool {
	var count int64
	h.db.Unscoped().Model(&model.Category{}).Where("slug = ? AND id <> ?", s, exceptID).Count(&count)
	return count > 0
}

// removeReplaced 删除被替换掉的旧对象，只处理 prefix 下由上传接口生成的对象，失败只记录日志
func removeReplaced(c *gin.Context, store storage.BlobStore, log *logger.Logger, prefix, previous string) {
	if previous == "" || !strings.HasPrefix(previous, prefix+"/") {
		return
	}
	if err := store.Delete(c.Request.Context(), previous); err != nil {
		log.Warnf("删除旧文件 %s 失败: %v", previous, err)
	}
}
