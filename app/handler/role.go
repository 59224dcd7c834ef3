package handler

import (
	"net/http"

	"github.com/xeocast/xeocast-admin-workers-sub001/app/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RoleHandler 角色管理
type RoleHandler struct {
	db *gorm.DB
}

func NewRoleHandler(db *gorm.DB) *RoleHandler {
	return &RoleHandler{db: db}
}

type RoleRequest struct {
	Name        string `json:"name" binding:"required,max=50"`
	Description string `json:"description" binding:"max=200"`
}

func (h *RoleHandler) ListRoles(c *gin.Context) {
	result, err := listPage[model.Role](c, h.db.WithContext(c.Request.Context()), "id ASC")
	if err != nil {
		fail(c, http.StatusInternalServerError, "获取角色列表失败")
		return
	}
	success(c, result, "获取角色列表成功")
}

func (h *RoleHandler) GetRole(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var role model.Role
	if err := h.db.WithContext(c.Request.Context()).First(&role, id).Error; err != nil {
		dbFail(c, err, "角色不存在", "获取角色失败")
		return
	}
	success(c, role, "获取角色成功")
}

func (h *RoleHandler) CreateRole(c *gin.Context) {
	var req RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}

	var count int64
	h.db.Model(&model.Role{}).Where("name = ?", req.Name).Count(&count)
	if count > 0 {
		fail(c, http.StatusConflict, "角色已存在")
		return
	}

	role := model.Role{Name: req.Name, Description: req.Description}
	if err := h.db.WithContext(c.Request.Context()).Create(&role).Error; err != nil {
		fail(c, http.StatusInternalServerError, "创建角色失败")
		return
	}
	success(c, role, "创建角色成功")
}

func (h *RoleHandler) UpdateRole(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var role model.Role
	if err := h.db.WithContext(c.Request.Context()).First(&role, id).Error; err != nil {
		dbFail(c, err, "角色不存在", "获取角色失败")
		return
	}

	var req RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}
	if role.Name == model.RoleAdmin && req.Name != model.RoleAdmin {
		fail(c, http.StatusBadRequest, "不能重命名管理员角色")
		return
	}

	role.Name = req.Name
	role.Description = req.Description
	if err := h.db.WithContext(c.Request.Context()).Save(&role).Error; err != nil {
		fail(c, http.StatusInternalServerError, "更新角色失败")
		return
	}
	success(c, role, "更新角色成功")
}

// DeleteRole 删除角色，仍被用户引用时拒绝
func (h *RoleHandler) DeleteRole(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var role model.Role
	if err := h.db.WithContext(c.Request.Context()).First(&role, id).Error; err != nil {
		dbFail(c, err, "角色不存在", "获取角色失败")
		return
	}
	if role.Name == model.RoleAdmin {
		fail(c, http.StatusBadRequest, "不能删除管理员角色")
		return
	}

	var users int64
	h.db.Model(&model.User{}).Where("role_id = ?", id).Count(&users)
	if users > 0 {
		fail(c, http.StatusConflict, "角色仍被用户使用")
		return
	}

	if err := h.db.WithContext(c.Request.Context()).Delete(&role).Error; err != nil {
		fail(c, http.StatusInternalServerError, "删除角色失败")
		return
	}
	success(c, nil, "删除角色成功")
}
