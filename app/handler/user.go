package handler

import (
	"errors"
	"net/http"

	"github.com/xeocast/xeocast-admin-workers-sub001/app/middleware"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/model"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// UserHandler 用户管理
type UserHandler struct {
	db *gorm.DB
}

func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{db: db}
}

type CreateUserRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Password string `json:"password" binding:"required"`
	Email    string `json:"email" binding:"omitempty,email"`
	RoleID   *uint  `json:"role_id"`
	IsAdmin  bool   `json:"is_admin"`
}

type UpdateUserRequest struct {
	Email    *string `json:"email" binding:"omitempty,email"`
	Password *string `json:"password"`
	RoleID   *uint   `json:"role_id"`
	IsActive *bool   `json:"is_active"`
	IsAdmin  *bool   `json:"is_admin"`
}

// ListUsers 用户列表
func (h *UserHandler) ListUsers(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context())
	if roleID, ok, err := queryUint(c, "role_id"); err != nil {
		fail(c, http.StatusBadRequest, "无效的 role_id")
		return
	} else if ok {
		query = query.Where("role_id = ?", roleID)
	}

	result, err := listPage[model.User](c, query, "id ASC", "Role")
	if err != nil {
		fail(c, http.StatusInternalServerError, "获取用户列表失败")
		return
	}
	success(c, result, "获取用户列表成功")
}

// GetUser 获取单个用户
func (h *UserHandler) GetUser(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var user model.User
	if err := h.db.WithContext(c.Request.Context()).Preload("Role").First(&user, id).Error; err != nil {
		dbFail(c, err, "用户不存在", "获取用户失败")
		return
	}
	success(c, user, "获取用户成功")
}

// CreateUser 创建用户
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}
	if err := utils.CheckPassword(req.Password); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if req.RoleID != nil && !h.roleExists(c, *req.RoleID) {
		return
	}

	var count int64
	h.db.Model(&model.User{}).Where("username = ?", req.Username).Count(&count)
	if count > 0 {
		fail(c, http.StatusConflict, "用户名已存在")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		fail(c, http.StatusInternalServerError, "密码哈希失败")
		return
	}

	user := model.User{
		Username: req.Username,
		Password: hash,
		Email:    req.Email,
		IsActive: true,
		IsAdmin:  req.IsAdmin,
		RoleID:   req.RoleID,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&user).Error; err != nil {
		fail(c, http.StatusInternalServerError, "创建用户失败")
		return
	}

	success(c, user, "创建用户成功")
}

// UpdateUser 更新用户
func (h *UserHandler) UpdateUser(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var user model.User
	if err := h.db.WithContext(c.Request.Context()).First(&user, id).Error; err != nil {
		dbFail(c, err, "用户不存在", "获取用户失败")
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}

	updates := make(map[string]interface{})
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if req.Password != nil {
		if err := utils.CheckPassword(*req.Password); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		hash, err := utils.HashPassword(*req.Password)
		if err != nil {
			fail(c, http.StatusInternalServerError, "密码哈希失败")
			return
		}
		updates["password"] = hash
	}
	if req.RoleID != nil {
		if !h.roleExists(c, *req.RoleID) {
			return
		}
		updates["role_id"] = *req.RoleID
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.IsAdmin != nil {
		updates["is_admin"] = *req.IsAdmin
	}

	if len(updates) > 0 {
		if err := h.db.WithContext(c.Request.Context()).Model(&user).Updates(updates).Error; err != nil {
			fail(c, http.StatusInternalServerError, "更新用户失败")
			return
		}
	}

	h.db.Preload("Role").First(&user, id)
	success(c, user, "更新用户成功")
}

// DeleteUser 删除用户，不能删除自己
func (h *UserHandler) DeleteUser(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if current, exists := c.Get(middleware.ContextUserID); exists && current.(uint) == id {
		fail(c, http.StatusBadRequest, "不能删除当前登录用户")
		return
	}

	result := h.db.WithContext(c.Request.Context()).Delete(&model.User{}, id)
	if result.Error != nil {
		fail(c, http.StatusInternalServerError, "删除用户失败")
		return
	}
	if result.RowsAffected == 0 {
		fail(c, http.StatusNotFound, "用户不存在")
		return
	}
	success(c, nil, "删除用户成功")
}

func (h *UserHandler) roleExists(c *gin.Context, roleID uint) bool {
	var role model.Role
	err := h.db.WithContext(c.Request.Context()).First(&role, roleID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fail(c, http.StatusBadRequest, "角色不存在")
		return false
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, "获取角色失败")
		return false
	}
	return true
}
