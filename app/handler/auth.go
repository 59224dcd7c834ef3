package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/xeocast/xeocast-admin-workers-sub001/app/auth"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/config"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/middleware"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/model"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	db         *gorm.DB
	cfg        config.JWTConfig
	jwtService *auth.JWTService
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(db *gorm.DB, cfg config.JWTConfig, jwtService *auth.JWTService) *AuthHandler {
	return &AuthHandler{db: db, cfg: cfg, jwtService: jwtService}
}

// LoginRequest 登录请求结构
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 登录响应结构
type LoginResponse struct {
	Token    string      `json:"token"`
	User     *model.User `json:"user"`
	ExpireAt int64       `json:"expire_at"`
}

// Login 用户登录
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}

	var user model.User
	if err := h.db.Preload("Role").Where("username = ?", req.Username).First(&user).Error; err != nil {
		fail(c, http.StatusUnauthorized, "用户名或密码错误")
		return
	}

	if !utils.VerifyPassword(req.Password, user.Password) {
		fail(c, http.StatusUnauthorized, "用户名或密码错误")
		return
	}

	if !user.IsActive {
		fail(c, http.StatusForbidden, "用户账号已被禁用")
		return
	}

	token, err := h.jwtService.GenerateToken(&user)
	if err != nil {
		fail(c, http.StatusInternalServerError, "生成令牌失败")
		return
	}

	now := time.Now()
	h.db.Model(&user).UpdateColumn("last_login", now)
	user.LastLogin = &now

	success(c, LoginResponse{
		Token:    token,
		User:     &user,
		ExpireAt: h.expireAt(),
	}, "登录成功")
}

// RefreshToken 刷新令牌
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || token == "" {
		fail(c, http.StatusUnauthorized, "Authorization header is required")
		return
	}

	newToken, err := h.jwtService.RefreshToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenNotExpiring) {
			fail(c, http.StatusBadRequest, "令牌尚未临近过期")
			return
		}
		fail(c, http.StatusUnauthorized, "刷新令牌失败: "+err.Error())
		return
	}

	success(c, gin.H{
		"token":     newToken,
		"expire_at": h.expireAt(),
	}, "刷新成功")
}

// Me 获取当前用户信息
func (h *AuthHandler) Me(c *gin.Context) {
	userID, exists := c.Get(middleware.ContextUserID)
	if !exists {
		fail(c, http.StatusUnauthorized, "未认证")
		return
	}

	var user model.User
	if err := h.db.Preload("Role").First(&user, userID).Error; err != nil {
		dbFail(c, err, "用户不存在", "获取用户失败")
		return
	}

	success(c, user, "success")
}

func (h *AuthHandler) expireAt() int64 {
	hours := h.cfg.ExpireTime
	if hours <= 0 {
		hours = 24
	}
	return time.Now().Add(time.Duration(hours) * time.Hour).Unix()
}
