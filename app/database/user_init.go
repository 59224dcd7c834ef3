package database

import (
	"errors"
	"fmt"

	"github.com/xeocast/xeocast-admin-workers-sub001/app/config"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/logger"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/model"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/utils"

	"gorm.io/gorm"
)

// InitAdminUser 初始化管理员角色与账户
func InitAdminUser(cfg *config.Config, log *logger.Logger) error {
	return EnsureAdmin(DB, cfg.Server, log)
}

// EnsureAdmin 确保存在 admin 角色及配置中的管理员账户，用户名或密码变化时同步更新
func EnsureAdmin(db *gorm.DB, server config.ServerConfig, log *logger.Logger) error {
	if server.Username == "" || server.Password == "" {
		return fmt.Errorf("管理员账户配置不能为空，请在配置文件中设置 server.username 和 server.password")
	}

	role := model.Role{Name: model.RoleAdmin}
	if err := db.Where(model.Role{Name: model.RoleAdmin}).
		Attrs(model.Role{Description: "系统管理员"}).
		FirstOrCreate(&role).Error; err != nil {
		return fmt.Errorf("创建管理员角色失败: %w", err)
	}

	var existingAdmin model.User
	err := db.Where("is_admin = ?", true).First(&existingAdmin).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("查询管理员账户失败: %w", err)
	}

	if err == nil {
		needUpdate := false

		if existingAdmin.Username != server.Username {
			var conflictUser model.User
			if db.Where("username = ? AND id != ?", server.Username, existingAdmin.ID).First(&conflictUser).Error == nil {
				return fmt.Errorf("用户名 '%s' 已被其他用户使用，无法更新管理员用户名", server.Username)
			}
			log.Infof("管理员用户名从 '%s' 更新为 '%s'", existingAdmin.Username, server.Username)
			existingAdmin.Username = server.Username
			needUpdate = true
		}

		if !utils.VerifyPassword(server.Password, existingAdmin.Password) {
			hash, err := utils.HashPassword(server.Password)
			if err != nil {
				return fmt.Errorf("哈希密码失败: %w", err)
			}
			existingAdmin.Password = hash
			needUpdate = true
			log.Infof("管理员 '%s' 密码已更新", server.Username)
		}

		if existingAdmin.RoleID == nil || *existingAdmin.RoleID != role.ID {
			existingAdmin.RoleID = &role.ID
			needUpdate = true
		}

		if !needUpdate {
			log.Infof("管理员 '%s' 已存在，无需更新", server.Username)
			return nil
		}
		if err := db.Save(&existingAdmin).Error; err != nil {
			return fmt.Errorf("更新管理员账户失败: %w", err)
		}
		return nil
	}

	hash, err := utils.HashPassword(server.Password)
	if err != nil {
		return fmt.Errorf("哈希密码失败: %w", err)
	}

	adminUser := model.User{
		Username: server.Username,
		Password: hash,
		Email:    "admin@xeocast.local",
		IsActive: true,
		IsAdmin:  true,
		RoleID:   &role.ID,
	}
	if err := db.Create(&adminUser).Error; err != nil {
		return fmt.Errorf("创建管理员账户失败: %w", err)
	}

	log.Infof("管理员账户 '%s' 创建成功", server.Username)
	return nil
}
