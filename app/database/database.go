package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xeocast/xeocast-admin-workers-sub001/app/config"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/logger"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// DB 全局数据库实例
var DB *gorm.DB

// Open 按驱动打开数据库连接
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		// podcasts.category_id 只是弱引用，分类缺失由业务层处理
		DisableForeignKeyConstraintWhenMigrating: true,
	}

	switch cfg.Driver {
	case "postgres":
		return gorm.Open(postgres.Open(cfg.DSN), gormConfig)
	case "sqlite", "":
		if err := ensureDir(filepath.Dir(cfg.DSN)); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败: %w", err)
		}
		return gorm.Open(sqlite.Open(cfg.DSN), gormConfig)
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", cfg.Driver)
	}
}

// Init 初始化数据库连接
func Init(cfg *config.Config, log *logger.Logger) error {
	db, err := Open(cfg.Database)
	if err != nil {
		log.Errorf("连接数据库失败: %v", err)
		return err
	}

	DB = db
	log.Infof("数据库连接成功: %s", cfg.Database.Driver)

	if err := AutoMigrate(); err != nil {
		log.Errorf("迁移表结构失败: %v", err)
		return err
	}

	if err := InitAdminUser(cfg, log); err != nil {
		log.Errorf("初始化管理员账户失败: %v", err)
		return err
	}

	return nil
}

// Close 关闭数据库连接
func Close() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// GetDB 获取数据库实例
func GetDB() *gorm.DB {
	return DB
}

// ensureDir 确保目录存在
func ensureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}
