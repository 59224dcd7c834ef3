package database

import (
	"github.com/xeocast/xeocast-admin-workers-sub001/app/model"

	"gorm.io/gorm"
)

// Models 需要迁移的全部模型
func Models() []any {
	return []any{
		&model.Role{},
		&model.User{},
		&model.Category{},
		&model.Series{},
		&model.Podcast{},
		&model.ExternalServiceTask{},
		&model.YouTubeChannel{},
		&model.YouTubePlaylist{},
	}
}

func AutoMigrate() error {
	return Migrate(DB)
}

// Migrate 在指定连接上迁移表结构
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
