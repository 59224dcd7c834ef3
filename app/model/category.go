package model

import (
	"time"

	"gorm.io/gorm"
)

// Category 分类，拥有默认背景图
type Category struct {
	ID                   uint           `json:"id" gorm:"primarykey"`
	Name                 string         `json:"name" gorm:"not null;size:100"`
	Slug                 string         `json:"slug" gorm:"uniqueIndex;not null;size:120"`
	Description          string         `json:"description" gorm:"type:text"`
	DefaultBackgroundKey string         `json:"default_background_key" gorm:"size:512"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
	DeletedAt            gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName 指定表名
func (Category) TableName() string {
	return "categories"
}

// Series 系列，归属于某个分类
type Series struct {
	ID          uint           `json:"id" gorm:"primarykey"`
	Name        string         `json:"name" gorm:"not null;size:100"`
	Slug        string         `json:"slug" gorm:"uniqueIndex;not null;size:120"`
	Description string         `json:"description" gorm:"type:text"`
	CategoryID  uint           `json:"category_id" gorm:"not null;index"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`

	Category *Category `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
}

// TableName 指定表名
func (Series) TableName() string {
	return "series"
}
