package model

import (
	"time"

	"gorm.io/gorm"
)

// YouTubeChannel YouTube 频道元数据
type YouTubeChannel struct {
	ID          uint           `json:"id" gorm:"primarykey"`
	ChannelID   string         `json:"channel_id" gorm:"uniqueIndex;not null;size:64"`
	Name        string         `json:"name" gorm:"not null;size:150"`
	Description string         `json:"description" gorm:"type:text"`
	CategoryID  *uint          `json:"category_id" gorm:"index"`
	Language    string         `json:"language" gorm:"size:16"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName 指定表名
func (YouTubeChannel) TableName() string {
	return "youtube_channels"
}

// YouTubePlaylist YouTube 播放列表元数据
type YouTubePlaylist struct {
	ID               uint           `json:"id" gorm:"primarykey"`
	PlaylistID       string         `json:"playlist_id" gorm:"uniqueIndex;not null;size:64"`
	YouTubeChannelID uint           `json:"youtube_channel_id" gorm:"not null;index"`
	SeriesID         *uint          `json:"series_id" gorm:"index"`
	Title            string         `json:"title" gorm:"not null;size:150"`
	Description      string         `json:"description" gorm:"type:text"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `json:"-" gorm:"index"`

	Channel *YouTubeChannel `json:"channel,omitempty" gorm:"foreignKey:YouTubeChannelID"`
}

// TableName 指定表名
func (YouTubePlaylist) TableName() string {
	return "youtube_playlists"
}
