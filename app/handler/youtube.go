package handler

import (
	"net/http"

	"github.com/xeocast/xeocast-admin-workers-sub001/app/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// YouTubeHandler YouTube 频道与播放列表元数据
type YouTubeHandler struct {
	db *gorm.DB
}

func NewYouTubeHandler(db *gorm.DB) *YouTubeHandler {
	return &YouTubeHandler{db: db}
}

type ChannelRequest struct {
	ChannelID   string `json:"channel_id" binding:"required,max=64"`
	Name        string `json:"name" binding:"required,max=150"`
	Description string `json:"description"`
	CategoryID  *uint  `json:"category_id"`
	Language    string `json:"language" binding:"omitempty,bcp47_language_tag"`
}

type PlaylistRequest struct {
	PlaylistID       string `json:"playlist_id" binding:"required,max=64"`
	YouTubeChannelID uint   `json:"youtube_channel_id" binding:"required"`
	SeriesID         *uint  `json:"series_id"`
	Title            string `json:"title" binding:"required,max=150"`
	Description      string `json:"description"`
}

func (h *YouTubeHandler) ListChannels(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context())
	if categoryID, ok, err := queryUint(c, "category_id"); err != nil {
		fail(c, http.StatusBadRequest, "无效的 category_id")
		return
	} else if ok {
		query = query.Where("category_id = ?", categoryID)
	}

	result, err := listPage[model.YouTubeChannel](c, query, "name ASC, id ASC")
	if err != nil {
		fail(c, http.StatusInternalServerError, "获取频道列表失败")
		return
	}
	success(c, result, "获取频道列表成功")
}

func (h *YouTubeHandler) GetChannel(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var channel model.YouTubeChannel
	if err := h.db.WithContext(c.Request.Context()).First(&channel, id).Error; err != nil {
		dbFail(c, err, "频道不存在", "获取频道失败")
		return
	}
	success(c, channel, "获取频道成功")
}

func (h *YouTubeHandler) CreateChannel(c *gin.Context) {
	var req ChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}
	if req.CategoryID != nil && !categoryExists(c, h.db, *req.CategoryID) {
		return
	}
	if h.channelIDTaken(req.ChannelID, 0) {
		fail(c, http.StatusConflict, "频道已存在")
		return
	}

	channel := model.YouTubeChannel{
		ChannelID:   req.ChannelID,
		Name:        req.Name,
		Description: req.Description,
		CategoryID:  req.CategoryID,
		Language:    req.Language,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&channel).Error; err != nil {
		fail(c, http.StatusInternalServerError, "创建频道失败")
		return
	}
	success(c, channel, "创建频道成功")
}

func (h *YouTubeHandler) UpdateChannel(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var channel model.YouTubeChannel
	if err := h.db.WithContext(c.Request.Context()).First(&channel, id).Error; err != nil {
		dbFail(c, err, "频道不存在", "获取频道失败")
		return
	}

	var req ChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}
	if req.CategoryID != nil && !categoryExists(c, h.db, *req.CategoryID) {
		return
	}
	if h.channelIDTaken(req.ChannelID, channel.ID) {
		fail(c, http.StatusConflict, "频道已存在")
		return
	}

	channel.ChannelID = req.ChannelID
	channel.Name = req.Name
	channel.Description = req.Description
	channel.CategoryID = req.CategoryID
	channel.Language = req.Language
	if err := h.db.WithContext(c.Request.Context()).Save(&channel).Error; err != nil {
		fail(c, http.StatusInternalServerError, "更新频道失败")
		return
	}
	success(c, channel, "更新频道成功")
}

// DeleteChannel 删除频道，仍有播放列表时拒绝
func (h *YouTubeHandler) DeleteChannel(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var playlists int64
	h.db.Model(&model.YouTubePlaylist{}).Where("youtube_channel_id = ?", id).Count(&playlists)
	if playlists > 0 {
		fail(c, http.StatusConflict, "频道下仍有播放列表")
		return
	}

	result := h.db.WithContext(c.Request.Context()).Delete(&model.YouTubeChannel{}, id)
	if result.Error != nil {
		fail(c, http.StatusInternalServerError, "删除频道失败")
		return
	}
	if result.RowsAffected == 0 {
		fail(c, http.StatusNotFound, "频道不存在")
		return
	}
	success(c, nil, "删除频道成功")
}

func (h *YouTubeHandler) ListPlaylists(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context())
	for _, key := range []string{"youtube_channel_id", "series_id"} {
		v, ok, err := queryUint(c, key)
		if err != nil {
			fail(c, http.StatusBadRequest, "无效的 "+key)
			return
		}
		if ok {
			query = query.Where(key+" = ?", v)
		}
	}

	result, err := listPage[model.YouTubePlaylist](c, query, "title ASC, id ASC", "Channel")
	if err != nil {
		fail(c, http.StatusInternalServerError, "获取播放列表失败")
		return
	}
	success(c, result, "获取播放列表成功")
}

func (h *YouTubeHandler) GetPlaylist(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var playlist model.YouTubePlaylist
	if err := h.db.WithContext(c.Request.Context()).Preload("Channel").First(&playlist, id).Error; err != nil {
		dbFail(c, err, "播放列表不存在", "获取播放列表失败")
		return
	}
	success(c, playlist, "获取播放列表成功")
}

func (h *YouTubeHandler) CreatePlaylist(c *gin.Context) {
	var req PlaylistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}
	if !h.checkPlaylistRefs(c, req) {
		return
	}
	if h.playlistIDTaken(req.PlaylistID, 0) {
		fail(c, http.StatusConflict, "播放列表已存在")
		return
	}

	playlist := model.YouTubePlaylist{
		PlaylistID:       req.PlaylistID,
		YouTubeChannelID: req.YouTubeChannelID,
		SeriesID:         req.SeriesID,
		Title:            req.Title,
		Description:      req.Description,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&playlist).Error; err != nil {
		fail(c, http.StatusInternalServerError, "创建播放列表失败")
		return
	}
	success(c, playlist, "创建播放列表成功")
}

func (h *YouTubeHandler) UpdatePlaylist(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var playlist model.YouTubePlaylist
	if err := h.db.WithContext(c.Request.Context()).First(&playlist, id).Error; err != nil {
		dbFail(c, err, "播放列表不存在", "获取播放列表失败")
		return
	}

	var req PlaylistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}
	if !h.checkPlaylistRefs(c, req) {
		return
	}
	if h.playlistIDTaken(req.PlaylistID, playlist.ID) {
		fail(c, http.StatusConflict, "播放列表已存在")
		return
	}

	playlist.PlaylistID = req.PlaylistID
	playlist.YouTubeChannelID = req.YouTubeChannelID
	playlist.SeriesID = req.SeriesID
	playlist.Title = req.Title
	playlist.Description = req.Description
	if err := h.db.WithContext(c.Request.Context()).Save(&playlist).Error; err != nil {
		fail(c, http.StatusInternalServerError, "更新播放列表失败")
		return
	}
	success(c, playlist, "更新播放列表成功")
}

func (h *YouTubeHandler) DeletePlaylist(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	result := h.db.WithContext(c.Request.Context()).Delete(&model.YouTubePlaylist{}, id)
	if result.Error != nil {
		fail(c, http.StatusInternalServerError, "删除播放列表失败")
		return
	}
	if result.RowsAffected == 0 {
		fail(c, http.StatusNotFound, "播放列表不存在")
		return
	}
	success(c, nil, "删除播放列表成功")
}

func (h *YouTubeHandler) checkPlaylistRefs(c *gin.Context, req PlaylistRequest) bool {
	var count int64
	h.db.Model(&model.YouTubeChannel{}).Where("id = ?", req.YouTubeChannelID).Count(&count)
	if count == 0 {
		fail(c, http.StatusBadRequest, "频道不存在")
		return false
	}
	if req.SeriesID != nil {
		h.db.Model(&model.Series{}).Where("id = ?", *req.SeriesID).Count(&count)
		if count == 0 {
			fail(c, http.StatusBadRequest, "系列不存在")
			return false
		}
	}
	return true
}

func (h *YouTubeHandler) channelIDTaken(channelID string, exceptID uint) bool {
	var count int64
	h.db.Unscoped().Model(&model.YouTubeChannel{}).Where("channel_id = ? AND id <> ?", channelID, exceptID).Count(&count)
	return count > 0
}

func (h *YouTubeHandler) playlistIDTaken(playlistID string, exceptID uint) bool {
	var count int64
	h.db.Unscoped().Model(&model.YouTubePlaylist{}).Where("playlist_id = ? AND id <> ?", playlistID, exceptID).Count(&count)
	return count > 0
}
