package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/xeocast/xeocast-admin-workers-sub001/app/logger"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/storage"

	"github.com/gin-gonic/gin"
)

// AssetHandler 读取与删除存储中的对象
type AssetHandler struct {
	store storage.BlobStore
	log   *logger.Logger
}

func NewAssetHandler(store storage.BlobStore, log *logger.Logger) *AssetHandler {
	return &AssetHandler{store: store, log: log}
}

// GetAsset 流式返回对象内容，路由形如 /assets/*key
func (h *AssetHandler) GetAsset(c *gin.Context) {
	obj, err := h.store.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		h.assetError(c, err)
		return
	}
	defer obj.Body.Close()

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	if obj.Size > 0 {
		c.Header("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, obj.Body); err != nil {
		h.log.Warnf("输出文件 %s 失败: %v", c.Param("key"), err)
	}
}

func (h *AssetHandler) DeleteAsset(c *gin.Context) {
	if err := h.store.Delete(c.Request.Context(), c.Param("key")); err != nil {
		h.assetError(c, err)
		return
	}
	success(c, nil, "删除文件成功")
}

func (h *AssetHandler) assetError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrInvalidKey):
		fail(c, http.StatusBadRequest, "无效的文件路径")
	case errors.Is(err, storage.ErrNotFound):
		fail(c, http.StatusNotFound, "文件不存在")
	default:
		h.log.Errorf("访问文件 %s 失败: %v", c.Param("key"), err)
		fail(c, http.StatusInternalServerError, "访问文件失败")
	}
}
