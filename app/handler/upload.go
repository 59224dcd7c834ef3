package handler

import (
	"bytes"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/xeocast/xeocast-admin-workers-sub001/app/storage"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/utils/imageutil"

	"github.com/gin-gonic/gin"
)

const (
	maxAudioSize      = 500 << 20
	maxBackgroundSize = 20 << 20
	formFileField     = "file"
)

var audioExtensions = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
}

// uploadError 上传失败时需要返回给调用方的状态码与消息
type uploadError struct {
	status  int
	message string
}

func (e *uploadError) Error() string { return e.message }

func respondUpload(c *gin.Context, err error) {
	var ue *uploadError
	if errors.As(err, &ue) {
		fail(c, ue.status, ue.message)
		return
	}
	fail(c, http.StatusInternalServerError, "保存文件失败")
}

func formFile(c *gin.Context, limit int64) (*multipart.FileHeader, error) {
	fh, err := c.FormFile(formFileField)
	if err != nil {
		return nil, &uploadError{http.StatusBadRequest, "缺少上传文件"}
	}
	if fh.Size > limit {
		return nil, &uploadError{http.StatusRequestEntityTooLarge, fmt.Sprintf("文件超过 %d MB", limit>>20)}
	}
	return fh, nil
}

// storeAudio 保存音频到 prefix 下，返回对象 key
func storeAudio(c *gin.Context, store storage.BlobStore, prefix string) (string, error) {
	fh, err := formFile(c, maxAudioSize)
	if err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	contentType, ok := audioExtensions[ext]
	if !ok {
		return "", &uploadError{http.StatusBadRequest, "不支持的音频格式: " + ext}
	}

	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("打开上传文件失败: %w", err)
	}
	defer f.Close()

	key := storage.NewKey(prefix, ext)
	if err := store.Put(c.Request.Context(), key, f, contentType); err != nil {
		return "", err
	}
	return key, nil
}

// storeBackground 将背景图规范为 1920x1080 JPEG 后保存，返回对象 key
func storeBackground(c *gin.Context, store storage.BlobStore, prefix string) (string, error) {
	fh, err := formFile(c, maxBackgroundSize)
	if err != nil {
		return "", err
	}

	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("打开上传文件失败: %w", err)
	}
	defer f.Close()

	data, err := imageutil.NormalizeBackground(f)
	if err != nil {
		if errors.Is(err, imageutil.ErrUnsupportedImage) {
			return "", &uploadError{http.StatusBadRequest, "不支持的图片格式"}
		}
		return "", &uploadError{http.StatusBadRequest, "图片解析失败"}
	}

	key := storage.NewKey(prefix, ".jpg")
	if err := store.Put(c.Request.Context(), key, bytes.NewReader(data), "image/jpeg"); err != nil {
		return "", err
	}
	return key, nil
}
