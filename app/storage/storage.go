// Package storage 按 key 存取音频、背景图等二进制对象
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/xeocast/xeocast-admin-workers-sub001/app/config"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid object key")
)

// Object 读取到的对象，调用方负责关闭 Body
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// BlobStore 按 key 存取对象
type BlobStore interface {
	Put(ctx context.Context, key string, body io.ReadSeeker, contentType string) error
	Get(ctx context.Context, key string) (*Object, error)
	Delete(ctx context.Context, key string) error
}

// New 按配置创建存储
func New(ctx context.Context, cfg config.StorageConfig) (BlobStore, error) {
	switch cfg.Driver {
	case "s3":
		return NewS3Store(ctx, cfg.S3)
	case "local", "":
		return NewLocalStore(cfg.LocalDir)
	default:
		return nil, fmt.Errorf("不支持的存储驱动: %s", cfg.Driver)
	}
}

// NewKey 生成 prefix/<uuid><ext> 形式的 key
func NewKey(prefix, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return path.Join(prefix, uuid.NewString()+strings.ToLower(ext))
}

// CleanKey 规范化 key，拒绝空 key 和越出根目录的路径
func CleanKey(key string) (string, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}
	return cleaned, nil
}
