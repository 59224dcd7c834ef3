// Package imageutil 处理上传的背景图
package imageutil

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	BackgroundWidth  = 1920
	BackgroundHeight = 1080
	jpegQuality      = 90
)

var ErrUnsupportedImage = errors.New("unsupported image format")

// NormalizeBackground 将背景图裁剪缩放为 1920x1080 并编码为 JPEG
func NormalizeBackground(r io.Reader) ([]byte, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrUnsupportedImage
		}
		return nil, fmt.Errorf("解码图片失败: %w", err)
	}

	if b := img.Bounds(); b.Dx() != BackgroundWidth || b.Dy() != BackgroundHeight {
		img = imaging.Fill(img, BackgroundWidth, BackgroundHeight, imaging.Center, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("编码图片失败: %w", err)
	}
	return buf.Bytes(), nil
}
