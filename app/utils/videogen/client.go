package videogen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"resty.dev/v3"
)

const apiKeyHeader = "X-API-Key"

var (
	// ErrUnhealthy 健康检查未返回 200
	ErrUnhealthy = errors.New("video service unhealthy")
	// ErrRequestFailed 生成请求返回非 2xx
	ErrRequestFailed = errors.New("video generation request failed")
	// ErrMalformedResponse 生成请求的响应无法解析
	ErrMalformedResponse = errors.New("malformed video generation response")
	// ErrNoTaskID 响应中没有 task_id
	ErrNoTaskID = errors.New("no task_id returned")
)

// GenerateVideoRequest 视频生成请求
type GenerateVideoRequest struct {
	CallbackURL        string `json:"callback_url"`
	AudioFileKey       string `json:"audio_file_key"`
	BackgroundImageKey string `json:"background_image_key"`
}

type generateVideoResponse struct {
	TaskID string `json:"task_id"`
}

// Client 外部视频生成服务客户端
type Client struct {
	client *resty.Client
}

// New 创建视频生成服务客户端
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetHeader(apiKeyHeader, apiKey)
	if timeout > 0 {
		client.SetTimeout(timeout)
	}

	return &Client{client: client}
}

// Close 释放底层连接
func (c *Client) Close() error {
	return c.client.Close()
}

// Health 检查服务是否可用，仅 200 视为健康
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.client.R().
		SetContext(ctx).
		Get("/health")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnhealthy, err)
	}

	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("%w: 状态码 %d", ErrUnhealthy, resp.StatusCode())
	}
	return nil
}

// GenerateVideo 提交视频生成任务，返回外部任务 ID
func (c *Client) GenerateVideo(ctx context.Context, req GenerateVideoRequest) (string, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post("/generate-video")
	if err != nil {
		return "", fmt.Errorf("请求视频生成失败: %w", err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return "", fmt.Errorf("%w: 状态码 %d, 响应: %s", ErrRequestFailed, resp.StatusCode(), resp.String())
	}

	var result generateVideoResponse
	if err := json.Unmarshal([]byte(resp.String()), &result); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if strings.TrimSpace(result.TaskID) == "" {
		return "", ErrNoTaskID
	}
	return result.TaskID, nil
}
