package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/xeocast/xeocast-admin-workers-sub001/app/logger"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/metrics"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CallbackProcessor 处理视频生成回调
type CallbackProcessor interface {
	HandleCallback(ctx context.Context, req service.CallbackRequest) (service.CallbackResult, error)
}

// VideoCallbackHandler 接收视频生成服务的回调，响应为纯文本
type VideoCallbackHandler struct {
	callbacks CallbackProcessor
	stats     StatsInvalidator
	log       *logger.Logger
}

func NewVideoCallbackHandler(callbacks CallbackProcessor, stats StatsInvalidator, log *logger.Logger) *VideoCallbackHandler {
	return &VideoCallbackHandler{callbacks: callbacks, stats: stats, log: log}
}

// Handle 注册为 Any 路由，非 POST 请求返回 405
func (h *VideoCallbackHandler) Handle(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		c.Header("Allow", http.MethodPost)
		h.reply(c, "", http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	var req service.CallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("回调请求体解析失败", zap.Error(err))
		h.reply(c, "", http.StatusBadRequest, "Invalid JSON body")
		return
	}

	result, err := h.callbacks.HandleCallback(c.Request.Context(), req)
	if err != nil {
		code, message := callbackErrorStatus(err)
		if code == http.StatusInternalServerError {
			h.log.Error("处理视频生成回调失败", zap.String("task_id", req.TaskID), zap.Error(err))
		} else {
			h.log.Warn("拒绝视频生成回调", zap.String("task_id", req.TaskID), zap.Int("code", code), zap.Error(err))
		}
		h.reply(c, req.Status, code, message)
		return
	}

	if result.AlreadyFinished {
		h.reply(c, req.Status, http.StatusOK, "Callback already processed")
		return
	}
	if result.Ignored {
		h.reply(c, req.Status, http.StatusOK, "Callback ignored")
		return
	}

	h.stats.Invalidate()
	h.reply(c, req.Status, http.StatusOK, "Callback processed")
}

func (h *VideoCallbackHandler) reply(c *gin.Context, status string, code int, message string) {
	switch status {
	case service.CallbackStatusCompleted, service.CallbackStatusError:
	case "":
		status = "unknown"
	default:
		status = "other"
	}
	metrics.VideoCallbackTotal.WithLabelValues(status, strconv.Itoa(code)).Inc()
	c.String(code, message)
}

func callbackErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidCallback):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrUnexpectedStatus):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrTaskNotFound):
		return http.StatusNotFound, "Task not found"
	case errors.Is(err, service.ErrPodcastNotFound):
		return http.StatusNotFound, "Podcast not found"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}
