package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/xeocast/xeocast-admin-workers-sub001/app/logger"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/service"

	"github.com/gin-gonic/gin"
)

// StatsProvider 流水线统计
type StatsProvider interface {
	StatsInvalidator
	Get(ctx context.Context, refresh bool) (*service.PipelineStats, error)
}

// PipelineHandler 视频流水线状态与手动触发
type PipelineHandler struct {
	stats      StatsProvider
	dispatcher service.Dispatcher
	log        *logger.Logger
}

func NewPipelineHandler(stats StatsProvider, dispatcher service.Dispatcher, log *logger.Logger) *PipelineHandler {
	return &PipelineHandler{stats: stats, dispatcher: dispatcher, log: log}
}

// Status 返回各状态的播客数量及当前生成中的播客，refresh=true 跳过缓存
func (h *PipelineHandler) Status(c *gin.Context) {
	refresh, _ := strconv.ParseBool(c.Query("refresh"))
	stats, err := h.stats.Get(c.Request.Context(), refresh)
	if err != nil {
		h.log.Errorf("获取流水线统计失败: %v", err)
		fail(c, http.StatusInternalServerError, "获取流水线状态失败")
		return
	}
	success(c, stats, "获取流水线状态成功")
}

// Trigger 立即执行一次视频调度，与定时任务走同一逻辑
func (h *PipelineHandler) Trigger(c *gin.Context) {
	result := h.dispatcher.TriggerVideoGeneration(c.Request.Context())
	h.stats.Invalidate()
	h.log.Infof("手动触发视频调度: %s", result.Outcome)
	success(c, result, "调度完成")
}
