package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// ApiResponse 统一的API响应格式
type ApiResponse struct {
	Code    int    `json:"code"`    // 状态码，0表示成功
	Message string `json:"message"` // 响应消息
	Data    any    `json:"data"`    // 响应数据
}

// PageResult 分页列表
type PageResult struct {
	List     any   `json:"list"`
	Total    int64 `json:"total"`
	Current  int   `json:"current"`
	PageSize int   `json:"pageSize"`
}

// 创建成功响应
func success(c *gin.Context, data any, message string) {
	c.JSON(http.StatusOK, ApiResponse{
		Code:    0,
		Message: message,
		Data:    data,
	})
}

// 创建错误响应，业务错误码与 HTTP 状态码一致
func fail(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, ApiResponse{
		Code:    statusCode,
		Message: message,
		Data:    nil,
	})
}

// dbFail 记录不存在返回 404，其余返回 500
func dbFail(c *gin.Context, err error, notFound, failed string) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fail(c, http.StatusNotFound, notFound)
		return
	}
	fail(c, http.StatusInternalServerError, failed)
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		fail(c, http.StatusBadRequest, "无效的ID")
		return 0, false
	}
	return uint(id), true
}

// pagination 读取 page / page_size 参数
func pagination(c *gin.Context) (page, pageSize, offset int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize, (page - 1) * pageSize
}

// listPage 统计总数并读取当前页，preloads 只作用于列表查询
func listPage[T any](c *gin.Context, query *gorm.DB, order string, preloads ...string) (*PageResult, error) {
	page, pageSize, offset := pagination(c)

	var total int64
	if err := query.Session(&gorm.Session{}).Model(new(T)).Count(&total).Error; err != nil {
		return nil, err
	}

	for _, p := range preloads {
		query = query.Preload(p)
	}
	items := make([]T, 0)
	if err := query.Order(order).Offset(offset).Limit(pageSize).Find(&items).Error; err != nil {
		return nil, err
	}

	return &PageResult{List: items, Total: total, Current: page, PageSize: pageSize}, nil
}

// queryUint 解析可选的数字查询参数
func queryUint(c *gin.Context, key string) (uint, bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, false, err
	}
	return uint(v), true, nil
}
