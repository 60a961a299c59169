package httptransport

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"proxypool/backend/internal/domain"
	"proxypool/backend/internal/middleware"
	"proxypool/backend/internal/service"
	"proxypool/backend/internal/storage"
)

// PoolHandler 处理代理批次的生成与交付
//
// 交付（复制、下载 txt、下载 xlsx）都会消费当前批次：
// 记录从池中移除，使用量入账，同一批次不能交付两次。
type PoolHandler struct {
	pool *service.PoolService
	log  *zap.Logger
}

// NewPoolHandler 创建代理池处理器
func NewPoolHandler(pool *service.PoolService, log *zap.Logger) *PoolHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &PoolHandler{pool: pool, log: log}
}

type generateRequest struct {
	Amount int `json:"amount" binding:"required"`
}

type batchResponse struct {
	ID        string    `json:"id"`
	Amount    int       `json:"amount"`
	Proxies   []string  `json:"proxies"`
	CreatedAt time.Time `json:"createdAt"`
}

func newBatchResponse(batch *domain.Batch) batchResponse {
	return batchResponse{
		ID:        batch.ID,
		Amount:    batch.Size(),
		Proxies:   batch.ProxyStrings(),
		CreatedAt: batch.CreatedAt,
	}
}

// Generate 申请一个新批次
//
// 重复申请会释放旧批次的预占后重新分配，
// 库存不足时返回 422 并附带当前可用条数。
func (h *PoolHandler) Generate(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	batch, err := h.pool.Allocate(user.ID, req.Amount)
	if err != nil {
		if errors.Is(err, storage.ErrNotEnoughProxies) {
			h.respondNotEnough(c)
			return
		}
		RespondError(c, err)
		return
	}

	SuccessWithMsg(c, "生成成功", newBatchResponse(batch))
}

// Current 返回用户当前持有的未交付批次
func (h *PoolHandler) Current(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	batch, err := h.pool.CurrentBatch(user.ID)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, newBatchResponse(batch))
}

// Copy 以复制方式交付当前批次
//
// 返回换行拼接的代理文本，批次随之被消费。
func (h *PoolHandler) Copy(c *gin.Context) {
	batch, ok := h.consume(c)
	if !ok {
		return
	}

	Success(c, gin.H{
		"content": service.ExportClipboard(batch.ProxyStrings()),
		"count":   batch.Size(),
	})
}

// DownloadText 以 txt 文件方式交付当前批次
func (h *PoolHandler) DownloadText(c *gin.Context) {
	batch, ok := h.consume(c)
	if !ok {
		return
	}

	fileName := service.TextFileName(time.Now())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", service.ExportText(batch.ProxyStrings()))
}

// DownloadSheet 以 xlsx 文件方式交付当前批次
func (h *PoolHandler) DownloadSheet(c *gin.Context) {
	batch, ok := h.consume(c)
	if !ok {
		return
	}

	data, err := service.ExportSheet(batch.ProxyStrings())
	if err != nil {
		h.log.Error("failed to render xlsx", zap.String("batch_id", batch.ID), zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}

	fileName := service.SheetFileName(time.Now())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// consume 消费当前用户的批次，失败时直接写出响应
func (h *PoolHandler) consume(c *gin.Context) (*domain.Batch, bool) {
	user := middleware.CurrentUser(c)
	if user == nil {
		Unauthorized(c, MsgAuthRequired)
		return nil, false
	}

	batch, err := h.pool.Consume(user.ID)
	if err != nil {
		RespondError(c, err)
		return nil, false
	}
	return batch, true
}

// respondNotEnough 库存不足的 422 响应，附带当前剩余条数
func (h *PoolHandler) respondNotEnough(c *gin.Context) {
	total, reserved, err := h.pool.PoolCounts()
	if err != nil {
		UnprocessableEntity(c, GetErrorMessage(storage.ErrNotEnoughProxies))
		return
	}
	available := total - reserved
	UnprocessableEntityWithData(c,
		fmt.Sprintf("可用代理数量不足，当前剩余 %d 条", available),
		gin.H{"available": available},
	)
}
