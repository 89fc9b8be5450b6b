package handler

import (
	"metacoin-ledger/internal/adapter/http/dto"
	"metacoin-ledger/internal/core/ports"
	"metacoin-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// HistoryHandler serves persisted transfer history.
type HistoryHandler struct {
	historySvc ports.HistoryService
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(historySvc ports.HistoryService) *HistoryHandler {
	return &HistoryHandler{historySvc: historySvc}
}

// ListTransfers handles GET /api/v1/accounts/:account/transfers.
func (h *HistoryHandler) ListTransfers(c *gin.Context) {
	account, ok := accountParam(c)
	if !ok {
		return
	}

	var q dto.TransferListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, bindError(err))
		return
	}

	if q.Page == 0 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = 20
	}

	params := ports.TransferListParams{
		Account:   account,
		Direction: ports.TransferDirection(q.Direction),
		Page:      q.Page,
		PageSize:  q.PageSize,
	}

	records, total, err := h.historySvc.ListTransfers(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paged(c, dto.NewTransferRecordResponses(records), q.Page, q.PageSize, total)
}
