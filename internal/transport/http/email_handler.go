package httptransport

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"mailsync/backend/internal/domain"
	"mailsync/backend/internal/storage"
)

// listEmails 列出本地已同步的邮件，按接收时间倒序。
// GET /v1/emails?limit=50&offset=0&status=1
func (h *Handler) listEmails(c *gin.Context) {
	limit := 50
	offset := 0
	var statusFilter *int

	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			BadRequest(c, MsgInvalidLimit)
			return
		}
		limit = parsed
	}
	if raw := c.Query("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			BadRequest(c, MsgInvalidLimit)
			return
		}
		offset = parsed
	}
	if raw := c.Query("status"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || !domain.ValidTicketStatus(parsed) {
			BadRequest(c, MsgInvalidStatus)
			return
		}
		statusFilter = &parsed
	}

	listing, err := h.orchestrator.ListStoredEmails(c.Request.Context(), limit, offset, statusFilter)
	if err != nil {
		InternalError(c, MsgEmailsFailed)
		return
	}
	Success(c, listing)
}

// getEmail 获取单封邮件详情。
// GET /v1/emails/:id
func (h *Handler) getEmail(c *gin.Context) {
	item, err := h.tickets.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrMailItemNotFound) {
			NotFound(c, GetErrorMessage(storage.ErrMailItemNotFound))
			return
		}
		InternalError(c, MsgEmailGetFailed)
		return
	}
	Success(c, item)
}

// discardEmail 软删除邮件。
// POST /v1/emails/:id/discard
func (h *Handler) discardEmail(c *gin.Context) {
	err := h.tickets.Discard(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrMailItemNotFound) {
			NotFound(c, GetErrorMessage(storage.ErrMailItemNotFound))
			return
		}
		InternalError(c, MsgDiscardFailed)
		return
	}
	SuccessWithMsg(c, "邮件已删除", nil)
}

// promoteRequest 工单创建请求体。
type promoteRequest struct {
	AssignedTo *string `json:"assignedTo"`
}

// promoteEmail 将邮件提升为工单。
// POST /v1/emails/:id/ticket
func (h *Handler) promoteEmail(c *gin.Context) {
	var req promoteRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, MsgInvalidRequest)
			return
		}
	}

	item, err := h.tickets.Promote(c.Request.Context(), c.Param("id"), req.AssignedTo)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrMailItemNotFound):
			NotFound(c, GetErrorMessage(storage.ErrMailItemNotFound))
		case errors.Is(err, domain.ErrItemDiscarded):
			Conflict(c, GetErrorMessage(domain.ErrItemDiscarded))
		default:
			InternalError(c, MsgPromoteFailed)
		}
		return
	}
	SuccessWithMsg(c, "工单已创建", item)
}

// statusRequest 状态流转请求体。
type statusRequest struct {
	Status int `json:"status" binding:"required"`
}

// setEmailStatus 变更工单状态。
// PATCH /v1/emails/:id/status
func (h *Handler) setEmailStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	item, err := h.tickets.SetStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownTicketStatus):
			BadRequest(c, GetErrorMessage(domain.ErrUnknownTicketStatus))
		case errors.Is(err, storage.ErrMailItemNotFound):
			NotFound(c, GetErrorMessage(storage.ErrMailItemNotFound))
		default:
			InternalError(c, MsgStatusFailed)
		}
		return
	}
	SuccessWithMsg(c, "状态已更新", item)
}
