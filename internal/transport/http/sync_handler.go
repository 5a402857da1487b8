package httptransport

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// triggerSync 触发一次端到端同步。
// POST /v1/sync?force=true 强制 full 模式。
// 同步失败不返回错误：响应标记 fallback 并携带本地已有数据。
func (h *Handler) triggerSync(c *gin.Context) {
	forceFull := c.Query("force") == "true"

	result := h.orchestrator.PerformSync(c.Request.Context(), forceFull)
	if result.Fallback {
		SuccessWithMsg(c, MsgSyncFallback, result)
		return
	}
	SuccessWithMsg(c, MsgSyncOK, result)
}

// listSyncRuns 返回最近的同步运行日志。
// GET /v1/sync/runs?limit=20
func (h *Handler) listSyncRuns(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 200 {
			BadRequest(c, MsgInvalidLimit)
			return
		}
		limit = parsed
	}

	runs, err := h.orchestrator.ListRecentRuns(limit)
	if err != nil {
		InternalError(c, MsgRunListFailed)
		return
	}
	Success(c, gin.H{"runs": runs, "count": len(runs)})
}
