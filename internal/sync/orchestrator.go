package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailsync/backend/internal/domain"
	"mailsync/backend/internal/graph"
	"mailsync/backend/internal/monitoring"
	"mailsync/backend/internal/storage"
)

// 列表默认分页与缓存时长。
const (
	defaultListLimit = 50
	listCacheTTL     = 30 * time.Second
)

// TokenProvider 提供当前有效的访问令牌。
type TokenProvider interface {
	EnsureToken(ctx context.Context) (string, error)
}

// Extractor 从远端邮箱抽取候选邮件。
type Extractor interface {
	FetchFolderID(ctx context.Context, token, folderName string) (string, error)
	FetchMessages(ctx context.Context, token, folderID string) ([]graph.Message, error)
}

// SyncResult performSync 的返回载荷。同步失败时 Fallback=true，
// Emails 依旧携带本地已有数据——失败降级为提供旧数据，而不是报错。
type SyncResult struct {
	Emails   []domain.MailItem `json:"emails"`
	Stats    domain.SyncStats  `json:"syncStats"`
	Mode     string            `json:"mode"`
	Fallback bool              `json:"fallback,omitempty"`
	Message  string            `json:"message,omitempty"`
}

// ListResult listStoredEmails 的返回载荷。
type ListResult struct {
	Emails             []domain.MailItem `json:"emails"`
	Total              int               `json:"total"`
	LastSuccessfulSync *time.Time        `json:"lastSuccessfulSync,omitempty"`
}

// Orchestrator 同步编排状态机：
// TokenCheck → ModeDecision → Extracting → Reconciling → Finalizing。
// 运行日志在进入 Extracting 时创建，并保证在所有出口路径收尾一次。
type Orchestrator struct {
	store      storage.Store
	tokens     TokenProvider
	extractor  Extractor
	reconciler *Reconciler
	cache      ListingCache
	metrics    *monitoring.Metrics
	log        *zap.Logger
	folder     string
	now        func() time.Time
}

// OrchestratorOptions 编排器依赖项。Cache 与 Metrics 可以为 nil。
type OrchestratorOptions struct {
	Store        storage.Store
	Tokens       TokenProvider
	Extractor    Extractor
	Reconciler   *Reconciler
	Cache        ListingCache
	Metrics      *monitoring.Metrics
	Logger       *zap.Logger
	TargetFolder string
}

// NewOrchestrator 创建同步编排器。
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		store:      opts.Store,
		tokens:     opts.Tokens,
		extractor:  opts.Extractor,
		reconciler: opts.Reconciler,
		cache:      opts.Cache,
		metrics:    opts.Metrics,
		log:        log,
		folder:     opts.TargetFolder,
		now:        time.Now,
	}
}

// PerformSync 执行一次端到端同步。任何失败都降级为返回本地
// 已有数据（Fallback=true），绝不让调用方空手而归——除非本地
// 本来就一无所有。
func (o *Orchestrator) PerformSync(ctx context.Context, forceFull bool) *SyncResult {
	started := o.now()

	// TokenCheck
	token, err := o.tokens.EnsureToken(ctx)
	if err != nil {
		o.log.Error("token check failed, serving stale data", zap.Error(err))
		return o.fallback(o.decideMode(forceFull), "无法获取访问令牌，返回本地已有数据", err)
	}

	// ModeDecision：库为空或调用方强制时为 full，否则 incremental。
	// 两种模式执行完全相同的对账，模式只写入运行日志。
	mode := o.decideMode(forceFull)

	stats, runErr := o.performRun(ctx, token, mode)
	o.recordRun(mode, stats, started, runErr)
	if runErr != nil {
		o.log.Error("sync run failed, serving stale data",
			zap.String("mode", mode),
			zap.Error(runErr),
		)
		return o.fallback(mode, "同步失败，返回本地已有数据", runErr)
	}

	if o.cache != nil {
		if err := o.cache.InvalidateEmailLists(ctx); err != nil {
			o.log.Warn("listing cache invalidation failed", zap.Error(err))
		}
	}

	emails, total, err := o.store.ListMailItems(storage.MailItemFilter{Limit: defaultListLimit})
	if err != nil {
		// 同步本身已成功入库，只是回读失败
		o.log.Error("post-sync listing failed", zap.Error(err))
		emails = []domain.MailItem{}
	} else if o.metrics != nil {
		o.metrics.UpdateMailItemsStored(total)
	}

	o.log.Info("sync finished",
		zap.String("mode", mode),
		zap.Int("inserted", stats.Inserted),
		zap.Int("updated", stats.Updated),
		zap.Int("unchanged", stats.Unchanged),
		zap.Int("skipped", stats.Skipped),
	)
	return &SyncResult{Emails: emails, Stats: stats, Mode: mode}
}

// decideMode 判定同步模式。存储不可用时按 incremental 处理，
// 后续步骤会暴露真正的失败。
func (o *Orchestrator) decideMode(forceFull bool) string {
	if forceFull {
		return domain.SyncModeFull
	}
	_, total, err := o.store.ListMailItems(storage.MailItemFilter{Limit: 1})
	if err == nil && total == 0 {
		return domain.SyncModeFull
	}
	return domain.SyncModeIncremental
}

// performRun 驱动 Extracting → Reconciling，并以 defer 保证
// 运行日志在成功与失败两条路径上都恰好收尾一次。
func (o *Orchestrator) performRun(ctx context.Context, token, mode string) (stats domain.SyncStats, err error) {
	now := o.now()
	run := &domain.SyncRun{
		ID:        uuid.NewString(),
		Mode:      mode,
		StartedAt: now,
		CreatedAt: now,
	}
	if cerr := o.store.CreateSyncRun(run); cerr != nil {
		return stats, fmt.Errorf("open sync run: %w", cerr)
	}

	defer func() {
		finished := o.now()
		run.FinishedAt = &finished
		run.Inserted = stats.Inserted
		run.Updated = stats.Updated
		if err != nil {
			run.Outcome = domain.SyncOutcomeFailed
			run.ErrorMessage = err.Error()
		} else {
			run.Outcome = domain.SyncOutcomeOK
		}
		if ferr := o.store.FinalizeSyncRun(run); ferr != nil {
			o.log.Error("finalize sync run failed",
				zap.String("run_id", run.ID),
				zap.Error(ferr),
			)
		}
	}()

	// Extracting
	folderID, ferr := o.extractor.FetchFolderID(ctx, token, o.folder)
	if ferr != nil {
		err = fmt.Errorf("resolve folder %q: %w", o.folder, ferr)
		return stats, err
	}
	candidates, ferr := o.extractor.FetchMessages(ctx, token, folderID)
	if ferr != nil {
		err = fmt.Errorf("extract messages: %w", ferr)
		return stats, err
	}

	// Reconciling：整个候选集一趟过，不做逐页提交，
	// 保证运行日志里的计数对应一个一致的快照。
	stats, err = o.reconciler.Reconcile(candidates)
	return stats, err
}

// ListStoredEmails 只读列出本地邮件与最近一次成功同步时间。
func (o *Orchestrator) ListStoredEmails(ctx context.Context, limit, offset int, statusFilter *int) (*ListResult, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	cacheKey := listCacheKey(limit, offset, statusFilter)
	if o.cache != nil {
		if cached, err := o.cache.GetEmailList(ctx, cacheKey); err == nil {
			return cached, nil
		} else if !errors.Is(err, ErrCacheMiss) {
			o.log.Warn("listing cache read failed", zap.Error(err))
		}
	}

	emails, total, err := o.store.ListMailItems(storage.MailItemFilter{
		Limit:  limit,
		Offset: offset,
		Status: statusFilter,
	})
	if err != nil {
		return nil, fmt.Errorf("list mail items: %w", err)
	}

	result := &ListResult{Emails: emails, Total: total}
	lastRun, err := o.store.GetLastSuccessfulRun()
	if err == nil && lastRun.FinishedAt != nil {
		result.LastSuccessfulSync = lastRun.FinishedAt
	} else if err != nil && !errors.Is(err, storage.ErrSyncRunNotFound) {
		o.log.Warn("last successful run lookup failed", zap.Error(err))
	}

	if o.cache != nil {
		if err := o.cache.SetEmailList(ctx, cacheKey, result, listCacheTTL); err != nil {
			o.log.Warn("listing cache write failed", zap.Error(err))
		}
	}
	return result, nil
}

// ListRecentRuns 返回最近的同步运行日志。
func (o *Orchestrator) ListRecentRuns(limit int) ([]domain.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	return o.store.ListSyncRuns(limit)
}

// fallback 构造降级响应：尽力返回本地已有数据与失败说明。
func (o *Orchestrator) fallback(mode, message string, cause error) *SyncResult {
	emails, _, err := o.store.ListMailItems(storage.MailItemFilter{Limit: defaultListLimit})
	if err != nil {
		o.log.Error("fallback listing failed", zap.Error(err))
		emails = []domain.MailItem{}
	}
	return &SyncResult{
		Emails:   emails,
		Mode:     mode,
		Fallback: true,
		Message:  fmt.Sprintf("%s: %v", message, cause),
	}
}

// recordRun 上报运行指标。
func (o *Orchestrator) recordRun(mode string, stats domain.SyncStats, started time.Time, err error) {
	if o.metrics == nil {
		return
	}
	outcome := domain.SyncOutcomeOK
	if err != nil {
		outcome = domain.SyncOutcomeFailed
	}
	o.metrics.RecordSyncRun(mode, outcome, o.now().Sub(started))
	o.metrics.RecordSyncItems(stats)
}

// listCacheKey 生成列表缓存键。
func listCacheKey(limit, offset int, status *int) string {
	if status == nil {
		return fmt.Sprintf("emails:list:%d:%d:all", limit, offset)
	}
	return fmt.Sprintf("emails:list:%d:%d:%d", limit, offset, *status)
}
