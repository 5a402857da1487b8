// Package health 暴露存储与缓存的存活/就绪检查端点。
package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"mailsync/backend/internal/storage"
	"mailsync/backend/internal/storage/redis"
)

// Checker 健康检查器
type Checker struct {
	health healthcheck.Handler
	store  storage.Store
	cache  *redis.Cache
	logger *zap.Logger
}

// NewChecker 创建健康检查器。cache 可以为 nil。
func NewChecker(store storage.Store, cache *redis.Cache, logger *zap.Logger) *Checker {
	c := &Checker{
		health: healthcheck.NewHandler(),
		store:  store,
		cache:  cache,
		logger: logger,
	}
	c.addChecks()
	return c
}

func (c *Checker) addChecks() {
	c.health.AddReadinessCheck("store", func() error {
		return c.store.Health()
	})

	if c.cache != nil {
		c.health.AddReadinessCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return c.cache.Health(ctx)
		})
	}

	// 进程本身存活即通过
	c.health.AddLivenessCheck("process", func() error { return nil })
}

// Handler 返回健康检查处理器，提供 /live 与 /ready。
func (c *Checker) Handler() http.Handler {
	return c.health
}

// Snapshot 汇总当前各依赖的健康状态。
func (c *Checker) Snapshot() map[string]string {
	results := make(map[string]string)

	if err := c.store.Health(); err != nil {
		results["store"] = fmt.Sprintf("ERROR: %v", err)
	} else {
		results["store"] = "OK"
	}

	if c.cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.cache.Health(ctx); err != nil {
			results["redis"] = fmt.Sprintf("ERROR: %v", err)
		} else {
			results["redis"] = "OK"
		}
	} else {
		results["redis"] = "NOT_AVAILABLE"
	}

	results["timestamp"] = time.Now().Format(time.RFC3339)
	return results
}
