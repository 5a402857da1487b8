package sync

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss 缓存未命中。
var ErrCacheMiss = errors.New("cache miss")

// ListingCache 邮件列表的旁路缓存。实现是可选的：
// 编排器在缓存为 nil 时直接查询存储。
type ListingCache interface {
	GetEmailList(ctx context.Context, key string) (*ListResult, error)
	SetEmailList(ctx context.Context, key string, listing *ListResult, ttl time.Duration) error
	// InvalidateEmailLists 丢弃全部列表缓存；每次成功同步
	// 与每次工单流转之后调用。
	InvalidateEmailLists(ctx context.Context) error
}
