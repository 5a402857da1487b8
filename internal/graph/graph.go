// Package graph 封装对 Microsoft Graph 的访问：
// 客户端凭据令牌的获取与缓存，以及邮件文件夹的游标分页抽取。
package graph

import (
	"net/http"
	"time"
)

// Config Graph 接入配置
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Scope        string // 默认 "https://graph.microsoft.com/.default"
	LoginBaseURL string // 默认 "https://login.microsoftonline.com"
	GraphBaseURL string // 默认 "https://graph.microsoft.com/v1.0/users"
	MailboxUser  string // 目标邮箱地址
	TargetFolder string // 目标文件夹名称
	PageSize     int    // 每页条数，默认 100
	MaxPages     int    // 分页上限，防止异常远端导致的无界迭代，默认 100
	Timeout      time.Duration
}

// 配置默认值。
const (
	DefaultScope        = "https://graph.microsoft.com/.default"
	DefaultLoginBaseURL = "https://login.microsoftonline.com"
	DefaultGraphBaseURL = "https://graph.microsoft.com/v1.0/users"
	DefaultPageSize     = 100
	DefaultMaxPages     = 100
	DefaultTimeout      = 30 * time.Second
)

// withDefaults 填充未设置的配置项。
func (c Config) withDefaults() Config {
	if c.Scope == "" {
		c.Scope = DefaultScope
	}
	if c.LoginBaseURL == "" {
		c.LoginBaseURL = DefaultLoginBaseURL
	}
	if c.GraphBaseURL == "" {
		c.GraphBaseURL = DefaultGraphBaseURL
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.MaxPages <= 0 {
		c.MaxPages = DefaultMaxPages
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// newHTTPClient 创建带请求超时的 HTTP 客户端。
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
