package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// GraphConfig 定义 Microsoft Graph 抽取链路的配置
type GraphConfig struct {
	TenantID     string        // Azure AD 租户 ID
	ClientID     string        // 应用注册的客户端 ID
	ClientSecret string        // 客户端密钥
	Scope        string        // 令牌作用域，默认 ".default"
	LoginBaseURL string        // 身份端点基址，测试时可替换
	GraphBaseURL string        // Graph API 基址，测试时可替换
	MailboxUser  string        // 被同步的邮箱账号 (UPN)
	TargetFolder string        // 同步的目标文件夹名称，默认 "Soporte"
	PageSize     int           // 每页拉取条数，默认 100
	MaxPages     int           // 分页上限，默认 100
	Timeout      time.Duration // 单次 HTTP 请求超时，默认 30s
}

// SyncConfig 定义同步编排行为
type SyncConfig struct {
	Interval   time.Duration // 后台周期同步间隔，0 表示只按请求触发
	ListLimit  int           // 同步响应附带的邮件条数上限
	TriggerRPS float64       // 同步触发端点的限流速率（次/秒）
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
	File        string // 日志文件路径，留空只输出到 stdout
}

// DatabaseConfig 定义数据库连接配置（支持 MySQL 和 PostgreSQL）
type DatabaseConfig struct {
	Type            string        // 数据库类型: "mysql" 或 "postgres"，留空使用内存存储
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
	MaxAttempts     int           // 单个操作的最大尝试次数，默认 3
	RetryBackoff    time.Duration // 重试间隔，默认 1s
}

// RedisConfig 定义 Redis 缓存服务配置
type RedisConfig struct {
	Enabled  bool   // 是否启用列表缓存
	Address  string // Redis 服务地址，格式 "host:port"，默认 "localhost:6379"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// JWTConfig 定义管理端点的 JWT 认证配置
type JWTConfig struct {
	Enabled bool   // 是否启用工单端点的鉴权
	Secret  string // JWT 签名密钥，启用时必须至少 32 字符
	Issuer  string // JWT 签发者标识，默认 "mailsync"
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server   ServerConfig   // HTTP 服务器配置
	Graph    GraphConfig    // 上游抽取配置
	Sync     SyncConfig     // 同步编排配置
	CORS     CORSConfig     // 跨域配置
	Log      LogConfig      // 日志配置
	Database DatabaseConfig // 数据库配置
	Redis    RedisConfig    // Redis 配置
	JWT      JWTConfig      // JWT 认证配置
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: MAILSYNC_
// 例如: MAILSYNC_GRAPH_TENANT_ID, MAILSYNC_DATABASE_DSN
func Load() (*Config, error) {
	// .env 文件是可选的，加载失败静默跳过
	loadEnvFile()

	viper.SetEnvPrefix("mailsync")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("graph.tenant_id", "")
	viper.SetDefault("graph.client_id", "")
	viper.SetDefault("graph.client_secret", "")
	viper.SetDefault("graph.scope", "https://graph.microsoft.com/.default")
	viper.SetDefault("graph.login_base_url", "https://login.microsoftonline.com")
	viper.SetDefault("graph.graph_base_url", "https://graph.microsoft.com/v1.0/users")
	viper.SetDefault("graph.mailbox_user", "")
	viper.SetDefault("graph.target_folder", "Soporte")
	viper.SetDefault("graph.page_size", 100)
	viper.SetDefault("graph.max_pages", 100)
	viper.SetDefault("graph.timeout", "30s")
	viper.SetDefault("sync.interval", "0s")
	viper.SetDefault("sync.list_limit", 50)
	viper.SetDefault("sync.trigger_rps", 1.0)
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("log.file", "")
	viper.SetDefault("database.type", "") // 默认为空，使用内存存储
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("database.max_attempts", 3)
	viper.SetDefault("database.retry_backoff", "1s")
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.enabled", false)
	viper.SetDefault("jwt.secret", "")
	viper.SetDefault("jwt.issuer", "mailsync")

	graphTimeout, err := time.ParseDuration(viper.GetString("graph.timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid graph.timeout: %w", err)
	}

	syncInterval, err := time.ParseDuration(viper.GetString("sync.interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid sync.interval: %w", err)
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	connMaxLifetime, err := time.ParseDuration(viper.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	retryBackoff, err := time.ParseDuration(viper.GetString("database.retry_backoff"))
	if err != nil {
		retryBackoff = time.Second
	}

	dbType := viper.GetString("database.type")
	if dbType != "" && dbType != "mysql" && dbType != "postgres" {
		return nil, fmt.Errorf("unsupported database.type %q (expected mysql, postgres or empty)", dbType)
	}
	if dbType != "" && viper.GetString("database.dsn") == "" {
		return nil, fmt.Errorf("database.dsn is required when database.type is set")
	}

	jwtEnabled := viper.GetBool("jwt.enabled")
	jwtSecret := viper.GetString("jwt.secret")
	if jwtEnabled && len(jwtSecret) < 32 {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret must be at least 32 characters long")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Graph: GraphConfig{
			TenantID:     viper.GetString("graph.tenant_id"),
			ClientID:     viper.GetString("graph.client_id"),
			ClientSecret: viper.GetString("graph.client_secret"),
			Scope:        viper.GetString("graph.scope"),
			LoginBaseURL: viper.GetString("graph.login_base_url"),
			GraphBaseURL: viper.GetString("graph.graph_base_url"),
			MailboxUser:  viper.GetString("graph.mailbox_user"),
			TargetFolder: viper.GetString("graph.target_folder"),
			PageSize:     viper.GetInt("graph.page_size"),
			MaxPages:     viper.GetInt("graph.max_pages"),
			Timeout:      graphTimeout,
		},
		Sync: SyncConfig{
			Interval:   syncInterval,
			ListLimit:  viper.GetInt("sync.list_limit"),
			TriggerRPS: viper.GetFloat64("sync.trigger_rps"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
			File:        viper.GetString("log.file"),
		},
		Database: DatabaseConfig{
			Type:            dbType,
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
			MaxAttempts:     viper.GetInt("database.max_attempts"),
			RetryBackoff:    retryBackoff,
		},
		Redis: RedisConfig{
			Enabled:  viper.GetBool("redis.enabled"),
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Enabled: jwtEnabled,
			Secret:  jwtSecret,
			Issuer:  viper.GetString("jwt.issuer"),
		},
	}

	return cfg, nil
}

// Validate 校验运行同步所必需的上游配置。
// 留空时服务仍可启动（只提供本地读取），但同步会失败。
func (c *Config) Validate() error {
	var missing []string
	if c.Graph.TenantID == "" {
		missing = append(missing, "graph.tenant_id")
	}
	if c.Graph.ClientID == "" {
		missing = append(missing, "graph.client_id")
	}
	if c.Graph.ClientSecret == "" {
		missing = append(missing, "graph.client_secret")
	}
	if c.Graph.MailboxUser == "" {
		missing = append(missing, "graph.mailbox_user")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required graph settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// parseList 将逗号分隔的字符串解析为字符串切片
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载当前目录或父目录的 .env 文件。
// 已存在的环境变量优先级更高，不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
