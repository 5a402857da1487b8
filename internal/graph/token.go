package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailsync/backend/internal/domain"
	"mailsync/backend/internal/storage"
)

// ErrTokenRefresh 令牌交换失败。刷新不重试，调用方必须放弃本次同步。
var ErrTokenRefresh = errors.New("token refresh failed")

// TokenSource 管理 Graph 访问令牌：优先复用库中未过期的 active 令牌，
// 过期时先将其置为 inactive 再发起一次客户端凭据交换。
// 每次刷新恰好写入一条新记录、至多停用一条旧记录。
type TokenSource struct {
	cfg         Config
	credentials storage.CredentialRepository
	httpClient  *http.Client
	log         *zap.Logger
	now         func() time.Time
	onRefresh   func(outcome string) // 可选的刷新结果回调
}

// NewTokenSource 创建令牌缓存。
func NewTokenSource(cfg Config, credentials storage.CredentialRepository, log *zap.Logger) *TokenSource {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &TokenSource{
		cfg:         cfg,
		credentials: credentials,
		httpClient:  newHTTPClient(cfg.Timeout),
		log:         log,
		now:         time.Now,
	}
}

// SetRefreshObserver 设置刷新结果回调，用于指标上报。
func (t *TokenSource) SetRefreshObserver(observe func(outcome string)) {
	t.onRefresh = observe
}

// EnsureToken 返回一个当前有效的访问令牌。
// 命中缓存时不产生任何网络调用；刷新失败时返回错误，
// 绝不把过期或缺失的令牌交给调用方。
func (t *TokenSource) EnsureToken(ctx context.Context) (string, error) {
	credential, err := t.credentials.GetActiveCredential()
	switch {
	case err == nil:
		if !credential.Expired(t.now()) {
			t.log.Debug("reusing stored token",
				zap.Time("expires_at", credential.ExpiresAt),
			)
			return credential.Token, nil
		}
		// 过期令牌只停用，不删除
		t.log.Info("stored token expired, deactivating",
			zap.String("credential_id", credential.ID),
			zap.Time("expires_at", credential.ExpiresAt),
		)
		if err := t.credentials.DeactivateCredential(credential.ID); err != nil {
			return "", fmt.Errorf("deactivate expired credential: %w", err)
		}
	case errors.Is(err, storage.ErrCredentialNotFound):
		// 首次运行，直接刷新
	default:
		return "", fmt.Errorf("load credential: %w", err)
	}

	return t.refresh(ctx)
}

// tokenResponse 身份提供方的令牌交换响应。
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// refresh 执行一次客户端凭据交换并持久化新令牌。
func (t *TokenSource) refresh(ctx context.Context) (token string, err error) {
	defer func() {
		if t.onRefresh == nil {
			return
		}
		if err != nil {
			t.onRefresh("failed")
		} else {
			t.onRefresh("ok")
		}
	}()

	endpoint := fmt.Sprintf("%s/%s/oauth2/v2.0/token",
		strings.TrimRight(t.cfg.LoginBaseURL, "/"), t.cfg.TenantID)

	form := url.Values{}
	form.Set("client_id", t.cfg.ClientID)
	form.Set("client_secret", t.cfg.ClientSecret)
	form.Set("scope", t.cfg.Scope)
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenRefresh, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenRefresh, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: identity provider returned %d: %s",
			ErrTokenRefresh, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrTokenRefresh, err)
	}
	if payload.AccessToken == "" || payload.ExpiresIn <= 0 {
		return "", fmt.Errorf("%w: incomplete token response", ErrTokenRefresh)
	}

	now := t.now()
	credential := &domain.Credential{
		ID:        uuid.NewString(),
		Token:     payload.AccessToken,
		ExpiresAt: now.Add(time.Duration(payload.ExpiresIn) * time.Second),
		Active:    true,
		CreatedAt: now,
	}
	if err := t.credentials.SaveCredential(credential); err != nil {
		return "", fmt.Errorf("persist credential: %w", err)
	}

	t.log.Info("token refreshed",
		zap.String("credential_id", credential.ID),
		zap.Time("expires_at", credential.ExpiresAt),
	)
	return credential.Token, nil
}
