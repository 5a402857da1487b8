package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrFolderNotFound 远端不存在指定名称的邮件文件夹
	ErrFolderNotFound = errors.New("mail folder not found")
	// ErrUnauthorized 远端拒绝当前令牌。本次抽取直接失败，
	// 不在分页中途重刷令牌。
	ErrUnauthorized = errors.New("graph request unauthorized")
)

// Message Graph 邮件列表返回的单条记录。
type Message struct {
	ID               string    `json:"id"`
	Subject          string    `json:"subject"`
	BodyPreview      string    `json:"bodyPreview"`
	ReceivedDateTime time.Time `json:"receivedDateTime"`
	From             struct {
		EmailAddress struct {
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"from"`
	Body struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
}

// messagePage 一页邮件与下一页游标。
type messagePage struct {
	Value    []Message `json:"value"`
	NextLink string    `json:"@odata.nextLink"`
}

// folderResponse 文件夹解析响应。
type folderResponse struct {
	ID string `json:"id"`
}

// RequestObserver 每次上游请求完成后回调（操作名 + HTTP 状态码），
// 用于指标上报。
type RequestObserver func(operation, statusCode string)

// Client Graph 邮件抽取客户端。令牌以参数形式逐调用传入，
// 客户端自身不保存任何凭据状态。
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *zap.Logger
	observe    RequestObserver // 可选
}

// NewClient 创建抽取客户端。
func NewClient(cfg Config, log *zap.Logger) *Client {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: newHTTPClient(cfg.Timeout),
		log:        log,
	}
}

// SetRequestObserver 设置请求观测回调。
func (c *Client) SetRequestObserver(observe RequestObserver) {
	c.observe = observe
}

// FetchFolderID 将文件夹名称解析为远端的不透明标识。
func (c *Client) FetchFolderID(ctx context.Context, token, folderName string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/mailFolders/%s",
		strings.TrimRight(c.cfg.GraphBaseURL, "/"),
		url.PathEscape(c.cfg.MailboxUser),
		url.PathEscape(folderName),
	)

	var folder folderResponse
	if err := c.get(ctx, token, "resolve_folder", endpoint, &folder); err != nil {
		return "", err
	}
	if folder.ID == "" {
		return "", ErrFolderNotFound
	}
	return folder.ID, nil
}

// FetchMessages 沿 @odata.nextLink 游标抽取文件夹下的全部邮件。
// 游标缺失、空页、请求失败或达到分页上限时停止；
// 任何一页失败都会放弃整个抽取（中途结果不可用）。
func (c *Client) FetchMessages(ctx context.Context, token, folderID string) ([]Message, error) {
	next := fmt.Sprintf("%s/%s/mailFolders/%s/messages?$top=%d&$select=id,from,subject,receivedDateTime,bodyPreview,body",
		strings.TrimRight(c.cfg.GraphBaseURL, "/"),
		url.PathEscape(c.cfg.MailboxUser),
		url.PathEscape(folderID),
		c.cfg.PageSize,
	)

	messages := make([]Message, 0, c.cfg.PageSize)
	for page := 0; next != ""; page++ {
		if page >= c.cfg.MaxPages {
			c.log.Warn("page cap reached, stopping extraction",
				zap.Int("max_pages", c.cfg.MaxPages),
				zap.Int("messages", len(messages)),
			)
			break
		}

		var batch messagePage
		if err := c.get(ctx, token, "fetch_messages", next, &batch); err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", page+1, err)
		}
		if len(batch.Value) == 0 {
			break
		}

		messages = append(messages, batch.Value...)
		next = batch.NextLink
	}

	c.log.Debug("extraction finished", zap.Int("messages", len(messages)))
	return messages, nil
}

// get 执行一次带 Bearer 令牌的 GET 请求并解码 JSON 响应。
func (c *Client) get(ctx context.Context, token, operation, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if c.observe != nil {
			c.observe(operation, "transport_error")
		}
		return err
	}
	defer resp.Body.Close()

	if c.observe != nil {
		c.observe(operation, strconv.Itoa(resp.StatusCode))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return json.NewDecoder(resp.Body).Decode(out)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return ErrFolderNotFound
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("graph request failed: %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}
}
