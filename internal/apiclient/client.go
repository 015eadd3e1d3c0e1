// Package apiclient はmailadmin APIのGoクライアントを提供する。
// アクセストークンの期限切れを検知すると、同時に失敗したリクエストのリフレッシュを
// 1回の呼び出しにまとめ、新しいトークンで各リクエストを1度だけ再送する。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultRefreshTimeout はリフレッシュ呼び出し1回あたりの上限時間。
	DefaultRefreshTimeout = 10 * time.Second
	// defaultHTTPTimeout は既定のHTTPクライアントのタイムアウト。
	defaultHTTPTimeout = 30 * time.Second

	refreshPath = "/auth/refresh-token"
)

// Client はmailadmin APIのクライアント。
// baseURLは"/api"までを含むURL（例: https://admin.example.com/api）。
type Client struct {
	baseURL    string
	httpClient *http.Client
	jar        *resettableJar
	store      TokenStore
	logger     *slog.Logger

	refreshTimeout   time.Duration
	onSessionExpired func(err error)

	refresher *refresher
}

// Option はClientの生成オプション。
type Option func(*Client)

// WithHTTPClient は使用するHTTPクライアントを指定する。
// 渡されたクライアントは複製され、Jarはこのパッケージのものに置き換えられる。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		copied := *hc
		c.httpClient = &copied
	}
}

// WithTokenStore はトークンの保存先を指定する。
func WithTokenStore(store TokenStore) Option {
	return func(c *Client) {
		c.store = store
	}
}

// WithRefreshTimeout はリフレッシュ呼び出しの上限時間を指定する。
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.refreshTimeout = d
	}
}

// WithOnSessionExpired はリフレッシュ失敗でセッションが破棄されたときに呼ばれる関数を指定する。
func WithOnSessionExpired(fn func(err error)) Option {
	return func(c *Client) {
		c.onSessionExpired = fn
	}
}

// WithLogger はロガーを指定する。
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New はClientを生成する。
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("ベースURLのパースに失敗しました: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("ベースURLのスキームが不正です: %q", baseURL)
	}

	jar, err := newResettableJar()
	if err != nil {
		return nil, fmt.Errorf("CookieJarの作成に失敗しました: %w", err)
	}

	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{Timeout: defaultHTTPTimeout},
		jar:            jar,
		store:          NewMemoryTokenStore(),
		logger:         slog.Default(),
		refreshTimeout: DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient.Jar = c.jar
	c.refresher = newRefresher(c.store, c.callRefresh, c.refreshTimeout, c.sessionExpired, c.logger)

	return c, nil
}

// Tokens は現在保持しているトークンの組を返す。
func (c *Client) Tokens() (accessToken, refreshToken string) {
	return c.store.AccessToken(), c.store.RefreshToken()
}

// SetTokens は保持するトークンを設定する。保存済みのセッションを復元する場合に使う。
func (c *Client) SetTokens(accessToken, refreshToken string) {
	c.store.Set(accessToken, refreshToken)
}

// Do はAPIリクエストを送信し、成功時はdataをoutへデコードする。
// pathはベースURLからの相対パス（例: "/auth/me"）。bodyがnilでなければJSONで送信する。
// 401 TOKEN_EXPIRED を受けた場合はトークンをリフレッシュし、元のリクエストを1度だけ再送する。
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	payload, err := encodeBody(body)
	if err != nil {
		return err
	}

	token := c.store.AccessToken()
	err = c.send(ctx, method, path, payload, token, out)
	if !IsTokenExpired(err) || path == refreshPath {
		return err
	}

	fresh, err := c.refresher.refresh(ctx, token)
	if err != nil {
		return err
	}
	return c.send(ctx, method, path, payload, fresh, out)
}

// envelope はサーバーの成功/エラー共通のレスポンス形式。
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

// send はリクエストを1回だけ送信する。
func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s の呼び出しに失敗しました: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Error}
		if decodeErr != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if decodeErr != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", decodeErr)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("レスポンスデータのパースに失敗しました: %w", err)
		}
	}
	return nil
}

// callRefresh はリフレッシュエンドポイントを呼び出す。
// リフレッシュトークンはCookieJarのCookieに加え、保持していればボディでも送る。
func (c *Client) callRefresh(ctx context.Context) (string, string, error) {
	var body any
	if rt := c.store.RefreshToken(); rt != "" {
		body = map[string]string{"refreshToken": rt}
	}
	payload, err := encodeBody(body)
	if err != nil {
		return "", "", err
	}

	var session Session
	if err := c.send(ctx, http.MethodPost, refreshPath, payload, "", &session); err != nil {
		return "", "", err
	}
	return session.AccessToken, session.RefreshToken, nil
}

// sessionExpired はリフレッシュ失敗時にCookieを破棄し、利用者のフックを呼ぶ。
func (c *Client) sessionExpired(err error) {
	c.jar.reset()
	if c.onSessionExpired != nil {
		c.onSessionExpired(err)
	}
}

func encodeBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
	}
	return payload, nil
}
