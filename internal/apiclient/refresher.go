package apiclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// refreshFunc はリフレッシュエンドポイントを1回呼び出し、新しいトークンの組を返す。
type refreshFunc func(ctx context.Context) (accessToken, refreshToken string, err error)

type refreshResult struct {
	token string
	err   error
}

type episodeFailure struct {
	stale string
	err   error
}

// refresher は同時に発生したトークン期限切れを1回のリフレッシュ呼び出しにまとめる。
// inFlight、waiters、staleとfailedはmuで保護する。リフレッシュ自体は呼び出し元のキャンセルから切り離した
// goroutineで実行し、最初の呼び出し元を含むすべての待機者に同じ結果を配る。
type refresher struct {
	mu       sync.Mutex
	inFlight bool
	waiters  []chan refreshResult
	// stale は実行中のエピソードを始めた期限切れトークン。
	stale string
	// failed は直前に失敗したエピソードの結果。そのエピソードのトークンで遅れて届いた
	// 期限切れは再度リフレッシュせず、この結果を返す。
	failed *episodeFailure

	store     TokenStore
	call      refreshFunc
	timeout   time.Duration
	onExpired func(err error)
	logger    *slog.Logger
}

func newRefresher(store TokenStore, call refreshFunc, timeout time.Duration, onExpired func(error), logger *slog.Logger) *refresher {
	return &refresher{
		store:     store,
		call:      call,
		timeout:   timeout,
		onExpired: onExpired,
		logger:    logger,
	}
}

// refresh はstaleTokenで失敗したリクエストのために新しいアクセストークンを取得する。
// 既にstaleTokenと異なるトークンが保存されていれば、その期限切れは解決済みとみなして再利用する。
// staleTokenのエピソードが既に失敗していれば、リフレッシュを呼ばずにその失敗を返す。
// ctxがキャンセルされると待機を打ち切り、待機キューから自身を取り除く。
func (r *refresher) refresh(ctx context.Context, staleToken string) (string, error) {
	r.mu.Lock()
	current := r.store.AccessToken()
	if current != "" && current != staleToken {
		r.mu.Unlock()
		return current, nil
	}
	if !r.inFlight && current == "" && r.failed != nil && r.failed.stale == staleToken {
		err := r.failed.err
		r.mu.Unlock()
		return "", err
	}

	ch := make(chan refreshResult, 1)
	r.waiters = append(r.waiters, ch)
	if !r.inFlight {
		r.inFlight = true
		r.stale = staleToken
		go r.run()
	}
	r.mu.Unlock()

	select {
	case res := <-ch:
		return res.token, res.err
	case <-ctx.Done():
		r.removeWaiter(ch)
		return "", ctx.Err()
	}
}

// run はリフレッシュを1回実行し、結果を待機者全員に配る。
func (r *refresher) run() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	start := time.Now()
	access, refresh, err := r.call(ctx)

	r.mu.Lock()
	if err == nil {
		r.store.Set(access, refresh)
		r.failed = nil
	} else {
		r.store.Clear()
		err = fmt.Errorf("%w: %w", ErrSessionExpired, err)
		r.failed = &episodeFailure{stale: r.stale, err: err}
	}
	r.stale = ""
	waiters := r.waiters
	r.waiters = nil
	r.inFlight = false
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn("トークンのリフレッシュに失敗しました",
			slog.Int("waiters", len(waiters)),
			slog.String("code", ErrorCode(err)),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		if r.onExpired != nil {
			r.onExpired(err)
		}
	} else {
		r.logger.Debug("トークンをリフレッシュしました",
			slog.Int("waiters", len(waiters)),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	}

	for _, ch := range waiters {
		ch <- refreshResult{token: access, err: err}
	}
}

func (r *refresher) removeWaiter(ch chan refreshResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, w := range r.waiters {
		if w == ch {
			r.waiters = append(r.waiters[:i], r.waiters[i+1:]...)
			return
		}
	}
}

// pending は待機中の呼び出し数を返す。
func (r *refresher) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}
