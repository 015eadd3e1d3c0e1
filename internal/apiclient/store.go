package apiclient

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	"golang.org/x/net/publicsuffix"
)

// TokenStore はクライアントが保持するトークンの保存先。
// 複数のgoroutineから同時に呼ばれるため、実装はスレッドセーフでなければならない。
type TokenStore interface {
	AccessToken() string
	RefreshToken() string
	Set(accessToken, refreshToken string)
	Clear()
}

// MemoryTokenStore はプロセス内メモリにトークンを保持するTokenStore。
type MemoryTokenStore struct {
	mu      sync.RWMutex
	access  string
	refresh string
}

// NewMemoryTokenStore は空のMemoryTokenStoreを生成する。
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access
}

func (s *MemoryTokenStore) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh
}

// Set はトークンを保存する。refreshTokenが空の場合は既存の値を維持する。
func (s *MemoryTokenStore) Set(accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = accessToken
	if refreshToken != "" {
		s.refresh = refreshToken
	}
}

func (s *MemoryTokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = ""
	s.refresh = ""
}

// resettableJar はセッション破棄時に中身を丸ごと捨てられるCookieJar。
// http.Client.Jarを差し替えると並行リクエストと競合するため、内側のJarを入れ替える。
type resettableJar struct {
	mu  sync.RWMutex
	jar *cookiejar.Jar
}

func newResettableJar() (*resettableJar, error) {
	jar, err := newCookieJar()
	if err != nil {
		return nil, err
	}
	return &resettableJar{jar: jar}, nil
}

func newCookieJar() (*cookiejar.Jar, error) {
	return cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
}

func (j *resettableJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	j.jar.SetCookies(u, cookies)
}

func (j *resettableJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.jar.Cookies(u)
}

// reset は保持しているCookieをすべて破棄する。
func (j *resettableJar) reset() {
	jar, err := newCookieJar()
	if err != nil {
		// cookiejar.Newはオプションによらずエラーを返さない
		return
	}
	j.mu.Lock()
	j.jar = jar
	j.mu.Unlock()
}
