// Package token はアクセス・リフレッシュ・リセットの3種類の署名付きトークンを発行・検証する。
//
// トークン種別ごとに異なるシークレットで署名し、さらにpurposeクレームを
// 署名検証後に照合することで、種別をまたいだ流用を拒否する。
// トークンはステートレスであり、有効性は署名と有効期限のみで判定する。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Class はトークン種別を表す。purposeクレームとして埋め込まれる。
type Class string

const (
	ClassAccess  Class = "access"
	ClassRefresh Class = "refresh"
	ClassReset   Class = "reset"
)

var (
	// ErrTokenExpired は署名は正しいが有効期限が切れていることを示す。
	// クライアントに再ログインではなくリフレッシュを促すため、他の失敗と区別する。
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid は署名不正・形式不正・種別不一致などを示す。
	ErrTokenInvalid = errors.New("invalid token")
)

// Claims はトークンに格納するクレーム。
// Subjectにユーザーidを格納する。ResetIDはリセットトークンでのみ使用する。
type Claims struct {
	Purpose Class  `json:"purpose"`
	ResetID string `json:"rid,omitempty"`
	jwt.RegisteredClaims
}

// UserID はトークンの主体ユーザーIDを返す。
func (c *Claims) UserID() string {
	return c.Subject
}

// Pair はアクセストークンとリフレッシュトークンの組。
type Pair struct {
	AccessToken  string
	RefreshToken string
}

// Config はIssuerの設定。
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	ResetSecret   []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	ResetTTL      time.Duration
}

// Issuer はトークンの発行と検証を行う。生成後はイミュータブルで並行利用できる。
type Issuer struct {
	config Config
	now    func() time.Time
}

// Option はIssuerの任意設定。
type Option func(*Issuer)

// WithClock は現在時刻の取得関数を差し替える。テスト用。
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

// NewIssuer はIssuerを生成する。
// シークレットが空、または種別間で重複している場合はエラーを返す。
func NewIssuer(cfg Config, opts ...Option) (*Issuer, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 || len(cfg.ResetSecret) == 0 {
		return nil, errors.New("token secrets must not be empty")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) ||
		string(cfg.AccessSecret) == string(cfg.ResetSecret) ||
		string(cfg.RefreshSecret) == string(cfg.ResetSecret) {
		return nil, errors.New("token secrets must differ per class")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 || cfg.ResetTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}

	i := &Issuer{config: cfg, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// IssueAccessToken はアクセストークンを発行する。
func (i *Issuer) IssueAccessToken(userID string) (string, error) {
	return i.sign(ClassAccess, userID, "", "")
}

// IssueRefreshToken はリフレッシュトークンを発行する。
// ローテーションのたびに異なる値となるようjtiを付与する。
func (i *Issuer) IssueRefreshToken(userID string) (string, error) {
	return i.sign(ClassRefresh, userID, "", uuid.NewString())
}

// IssueResetToken はOTP検証成功後に渡すリセットトークンを発行する。
// 1回限りの利用はトークン自体ではなくリセット要求のusedフラグで保証する。
func (i *Issuer) IssueResetToken(userID, resetID string) (string, error) {
	if resetID == "" {
		return "", errors.New("reset ID is required")
	}
	return i.sign(ClassReset, userID, resetID, "")
}

// IssuePair はアクセストークンとリフレッシュトークンを同時に発行する。
func (i *Issuer) IssuePair(userID string) (*Pair, error) {
	access, err := i.IssueAccessToken(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}
	refresh, err := i.IssueRefreshToken(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue refresh token: %w", err)
	}
	return &Pair{AccessToken: access, RefreshToken: refresh}, nil
}

// Verify はトークンを指定種別として検証し、クレームを返す。
// 期限切れの場合はErrTokenExpired、それ以外の失敗はErrTokenInvalidを返す。
// 署名検証は期限判定より先に行われるため、他種別のトークンは期限に関係なくErrTokenInvalidとなる。
func (i *Issuer) Verify(raw string, class Class) (*Claims, error) {
	secret, _, err := i.paramsFor(class)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)

	claims := &Claims{}
	_, err = parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if claims.Purpose != class {
		return nil, fmt.Errorf("%w: purpose %q, want %q", ErrTokenInvalid, claims.Purpose, class)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if class == ClassReset && claims.ResetID == "" {
		return nil, fmt.Errorf("%w: missing reset id", ErrTokenInvalid)
	}

	return claims, nil
}

// TTL は指定種別のトークン有効期間を返す。Cookieのmax-age算出に使用する。
func (i *Issuer) TTL(class Class) time.Duration {
	_, ttl, err := i.paramsFor(class)
	if err != nil {
		return 0
	}
	return ttl
}

func (i *Issuer) sign(class Class, userID, resetID, jti string) (string, error) {
	if userID == "" {
		return "", errors.New("user ID is required")
	}
	secret, ttl, err := i.paramsFor(class)
	if err != nil {
		return "", err
	}

	now := i.now()
	claims := Claims{
		Purpose: class,
		ResetID: resetID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", class, err)
	}
	return signed, nil
}

func (i *Issuer) paramsFor(class Class) ([]byte, time.Duration, error) {
	switch class {
	case ClassAccess:
		return i.config.AccessSecret, i.config.AccessTTL, nil
	case ClassRefresh:
		return i.config.RefreshSecret, i.config.RefreshTTL, nil
	case ClassReset:
		return i.config.ResetSecret, i.config.ResetTTL, nil
	default:
		return nil, 0, fmt.Errorf("unknown token class %q", class)
	}
}
