// Package otp はパスワードリセット用ワンタイムパスワードの生成とハッシュ照合を行う。
package otp

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const (
	// Length はOTPの桁数。
	Length = 6
	// HashCost はOTPハッシュのbcryptコスト。
	// OTPは短命なのでパスワードより低いコストを使う。
	HashCost = 10

	minValue = 100000
	maxValue = 999999
)

// ErrMismatch はOTPがハッシュと一致しないことを示す。
var ErrMismatch = errors.New("otp mismatch")

// Generate は先頭が0にならない6桁のOTPを暗号論的乱数で一様に生成する。
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(maxValue-minValue+1))
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}
	return fmt.Sprintf("%d", n.Int64()+minValue), nil
}

// Hash はOTPをbcryptでハッシュ化する。平文のOTPは保存しない。
func Hash(code string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), HashCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash otp: %w", err)
	}
	return string(hash), nil
}

// Compare はOTPとハッシュを照合する。不一致の場合はErrMismatchを返す。
func Compare(hash, code string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(code))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return fmt.Errorf("failed to compare otp: %w", err)
}

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// CompareDummy は照合対象のリセット要求が無い場合に、Compareと同じコストのbcrypt照合を行う。
// 存在しないメールアドレスへの応答時間を存在する場合とそろえるために使う。常にErrMismatchを返す。
func CompareDummy(code string) error {
	dummyOnce.Do(func() {
		// 生成したOTPは6桁の数字なので、非数字の値とは一致しない
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("no-such-otp"), HashCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(code))
	return ErrMismatch
}

// WellFormed は入力が6桁の数字のみで構成されているかを判定する。
func WellFormed(code string) bool {
	if len(code) != Length {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
