// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NameSanitizer はユーザーが入力した表示名からマークアップを除去する。
// 表示名はAPI応答とOTPメール本文の両方に埋め込まれるため、
// 保存前にタグを取り除いたプレーンテキストへ正規化する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// NameSanitizer は表示名のサニタイズ機能のインターフェースを定義する。
type NameSanitizer interface {
	// Sanitize は全てのタグを除去し、連続する空白を1つにまとめたプレーンテキストを返す。
	// script, styleタグは内容ごと除去される。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// nameSanitizer はNameSanitizerの実装。
// bluemondayのポリシーはスレッドセーフであり、インスタンスを共有できる。
type nameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はタグを一切許可しないポリシーでNameSanitizerを生成する。
func NewNameSanitizer() *nameSanitizer {
	return &nameSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は表示名をプレーンテキストに正規化する。
// bluemondayが出力する文字参照は元の文字に戻す（"O&#39;Brien" → "O'Brien"）。
// 出力先でのエスケープはJSONエンコーダとhtml/templateが担う。
func (s *nameSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	cleaned := html.UnescapeString(s.policy.Sanitize(raw))
	return strings.Join(strings.Fields(cleaned), " ")
}
