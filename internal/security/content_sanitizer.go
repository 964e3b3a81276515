// Package security はアプリケーションのセキュリティ機能を提供する。
//
// 外部から受け取るテキスト（解析サービスの所見、コミュニティフィードの本文）を
// 表示前に無害化するSanitizerと、コミュニティフィード取得用のSSRF防止を含む。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer はbluemondayのポリシーで外部由来のテキストを無害化する。
// ポリシーは生成時に構築し、以降はスレッドセーフに利用できる。
type Sanitizer struct {
	// strict は全てのタグを除去する。
	strict *bluemonday.Policy
	// notes は改行用のbrのみを許可する。
	notes *bluemonday.Policy
}

// NewSanitizer はSanitizerを生成する。
func NewSanitizer() *Sanitizer {
	notes := bluemonday.NewPolicy()
	notes.AllowElements("br")

	return &Sanitizer{
		strict: bluemonday.StrictPolicy(),
		notes:  notes,
	}
}

// PlainText はHTMLからタグを除去し、連続する空白を1つにまとめたプレーンテキストを返す。
// 返り値はエスケープされていないため、テンプレート側でエスケープする。
func (s *Sanitizer) PlainText(raw string) string {
	if raw == "" {
		return ""
	}
	text := html.UnescapeString(s.strict.Sanitize(raw))
	return strings.Join(strings.Fields(text), " ")
}

// NotesHTML は解析サービスの所見（プレーンテキスト）を表示用HTMLに変換する。
// 全てのタグをエスケープし、改行のみを<br>に置き換える。
func (s *Sanitizer) NotesHTML(notes string) string {
	notes = strings.TrimSpace(strings.ReplaceAll(notes, "\r\n", "\n"))
	if notes == "" {
		return ""
	}
	lines := strings.Split(notes, "\n")
	for i, line := range lines {
		lines[i] = html.EscapeString(line)
	}
	return s.notes.Sanitize(strings.Join(lines, "<br>"))
}
