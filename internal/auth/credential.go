// Package auth はGoogle IDトークン（クレデンシャル）の解釈と
// Google Identity Servicesウィジェット連携の設定を提供する。
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pawbox/pawbox/internal/model"
)

// DecodeError はクレデンシャルの構造が不正な場合のエラー。
// デコード失敗時にプロフィールは一切生成されない。
type DecodeError struct {
	Reason string
	Err    error
}

// Error はerrorインターフェースを実装する。
func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode credential: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode credential: %s", e.Reason)
}

// Unwrap は元のエラーを返す。
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// googleClaims はGoogle IDトークンのペイロード。
// sub, aud, iss, exp等はRegisteredClaimsで受ける。
type googleClaims struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Picture   string `json:"picture"`
	GivenName string `json:"given_name"`
	jwt.RegisteredClaims
}

// Codec はクレデンシャルをユーザープロフィールに変換する。
//
// 署名・有効期限の検証は行わない。ペイロードの構造のみを信頼し、
// IdPウィジェットをセキュリティ境界として扱う。
type Codec struct {
	parser *jwt.Parser
}

// NewCodec はCodecを生成する。
func NewCodec() *Codec {
	return &Codec{parser: jwt.NewParser()}
}

// Decode はクレデンシャルのペイロードセグメントを解析し、UserProfileを返す。
// セグメント数の不一致、base64/JSONのデコード失敗、必須クレームの欠落は
// *DecodeError として返す。
func (c *Codec) Decode(token string) (*model.UserProfile, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, &DecodeError{Reason: "empty token"}
	}
	if n := strings.Count(token, ".") + 1; n != 3 {
		return nil, &DecodeError{Reason: fmt.Sprintf("expected 3 segments, got %d", n)}
	}

	claims := &googleClaims{}
	if _, _, err := c.parser.ParseUnverified(token, claims); err != nil {
		return nil, &DecodeError{Reason: "malformed payload", Err: err}
	}

	profile := &model.UserProfile{
		SubjectID:   claims.Subject,
		DisplayName: claims.Name,
		Email:       claims.Email,
		AvatarURL:   claims.Picture,
		GivenName:   claims.GivenName,
	}
	if missing := profile.MissingFields(); len(missing) > 0 {
		return nil, &DecodeError{Reason: "missing required claims: " + strings.Join(missing, ", ")}
	}

	return profile, nil
}

// IsDecodeError はerrがDecodeErrorを含むかどうかを判定する。
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
