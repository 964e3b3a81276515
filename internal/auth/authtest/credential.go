// Package authtest はテスト用のGoogle IDトークンを生成するヘルパーを提供する。
package authtest

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

// signingKey はテスト用トークンの署名鍵。デコード側は署名を検証しない。
var signingKey = []byte("pawbox-test-signing-key")

// Claims はテスト用トークンに含めるクレーム。
type Claims map[string]any

// SarahClaims はシナリオテストで使う標準的なクレームを返す。
func SarahClaims() Claims {
	return Claims{
		"sub":        "123",
		"name":       "Sarah",
		"email":      "s@x.com",
		"picture":    "https://lh3.googleusercontent.com/a/sarah",
		"given_name": "Sarah",
		"iss":        "https://accounts.google.com",
		"aud":        "test-client-id",
	}
}

// NewCredential は指定したクレームを持つ署名付きトークンを生成する。
func NewCredential(t testing.TB, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims(claims))
	signed, err := token.SignedString(signingKey)
	if err != nil {
		t.Fatalf("failed to sign test credential: %v", err)
	}
	return signed
}

// Without はkeyを除いたクレームのコピーを返す。
func (c Claims) Without(key string) Claims {
	out := make(Claims, len(c))
	for k, v := range c {
		if k != key {
			out[k] = v
		}
	}
	return out
}
