package auth

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/pawbox/pawbox/internal/auth/authtest"
)

func TestCodec_Decode_ValidToken_ReturnsProfile(t *testing.T) {
	token := authtest.NewCredential(t, authtest.SarahClaims())

	profile, err := NewCodec().Decode(token)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if profile.SubjectID != "123" {
		t.Errorf("SubjectID = %q, want %q", profile.SubjectID, "123")
	}
	if profile.DisplayName != "Sarah" {
		t.Errorf("DisplayName = %q, want %q", profile.DisplayName, "Sarah")
	}
	if profile.Email != "s@x.com" {
		t.Errorf("Email = %q, want %q", profile.Email, "s@x.com")
	}
	if profile.AvatarURL != "https://lh3.googleusercontent.com/a/sarah" {
		t.Errorf("AvatarURL = %q", profile.AvatarURL)
	}
	if profile.GivenName != "Sarah" {
		t.Errorf("GivenName = %q, want %q", profile.GivenName, "Sarah")
	}
}

func TestCodec_Decode_IgnoresSignatureAndExpiry(t *testing.T) {
	claims := authtest.SarahClaims()
	claims["exp"] = 1 // 1970年に失効済み
	token := authtest.NewCredential(t, claims)

	// 署名部分を壊しても構造が正しければ受理される
	tampered := token[:len(token)-4] + "AAAA"

	if _, err := NewCodec().Decode(tampered); err != nil {
		t.Fatalf("expected structural decode to succeed, got %v", err)
	}
}

func TestCodec_Decode_MalformedTokens_ReturnDecodeError(t *testing.T) {
	valid := authtest.NewCredential(t, authtest.SarahClaims())
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"one segment", "abc"},
		{"two segments", "abc.def"},
		{"four segments", valid + ".extra"},
		{"payload not base64", header + ".!!!notbase64!!!.sig"},
		{"payload not json", header + "." + base64.RawURLEncoding.EncodeToString([]byte("not json")) + ".sig"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile, err := NewCodec().Decode(tt.token)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if profile != nil {
				t.Errorf("expected nil profile on error, got %+v", profile)
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Errorf("expected *DecodeError, got %T", err)
			}
		})
	}
}

func TestCodec_Decode_MissingRequiredClaims_ReturnDecodeError(t *testing.T) {
	for _, key := range []string{"sub", "name", "email", "picture", "given_name"} {
		t.Run(key, func(t *testing.T) {
			token := authtest.NewCredential(t, authtest.SarahClaims().Without(key))

			profile, err := NewCodec().Decode(token)
			if !IsDecodeError(err) {
				t.Fatalf("expected DecodeError, got %v", err)
			}
			if profile != nil {
				t.Errorf("expected nil profile, got %+v", profile)
			}
		})
	}
}
