// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, blueprint, showcase, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeLoginRequired         = "LOGIN_REQUIRED"
	ErrCodeIdentityProviderError = "IDENTITY_PROVIDER_ERROR"
	ErrCodeCSRFTokenInvalid      = "CSRF_TOKEN_INVALID"
	ErrCodeServiceCallFailed     = "SERVICE_CALL_FAILED"
	ErrCodeInvalidImage          = "INVALID_IMAGE"
	ErrCodeInvalidMethod         = "INVALID_METHOD"
	ErrCodeInvalidDimensions     = "INVALID_DIMENSIONS"
	ErrCodeInvalidFilename       = "INVALID_FILENAME"
	ErrCodeBuildNotFound         = "BUILD_NOT_FOUND"
)

// LoginFailedMessage はログインプロンプトに表示するインラインエラー文言。
const LoginFailedMessage = "로그인에 실패했습니다. 다시 시도해 주세요."

// NewLoginRequiredError は未ログインで保護された操作を行った場合のエラーを生成する。
func NewLoginRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeLoginRequired,
		Message:  "로그인이 필요한 기능입니다.",
		Category: "auth",
		Action:   "구글 계정으로 로그인한 뒤 다시 시도해 주세요.",
	}
}

// NewIdentityProviderError は外部IdPでのサインイン失敗を表すエラーを生成する。
func NewIdentityProviderError() *APIError {
	return &APIError{
		Code:     ErrCodeIdentityProviderError,
		Message:  LoginFailedMessage,
		Category: "auth",
		Action:   "로그인 버튼을 다시 눌러 주세요.",
	}
}

// NewCSRFTokenInvalidError はCSRFトークン検証に失敗した場合のエラーを生成する。
func NewCSRFTokenInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFTokenInvalid,
		Message:  "요청을 확인할 수 없습니다.",
		Category: "auth",
		Action:   "페이지를 새로고침한 뒤 다시 시도해 주세요.",
	}
}

// NewServiceCallError は解析・図面生成サービスの呼び出し失敗エラーを生成する。
// messageにはサービスが返したエラー文言をそのまま渡す。
func NewServiceCallError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeServiceCallFailed,
		Message:  message,
		Category: "blueprint",
		Action:   "잠시 후 다시 시도해 주세요.",
	}
}

// NewInvalidImageError は画像アップロードが不正な場合のエラーを生成する。
func NewInvalidImageError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidImage,
		Message:  fmt.Sprintf("이미지를 읽을 수 없습니다: %s", reason),
		Category: "validation",
		Action:   "JPG 또는 PNG 사진을 다시 업로드해 주세요.",
	}
}

// NewInvalidMethodError は未対応の解析手法が指定された場合のエラーを生成する。
func NewInvalidMethodError(method string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMethod,
		Message:  fmt.Sprintf("지원하지 않는 분석 방법입니다: %s", method),
		Category: "validation",
		Action:   "auto, gemini, opencv 중 하나를 지정해 주세요.",
	}
}

// NewInvalidDimensionsError は寸法が不正な場合のエラーを生成する。
func NewInvalidDimensionsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDimensions,
		Message:  "치수 값이 올바르지 않습니다.",
		Category: "validation",
		Action:   "가로, 세로, 깊이와 두께를 0보다 큰 숫자로 입력해 주세요.",
	}
}

// NewInvalidFilenameError は図面ファイル名が不正な場合のエラーを生成する。
func NewInvalidFilenameError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFilename,
		Message:  "도면 파일 이름이 올바르지 않습니다.",
		Category: "validation",
		Action:   "도면을 다시 생성해 주세요.",
	}
}

// NewBuildNotFoundError はショーケース作品が見つからない場合のエラーを生成する。
func NewBuildNotFoundError(buildID string) *APIError {
	return &APIError{
		Code:     ErrCodeBuildNotFound,
		Message:  fmt.Sprintf("작품을 찾을 수 없습니다: %s", buildID),
		Category: "showcase",
		Action:   "쇼케이스 목록을 새로고침해 주세요.",
	}
}
