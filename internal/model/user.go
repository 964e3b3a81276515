// Package model はドメインモデルを定義する。
package model

// UserProfile はIDトークンから復元したログインユーザーのプロフィール。
// 1回のデコードで全フィールドが埋まった状態でのみ生成される。
// JSONタグは永続化レコードの形式（Google IDトークンのクレーム名）に合わせている。
type UserProfile struct {
	SubjectID   string `json:"sub"`
	DisplayName string `json:"name"`
	Email       string `json:"email"`
	AvatarURL   string `json:"picture"`
	GivenName   string `json:"given_name"`
}

// MissingFields は空の必須フィールド名（JSON名）を返す。
// 全て埋まっている場合は空スライスを返す。
func (u *UserProfile) MissingFields() []string {
	var missing []string
	if u.SubjectID == "" {
		missing = append(missing, "sub")
	}
	if u.DisplayName == "" {
		missing = append(missing, "name")
	}
	if u.Email == "" {
		missing = append(missing, "email")
	}
	if u.AvatarURL == "" {
		missing = append(missing, "picture")
	}
	if u.GivenName == "" {
		missing = append(missing, "given_name")
	}
	return missing
}

// Clone はプロフィールのコピーを返す。nilの場合はnilを返す。
func (u *UserProfile) Clone() *UserProfile {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
