// Package blueprint はログイン済みユーザー向けの寸法解析・図面生成機能を提供する。
//
// 全ての操作は呼び出し時点のユーザーを受け取り、未ログインであれば
// バックエンドを呼び出す前にErrLoginRequiredを返す。
package blueprint

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"github.com/pawbox/pawbox/internal/model"
	"github.com/pawbox/pawbox/internal/pawapi"
)

var (
	// ErrLoginRequired は未ログインで操作しようとした場合のエラー。
	ErrLoginRequired = errors.New("login required")
	// ErrInvalidDimensions は寸法または厚みが正の有限値でない場合のエラー。
	ErrInvalidDimensions = errors.New("invalid dimensions")
)

// Backend は図面生成バックエンドのインターフェース。
// pawapi.Clientが実装する。
type Backend interface {
	Analyze(ctx context.Context, img pawapi.Image, method model.AnalysisMethod) (*model.AnalyzeResult, error)
	Generate(ctx context.Context, dims model.Dimensions, thickness float64) (*model.GenerateResult, error)
	GenerateFromImage(ctx context.Context, img pawapi.Image, thickness float64) (*model.GenerateFromImageResult, error)
	Fetch(ctx context.Context, kind pawapi.FileKind, filename string) (*pawapi.File, error)
}

// NotesRenderer は解析所見を表示用HTMLに変換する。
// security.Sanitizerが実装する。
type NotesRenderer interface {
	NotesHTML(notes string) string
}

// Service は寸法解析・図面生成のユースケースを提供する。
type Service struct {
	backend Backend
	notes   NotesRenderer
	logger  *slog.Logger
}

// NewService はServiceを生成する。
func NewService(backend Backend, notes NotesRenderer, logger *slog.Logger) *Service {
	return &Service{backend: backend, notes: notes, logger: logger}
}

// Analyze は画像からペットの寸法を推定する。
func (s *Service) Analyze(ctx context.Context, user *model.UserProfile, img pawapi.Image, method model.AnalysisMethod) (*model.AnalyzeResult, error) {
	if user == nil {
		return nil, ErrLoginRequired
	}
	result, err := s.backend.Analyze(ctx, img, method)
	if err != nil {
		s.logger.Warn("analysis failed",
			slog.String("subject_id", user.SubjectID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return result, nil
}

// Generate は寸法から図面を生成する。
func (s *Service) Generate(ctx context.Context, user *model.UserProfile, dims model.Dimensions, thickness float64) (*model.Blueprint, error) {
	if user == nil {
		return nil, ErrLoginRequired
	}
	if err := validateDimensions(dims, thickness); err != nil {
		return nil, err
	}

	result, err := s.backend.Generate(ctx, dims, thickness)
	if err != nil {
		s.logger.Warn("blueprint generation failed",
			slog.String("subject_id", user.SubjectID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return s.blueprint(dims, result.Filename, result.FileSize), nil
}

// GenerateFromImage は画像の解析と図面生成をバックエンドで一度に行う。
func (s *Service) GenerateFromImage(ctx context.Context, user *model.UserProfile, img pawapi.Image, thickness float64) (*model.Blueprint, error) {
	if user == nil {
		return nil, ErrLoginRequired
	}
	if thickness < 0 || math.IsNaN(thickness) || math.IsInf(thickness, 0) {
		return nil, ErrInvalidDimensions
	}

	result, err := s.backend.GenerateFromImage(ctx, img, thickness)
	if err != nil {
		s.logger.Warn("blueprint generation from image failed",
			slog.String("subject_id", user.SubjectID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return s.blueprint(result.Dimensions, result.Filename, result.FileSize), nil
}

// Run は画像を解析し、推定した寸法で図面を生成する。
// 解析に失敗した場合は図面生成を行わずにそのエラーを返す。
func (s *Service) Run(ctx context.Context, user *model.UserProfile, img pawapi.Image, method model.AnalysisMethod, thickness float64) (*model.Blueprint, error) {
	if user == nil {
		return nil, ErrLoginRequired
	}

	analysis, err := s.Analyze(ctx, user, img, method)
	if err != nil {
		return nil, err
	}
	return s.Generate(ctx, user, analysis.Dimensions, thickness)
}

// Fetch は生成済みの図面ファイルを取得する。
func (s *Service) Fetch(ctx context.Context, user *model.UserProfile, kind pawapi.FileKind, filename string) (*pawapi.File, error) {
	if user == nil {
		return nil, ErrLoginRequired
	}
	return s.backend.Fetch(ctx, kind, filename)
}

// blueprint は画面表示用の結果を組み立てる。
// ファイルはこのサーバー経由で取得させるため、バックエンドのURLは公開しない。
func (s *Service) blueprint(dims model.Dimensions, filename string, size int64) *model.Blueprint {
	return &model.Blueprint{
		Dimensions:  dims,
		NotesHTML:   s.notes.NotesHTML(dims.Notes),
		Filename:    filename,
		FileSize:    size,
		DownloadURL: "/files/download/" + filename,
		PreviewURL:  "/files/preview/" + filename,
	}
}

func validateDimensions(dims model.Dimensions, thickness float64) error {
	for _, v := range []float64{dims.Width, dims.Height, dims.Depth} {
		if !(v > 0) || math.IsInf(v, 0) {
			return ErrInvalidDimensions
		}
	}
	if thickness < 0 || math.IsNaN(thickness) || math.IsInf(thickness, 0) {
		return ErrInvalidDimensions
	}
	return nil
}
