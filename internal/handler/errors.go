package handler

import (
	"errors"
	"net/http"

	"github.com/pawbox/pawbox/internal/blueprint"
	"github.com/pawbox/pawbox/internal/middleware"
	"github.com/pawbox/pawbox/internal/model"
	"github.com/pawbox/pawbox/internal/pawapi"
	"github.com/pawbox/pawbox/internal/showcase"
)

// handleServiceError はサービス層のエラーを統一エラーフォーマットに変換して書き込む。
// 変換できないエラーは500として扱う。
func handleServiceError(w http.ResponseWriter, err error) {
	middleware.WriteError(w, toAPIError(err))
}

// toAPIError はドメインのエラーをAPIErrorに変換する。未知のエラーはそのまま返す。
func toAPIError(err error) error {
	var sce *pawapi.ServiceCallError
	switch {
	case errors.Is(err, blueprint.ErrLoginRequired), errors.Is(err, showcase.ErrLoginRequired):
		return model.NewLoginRequiredError()
	case errors.As(err, &sce):
		return model.NewServiceCallError(sce.Message)
	case errors.Is(err, blueprint.ErrInvalidDimensions):
		return model.NewInvalidDimensionsError()
	case errors.Is(err, pawapi.ErrInvalidFilename):
		return model.NewInvalidFilenameError()
	default:
		return err
	}
}
