package model

// AnalysisMethod は寸法推定に使う解析手法。
type AnalysisMethod string

const (
	AnalysisMethodAuto   AnalysisMethod = "auto"
	AnalysisMethodGemini AnalysisMethod = "gemini"
	AnalysisMethodOpenCV AnalysisMethod = "opencv"
)

// ParseAnalysisMethod は文字列を解析手法に変換する。
// 空文字列はautoとして扱う。
func ParseAnalysisMethod(s string) (AnalysisMethod, bool) {
	switch AnalysisMethod(s) {
	case "", AnalysisMethodAuto:
		return AnalysisMethodAuto, true
	case AnalysisMethodGemini:
		return AnalysisMethodGemini, true
	case AnalysisMethodOpenCV:
		return AnalysisMethodOpenCV, true
	default:
		return "", false
	}
}

// DefaultThickness は段ボールの既定の厚み（mm）。
const DefaultThickness = 3.0

// Dimensions は解析サービスが推定したペットの体寸法。
type Dimensions struct {
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Depth      float64 `json:"depth"`
	Confidence float64 `json:"confidence"`
	Notes      string  `json:"notes"`
	Method     string  `json:"method"`
}

// AnalyzeResult は POST /api/analyze のレスポンス。
type AnalyzeResult struct {
	Success    bool       `json:"success"`
	Dimensions Dimensions `json:"dimensions"`
	ImagePath  string     `json:"image_path"`
	Error      string     `json:"error,omitempty"`
}

// GenerateRequest は POST /api/generate のリクエストボディ。
type GenerateRequest struct {
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Depth     float64 `json:"depth"`
	Thickness float64 `json:"thickness"`
	Format    string  `json:"format"`
	Simple    bool    `json:"simple"`
}

// GenerateResult は POST /api/generate のレスポンス。
type GenerateResult struct {
	Success     bool   `json:"success"`
	Filename    string `json:"filename"`
	DownloadURL string `json:"download_url"`
	FileSize    int64  `json:"file_size"`
	Error       string `json:"error,omitempty"`
}

// GenerateFromImageResult は POST /api/generate-from-image のレスポンス。
type GenerateFromImageResult struct {
	Success     bool       `json:"success"`
	Dimensions  Dimensions `json:"dimensions"`
	Filename    string     `json:"filename"`
	DownloadURL string     `json:"download_url"`
	FileSize    int64      `json:"file_size"`
	Error       string     `json:"error,omitempty"`
}

// Blueprint は解析から図面生成までを通した結果。
// 画面表示用に、ファイル取得はこのサーバー経由のURLに差し替えている。
type Blueprint struct {
	Dimensions  Dimensions `json:"dimensions"`
	NotesHTML   string     `json:"notes_html"`
	Filename    string     `json:"filename"`
	FileSize    int64      `json:"file_size"`
	DownloadURL string     `json:"download_url"`
	PreviewURL  string     `json:"preview_url"`
}
