// Package assembly は段ボールハウスの組み立てガイドを提供する。
package assembly

import "fmt"

// StepStatus は各ステップの進行状態。
type StepStatus string

const (
	StatusDone    StepStatus = "done"
	StatusActive  StepStatus = "active"
	StatusPending StepStatus = "pending"
)

// View は組み立て図の表示モード。
type View string

const (
	View3D View = "3d"
	View2D View = "2d"
)

// ParseView は文字列を表示モードに変換する。未知の値は3Dとして扱う。
func ParseView(s string) View {
	if View(s) == View2D {
		return View2D
	}
	return View3D
}

// Toggle は反対の表示モードを返す。
func (v View) Toggle() View {
	if v == View2D {
		return View3D
	}
	return View2D
}

// Part は1ステップで使う部品。
type Part struct {
	PanelID string // ボトルキャップなどパネル以外の部品は空
	Name    string
	Spec    string
}

// Step は組み立て手順の1ステップ。
type Step struct {
	Number      int
	Title       string
	Subtitle    string
	Description string
	Parts       []Part
	Tips        []string
}

const (
	// DefaultStep はガイドを開いたときの初期ステップ。
	DefaultStep = 2
	// minutesPerStep は1ステップあたりの想定所要時間（分）。
	minutesPerStep = 5
)

func bottleCap(spec string) Part {
	return Part{Name: "페트병 뚜껑", Spec: spec}
}

// Steps は組み立て手順。Numberは1始まりの連番。
var Steps = []Step{
	{
		Number:      1,
		Title:       "바닥판 준비",
		Subtitle:    "패널 A1 + A2",
		Description: "두 개의 바닥 패널을 나란히 놓으세요. 번호가 바깥쪽을 향하도록 배치합니다.",
		Parts: []Part{
			{PanelID: "A1", Name: "바닥 패널 (좌)", Spec: "골판지 · 6mm"},
			{PanelID: "A2", Name: "바닥 패널 (우)", Spec: "골판지 · 6mm"},
		},
		Tips: []string{"패널의 주름 방향이 같은지 확인하세요.", "평평한 바닥 위에서 작업하면 편합니다."},
	},
	{
		Number:      2,
		Title:       "옆면 패널 연결",
		Subtitle:    "현재 단계",
		Description: "두 개의 옆면 패널을 세워 놓으세요. 상단 연결부의 둥근 구멍을 맞춘 후, 페트병 뚜껑을 두 레이어에 끼워 고정합니다.",
		Parts: []Part{
			{PanelID: "B1", Name: "옆면 패널 (좌)", Spec: "골판지 · 6mm"},
			{PanelID: "B2", Name: "옆면 패널 (우)", Spec: "골판지 · 6mm"},
			bottleCap("표준 PCO 1881"),
		},
		Tips: []string{
			"시계 방향으로 뚜껑을 돌려 저항이 느껴질 때까지 조입니다.",
			"너무 세게 조이면 골판지가 눌릴 수 있습니다.",
			"패널의 로고가 바깥쪽을 향하도록 하세요.",
		},
	},
	{
		Number:      3,
		Title:       "지붕 설치",
		Subtitle:    "패널 C1",
		Description: "지붕 패널을 옆면 패널 위에 올려 놓고, 4개의 모서리를 뚜껑으로 고정합니다.",
		Parts: []Part{
			{PanelID: "C1", Name: "지붕 패널", Spec: "골판지 · 6mm"},
			bottleCap("x4"),
		},
		Tips: []string{"지붕이 수평인지 확인하세요.", "모서리 4개를 동시에 약하게 고정 후 균형 잡아 조입니다."},
	},
	{
		Number:      4,
		Title:       "입구 부착",
		Subtitle:    "패널 D2 + 클립",
		Description: "입구 패널을 앞면에 맞추고, 위아래 두 지점에서 뚜껑으로 고정합니다.",
		Parts: []Part{
			{PanelID: "D2", Name: "입구 패널", Spec: "골판지 · 6mm"},
			bottleCap("x2"),
		},
		Tips: []string{"입구 크기가 반려동물이 통과할 수 있는지 확인하세요."},
	},
	{
		Number:      5,
		Title:       "최종 점검",
		Subtitle:    "모든 잠금 확인",
		Description: "모든 뚜껑 조인트가 단단히 고정되었는지 확인하세요. 구조물을 살짝 흔들어 안전한지 테스트합니다.",
		Tips:        []string{"느슨한 조인트는 재조임하세요.", "완성 후 사진을 커뮤니티에 공유해보세요!"},
	},
}

// Clamp はステップ番号を1からステップ数の範囲に収める。
func Clamp(n int) int {
	if n < 1 {
		return 1
	}
	if n > len(Steps) {
		return len(Steps)
	}
	return n
}

// StepItem はサイドバーに表示するステップと進行状態。
type StepItem struct {
	Step
	Status StepStatus
}

// Guide は現在ステップから導出した組み立てガイドの表示状態。
type Guide struct {
	Current          int
	View             View
	Step             Step
	Items            []StepItem
	Progress         int // 0〜100
	RemainingMinutes int
}

// NewGuide は現在ステップと表示モードからガイドを組み立てる。
// currentは範囲外でもClampで補正する。
func NewGuide(current int, view View) Guide {
	current = Clamp(current)
	n := len(Steps)

	items := make([]StepItem, n)
	for i, s := range Steps {
		status := StatusPending
		switch {
		case s.Number < current:
			status = StatusDone
		case s.Number == current:
			status = StatusActive
		}
		items[i] = StepItem{Step: s, Status: status}
	}

	return Guide{
		Current:          current,
		View:             view,
		Step:             Steps[current-1],
		Items:            items,
		Progress:         progress(current, n),
		RemainingMinutes: (n - current + 1) * minutesPerStep,
	}
}

// progress は(current-1)/(n-1)を四捨五入した百分率を返す。
func progress(current, n int) int {
	if n <= 1 {
		return 100
	}
	return ((current-1)*200 + (n - 1)) / (2 * (n - 1))
}

// HasPrev は前のステップがあるかを返す。
func (g Guide) HasPrev() bool { return g.Current > 1 }

// HasNext は次のステップがあるかを返す。最終ステップでは完成表示に切り替える。
func (g Guide) HasNext() bool { return g.Current < len(Steps) }

// Prev は前のステップ番号を返す。
func (g Guide) Prev() int { return Clamp(g.Current - 1) }

// Next は次のステップ番号を返す。
func (g Guide) Next() int { return Clamp(g.Current + 1) }

// Label は"STEP 02/5"形式のステップ表示を返す。
func (g Guide) Label() string {
	return fmt.Sprintf("STEP %02d/%d", g.Current, len(Steps))
}
