package portal

import (
	"fmt"

	"github.com/hitoshi/bridgelogin/internal/model"
	"github.com/hitoshi/bridgelogin/internal/security"
)

// Panel は1つの表示状態に対応する画面要素。
// Renderは常にちょうど1つのPanelを返すため、複数の状態の画面が
// 同時に見えることはない。
type Panel struct {
	// Name は対応する表示状態の名前。
	Name string
	// Title はパネルの見出し。
	Title string
	// Lines は本文の行。
	Lines []string
	// Prompt は入力を要求する場合のプロンプト。入力不要なら空。
	Prompt string
	// MaskInput はプロンプト入力をエコーしない場合にtrue。
	MaskInput bool
}

// Renderer はセッションの現在状態をPanelに変換する。
// 描画は純粋な読み取り操作であり、セッションを変更しない。
// プロバイダー由来の文字列（表示名、失敗理由）は描画前にサニタイズする。
type Renderer struct {
	sanitizer security.TextSanitizerService
}

// NewRenderer はRendererを生成する。
func NewRenderer(sanitizer security.TextSanitizerService) *Renderer {
	return &Renderer{sanitizer: sanitizer}
}

// Render はセッションの状態に対応するPanelを返す。
// すべての状態が必ずいずれか1つのパネルに対応する。
func (r *Renderer) Render(session model.LoginSession) *Panel {
	switch session.State {
	case model.StateLoading:
		return &Panel{
			Name:  string(model.StateLoading),
			Title: "確認中",
			Lines: []string{"ログイントークンを確認しています..."},
		}

	case model.StateTokenExpired:
		return &Panel{
			Name:  string(model.StateTokenExpired),
			Title: "リンクの有効期限切れ",
			Lines: []string{
				"このログインリンクは有効期限が切れています。",
				"ボットにloginコマンドを送信して、新しいリンクを取得してください。",
			},
		}

	case model.StateTokenInvalid:
		return &Panel{
			Name:  string(model.StateTokenInvalid),
			Title: "無効なリンク",
			Lines: []string{
				"このログインリンクは無効です。",
				"リンクが正しくコピーされているか確認するか、新しいリンクを取得してください。",
			},
		}

	case model.StateAwaitingStart:
		return &Panel{
			Name:  string(model.StateAwaitingStart),
			Title: "ログインの開始",
			Lines: []string{
				fmt.Sprintf("%s としてログインします。", session.MXID),
			},
			Prompt: "Enterキーでログインを開始します",
		}

	case model.StateAwaitingCredential:
		lines := []string{
			"チャットサービスにブラウザでログインし、認可Cookieの値を取得してください。",
		}
		if session.Handle != nil && session.Handle.InstructionsURL != "" {
			lines = append(lines, fmt.Sprintf("手順: %s", session.Handle.InstructionsURL))
		}
		return &Panel{
			Name:      string(model.StateAwaitingCredential),
			Title:     "認可Cookieの入力",
			Lines:     lines,
			Prompt:    "認可Cookieの値を貼り付けてください",
			MaskInput: true,
		}

	case model.StateSubmitting:
		return &Panel{
			Name:  string(model.StateSubmitting),
			Title: "ログイン中",
			Lines: []string{"ログイン処理を実行しています..."},
		}

	case model.StateSuccess:
		name := r.sanitizer.Sanitize(session.DisplayName)
		return &Panel{
			Name:  string(model.StateSuccess),
			Title: "ログイン成功",
			Lines: []string{
				fmt.Sprintf("%s としてログインしました。", name),
				"この画面を閉じて構いません。ブリッジが同期を開始します。",
			},
		}

	case model.StateFailure:
		lines := []string{"ログインに失敗しました。"}
		if detail := r.sanitizer.Sanitize(session.ErrorDetail); detail != "" {
			lines = append(lines, fmt.Sprintf("理由: %s", detail))
		}
		lines = append(lines, "新しいログインリンクを取得して、最初からやり直してください。")
		return &Panel{
			Name:  string(model.StateFailure),
			Title: "ログイン失敗",
			Lines: lines,
		}

	default:
		return &Panel{
			Name:  string(model.StateUnknownError),
			Title: "エラー",
			Lines: []string{
				"予期しないエラーが発生しました。",
				"新しいログインリンクを取得して、最初からやり直してください。",
			},
		}
	}
}
