package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/hitoshi/bridgelogin/internal/apiclient"
	"github.com/hitoshi/bridgelogin/internal/config"
	"github.com/hitoshi/bridgelogin/internal/model"
	"github.com/hitoshi/bridgelogin/internal/portal"
	"github.com/hitoshi/bridgelogin/internal/security"
)

// runLogin は対話的なログインポータルを起動する。
// argsの先頭要素をディープリンクURL（またはトークン値そのもの）として解釈する。
// BASE_URL環境変数で指定されたバックエンドに対してハンドシェイクを実行する。
func runLogin(out io.Writer, in io.Reader, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: bridgelogin login <link-or-token>")
	}

	// サーバー側の必須設定（DB接続や共有シークレット）は不要なため、
	// config.Loadは使わずクライアントに必要な環境変数だけを読む
	baseURL := os.Getenv("BASE_URL")
	if baseURL == "" {
		if i := strings.IndexByte(args[0], '#'); i > 0 {
			baseURL = strings.TrimSuffix(args[0][:i], "/login")
		} else {
			return fmt.Errorf("BASE_URL is not set and the argument is not a full link")
		}
	}

	// 対話出力と混ざらないよう、ログは標準エラーに出す
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	backend := apiclient.NewClient(
		&http.Client{Timeout: config.DefaultAPITimeout},
		logger,
		baseURL,
	)

	return runLoginFlow(context.Background(), backend, logger, extractToken(args[0]), in, out)
}

// runLoginFlow はログインセッションの状態機械を対話的に駆動する。
// 各状態に対応するパネルを1つずつ描画し、終端状態に到達したら終了する。
func runLoginFlow(ctx context.Context, backend portal.BackendClient, logger *slog.Logger, token string, in io.Reader, out io.Writer) error {
	controller := portal.NewController(portal.NewTokenValidator(backend), backend, logger, token)
	renderer := portal.NewRenderer(security.NewTextSanitizer())
	reader := bufio.NewReader(in)

	renderPanel(out, renderer.Render(controller.Session()))

	state, err := controller.Load(ctx)
	if err != nil {
		return err
	}
	renderPanel(out, renderer.Render(controller.Session()))

	if state == model.StateAwaitingStart {
		if _, err := reader.ReadString('\n'); err != nil && err != io.EOF {
			return fmt.Errorf("failed to read input: %w", err)
		}

		state, err = controller.Start(ctx)
		if err != nil {
			return err
		}
		renderPanel(out, renderer.Render(controller.Session()))
	}

	for state == model.StateAwaitingCredential {
		line, readErr := reader.ReadString('\n')
		credential := strings.TrimSpace(line)

		state, err = controller.Submit(ctx, credential)
		if err != nil {
			// 空入力はローカルで拒否される。状態は変わらないため再入力を促す
			fmt.Fprintln(out, err.Error())
			if readErr != nil {
				return fmt.Errorf("failed to read credential: %w", readErr)
			}
			continue
		}
		renderPanel(out, renderer.Render(controller.Session()))
	}

	return nil
}

// extractToken はディープリンクURLからトークン部分を取り出す。
// フラグメント（#以降）があればそれを、なければ入力全体をトークンとして扱う。
func extractToken(arg string) string {
	if i := strings.LastIndexByte(arg, '#'); i >= 0 {
		return arg[i+1:]
	}
	return arg
}

// renderPanel はパネルを書式化して出力する。
func renderPanel(out io.Writer, panel *portal.Panel) {
	fmt.Fprintf(out, "\n== %s ==\n", panel.Title)
	for _, line := range panel.Lines {
		fmt.Fprintln(out, line)
	}
	if panel.Prompt != "" {
		fmt.Fprintf(out, "%s: ", panel.Prompt)
	}
}
