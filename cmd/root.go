package cmd

import (
	"fmt"
	"os"

	"github.com/shouni/go-paper-manga/internal/config"

	clibase "github.com/shouni/go-cli-base"
	"github.com/spf13/cobra"
)

// opts は addAppFlags でコマンドラインフラグと紐付けられる実行時設定なのだ。
var opts config.GenerateOptions

// addAppFlags は、アプリケーション全般に適用されるグローバルフラグを定義するのだ。
func addAppFlags(rootCmd *cobra.Command) {
	// --- ソース入力関連 ---
	rootCmd.PersistentFlags().StringVarP(&opts.ScriptURL, "script-url", "u", "", "Webページから論文本文を取得するためのURLなのだ。")
	rootCmd.PersistentFlags().StringVarP(&opts.ScriptFile, "script-file", "f", "", "入力ファイルのパス（'-'で標準入力なのだ）。")

	// --- 台本生成設定 ---
	rootCmd.PersistentFlags().StringVarP(&opts.Title, "title", "t", "", "作品タイトルなのだ。")
	rootCmd.PersistentFlags().StringVarP(&opts.Language, "language", "l", config.DefaultLanguage, "出力言語（zh-CN / en-US / ja-JP）なのだ。")
	rootCmd.PersistentFlags().StringVar(&opts.CharacterTheme, "theme", "", "キャラクターテーマ名（未指定はマニフェストのデフォルト）なのだ。")
	rootCmd.PersistentFlags().StringVar(&opts.ThemeManifest, "theme-manifest", config.DefaultThemeManifest, "テーママニフェストJSONのパスなのだ。")

	// --- 生成結果の出力設定 ---
	rootCmd.PersistentFlags().StringVarP(&opts.OutputDir, "output-dir", "o", config.DefaultOutputDir, "成果物の保存ディレクトリ（ローカル or gs://...）なのだ。")
	rootCmd.PersistentFlags().StringVar(&opts.Layout, "layout", config.DefaultLayout, "最終画像のレイアウト（vertical / grid）なのだ。")

	// --- AIモデル・挙動設定 ---
	rootCmd.PersistentFlags().StringVar(&opts.AIModel, "model", config.DefaultModel, "テキスト生成に使う Gemini モデル名なのだ。")
	rootCmd.PersistentFlags().StringVar(&opts.ImageModel, "image-model", config.DefaultImageModel, "画像生成に使う Gemini モデル名なのだ。")
	rootCmd.PersistentFlags().DurationVar(&opts.HTTPTimeout, "http-timeout", config.DefaultHTTPTimeout, "Webリクエストのタイムアウトなのだ。")
	rootCmd.PersistentFlags().DurationVar(&opts.BatchInterval, "batch-interval", config.DefaultBatchInterval, "画像生成バッチ間の最小間隔なのだ。")
}

// preRunAppE は、コマンド実行前に環境変数などの必須チェックを行うのだ。
func preRunAppE(cmd *cobra.Command, args []string) error {
	// Gemini APIを利用するため、APIキーの存在チェックは欠かせないのだ！
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("エラー: 環境変数 GEMINI_API_KEY が設定されていません。Gemini APIの利用には必須なのだ")
	}
	return nil
}

// loadConfig は環境変数の設定に CLI フラグの値を重ねて返すのだ。
func loadConfig() *config.Config {
	cfg := config.LoadConfig()
	cfg.GeminiModel = opts.AIModel
	cfg.GeminiImageModel = opts.ImageModel
	cfg.Options = opts
	return cfg
}

// requireSource は、入力ソースが1つ以上指定されているか確認するのだ。
func requireSource() error {
	if opts.ScriptURL == "" && opts.ScriptFile == "" && !isStdin() {
		return fmt.Errorf("ソース（--script-url または --script-file）を指定してほしいのだ")
	}
	if opts.ScriptFile == "" && isStdin() {
		opts.ScriptFile = "-"
	}
	return nil
}

func isStdin() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// Execute は、アプリケーションのメインエントリポイントなのだ。
// main.go から呼び出されて、cobra のコマンドライン解析を開始するのだよ。
func Execute() {
	clibase.Execute(
		"paper-manga",
		addAppFlags,
		preRunAppE,
		generateCmd,
		storyboardCmd,
		imageCmd,
	)
}
