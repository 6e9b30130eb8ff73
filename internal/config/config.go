package config

import (
	"time"

	"github.com/shouni/go-utils/envutil"
)

// デフォルト値の定義なのだ
const (
	DefaultModel         = "gemini-3-flash-preview"
	DefaultImageModel    = "gemini-3-pro-image-preview"
	DefaultHTTPTimeout   = 30 * time.Second
	DefaultBatchInterval = 15 * time.Second
	DefaultOutputDir     = "output"
	DefaultThemeManifest = "examples/themes.json"
	DefaultLanguage      = "en-US"
	DefaultLayout        = "vertical"
)

// Config はアプリケーション全体の環境設定（APIキーやモデル名）を保持する構造体なのだ。
type Config struct {
	GeminiAPIKey     string
	GeminiModel      string
	GeminiImageModel string

	Options GenerateOptions
}

// LoadConfig は環境変数から設定を読み込み、構造体を返すのだ！
func LoadConfig() *Config {
	return &Config{
		GeminiAPIKey:     envutil.GetEnv("GEMINI_API_KEY", ""),
		GeminiModel:      envutil.GetEnv("GEMINI_MODEL", DefaultModel),
		GeminiImageModel: envutil.GetEnv("IMAGE_GEMINI_MODEL", DefaultImageModel),
	}
}

// GenerateOptions は CLI フラグから渡される実行時のパラメータなのだ。
type GenerateOptions struct {
	// ソース入力関連
	ScriptURL  string // --script-url: Webページから本文を抽出する
	ScriptFile string // --script-file: ローカル/GCSのテキストまたは台本JSON

	// 台本生成関連
	Title          string // --title
	Language       string // --language: zh-CN / en-US / ja-JP
	CharacterTheme string // --theme: テーママニフェスト内のテーマ名

	// 出力関連
	OutputDir     string // --output-dir: 成果物ディレクトリ（ローカル or gs://...）
	OutputFile    string // --output-file: storyboard コマンドの台本JSON保存先
	Layout        string // --layout: vertical / grid
	ThemeManifest string // --theme-manifest: テーママニフェストJSONのパス

	// AI挙動設定
	AIModel    string // --model: テキスト生成用のGeminiモデル
	ImageModel string // --image-model: 画像生成用のGeminiモデル

	// 実行制御
	HTTPTimeout   time.Duration // --http-timeout
	BatchInterval time.Duration // --batch-interval: バッチ間の最小間隔
}
