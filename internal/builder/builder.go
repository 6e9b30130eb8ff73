package builder

import (
	"context"
	"fmt"
	"io"

	"github.com/shouni/go-paper-manga/internal/config"
	"github.com/shouni/go-paper-manga/pkg/cache"
	"github.com/shouni/go-paper-manga/pkg/engine/gemini"
	"github.com/shouni/go-paper-manga/pkg/generator"
	"github.com/shouni/go-paper-manga/pkg/progress"
	"github.com/shouni/go-paper-manga/pkg/synthesizer"
	"github.com/shouni/go-paper-manga/pkg/theme"
	"github.com/shouni/go-paper-manga/pkg/validator"
	"github.com/shouni/go-paper-manga/pkg/workflow"

	"github.com/shouni/go-http-kit/httpkit"
	"github.com/shouni/go-remote-io/pkg/gcsfactory"
)

// NewAppContext は、提供された設定を使用してアプリケーションコンテキストを
// 初期化して返すのだ。エンジンクライアント・入出力・テーマ・パイプラインを
// ここで一度だけ組み立てます。
func NewAppContext(ctx context.Context, cfg *config.Config) (*AppContext, error) {
	httpClient := httpkit.New(cfg.Options.HTTPTimeout)

	engineClient, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiImageModel)
	if err != nil {
		return nil, fmt.Errorf("AIクライアントの初期化に失敗しました: %w", err)
	}

	gcsFactory, err := gcsfactory.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client factory: %w", err)
	}
	reader, err := gcsFactory.InputReader()
	if err != nil {
		return nil, err
	}
	writer, err := gcsFactory.OutputWriter()
	if err != nil {
		return nil, err
	}

	themes, err := loadThemes(ctx, reader, cfg.Options.ThemeManifest)
	if err != nil {
		return nil, err
	}

	storyboardCache := cache.New()
	tracker := progress.NewTracker()

	synth, err := synthesizer.New(engineClient, storyboardCache, tracker, themes)
	if err != nil {
		return nil, fmt.Errorf("Synthesizerの初期化に失敗しました: %w", err)
	}

	gen := generator.New(
		engineClient,
		validator.New(engineClient),
		themes,
		tracker,
		generator.Config{BatchInterval: cfg.Options.BatchInterval},
	)

	manager := workflow.NewManager(synth, gen, storyboardCache, tracker, writer, cfg.Options.OutputDir, cfg.Options.Layout)

	return &AppContext{
		Config:     cfg,
		Options:    cfg.Options,
		Reader:     reader,
		Writer:     writer,
		Themes:     themes,
		Manager:    manager,
		HTTPClient: httpClient,
	}, nil
}

// loadThemes はテーママニフェストJSONを読み込んで Library を構築します。
// 参照画像のアセットは同じリーダー経由で遅延読み込みされます。
func loadThemes(ctx context.Context, reader theme.AssetReader, manifestPath string) (*theme.Library, error) {
	rc, err := reader.Open(ctx, manifestPath)
	if err != nil {
		return nil, fmt.Errorf("テーママニフェスト '%s' の読み込みに失敗しました: %w", manifestPath, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return theme.NewLibrary(data, reader)
}
