// Package pipeline は、CLI コマンドから呼び出されるパイプラインの
// 実行エントリポイントです。
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/shouni/go-paper-manga/internal/builder"
	"github.com/shouni/go-paper-manga/internal/config"
	"github.com/shouni/go-paper-manga/pkg/domain"
	"github.com/shouni/go-paper-manga/pkg/synthesizer"

	"github.com/shouni/go-web-exact/v2/extract"
)

// storyboardDocument は storyboard コマンドが出力する台本JSONの形式です。
type storyboardDocument struct {
	domain.Storyboard
	PanelCount int `json:"panel_count"`
}

// ExecuteGenerate は、ソーステキストの取得から台本合成・バッチ画像生成・
// 最終結合画像の保存までの全工程を実行するのだ。
func ExecuteGenerate(ctx context.Context, cfg *config.Config) error {
	appCtx, err := builder.NewAppContext(ctx, cfg)
	if err != nil {
		return err
	}

	sb, err := synthesize(ctx, appCtx)
	if err != nil {
		return err
	}

	manga, err := appCtx.Manager.GenerateManga(ctx, sb)
	if err != nil {
		return fmt.Errorf("画像生成に失敗したのだ: %w", err)
	}

	snap := appCtx.Manager.Progress()
	slog.Info("物語の集大成が完成したのだ！",
		"title", manga.Title, "batches", len(manga.Panels),
		"progress", fmt.Sprintf("%d/%d", snap.Current, snap.Total))
	return nil
}

// ExecuteStoryboardOnly はソーステキストから台本だけを合成し、
// JSONとして保存するのだ。
func ExecuteStoryboardOnly(ctx context.Context, cfg *config.Config) error {
	appCtx, err := builder.NewAppContext(ctx, cfg)
	if err != nil {
		return err
	}

	sb, err := synthesize(ctx, appCtx)
	if err != nil {
		return err
	}

	doc := storyboardDocument{Storyboard: *sb, PanelCount: sb.PanelCount()}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("台本のエンコードに失敗しました: %w", err)
	}

	outputPath := cfg.Options.OutputFile
	if err := appCtx.Writer.Write(ctx, outputPath, bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("台本の保存に失敗しました (path: %s): %w", outputPath, err)
	}

	slog.Info("台本を保存したのだ！", "path", outputPath, "panels", sb.PanelCount())
	return nil
}

// ExecuteImageOnly は、保存済みの台本JSONを読み込み、画像生成と結合だけを
// 実行するのだ。
func ExecuteImageOnly(ctx context.Context, cfg *config.Config) error {
	appCtx, err := builder.NewAppContext(ctx, cfg)
	if err != nil {
		return err
	}

	rc, err := appCtx.Reader.Open(ctx, cfg.Options.ScriptFile)
	if err != nil {
		return fmt.Errorf("台本JSON '%s' の読み込みに失敗しました: %w", cfg.Options.ScriptFile, err)
	}
	defer rc.Close()

	var doc storyboardDocument
	if err := json.NewDecoder(rc).Decode(&doc); err != nil {
		return fmt.Errorf("台本JSON '%s' のデコードに失敗しました: %w", cfg.Options.ScriptFile, err)
	}
	if doc.PanelCount == 0 {
		doc.PanelCount = doc.Storyboard.PanelCount()
	}

	manga, err := appCtx.Manager.GenerateManga(ctx, &doc.Storyboard)
	if err != nil {
		return fmt.Errorf("画像生成に失敗したのだ: %w", err)
	}

	slog.Info("画像生成と保存が完了したのだ！", "title", manga.Title, "batches", len(manga.Panels))
	return nil
}

func synthesize(ctx context.Context, appCtx *builder.AppContext) (*domain.Storyboard, error) {
	text, err := readSourceText(ctx, appCtx)
	if err != nil {
		return nil, err
	}

	sb, err := appCtx.Manager.SynthesizeStoryboard(ctx, synthesizer.Request{
		Text:           text,
		Title:          appCtx.Options.Title,
		Language:       appCtx.Options.Language,
		CharacterTheme: appCtx.Options.CharacterTheme,
	})
	if err != nil {
		return nil, fmt.Errorf("台本の合成に失敗したのだ: %w", err)
	}
	return sb, nil
}

// readSourceText は、URL・ファイル・標準入力のいずれかからソーステキストを
// 取得するのだ。URLの場合はWebページから本文だけを抽出します。
func readSourceText(ctx context.Context, appCtx *builder.AppContext) (string, error) {
	opts := appCtx.Options

	if opts.ScriptURL != "" {
		extractor, err := extract.NewExtractor(appCtx.HTTPClient)
		if err != nil {
			return "", fmt.Errorf("エクストラクターの初期化に失敗しました: %w", err)
		}
		text, _, err := extractor.FetchAndExtractText(ctx, opts.ScriptURL)
		if err != nil {
			return "", fmt.Errorf("Webページの本文抽出に失敗しました: %w", err)
		}
		return text, nil
	}

	if opts.ScriptFile == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("標準入力の読み込みに失敗しました: %w", err)
		}
		return string(data), nil
	}

	rc, err := appCtx.Reader.Open(ctx, opts.ScriptFile)
	if err != nil {
		return "", fmt.Errorf("入力ファイル '%s' の読み込みに失敗しました: %w", opts.ScriptFile, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
