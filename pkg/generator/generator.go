// Package generator は、台本のパネル列を左から右への単一スイープで
// バッチ画像へ変換します。バッチは厳密に逐次生成します。後続バッチは前の
// バッチの内容には依存せず、合成時の位置のみに依存するためで、並列化よりも
// 外部エンジンへの負荷の有界性を優先しています。
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shouni/go-paper-manga/pkg/domain"
	"github.com/shouni/go-paper-manga/pkg/engine"
	"github.com/shouni/go-paper-manga/pkg/progress"
	"github.com/shouni/go-paper-manga/pkg/theme"
	"github.com/shouni/go-paper-manga/pkg/validator"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const (
	// 一貫性を創造的多様性より優先するため低温度で生成します。
	imageTemperature = 0.2

	// DefaultMaxAttempts は1バッチあたりの生成＋検証の試行回数です。
	DefaultMaxAttempts = 3

	// DefaultBatchInterval はバッチ間の最小間隔です。
	DefaultBatchInterval = 15 * time.Second

	// ハードエラー時の指数バックオフ設定
	DefaultHardRetryInterval = 1 * time.Second

	backoffMax         = 30 * time.Second
	backoffHardRetries = 3
)

// BatchObserver は各バッチの完了通知を受け取ります。
// セッションストアが実装し、途中成果物の永続化に使います。
type BatchObserver interface {
	BatchGenerated(ctx context.Context, manga *domain.GeneratedManga, batchIndex int)
}

// Config は BatchGenerator の調整パラメータです。ゼロ値はデフォルトに
// 解決されます。
type Config struct {
	MaxAttempts       int
	BatchInterval     time.Duration
	HardRetryInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BatchInterval <= 0 {
		c.BatchInterval = DefaultBatchInterval
	}
	if c.HardRetryInterval <= 0 {
		c.HardRetryInterval = DefaultHardRetryInterval
	}
	return c
}

// BatchGenerator はバッチ画像生成のスイープ実行器です。
type BatchGenerator struct {
	imageGen  engine.ImageGenerator
	validator *validator.Validator
	themes    *theme.Library
	tracker   *progress.Tracker
	limiter   *rate.Limiter
	observer  BatchObserver
	cfg       Config
}

// New は BatchGenerator を初期化します。
func New(imageGen engine.ImageGenerator, v *validator.Validator, themes *theme.Library, tracker *progress.Tracker, cfg Config) *BatchGenerator {
	cfg = cfg.withDefaults()
	return &BatchGenerator{
		imageGen:  imageGen,
		validator: v,
		themes:    themes,
		tracker:   tracker,
		limiter:   rate.NewLimiter(rate.Every(cfg.BatchInterval), 1),
		cfg:       cfg,
	}
}

// SetObserver はバッチ完了通知の宛先を設定します。
func (g *BatchGenerator) SetObserver(o BatchObserver) {
	g.observer = o
}

// Generate は台本の全パネルをバッチ単位で画像化し、GeneratedManga を返します。
// 個々のバッチの失敗はプレースホルダーで吸収するため、返るエラーは
// コンテキストのキャンセルなど横断的な失敗のみです。
func (g *BatchGenerator) Generate(ctx context.Context, sb *domain.Storyboard) (*domain.GeneratedManga, error) {
	th, err := g.themes.Theme(sb.CharacterTheme)
	if err != nil {
		return nil, err
	}

	manga := domain.NewGeneratedManga(sb)
	batches := splitBatches(sb.Panels)

	g.tracker.SetStage(progress.StageGenerating, "パネル画像を生成しています")
	g.tracker.SetUnits(0, sb.PanelCount())

	for i, batch := range batches {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("リミッター待機中にエラーが発生しました: %w", err)
		}

		slog.Info("バッチ生成を開始します",
			"batch", i+1, "total_batches", len(batches), "panels", len(batch))

		panel, err := g.generateBatch(ctx, batch, th)
		if err != nil {
			return nil, err
		}

		manga.Append(panel)
		// 進捗はバッチ数ではなく、カバーした元パネル数で進める
		g.tracker.Advance(len(batch))

		if g.observer != nil {
			g.observer.BatchGenerated(ctx, manga, i)
		}
	}

	return manga, nil
}

// splitBatches は連続する最大 MaxPanelsPerBatch 個のパネルを1バッチに
// まとめます。
func splitBatches(panels domain.Panels) []domain.Panels {
	var batches []domain.Panels
	for i := 0; i < len(panels); i += MaxPanelsPerBatch {
		end := i + MaxPanelsPerBatch
		if end > len(panels) {
			end = len(panels)
		}
		batches = append(batches, panels[i:end])
	}
	return batches
}

// generateBatch は1バッチの生成＋検証ループを実行します。
// 検証失敗は失敗理由を添えた是正指示を積み増して再生成し、試行上限に
// 達したら未検証でも最後の画像を採用します（何も返さないよりは部分的な
// 忠実度を優先）。ハードエラーはバックオフ付きで再試行し、それでも
// 失敗したらプレースホルダーへ降格します。
func (g *BatchGenerator) generateBatch(ctx context.Context, batch domain.Panels, th theme.Theme) (domain.GeneratedPanel, error) {
	hint := ""
	if len(batch) == 1 {
		hint = batch[0].LayoutHint
	}
	width, height := GetBatchDimensions(len(batch), hint)

	refs := g.loadReferences(ctx, batch, th)
	basePrompt := buildBatchPrompt(batch, th, refs)
	negative := buildNegativePrompt(th)

	refImages := make([]engine.Image, 0, len(refs))
	for _, r := range refs {
		refImages = append(refImages, r.Image)
	}

	strict := th.StrictFidelity() && len(refs) > 0

	var attemptContext string
	var last *engine.Image

	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		prompt := basePrompt
		if attemptContext != "" {
			prompt += "\n\nPrevious attempts were rejected by the design inspector:\n" + attemptContext +
				"Fix these issues and redraw.\n"
		}

		img, err := g.generateOnce(ctx, engine.ImageRequest{
			Prompt:          prompt,
			NegativePrompt:  negative,
			Width:           width,
			Height:          height,
			Style:           th.Style,
			Temperature:     imageTemperature,
			ReferenceImages: refImages,
		})
		if err != nil {
			if ctx.Err() != nil {
				return domain.GeneratedPanel{}, ctx.Err()
			}
			slog.Error("バックオフ再試行の末に生成が失敗したため、プレースホルダーへ降格します",
				"panel", batch[0].Number, "error", err)
			return renderPlaceholder(batch, width, height)
		}
		last = img

		if !strict {
			return makePanel(batch, *img, width, height), nil
		}

		result := g.validator.Validate(ctx, refs, *img)
		if result.Passed {
			slog.Info("バッチ画像が検証を通過しました", "panel", batch[0].Number, "attempt", attempt)
			return makePanel(batch, *img, width, height), nil
		}

		slog.Warn("バッチ画像が検証に失敗しました",
			"panel", batch[0].Number, "attempt", attempt, "reason", result.Reason)
		attemptContext += fmt.Sprintf("- attempt %d: %s\n", attempt, result.Reason)
	}

	// 試行上限: 最後に生成された画像を未検証のまま採用する
	slog.Warn("検証試行の上限に達したため、最後の画像を未検証で採用します",
		"panel", batch[0].Number, "attempts", g.cfg.MaxAttempts)
	return makePanel(batch, *last, width, height), nil
}

// loadReferences はバッチに実際に登場するキャラクターの参照画像を読み込みます。
// 読み込み失敗時は参照なしで続行します（検証は自動的にスキップされる）。
func (g *BatchGenerator) loadReferences(ctx context.Context, batch domain.Panels, th theme.Theme) []theme.ReferenceImage {
	if !th.StrictFidelity() {
		return nil
	}
	refs, err := g.themes.LoadReferenceImages(ctx, th, batch.UniqueCharacters())
	if err != nil {
		slog.Warn("参照画像の読み込みに失敗したため、参照なしで生成します", "error", err)
		return nil
	}
	return refs
}

// generateOnce はハードエラーに対して指数バックオフ付きで1回の生成を行います。
func (g *BatchGenerator) generateOnce(ctx context.Context, req engine.ImageRequest) (*engine.Image, error) {
	var img *engine.Image

	operation := func() error {
		resp, err := g.imageGen.GenerateImage(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Images) == 0 {
			return fmt.Errorf("エンジンが画像を返しませんでした")
		}
		img = &resp.Images[0]
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = g.cfg.HardRetryInterval
	bo.MaxInterval = backoffMax
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, backoffHardRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return img, nil
}

func makePanel(batch domain.Panels, img engine.Image, width, height int) domain.GeneratedPanel {
	covered := make([]int, 0, len(batch))
	for _, p := range batch {
		covered = append(covered, p.Number)
	}
	return domain.GeneratedPanel{
		PanelNumber:   batch[0].Number,
		Data:          img.Data,
		MimeType:      img.MimeType,
		Width:         width,
		Height:        height,
		CoveredPanels: covered,
	}
}
