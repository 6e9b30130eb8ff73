// Package workflow は、台本合成から画像生成・結合までのパイプライン全体を
// 1つの窓口として公開します。依存はすべてコンストラクタで明示的に注入し、
// プロセス全体のシングルトンは持ちません。
package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shouni/go-paper-manga/pkg/cache"
	"github.com/shouni/go-paper-manga/pkg/compositor"
	"github.com/shouni/go-paper-manga/pkg/domain"
	"github.com/shouni/go-paper-manga/pkg/generator"
	"github.com/shouni/go-paper-manga/pkg/progress"
	"github.com/shouni/go-paper-manga/pkg/synthesizer"
)

// Manager はパイプラインの公開操作を束ねます。
type Manager struct {
	synth     *synthesizer.Synthesizer
	gen       *generator.BatchGenerator
	cache     *cache.StoryboardCache
	tracker   *progress.Tracker
	writer    compositor.OutputWriter // nil の場合は永続化なし（メモリ内のみ）
	outputDir string
	layout    compositor.Layout
}

// NewManager は Manager を初期化します。writer が nil の場合、
// 途中成果物と最終画像の永続化は行いません。layout は最終結合画像の
// レイアウト指定で、不明な値は縦結合として扱われます。
func NewManager(
	synth *synthesizer.Synthesizer,
	gen *generator.BatchGenerator,
	c *cache.StoryboardCache,
	tracker *progress.Tracker,
	writer compositor.OutputWriter,
	outputDir string,
	layout string,
) *Manager {
	return &Manager{
		synth:     synth,
		gen:       gen,
		cache:     c,
		tracker:   tracker,
		writer:    writer,
		outputDir: outputDir,
		layout:    compositor.ParseLayout(layout),
	}
}

// SynthesizeStoryboard はソーステキストから台本を合成します。
func (m *Manager) SynthesizeStoryboard(ctx context.Context, req synthesizer.Request) (*domain.Storyboard, error) {
	sb, err := m.synth.Synthesize(ctx, req)
	if err != nil {
		m.tracker.SetStage(progress.StageError, err.Error())
		return nil, err
	}
	return sb, nil
}

// GenerateManga は台本の全パネルをバッチ画像化し、最終結合画像と
// メタデータを永続化します。生成済みパネルがある状態で結合・保存に
// 失敗した場合は、直近の途中スナップショットが代替成果物になるため、
// エラーではなく生成結果をそのまま返します。
func (m *Manager) GenerateManga(ctx context.Context, sb *domain.Storyboard) (*domain.GeneratedManga, error) {
	var store *compositor.SessionStore
	if m.writer != nil {
		store = compositor.NewSessionStore(m.writer, m.outputDir, sb.Title, sb.PanelCount())
		m.gen.SetObserver(store)
		defer m.gen.SetObserver(nil)
	}

	manga, err := m.gen.Generate(ctx, sb)
	if err != nil {
		m.tracker.SetStage(progress.StageError, err.Error())
		return nil, err
	}

	if store != nil {
		complete := generatedCount(manga) == sb.PanelCount() && !hasPlaceholder(manga)
		if _, err := store.Finalize(ctx, manga, m.layout, complete); err != nil {
			slog.Warn("最終画像の保存に失敗しました。途中スナップショットが代替成果物です",
				"session", store.SessionID(), "error", err)
		}
	}

	m.tracker.SetStage(progress.StageCompleted, "生成が完了しました")
	return manga, nil
}

// CombinedImage は生成済みパネル列を指定レイアウトで1枚へ結合します。
func (m *Manager) CombinedImage(manga *domain.GeneratedManga, layout string) ([]byte, error) {
	if manga == nil || len(manga.Panels) == 0 {
		return nil, fmt.Errorf("結合対象のパネルがありません")
	}
	return compositor.Compose(manga.Panels, compositor.ParseLayout(layout))
}

// Progress は現在の進行状況を返します。
func (m *Manager) Progress() progress.Snapshot {
	return m.tracker.Snapshot()
}

// ClearCache は台本キャッシュを全消去し、消去したエントリ数を返します。
func (m *Manager) ClearCache() int {
	count := m.cache.Flush()
	slog.Info("台本キャッシュを消去しました", "entries", count)
	return count
}

func generatedCount(manga *domain.GeneratedManga) int {
	n := 0
	for _, p := range manga.Panels {
		n += len(p.CoveredPanels)
	}
	return n
}

func hasPlaceholder(manga *domain.GeneratedManga) bool {
	for _, p := range manga.Panels {
		if p.IsPlaceholder {
			return true
		}
	}
	return false
}
