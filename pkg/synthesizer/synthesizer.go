// Package synthesizer は、長文のソーステキストから分鏡台本（Storyboard）を
// 合成するパイプラインです。解析 → 脚本生成 → 翻訳の3段のテキスト生成を
// オーケストレーションし、フィールドごとの長さ上限を強制します。
package synthesizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/shouni/go-paper-manga/pkg/cache"
	"github.com/shouni/go-paper-manga/pkg/domain"
	"github.com/shouni/go-paper-manga/pkg/engine"
	"github.com/shouni/go-paper-manga/pkg/parser"
	"github.com/shouni/go-paper-manga/pkg/progress"
	"github.com/shouni/go-paper-manga/pkg/theme"

	"golang.org/x/sync/singleflight"
)

const (
	// WorkingLanguage は脚本生成ステージで常に使う作業言語です。
	// 生成品質が最も安定する言語で脚本を作り、必要なら後段で翻訳します。
	WorkingLanguage = "en-US"

	// MinInputRunes を下回る入力は上流の抽出不良とみなして即座に拒否します。
	MinInputRunes = 100

	analyzeTemperature   = 0.2
	scriptTemperature    = 0.7
	translateTemperature = 0.2

	analyzeMaxTokens   = 8192
	scriptMaxTokens    = 16384
	translateMaxTokens = 16384
)

var (
	// ErrInputTooShort は入力テキストが短すぎる場合の致命的エラーです。
	ErrInputTooShort = errors.New("入力テキストが短すぎます")

	// ErrSynthesisFailed はテキスト生成エンジンの呼び出し失敗を示します。
	// 検証前の部分的な台本には価値がないため、このコンポーネントでは
	// リトライせず即座に伝播します。
	ErrSynthesisFailed = errors.New("台本の合成に失敗しました")
)

// Request は1回の台本合成の入力です。
type Request struct {
	Text           string
	Title          string
	Language       string
	CharacterTheme string
}

// Synthesizer は台本合成の状態機械です。呼び出し間で共有する可変状態は
// キャッシュのみで、同一指紋の同時合成は singleflight で重複排除します。
type Synthesizer struct {
	textGen engine.TextGenerator
	cache   *cache.StoryboardCache
	tracker *progress.Tracker
	themes  *theme.Library
	parser  *parser.ScriptParser
	prompts *promptBuilder
	group   singleflight.Group
}

// New は Synthesizer を初期化します。
func New(textGen engine.TextGenerator, c *cache.StoryboardCache, tracker *progress.Tracker, themes *theme.Library) (*Synthesizer, error) {
	pb, err := newPromptBuilder()
	if err != nil {
		return nil, err
	}
	return &Synthesizer{
		textGen: textGen,
		cache:   c,
		tracker: tracker,
		themes:  themes,
		parser:  parser.NewScriptParser(),
		prompts: pb,
	}, nil
}

// Synthesize はソーステキストから台本を合成します。
// FINGERPRINT → CACHE_LOOKUP → ANALYZE → SCRIPT → TRANSLATE →
// ENFORCE_LIMITS → CACHE_STORE の順に進みます。
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (*domain.Storyboard, error) {
	// FINGERPRINT: 全文を対象にする（先頭のみのハッシュは衝突する）
	if utf8.RuneCountInString(req.Text) < MinInputRunes {
		return nil, fmt.Errorf("%w: %d文字（最低 %d 文字）", ErrInputTooShort,
			utf8.RuneCountInString(req.Text), MinInputRunes)
	}

	th, err := s.themes.Theme(req.CharacterTheme)
	if err != nil {
		return nil, err
	}

	key := cache.Key(cache.Fingerprint(req.Text), req.Title, req.Language, th.Name)

	// CACHE_LOOKUP
	if sb, ok := s.cache.Get(key); ok {
		slog.Info("キャッシュ済みの台本を再利用します", "panels", sb.PanelCount())
		return sb, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		// singleflight 待機中に他の呼び出しが完了している可能性がある
		if sb, ok := s.cache.Get(key); ok {
			return sb, nil
		}

		sb, err := s.synthesize(ctx, req, th)
		if err != nil {
			return nil, err
		}

		// CACHE_STORE: 閾値未満・フォールバックは Store 側で拒否される
		s.cache.Store(key, sb)
		return sb, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Storyboard), nil
}

func (s *Synthesizer) synthesize(ctx context.Context, req Request, th theme.Theme) (*domain.Storyboard, error) {
	s.tracker.SetStage(progress.StageStoryboard, "論文を解析しています")

	// ANALYZE: 構造化された技術ブレークダウンを自由テキストとして保持
	analysis, err := s.analyze(ctx, req.Text)
	if err != nil {
		return nil, fmt.Errorf("%w: 解析ステージ: %w", ErrSynthesisFailed, err)
	}

	s.tracker.SetStage(progress.StageStoryboard, "分鏡脚本を生成しています")

	// SCRIPT: 常に作業言語で脚本を生成する
	raw, err := s.generateScript(ctx, req.Text, analysis, th)
	if err != nil {
		return nil, fmt.Errorf("%w: 脚本ステージ: %w", ErrSynthesisFailed, err)
	}

	panels, err := s.parser.Parse(raw)
	if errors.Is(err, parser.ErrNoPanels) {
		slog.Warn("全てのパース戦略が失敗したため、フォールバック台本を使用します")
		return s.fallbackStoryboard(req, th), nil
	}
	if err != nil {
		return nil, err
	}

	sb := &domain.Storyboard{
		Title:          orDefault(req.Title, "Study Notes"),
		Summary:        "",
		CharacterTheme: th.Name,
		Language:       req.Language,
		Panels:         panels,
	}

	// TRANSLATE: 要求言語が作業言語と同じならスキップ
	if !sameLanguage(req.Language, WorkingLanguage) {
		s.tracker.SetStage(progress.StageStoryboard, "台本を翻訳しています")
		if err := s.translate(ctx, sb, analysis); err != nil {
			return nil, fmt.Errorf("%w: 翻訳ステージ: %w", ErrSynthesisFailed, err)
		}
	}

	// ENFORCE_LIMITS: 吹き出しに収まらないテキストを切り詰める
	EnforceLimits(sb)

	slog.Info("台本の合成が完了しました",
		"title", sb.Title, "panels", sb.PanelCount(), "language", sb.Language)
	return sb, nil
}

func (s *Synthesizer) analyze(ctx context.Context, text string) (string, error) {
	prompt, err := s.prompts.build(modeAnalyze, templateData{InputText: text})
	if err != nil {
		return "", err
	}

	resp, err := s.textGen.GenerateText(ctx, engine.TextRequest{
		Prompt:          prompt,
		Temperature:     analyzeTemperature,
		MaxOutputTokens: analyzeMaxTokens,
	})
	if err != nil {
		return "", err
	}

	slog.Debug("解析ステージ完了",
		"prompt_tokens", resp.Usage.PromptTokens, "output_tokens", resp.Usage.OutputTokens)
	return resp.Text, nil
}

func (s *Synthesizer) generateScript(ctx context.Context, text, analysis string, th theme.Theme) (string, error) {
	data := templateData{
		InputText:        text,
		Analysis:         analysis,
		CharacterSection: buildCharacterSection(th),
		ExampleTeacher:   pickByRole(th, "teacher"),
		ExampleStudent:   pickByRole(th, "student"),
	}
	prompt, err := s.prompts.build(modeScript, data)
	if err != nil {
		return "", err
	}

	resp, err := s.textGen.GenerateText(ctx, engine.TextRequest{
		Prompt:          prompt,
		Temperature:     scriptTemperature,
		MaxOutputTokens: scriptMaxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// buildCharacterSection はテーマのキャラクターセットを役割付きで列挙します。
func buildCharacterSection(th theme.Theme) string {
	var sb strings.Builder
	for _, c := range th.Characters {
		sb.WriteString(fmt.Sprintf("- %s (%s): id `%s`\n", c.Name, c.Role, c.ID))
	}
	return sb.String()
}

// pickByRole は指定ロールの先頭キャラクターIDを返します。
// 見つからなければ先頭キャラクターへフォールバックします。
func pickByRole(th theme.Theme, role string) string {
	for _, c := range th.Characters {
		if strings.EqualFold(c.Role, role) {
			return c.ID
		}
	}
	if len(th.Characters) > 0 {
		return th.Characters[0].ID
	}
	return "teacher"
}

func sameLanguage(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
