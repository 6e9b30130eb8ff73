package synthesizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shouni/go-paper-manga/pkg/cache"
	"github.com/shouni/go-paper-manga/pkg/engine"
	"github.com/shouni/go-paper-manga/pkg/progress"
	"github.com/shouni/go-paper-manga/pkg/theme"
)

const testManifest = `{
	"default": "chibikawa",
	"themes": {
		"chibikawa": {
			"name": "chibikawa",
			"style": "Chibikawa (original cute characters)",
			"original_characters": true,
			"characters": [
				{"id": "kumo", "name": "Kumo", "role": "student"},
				{"id": "nezu", "name": "Nezu", "role": "skeptic"},
				{"id": "papi", "name": "Papi", "role": "teacher"}
			]
		}
	}
}`

// stubTextGen は呼び出し回数を数え、登録された応答を順に返すスタブです。
type stubTextGen struct {
	responses []func(req engine.TextRequest) (*engine.TextResponse, error)
	calls     int
}

func (s *stubTextGen) GenerateText(_ context.Context, req engine.TextRequest) (*engine.TextResponse, error) {
	idx := s.calls
	s.calls++
	if idx >= len(s.responses) {
		return nil, fmt.Errorf("予期しない %d 回目の呼び出しなのだ", idx+1)
	}
	return s.responses[idx](req)
}

func textResponse(text string) func(engine.TextRequest) (*engine.TextResponse, error) {
	return func(engine.TextRequest) (*engine.TextResponse, error) {
		return &engine.TextResponse{Text: text}, nil
	}
}

// delimitedScript は n パネル分の区切りフォーマット台本を生成します。
func delimitedScript(n int) string {
	var sb strings.Builder
	for i := 1; i <= n; i++ {
		sb.WriteString("===\n")
		sb.WriteString(fmt.Sprintf("Panel %d\n", i))
		sb.WriteString("Characters: papi, kumo\n")
		sb.WriteString(fmt.Sprintf("Scene: scene number %d\n", i))
		sb.WriteString("Dialogue:\n")
		sb.WriteString(fmt.Sprintf("- papi: \"line %d\"\n", i))
		sb.WriteString("===\n")
	}
	return sb.String()
}

func newTestSynthesizer(t *testing.T, gen engine.TextGenerator) (*Synthesizer, *cache.StoryboardCache) {
	t.Helper()

	themes, err := theme.NewLibrary([]byte(testManifest), nil)
	if err != nil {
		t.Fatalf("テーマの初期化に失敗したのだ: %v", err)
	}

	c := cache.New()
	s, err := New(gen, c, progress.NewTracker(), themes)
	if err != nil {
		t.Fatalf("Synthesizerの初期化に失敗したのだ: %v", err)
	}
	return s, c
}

func longInput() string {
	return strings.Repeat("The quick brown fox jumps over the lazy dog. ", 20)
}

func TestSynthesize_InputTooShort(t *testing.T) {
	s, _ := newTestSynthesizer(t, &stubTextGen{})

	_, err := s.Synthesize(context.Background(), Request{Text: "short"})
	if !errors.Is(err, ErrInputTooShort) {
		t.Fatalf("err = %v, want ErrInputTooShort", err)
	}
}

func TestSynthesize_WorkingLanguageSkipsTranslate(t *testing.T) {
	gen := &stubTextGen{responses: []func(engine.TextRequest) (*engine.TextResponse, error){
		textResponse("analysis text"),
		textResponse(delimitedScript(12)),
		// 翻訳ステージの応答は登録しない: 呼ばれたらテスト失敗になる
	}}
	s, _ := newTestSynthesizer(t, gen)

	sb, err := s.Synthesize(context.Background(), Request{
		Text: longInput(), Title: "t", Language: "en-US", CharacterTheme: "chibikawa",
	})
	if err != nil {
		t.Fatalf("合成失敗なのだ: %v", err)
	}

	if gen.calls != 2 {
		t.Errorf("エンジン呼び出し回数 = %d, want 2（翻訳はスキップ）", gen.calls)
	}
	if sb.Panels[0].Dialogue["papi"] != "line 1" {
		t.Errorf("セリフが変更されているのだ: %q", sb.Panels[0].Dialogue["papi"])
	}
}

func TestSynthesize_TranslateAppliesTaggedLines(t *testing.T) {
	translated := "0|title|-|学習ノート\n1|dialogue|PAPI|こんにちは\n1|narration|-|研究室にて\nbogus line"

	script := `===
Panel 1
Characters: papi
Scene: a scene
Dialogue:
- papi: "hello"
Narration: in the lab
===`

	gen := &stubTextGen{responses: []func(engine.TextRequest) (*engine.TextResponse, error){
		textResponse("analysis text"),
		textResponse(script),
		textResponse(translated),
	}}
	s, _ := newTestSynthesizer(t, gen)

	sb, err := s.Synthesize(context.Background(), Request{
		Text: longInput(), Title: "notes", Language: "ja-JP", CharacterTheme: "chibikawa",
	})
	if err != nil {
		t.Fatalf("合成失敗なのだ: %v", err)
	}

	if sb.Title != "学習ノート" {
		t.Errorf("タイトルが翻訳されていないのだ: %q", sb.Title)
	}
	// キーの大文字小文字は無視して照合される
	if sb.Panels[0].Dialogue["papi"] != "こんにちは" {
		t.Errorf("dialogue = %q", sb.Panels[0].Dialogue["papi"])
	}
	if sb.Panels[0].Narration != "研究室にて" {
		t.Errorf("narration = %q", sb.Panels[0].Narration)
	}
}

func TestSynthesize_CacheHitSkipsEngine(t *testing.T) {
	gen := &stubTextGen{responses: []func(engine.TextRequest) (*engine.TextResponse, error){
		textResponse("analysis text"),
		textResponse(delimitedScript(12)),
	}}
	s, _ := newTestSynthesizer(t, gen)

	req := Request{Text: longInput(), Title: "t", Language: "en-US", CharacterTheme: "chibikawa"}

	if _, err := s.Synthesize(context.Background(), req); err != nil {
		t.Fatalf("1回目の合成に失敗したのだ: %v", err)
	}
	sb, err := s.Synthesize(context.Background(), req)
	if err != nil {
		t.Fatalf("2回目の合成に失敗したのだ: %v", err)
	}

	if gen.calls != 2 {
		t.Errorf("キャッシュヒットなのにエンジンが呼ばれたのだ: calls = %d", gen.calls)
	}
	if sb.PanelCount() != 12 {
		t.Errorf("panels = %d, want 12", sb.PanelCount())
	}
}

func TestSynthesize_BelowThresholdNotCached(t *testing.T) {
	gen := &stubTextGen{responses: []func(engine.TextRequest) (*engine.TextResponse, error){
		textResponse("analysis"),
		textResponse(delimitedScript(9)),
		textResponse("analysis"),
		textResponse(delimitedScript(9)),
	}}
	s, _ := newTestSynthesizer(t, gen)

	req := Request{Text: longInput(), Title: "t", Language: "en-US", CharacterTheme: "chibikawa"}

	for i := 0; i < 2; i++ {
		sb, err := s.Synthesize(context.Background(), req)
		if err != nil {
			t.Fatalf("%d回目の合成に失敗したのだ: %v", i+1, err)
		}
		if sb.PanelCount() != 9 {
			t.Fatalf("panels = %d, want 9", sb.PanelCount())
		}
	}

	// 9パネルはキャッシュされないため、2回目もエンジンへ到達する
	if gen.calls != 4 {
		t.Errorf("calls = %d, want 4", gen.calls)
	}
}

func TestSynthesize_FallbackOnUnparsableScript(t *testing.T) {
	gen := &stubTextGen{responses: []func(engine.TextRequest) (*engine.TextResponse, error){
		textResponse("analysis"),
		textResponse("パネル情報を含まない散文の応答"),
	}}
	s, c := newTestSynthesizer(t, gen)

	sb, err := s.Synthesize(context.Background(), Request{
		Text: longInput(), Title: "t", Language: "en-US", CharacterTheme: "chibikawa",
	})
	if err != nil {
		t.Fatalf("フォールバックではなくエラーが返ったのだ: %v", err)
	}

	if !sb.IsFallback {
		t.Error("IsFallbackが立っていないのだ")
	}
	if sb.PanelCount() != 3 {
		t.Errorf("フォールバック台本のパネル数 = %d, want 3", sb.PanelCount())
	}
	if n := c.Flush(); n != 0 {
		t.Errorf("フォールバック台本がキャッシュされているのだ: %d entries", n)
	}
}

func TestSynthesize_EngineErrorPropagates(t *testing.T) {
	boom := errors.New("engine down")
	gen := &stubTextGen{responses: []func(engine.TextRequest) (*engine.TextResponse, error){
		func(engine.TextRequest) (*engine.TextResponse, error) { return nil, boom },
	}}
	s, _ := newTestSynthesizer(t, gen)

	_, err := s.Synthesize(context.Background(), Request{
		Text: longInput(), Title: "t", Language: "en-US", CharacterTheme: "chibikawa",
	})
	if !errors.Is(err, ErrSynthesisFailed) {
		t.Fatalf("err = %v, want ErrSynthesisFailed", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("原因エラーが連鎖していないのだ: %v", err)
	}
}
