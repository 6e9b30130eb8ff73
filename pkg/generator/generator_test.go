package generator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shouni/go-paper-manga/pkg/domain"
	"github.com/shouni/go-paper-manga/pkg/engine"
	"github.com/shouni/go-paper-manga/pkg/progress"
	"github.com/shouni/go-paper-manga/pkg/theme"
	"github.com/shouni/go-paper-manga/pkg/validator"
)

const stockManifest = `{
	"default": "shonen",
	"themes": {
		"shonen": {
			"name": "shonen",
			"style": "classic shonen manga style",
			"original_characters": false,
			"characters": [
				{"id": "sensei", "name": "Sensei", "role": "teacher"},
				{"id": "deshi", "name": "Deshi", "role": "student"}
			]
		}
	}
}`

const originalManifest = `{
	"default": "chibikawa",
	"themes": {
		"chibikawa": {
			"name": "chibikawa",
			"style": "Chibikawa original characters",
			"original_characters": true,
			"characters": [
				{"id": "kumo", "name": "Kumo", "role": "teacher", "asset": "assets/kumo.png"},
				{"id": "nezu", "name": "Nezu", "role": "student", "asset": "assets/nezu.png"}
			]
		}
	}
}`

// stubAssetReader は固定バイト列を返す theme.AssetReader です。
type stubAssetReader struct{}

func (stubAssetReader) Open(_ context.Context, path string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader([]byte(path))), nil
}

// stubImageGen は応答シーケンスを順に返す engine.ImageGenerator です。
type stubImageGen struct {
	calls   int
	failAll bool
}

func (s *stubImageGen) GenerateImage(_ context.Context, _ engine.ImageRequest) (*engine.ImageResponse, error) {
	s.calls++
	if s.failAll {
		return nil, errors.New("engine down")
	}
	return &engine.ImageResponse{Images: []engine.Image{
		{Data: []byte(fmt.Sprintf("image-%d", s.calls)), MimeType: "image/png"},
	}}, nil
}

// stubValidatorGen は検証応答を順に返す engine.TextGenerator です。
type stubValidatorGen struct {
	verdicts []string
	calls    int
}

func (s *stubValidatorGen) GenerateText(_ context.Context, _ engine.TextRequest) (*engine.TextResponse, error) {
	idx := s.calls
	s.calls++
	if idx >= len(s.verdicts) {
		idx = len(s.verdicts) - 1
	}
	return &engine.TextResponse{Text: s.verdicts[idx]}, nil
}

func testConfig() Config {
	return Config{
		BatchInterval:     time.Millisecond,
		HardRetryInterval: time.Millisecond,
	}
}

func makeStoryboard(themeName string, panelCount int) *domain.Storyboard {
	panels := make(domain.Panels, 0, panelCount)
	for i := 1; i <= panelCount; i++ {
		panels = append(panels, domain.Panel{
			Number:            i,
			Type:              domain.PanelExplanation,
			VisualDescription: fmt.Sprintf("scene %d", i),
			Characters:        []string{"kumo"},
			Dialogue:          map[string]string{"kumo": fmt.Sprintf("line %d", i)},
		})
	}
	return &domain.Storyboard{
		Title:          "test",
		CharacterTheme: themeName,
		Language:       "en-US",
		Panels:         panels,
	}
}

func newLibrary(t *testing.T, manifest string) *theme.Library {
	t.Helper()
	lib, err := theme.NewLibrary([]byte(manifest), stubAssetReader{})
	if err != nil {
		t.Fatalf("テーマの初期化に失敗したのだ: %v", err)
	}
	return lib
}

func TestGetBatchDimensions(t *testing.T) {
	tests := []struct {
		size       int
		hint       string
		wantW      int
		wantH      int
		wantSquare bool
	}{
		{size: 1, wantW: 1024, wantH: 1024},
		{size: 1, hint: "wide", wantW: 2048, wantH: 1024},
		{size: 1, hint: "tall", wantW: 1024, wantH: 2048},
		{size: 2, wantW: 2048, wantH: 1024},
		{size: 3, wantW: 2048, wantH: 2048},
		{size: 4, wantW: 2048, wantH: 2048},
	}
	for _, tt := range tests {
		w, h := GetBatchDimensions(tt.size, tt.hint)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("GetBatchDimensions(%d, %q) = %dx%d, want %dx%d",
				tt.size, tt.hint, w, h, tt.wantW, tt.wantH)
		}
	}
}

func TestSplitBatches(t *testing.T) {
	t.Run("バッチサイズは常に1以上4以下", func(t *testing.T) {
		for total := 1; total <= 13; total++ {
			sb := makeStoryboard("shonen", total)
			covered := 0
			for _, b := range splitBatches(sb.Panels) {
				if len(b) < 1 || len(b) > MaxPanelsPerBatch {
					t.Fatalf("total=%d: バッチサイズ %d が範囲外なのだ", total, len(b))
				}
				covered += len(b)
			}
			if covered != total {
				t.Fatalf("total=%d: カバー数 %d が一致しないのだ", total, covered)
			}
		}
	})

	t.Run("3パネルは1バッチにまとまる", func(t *testing.T) {
		batches := splitBatches(makeStoryboard("shonen", 3).Panels)
		if len(batches) != 1 {
			t.Fatalf("batches = %d, want 1", len(batches))
		}
	})
}

func TestGenerate_AllEngineFailuresYieldPlaceholders(t *testing.T) {
	imgGen := &stubImageGen{failAll: true}
	g := New(imgGen, validator.New(&stubValidatorGen{verdicts: []string{"VERDICT: PASS"}}),
		newLibrary(t, stockManifest), progress.NewTracker(), testConfig())

	manga, err := g.Generate(context.Background(), makeStoryboard("shonen", 11))
	if err != nil {
		t.Fatalf("全失敗でもエラーにはならないはずなのだ: %v", err)
	}

	// 11パネル → 4+4+3 の3バッチ
	if len(manga.Panels) != 3 {
		t.Fatalf("panels = %d, want 3", len(manga.Panels))
	}
	for _, p := range manga.Panels {
		if !p.IsPlaceholder {
			t.Errorf("パネル %d がプレースホルダーではないのだ", p.PanelNumber)
		}
		if len(p.Data) == 0 {
			t.Errorf("パネル %d の画像データが空なのだ", p.PanelNumber)
		}
	}
}

func TestGenerate_ThreePanelsSingleSquareGridBatch(t *testing.T) {
	imgGen := &stubImageGen{}
	tracker := progress.NewTracker()
	g := New(imgGen, validator.New(&stubValidatorGen{verdicts: []string{"VERDICT: PASS"}}),
		newLibrary(t, stockManifest), tracker, testConfig())

	manga, err := g.Generate(context.Background(), makeStoryboard("shonen", 3))
	if err != nil {
		t.Fatalf("生成に失敗したのだ: %v", err)
	}

	if len(manga.Panels) != 1 {
		t.Fatalf("panels = %d, want 1", len(manga.Panels))
	}
	p := manga.Panels[0]
	if p.Width != 2048 || p.Height != 2048 {
		t.Errorf("canvas = %dx%d, want 2048x2048", p.Width, p.Height)
	}
	if len(p.CoveredPanels) != 3 {
		t.Errorf("covered = %v, want 3 panels", p.CoveredPanels)
	}

	snap := tracker.Snapshot()
	if snap.Current != 3 || snap.Total != 3 {
		t.Errorf("progress = %d/%d, want 3/3", snap.Current, snap.Total)
	}
}

func TestGenerate_ValidationRetryThenSuccess(t *testing.T) {
	// 2回不合格 → 3回目で合格（上限3回以内）
	vGen := &stubValidatorGen{verdicts: []string{
		"VERDICT: FAIL\nREASON: Kumo has the wrong colors",
		"VERDICT: FAIL\nREASON: Kumo is a different creature",
		"VERDICT: PASS",
	}}
	imgGen := &stubImageGen{}
	g := New(imgGen, validator.New(vGen), newLibrary(t, originalManifest),
		progress.NewTracker(), testConfig())

	manga, err := g.Generate(context.Background(), makeStoryboard("chibikawa", 2))
	if err != nil {
		t.Fatalf("生成に失敗したのだ: %v", err)
	}

	p := manga.Panels[0]
	if p.IsPlaceholder {
		t.Fatal("検証を通過した画像がプレースホルダー扱いなのだ")
	}
	// 3回目の生成結果が採用される
	if string(p.Data) != "image-3" {
		t.Errorf("data = %q, want image-3", p.Data)
	}
	if imgGen.calls != 3 {
		t.Errorf("生成呼び出し = %d, want 3", imgGen.calls)
	}
}

func TestGenerate_ValidationExhaustionKeepsLastImage(t *testing.T) {
	vGen := &stubValidatorGen{verdicts: []string{
		"VERDICT: FAIL\nREASON: mismatch",
	}}
	imgGen := &stubImageGen{}
	g := New(imgGen, validator.New(vGen), newLibrary(t, originalManifest),
		progress.NewTracker(), testConfig())

	manga, err := g.Generate(context.Background(), makeStoryboard("chibikawa", 1))
	if err != nil {
		t.Fatalf("生成に失敗したのだ: %v", err)
	}

	p := manga.Panels[0]
	// プレースホルダーではなく、最後に生成された画像が未検証のまま返る
	if p.IsPlaceholder {
		t.Fatal("試行上限後はプレースホルダーではなく最後の画像を返すのだ")
	}
	if string(p.Data) != fmt.Sprintf("image-%d", DefaultMaxAttempts) {
		t.Errorf("data = %q, want 最後の試行の画像", p.Data)
	}
}

func TestBuildBatchPrompt_ReferenceMapAndPositions(t *testing.T) {
	lib := newLibrary(t, originalManifest)
	th, err := lib.Theme("chibikawa")
	if err != nil {
		t.Fatal(err)
	}

	sb := makeStoryboard("chibikawa", 4)
	refs, err := lib.LoadReferenceImages(context.Background(), th, sb.Panels.UniqueCharacters())
	if err != nil {
		t.Fatalf("参照画像の読み込みに失敗したのだ: %v", err)
	}

	prompt := buildBatchPrompt(sb.Panels, th, refs)

	if !strings.Contains(prompt, "Image 1: Kumo") {
		t.Error("番号付き参照対応表が含まれていないのだ")
	}
	for _, pos := range []string{"top-left", "top-right", "bottom-left", "bottom-right"} {
		if !strings.Contains(prompt, pos) {
			t.Errorf("位置ラベル %q が含まれていないのだ", pos)
		}
	}
	// キャラクターIDではなく表示名で言及される
	if !strings.Contains(prompt, "Kumo:") && !strings.Contains(prompt, "Kumo (") {
		t.Error("セリフが表示名で書かれていないのだ")
	}
}

func TestBuildNegativePrompt_OriginalCharacterExclusions(t *testing.T) {
	lib := newLibrary(t, originalManifest)
	th, _ := lib.Theme("chibikawa")

	neg := buildNegativePrompt(th)
	if !strings.Contains(neg, "different creature") {
		t.Errorf("独自キャラクター向けの除外が含まれていないのだ: %q", neg)
	}
}
