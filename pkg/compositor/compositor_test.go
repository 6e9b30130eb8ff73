package compositor

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/shouni/go-paper-manga/pkg/domain"
)

// makePanel は単色PNGのパネル画像を生成します。
func makePanel(t *testing.T, number, width, height int, c color.Color) domain.GeneratedPanel {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("テスト画像のエンコードに失敗したのだ: %v", err)
	}
	return domain.GeneratedPanel{
		PanelNumber:   number,
		Data:          buf.Bytes(),
		MimeType:      "image/png",
		Width:         width,
		Height:        height,
		CoveredPanels: []int{number},
	}
}

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("結合画像のデコードに失敗したのだ: %v", err)
	}
	return img
}

func TestCompose_Vertical(t *testing.T) {
	panels := []domain.GeneratedPanel{
		makePanel(t, 1, 100, 50, color.RGBA{R: 255, A: 255}),
		makePanel(t, 2, 60, 30, color.RGBA{B: 255, A: 255}),
	}

	data, err := Compose(panels, LayoutVertical)
	if err != nil {
		t.Fatalf("結合に失敗したのだ: %v", err)
	}

	img := decodePNG(t, data)
	b := img.Bounds()

	// 幅は最大パネル幅、高さは合計 + 間隔20
	if b.Dx() != 100 || b.Dy() != 50+30+verticalGap {
		t.Errorf("canvas = %dx%d, want 100x%d", b.Dx(), b.Dy(), 50+30+verticalGap)
	}

	// 2枚目（幅60）は中央寄せ: x=20..79 が青、左余白は白
	r, g, bl, _ := img.At(50, 50+verticalGap+15).RGBA()
	if bl>>8 != 255 || r>>8 != 0 || g>>8 != 0 {
		t.Error("2枚目のパネルが中央に配置されていないのだ")
	}
	r, g, bl, _ = img.At(5, 50+verticalGap+15).RGBA()
	if r>>8 != 255 || g>>8 != 255 || bl>>8 != 255 {
		t.Error("余白が白で塗られていないのだ")
	}
}

func TestCompose_Grid(t *testing.T) {
	panels := []domain.GeneratedPanel{
		makePanel(t, 1, 100, 50, color.White),
		makePanel(t, 2, 100, 50, color.White),
		makePanel(t, 3, 100, 50, color.White),
	}

	data, err := Compose(panels, LayoutGrid)
	if err != nil {
		t.Fatalf("結合に失敗したのだ: %v", err)
	}

	b := decodePNG(t, data).Bounds()
	wantW := 100*2 + gridGap
	wantH := 50*2 + gridGap
	if b.Dx() != wantW || b.Dy() != wantH {
		t.Errorf("canvas = %dx%d, want %dx%d", b.Dx(), b.Dy(), wantW, wantH)
	}
}

func TestCompose_Empty(t *testing.T) {
	if _, err := Compose(nil, LayoutVertical); err == nil {
		t.Error("空入力でエラーにならないのだ")
	}
}

func TestParseLayout(t *testing.T) {
	if ParseLayout("grid") != LayoutGrid {
		t.Error("grid が解決されないのだ")
	}
	if ParseLayout("") != LayoutVertical {
		t.Error("空文字が vertical に解決されないのだ")
	}
	if ParseLayout("unknown") != LayoutVertical {
		t.Error("未知の値が vertical に解決されないのだ")
	}
}

// recordingWriter は書き込まれたパスと内容を記録する OutputWriter です。
type recordingWriter struct {
	paths    []string
	contents map[string][]byte
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{contents: make(map[string][]byte)}
}

func (w *recordingWriter) Write(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.paths = append(w.paths, path)
	w.contents[path] = b
	return nil
}

func (w *recordingWriter) pathsContaining(substr string) []string {
	var out []string
	for _, p := range w.paths {
		if strings.Contains(p, substr) {
			out = append(out, p)
		}
	}
	return out
}

func TestSessionStore_BatchAndPartialSnapshots(t *testing.T) {
	writer := newRecordingWriter()
	store := NewSessionStore(writer, "output", "My Paper: A Study!", 12)

	manga := &domain.GeneratedManga{Title: "My Paper: A Study!"}
	for i := 0; i < 4; i++ {
		manga.Panels = append(manga.Panels, makePanel(t, i+1, 64, 64, color.White))
		store.BatchGenerated(context.Background(), manga, i)
	}

	if got := len(writer.pathsContaining("_batch_")); got != 4 {
		t.Errorf("バッチ画像の保存数 = %d, want 4", got)
	}
	// 3バッチ目の完了時にのみ途中経過が保存される
	if got := len(writer.pathsContaining("_partial")); got != 1 {
		t.Errorf("途中経過画像の保存数 = %d, want 1", got)
	}
	// タイトルはファイル名に安全な形へ正規化される
	for _, p := range writer.paths {
		if strings.ContainsAny(p, ":!") {
			t.Errorf("パスに安全でない文字が残っているのだ: %q", p)
		}
	}
}

func TestSessionStore_FinalizeWritesMetaSidecar(t *testing.T) {
	writer := newRecordingWriter()
	store := NewSessionStore(writer, "output", "paper", 7)

	manga := &domain.GeneratedManga{Title: "paper"}
	manga.Panels = append(manga.Panels, domain.GeneratedPanel{
		PanelNumber:   1,
		Data:          makePanel(t, 1, 64, 64, color.White).Data,
		MimeType:      "image/png",
		CoveredPanels: []int{1, 2, 3, 4},
	})

	finalPath, err := store.Finalize(context.Background(), manga, LayoutVertical, false)
	if err != nil {
		t.Fatalf("Finalizeに失敗したのだ: %v", err)
	}
	if !strings.Contains(finalPath, "_final") {
		t.Errorf("最終画像のパスが不正なのだ: %q", finalPath)
	}

	metaPaths := writer.pathsContaining("meta.json")
	if len(metaPaths) != 1 {
		t.Fatalf("メタデータの保存数 = %d, want 1", len(metaPaths))
	}

	var meta SessionMeta
	if err := json.Unmarshal(writer.contents[metaPaths[0]], &meta); err != nil {
		t.Fatalf("メタデータのデコードに失敗したのだ: %v", err)
	}
	if meta.Title != "paper" || meta.TotalPanels != 7 || meta.GeneratedPanels != 4 {
		t.Errorf("meta = %+v", meta)
	}
	if meta.IsComplete {
		t.Error("is_complete が誤って true なのだ")
	}
	if meta.SessionID != store.SessionID() {
		t.Error("セッションIDが一致しないのだ")
	}
}
