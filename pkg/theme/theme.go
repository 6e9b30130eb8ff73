// Package theme は、キャラクターテーマ（画風＋キャラクターセット＋参照画像）を
// 明示的なマニフェストから提供します。ファイル名の序数に意味を持たせる
// 暗黙の規約は使わず、{id, role, asset} の順序付きリストで定義します。
package theme

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/shouni/go-paper-manga/pkg/engine"

	"golang.org/x/sync/errgroup"
)

// AssetReader は参照画像アセットの読み込み元です。
// remoteio.InputReader（ローカル/GCS）がそのまま満たします。
type AssetReader interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// CharacterRef はテーマに属する1キャラクターの定義です。
type CharacterRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	Asset string `json:"asset,omitempty"` // 参照画像のパス（ローカル or gs://）
}

// Theme は選択可能な視覚スタイルとキャラクターセットです。
type Theme struct {
	Name  string `json:"name"`
	Style string `json:"style"`

	// OriginalCharacters が true のテーマは、モデルが事前知識を持たない
	// 独自キャラクターを使うため、参照画像の添付と一貫性検証を必須とします。
	OriginalCharacters bool `json:"original_characters"`

	NegativePrompt string         `json:"negative_prompt,omitempty"`
	Characters     []CharacterRef `json:"characters"`
}

// StrictFidelity はこのテーマが生成画像の一貫性検証を要求するかを返します。
func (t Theme) StrictFidelity() bool {
	return t.OriginalCharacters
}

// CharactersIn はマニフェストの定義順を保ったまま、
// ids に含まれるキャラクターだけを返します。
func (t Theme) CharactersIn(ids []string) []CharacterRef {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[strings.ToLower(id)] = struct{}{}
	}

	var out []CharacterRef
	for _, c := range t.Characters {
		if _, ok := want[strings.ToLower(c.ID)]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Manifest はテーマ設定ファイル全体です。
type Manifest struct {
	Default string           `json:"default"`
	Themes  map[string]Theme `json:"themes"`
}

// ReferenceImage は読み込み済みの参照画像です。
type ReferenceImage struct {
	CharacterID string
	Name        string
	Image       engine.Image
}

// Library はマニフェストと参照画像リーダを束ねた検索窓口です。
// 読み込んだ画像はプロセス内で再利用します。
type Library struct {
	manifest Manifest
	reader   AssetReader

	mu    sync.RWMutex
	cache map[string]engine.Image // asset path -> image
}

// NewLibrary はマニフェストの JSON バイト列から Library を構築します。
func NewLibrary(manifestJSON []byte, reader AssetReader) (*Library, error) {
	var m Manifest
	if err := json.Unmarshal(manifestJSON, &m); err != nil {
		return nil, fmt.Errorf("テーママニフェストのデコードに失敗しました: %w", err)
	}
	if len(m.Themes) == 0 {
		return nil, fmt.Errorf("テーママニフェストにテーマが定義されていません")
	}

	return &Library{
		manifest: m,
		reader:   reader,
		cache:    make(map[string]engine.Image),
	}, nil
}

// Theme は名前からテーマを引きます。空文字はデフォルトテーマに解決されます。
func (l *Library) Theme(name string) (Theme, error) {
	if name == "" {
		name = l.manifest.Default
	}
	t, ok := l.manifest.Themes[strings.ToLower(name)]
	if !ok {
		return Theme{}, fmt.Errorf("未定義のキャラクターテーマです: %q", name)
	}
	return t, nil
}

// Names は定義済みテーマ名をソート済みで返します。
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.manifest.Themes))
	for name := range l.manifest.Themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadReferenceImages は、バッチに実際に登場するキャラクターの参照画像だけを
// マニフェスト定義順に読み込みます。読み込みは errgroup で並列化します。
func (l *Library) LoadReferenceImages(ctx context.Context, t Theme, characterIDs []string) ([]ReferenceImage, error) {
	refs := t.CharactersIn(characterIDs)

	out := make([]ReferenceImage, len(refs))
	eg, egCtx := errgroup.WithContext(ctx)

	for i, ref := range refs {
		if ref.Asset == "" {
			continue
		}
		i, ref := i, ref
		eg.Go(func() error {
			img, err := l.loadAsset(egCtx, ref.Asset)
			if err != nil {
				return fmt.Errorf("キャラクター %s の参照画像読み込みに失敗しました: %w", ref.ID, err)
			}
			out[i] = ReferenceImage{CharacterID: ref.ID, Name: ref.Name, Image: img}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	// Asset 未定義のキャラクターを詰めて返す
	var loaded []ReferenceImage
	for _, r := range out {
		if len(r.Image.Data) > 0 {
			loaded = append(loaded, r)
		}
	}
	return loaded, nil
}

func (l *Library) loadAsset(ctx context.Context, path string) (engine.Image, error) {
	l.mu.RLock()
	img, ok := l.cache[path]
	l.mu.RUnlock()
	if ok {
		return img, nil
	}

	if l.reader == nil {
		return engine.Image{}, fmt.Errorf("参照画像リーダが設定されていません")
	}

	rc, err := l.reader.Open(ctx, path)
	if err != nil {
		return engine.Image{}, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return engine.Image{}, err
	}

	img = engine.Image{Data: data, MimeType: mimeTypeOf(path)}

	l.mu.Lock()
	l.cache[path] = img
	l.mu.Unlock()
	return img, nil
}

func mimeTypeOf(path string) string {
	if mt := mime.TypeByExtension(filepath.Ext(path)); mt != "" {
		return mt
	}
	return "image/png"
}
