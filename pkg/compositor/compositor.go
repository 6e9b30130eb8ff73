// Package compositor は、バッチ画像列を1枚の縦長またはグリッドの
// 最終画像へ結合し、生成セッションの成果物を永続化します。
package compositor

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	_ "image/jpeg" // エンジンがJPEGを返す場合のデコード登録

	"github.com/shouni/go-paper-manga/pkg/domain"
)

// Layout は最終画像の結合方式です。
type Layout string

const (
	LayoutVertical Layout = "vertical"
	LayoutGrid     Layout = "grid"

	verticalGap = 20
	gridGap     = 10
	gridColumns = 2
)

var canvasBG = color.White

// ParseLayout はレイアウト名を解決します。空文字と未知の値は vertical です。
func ParseLayout(name string) Layout {
	if Layout(name) == LayoutGrid {
		return LayoutGrid
	}
	return LayoutVertical
}

// Compose はパネル画像列を結合してPNGバイト列を返します。
// 幅・高さが揃っていない画像は共通キャンバス内で中央寄せします。
func Compose(panels []domain.GeneratedPanel, layout Layout) ([]byte, error) {
	if len(panels) == 0 {
		return nil, fmt.Errorf("結合するパネル画像がありません")
	}

	images, err := decodeAll(panels)
	if err != nil {
		return nil, err
	}

	var canvas *image.RGBA
	if layout == LayoutGrid {
		canvas = composeGrid(images)
	} else {
		canvas = composeVertical(images)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("最終画像のエンコードに失敗しました: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeAll(panels []domain.GeneratedPanel) ([]image.Image, error) {
	images := make([]image.Image, 0, len(panels))
	for _, p := range panels {
		img, _, err := image.Decode(bytes.NewReader(p.Data))
		if err != nil {
			return nil, fmt.Errorf("パネル %d のデコードに失敗しました: %w", p.PanelNumber, err)
		}
		images = append(images, img)
	}
	return images, nil
}

// composeVertical は上から下へ、固定間隔で縦に並べます。
// 幅の狭い画像はキャンバス幅の中央に寄せます。
func composeVertical(images []image.Image) *image.RGBA {
	width := 0
	height := 0
	for _, img := range images {
		b := img.Bounds()
		if b.Dx() > width {
			width = b.Dx()
		}
		height += b.Dy()
	}
	height += verticalGap * (len(images) - 1)

	canvas := newCanvas(width, height)
	y := 0
	for _, img := range images {
		b := img.Bounds()
		x := (width - b.Dx()) / 2
		draw.Draw(canvas, image.Rect(x, y, x+b.Dx(), y+b.Dy()), img, b.Min, draw.Src)
		y += b.Dy() + verticalGap
	}
	return canvas
}

// composeGrid は2列のグリッドに読み順で配置します。
// セル寸法は全画像の最大幅・最大高さで、各画像はセル中央に寄せます。
func composeGrid(images []image.Image) *image.RGBA {
	cellW, cellH := 0, 0
	for _, img := range images {
		b := img.Bounds()
		if b.Dx() > cellW {
			cellW = b.Dx()
		}
		if b.Dy() > cellH {
			cellH = b.Dy()
		}
	}

	cols := gridColumns
	if len(images) < cols {
		cols = len(images)
	}
	rows := (len(images) + gridColumns - 1) / gridColumns

	width := cols*cellW + gridGap*(cols-1)
	height := rows*cellH + gridGap*(rows-1)
	canvas := newCanvas(width, height)

	for i, img := range images {
		b := img.Bounds()
		col := i % gridColumns
		row := i / gridColumns
		x := col*(cellW+gridGap) + (cellW-b.Dx())/2
		y := row*(cellH+gridGap) + (cellH-b.Dy())/2
		draw.Draw(canvas, image.Rect(x, y, x+b.Dx(), y+b.Dy()), img, b.Min, draw.Src)
	}
	return canvas
}

func newCanvas(width, height int) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(canvasBG), image.Point{}, draw.Src)
	return canvas
}
