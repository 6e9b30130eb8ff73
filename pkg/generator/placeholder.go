package generator

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/shouni/go-paper-manga/pkg/domain"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	placeholderBG     = color.RGBA{R: 0xEE, G: 0xEE, B: 0xEE, A: 0xFF}
	placeholderBorder = color.RGBA{R: 0x99, G: 0x99, B: 0x99, A: 0xFF}
	placeholderText   = color.RGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xFF}
)

// renderPlaceholder は、画像生成が完全に失敗したバッチの代替として
// 決定的なプレースホルダー画像を合成します。どのパネルが欠けたかを
// 追跡できるよう、カバーするパネル番号をラベルとして描画します。
func renderPlaceholder(batch domain.Panels, width, height int) (domain.GeneratedPanel, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(placeholderBG), image.Point{}, draw.Src)
	drawBorder(img, 4)

	face := basicfont.Face7x13
	lineHeight := face.Metrics().Height.Ceil() + 8
	y := height/2 - lineHeight*(len(batch)+1)/2

	drawCenteredLine(img, face, "IMAGE GENERATION FAILED", y)
	y += lineHeight * 2
	for _, p := range batch {
		drawCenteredLine(img, face, fmt.Sprintf("Panel %d", p.Number), y)
		y += lineHeight
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return domain.GeneratedPanel{}, fmt.Errorf("プレースホルダーのエンコードに失敗しました: %w", err)
	}

	covered := make([]int, 0, len(batch))
	for _, p := range batch {
		covered = append(covered, p.Number)
	}
	return domain.GeneratedPanel{
		PanelNumber:   batch[0].Number,
		Data:          buf.Bytes(),
		MimeType:      "image/png",
		Width:         width,
		Height:        height,
		CoveredPanels: covered,
		IsPlaceholder: true,
	}, nil
}

func drawBorder(img *image.RGBA, thickness int) {
	b := img.Bounds()
	src := image.NewUniform(placeholderBorder)
	draw.Draw(img, image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+thickness), src, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(b.Min.X, b.Max.Y-thickness, b.Max.X, b.Max.Y), src, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(b.Min.X, b.Min.Y, b.Min.X+thickness, b.Max.Y), src, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(b.Max.X-thickness, b.Min.Y, b.Max.X, b.Max.Y), src, image.Point{}, draw.Src)
}

func drawCenteredLine(img *image.RGBA, face font.Face, text string, y int) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(placeholderText),
		Face: face,
	}
	width := d.MeasureString(text).Ceil()
	d.Dot = fixed.P((img.Bounds().Dx()-width)/2, y)
	d.DrawString(text)
}
