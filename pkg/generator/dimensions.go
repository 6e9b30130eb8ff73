package generator

import "strings"

// MaxPanelsPerBatch は1枚の画像へ統合するパネル数の上限です。
// これを超えるとサブパネルが小さくなりすぎてセリフが判読不能になります。
const MaxPanelsPerBatch = 4

// キャンバス寸法（ピクセル）
const (
	sizeSquare = 1024
	sizeLarge  = 2048
)

// GetBatchDimensions はバッチサイズからキャンバス寸法を決定します。
// 1パネル→正方形、2パネル→横長2枚組、3〜4パネル→2x2グリッドの正方形。
// 単独パネルは layout_hint（wide/tall）で寸法を上書きできます。
func GetBatchDimensions(batchSize int, layoutHint string) (width, height int) {
	switch batchSize {
	case 1:
		switch strings.ToLower(strings.TrimSpace(layoutHint)) {
		case "wide":
			return sizeLarge, sizeSquare
		case "tall":
			return sizeSquare, sizeLarge
		default:
			return sizeSquare, sizeSquare
		}
	case 2:
		return sizeLarge, sizeSquare
	default:
		return sizeLarge, sizeLarge
	}
}
