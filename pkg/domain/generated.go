package domain

import "time"

// GeneratedPanel は1バッチ分の画像生成結果です。
// バッチサイズ 1 のとき元パネルと 1:1 対応し、2〜4 のときは
// 複数パネルをグリッド合成した1枚を表すため、代表として
// バッチ先頭のパネル番号を保持します。
type GeneratedPanel struct {
	PanelNumber int    `json:"panel_number"`
	Data        []byte `json:"-"`
	MimeType    string `json:"mime_type"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`

	// CoveredPanels はこのバッチ画像がカバーする元パネルの番号です。
	CoveredPanels []int `json:"covered_panels,omitempty"`
	// IsPlaceholder はエンジン障害時の代替画像であることを示します。
	IsPlaceholder bool `json:"is_placeholder,omitempty"`
}

// GeneratedManga は最終成果物です。バッチ生成中の append 以外では変更しません。
type GeneratedManga struct {
	Title          string           `json:"title"`
	CharacterTheme string           `json:"character_theme"`
	Language       string           `json:"language"`
	Panels         []GeneratedPanel `json:"panels"`
	CreatedAt      time.Time        `json:"created_at"`
}

// NewGeneratedManga は台本メタデータを引き継いだ空の成果物を生成します。
func NewGeneratedManga(sb *Storyboard) *GeneratedManga {
	return &GeneratedManga{
		Title:          sb.Title,
		CharacterTheme: sb.CharacterTheme,
		Language:       sb.Language,
		CreatedAt:      time.Now(),
	}
}

// Append はバッチ結果を末尾に追加します。
func (m *GeneratedManga) Append(p GeneratedPanel) {
	m.Panels = append(m.Panels, p)
}
