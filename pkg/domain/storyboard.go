package domain

// MinCacheablePanels は、生成失敗とみなさず台本をキャッシュ可能とする最小パネル数です。
// これより少ない非フォールバック台本は生成失敗として扱います。
const MinCacheablePanels = 10

// Storyboard はテキスト解析フェーズの最終成果物（完全な分鏡台本）です。
type Storyboard struct {
	Title          string `json:"title"`
	Summary        string `json:"summary"`
	CharacterTheme string `json:"character_theme"`
	Language       string `json:"language"`
	Panels         Panels `json:"panels"`

	// IsFallback はパース全滅時のプレースホルダー台本であることを示します。
	// フォールバック台本は絶対にキャッシュしません。
	IsFallback bool `json:"is_fallback,omitempty"`
}

// PanelCount はパネル数を返します。
func (s *Storyboard) PanelCount() int {
	return len(s.Panels)
}

// Cacheable は台本をキャッシュに保存してよいかを判定します。
func (s *Storyboard) Cacheable() bool {
	return !s.IsFallback && len(s.Panels) >= MinCacheablePanels
}
