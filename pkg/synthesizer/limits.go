package synthesizer

import (
	"strings"

	"github.com/shouni/go-paper-manga/pkg/domain"
)

// パネル画像内の吹き出し・ナレーション枠は固定サイズのため、
// 長すぎるテキストは判読不能になるか、モデルに勝手に省略されます。
// 言語ごとの上限（ルーン数）で事前に切り詰めます。
const (
	dialogueCapCJK    = 40
	dialogueCapOther  = 100
	narrationCapCJK   = 60
	narrationCapOther = 150

	// boundaryWindowRatio は文区切りを探す末尾領域の割合です。
	// 上限の末尾40%以内に句読点があればそこで切ります。
	boundaryWindowRatio = 0.6
)

var cjkLanguages = map[string]struct{}{
	"zh-cn": {},
	"ja-jp": {},
}

// 文・節の区切りとみなす句読点
var boundaryRunes = map[rune]struct{}{
	'。': {}, '．': {}, '.': {},
	'！': {}, '!': {},
	'？': {}, '?': {},
	'、': {}, '，': {}, ',': {},
	'；': {}, ';': {},
	'…': {},
}

// IsCJK は言語コードが CJK 系かを判定します。
func IsCJK(language string) bool {
	_, ok := cjkLanguages[strings.ToLower(strings.TrimSpace(language))]
	return ok
}

// EnforceLimits は台本中の全セリフとナレーションへ長さ上限を適用します。
// 既に上限内のテキストには何もしない（冪等）です。
func EnforceLimits(sb *domain.Storyboard) {
	dialogueCap, narrationCap := capsFor(sb.Language)

	for i := range sb.Panels {
		p := &sb.Panels[i]
		for speaker, text := range p.Dialogue {
			p.Dialogue[speaker] = TruncateAtBoundary(text, dialogueCap)
		}
		if p.Narration != "" {
			p.Narration = TruncateAtBoundary(p.Narration, narrationCap)
		}
	}
}

func capsFor(language string) (dialogue, narration int) {
	if IsCJK(language) {
		return dialogueCapCJK, narrationCapCJK
	}
	return dialogueCapOther, narrationCapOther
}

// TruncateAtBoundary はテキストを上限ルーン数以内へ切り詰めます。
// 上限窓の末尾40%に文・節区切りの句読点があれば直後で切り、
// なければ上限-1で切って省略記号を付けます。
func TruncateAtBoundary(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}

	window := runes[:limit]
	searchFrom := int(float64(limit) * boundaryWindowRatio)

	for i := limit - 1; i >= searchFrom; i-- {
		if _, ok := boundaryRunes[window[i]]; ok {
			return string(window[:i+1])
		}
	}

	return string(runes[:limit-1]) + "…"
}
