// Package parser は、テキスト生成エンジンの生出力を構造化された
// パネル列へ変換します。第一形式は `===` 区切りの自然言語フォーマット、
// 失敗時は JSON フォーマット（修復付き）へフォールバックします。
package parser

import (
	"errors"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shouni/go-paper-manga/pkg/domain"
)

// ErrNoPanels は全てのパース戦略でパネルが1つも抽出できなかったことを示します。
// 呼び出し側はフォールバック台本への置き換えで回復します。
var ErrNoPanels = errors.New("パネルを1つも抽出できませんでした")

var (
	delimiterRegex = regexp.MustCompile(`(?m)^={3,}\s*$`)
	panelHeadRegex = regexp.MustCompile(`(?i)^(?:Panel|分镜|パネル)\s*(\d+)\s*(?::\s*(.+))?$`)
	dialogueRegex  = regexp.MustCompile(`^-\s*([\w-]+)\s*[:：]\s*["“”'「]?(.+?)["“”'」]?\s*$`)
)

// フィールドラベル（ブロック内の順序は問わない）
const (
	labelCharacters = "characters"
	labelScene      = "scene"
	labelVisual     = "visual"
	labelDialogue   = "dialogue"
	labelNarration  = "narration"
	labelBackground = "background"
	labelLayout     = "layout"
)

// ScriptParser は台本テキストのパーサです。状態を持ちません。
type ScriptParser struct{}

// NewScriptParser は ScriptParser を初期化します。
func NewScriptParser() *ScriptParser {
	return &ScriptParser{}
}

// Parse は生出力をパネル列へ変換します。結果は必ず Number 昇順です。
// 区切り文字が見つからない場合は JSON フォーマットを試みます。
func (p *ScriptParser) Parse(raw string) (domain.Panels, error) {
	var panels domain.Panels

	if delimiterRegex.MatchString(raw) {
		panels = p.parseDelimited(raw)
		slog.Debug("区切りフォーマットをパースしました", "panels", len(panels))
	}

	if len(panels) == 0 {
		panels = p.parseJSON(raw)
		if len(panels) > 0 {
			slog.Debug("JSONフォールバックでパースしました", "panels", len(panels))
		}
	}

	if len(panels) == 0 {
		return nil, ErrNoPanels
	}

	// 番号の欠落・重複・順不同は受容し、最終ソートだけを保証する
	panels.SortByNumber()
	return panels, nil
}

// parseDelimited は `===` 区切りの自然言語フォーマットをパースします。
func (p *ScriptParser) parseDelimited(raw string) domain.Panels {
	var panels domain.Panels

	for _, block := range delimiterRegex.Split(raw, -1) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		if panel, ok := p.parseBlock(block, len(panels)+1); ok {
			panels = append(panels, panel)
		}
	}
	return panels
}

// parseBlock は1ブロックを行単位で解析します。ラベルの出現順は問いません。
func (p *ScriptParser) parseBlock(block string, defaultNumber int) (domain.Panel, bool) {
	panel := domain.Panel{
		Number:   defaultNumber,
		Type:     domain.PanelExplanation,
		Dialogue: map[string]string{},
	}

	// 複数行フィールドの継続先。"" は継続なしを意味する。
	continuation := ""

	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if m := panelHeadRegex.FindStringSubmatch(line); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				panel.Number = n
			}
			continuation = ""
			continue
		}

		if key, value, ok := splitLabel(line); ok {
			switch key {
			case labelCharacters:
				panel.Characters = splitCharacterList(value)
				continuation = ""
			case labelScene, labelVisual:
				panel.VisualDescription = value
				continuation = labelScene
			case labelDialogue:
				continuation = labelDialogue
			case labelNarration:
				panel.Narration = value
				continuation = labelNarration
			case labelBackground:
				panel.Background = value
				continuation = ""
			case labelLayout:
				panel.LayoutHint = value
				continuation = ""
			default:
				slog.Debug("未知のフィールドラベルです", "key", key)
				continuation = ""
			}
			continue
		}

		// ラベル行でなければ、直前フィールドの継続行として扱う
		switch continuation {
		case labelDialogue:
			if m := dialogueRegex.FindStringSubmatch(line); m != nil {
				panel.Dialogue[strings.ToLower(m[1])] = m[2]
			}
		case labelScene:
			panel.VisualDescription += " " + line
		case labelNarration:
			panel.Narration += " " + line
		}
	}

	if panel.VisualDescription == "" && len(panel.Dialogue) == 0 {
		return domain.Panel{}, false
	}
	return panel, true
}

// splitLabel は "Key: value" 形式の行をラベルと値に分解します。
// セリフ行（"- name: ..."）はラベルとして扱いません。
func splitLabel(line string) (string, string, bool) {
	if strings.HasPrefix(line, "-") {
		return "", "", false
	}
	idx := strings.IndexAny(line, ":：")
	if idx < 0 {
		return "", "", false
	}
	_, sepLen := utf8.DecodeRuneInString(line[idx:])
	key := strings.ToLower(strings.TrimSpace(line[:idx]))
	value := strings.TrimSpace(line[idx+sepLen:])

	switch key {
	case labelCharacters, labelScene, labelVisual, labelDialogue,
		labelNarration, labelBackground, labelLayout,
		"角色", "场景", "对白", "旁白":
		return normalizeLabel(key), value, true
	}
	return "", "", false
}

// normalizeLabel は多言語ラベルを英語ラベルへ正規化します。
func normalizeLabel(key string) string {
	switch key {
	case "角色":
		return labelCharacters
	case "场景":
		return labelScene
	case "对白":
		return labelDialogue
	case "旁白":
		return labelNarration
	}
	return key
}

// splitCharacterList はカンマ（全角含む）区切りのキャラクター列を分解します。
func splitCharacterList(value string) []string {
	var out []string
	for _, c := range regexp.MustCompile(`[,，、]`).Split(value, -1) {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}
