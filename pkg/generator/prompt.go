package generator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shouni/go-paper-manga/pkg/domain"
	"github.com/shouni/go-paper-manga/pkg/theme"
)

// 独自キャラクターのテーマで常に付与する除外指示。
// 画像モデルは未知のキャラクターを既知の類似生物へ置き換えがちなため、
// 明示的に禁止します。
const originalCharacterExclusions = "different creature, wrong species, generic anime character, realistic human, off-model design"

// buildBatchPrompt はバッチ1回分の画像生成プロンプトを構築します。
// 参照画像付きのテーマでは、先頭に番号付きの画像→キャラクター名の対応表を
// 置きます（モデルは独自キャラクターの事前知識を持たないため）。
func buildBatchPrompt(batch domain.Panels, th theme.Theme, refs []theme.ReferenceImage) string {
	var sb strings.Builder

	if len(refs) > 0 {
		sb.WriteString("Character reference images attached, in order:\n")
		for i, r := range refs {
			sb.WriteString(fmt.Sprintf("- Image %d: %s — draw this character EXACTLY as shown\n", i+1, r.Name))
		}
		sb.WriteString("\n")
	}

	if len(batch) == 1 {
		sb.WriteString("Draw a single manga panel.\n")
	} else {
		sb.WriteString(fmt.Sprintf("Draw ONE image containing %d manga panels arranged %s, with clear panel borders.\n",
			len(batch), arrangementOf(len(batch))))
	}
	sb.WriteString(fmt.Sprintf("Art style: %s\n\n", th.Style))

	labels := positionLabels(len(batch))
	for i, p := range batch {
		if len(batch) > 1 {
			sb.WriteString(fmt.Sprintf("[Panel %d — %s]\n", p.Number, labels[i]))
		} else {
			sb.WriteString(fmt.Sprintf("[Panel %d]\n", p.Number))
		}
		writePanelBody(&sb, p, th)
		sb.WriteString("\n")
	}

	sb.WriteString("Render all dialogue inside speech bubbles and narration inside caption boxes, verbatim.\n")
	return sb.String()
}

func writePanelBody(sb *strings.Builder, p domain.Panel, th theme.Theme) {
	if len(p.Characters) > 0 {
		sb.WriteString("Characters: " + strings.Join(characterNames(p, th), ", ") + "\n")
	}
	if p.VisualDescription != "" {
		sb.WriteString("Scene: " + p.VisualDescription + "\n")
	}
	if p.Background != "" {
		sb.WriteString("Background: " + p.Background + "\n")
	}
	for _, speaker := range sortedKeys(p.Dialogue) {
		name := displayName(speaker, th)
		if emotion := p.CharacterEmotions[speaker]; emotion != "" {
			sb.WriteString(fmt.Sprintf("%s (%s): %q\n", name, emotion, p.Dialogue[speaker]))
		} else {
			sb.WriteString(fmt.Sprintf("%s: %q\n", name, p.Dialogue[speaker]))
		}
	}
	if p.Narration != "" {
		sb.WriteString(fmt.Sprintf("Narration box: %q\n", p.Narration))
	}
}

// buildNegativePrompt はテーマの除外指定と独自キャラクター向けの
// 固定除外を結合します。
func buildNegativePrompt(th theme.Theme) string {
	parts := []string{"blurry, low quality, distorted text, unreadable text"}
	if th.NegativePrompt != "" {
		parts = append(parts, th.NegativePrompt)
	}
	if th.OriginalCharacters {
		parts = append(parts, originalCharacterExclusions)
	}
	return strings.Join(parts, ", ")
}

func arrangementOf(n int) string {
	if n == 2 {
		return "side by side (left to right)"
	}
	return "in a 2x2 grid (reading order: top-left, top-right, bottom-left, bottom-right)"
}

// positionLabels は読み順のサブパネル位置ラベルを返します。
func positionLabels(n int) []string {
	switch n {
	case 2:
		return []string{"left", "right"}
	case 3:
		return []string{"top-left", "top-right", "bottom-left"}
	case 4:
		return []string{"top-left", "top-right", "bottom-left", "bottom-right"}
	default:
		return []string{"full"}
	}
}

func characterNames(p domain.Panel, th theme.Theme) []string {
	names := make([]string, 0, len(p.Characters))
	for _, id := range p.Characters {
		names = append(names, displayName(id, th))
	}
	return names
}

func displayName(id string, th theme.Theme) string {
	for _, c := range th.Characters {
		if strings.EqualFold(c.ID, id) {
			return c.Name
		}
	}
	return id
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
