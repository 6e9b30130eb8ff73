package parser

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/shouni/go-paper-manga/pkg/domain"
)

var (
	jsonBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*\\S)\\s*```")

	// panelObjectRegex は壊れた JSON から panel オブジェクトを個別に拾います。
	// 1段のネスト（dialogue 等のマップ）までを許容します。
	panelObjectRegex = regexp.MustCompile(`\{\s*"panel_number"\s*:\s*\d+[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)

	trailingCommaRegex = regexp.MustCompile(`,\s*([}\]])`)
	missingCommaRegexs = []*regexp.Regexp{
		regexp.MustCompile(`}\s*{`),
		regexp.MustCompile(`}\s*\[`),
		regexp.MustCompile(`]\s*{`),
	}
	missingCommaRepls = []string{"},{", "},[", "],{"}
)

// jsonPanel は構造化フォーマットの1パネル分です。
// AI 出力のフィールド欠落を許容するため、全てオプショナルです。
type jsonPanel struct {
	PanelNumber       int               `json:"panel_number"`
	PanelType         string            `json:"panel_type"`
	VisualDescription string            `json:"visual_description"`
	Characters        []string          `json:"characters"`
	CharacterEmotions map[string]string `json:"character_emotions"`
	Dialogue          map[string]string `json:"dialogue"`
	Narration         string            `json:"narration"`
	Background        string            `json:"background"`
	LayoutHint        string            `json:"layout_hint"`
}

type jsonStoryboard struct {
	Panels []jsonPanel `json:"panels"`
}

// parseJSON は構造化フォーマットのフォールバックパースを行います。
// 素直なパース → 修復して再パース → フラグメント個別抽出、の3段構えです。
func (p *ScriptParser) parseJSON(raw string) domain.Panels {
	rawJSON := extractJSONBody(raw)

	if panels := decodeStoryboard(rawJSON); len(panels) > 0 {
		return panels
	}

	repaired := repairJSON(rawJSON)
	if panels := decodeStoryboard(repaired); len(panels) > 0 {
		slog.Debug("修復後のJSONをパースしました")
		return panels
	}

	return extractPanelFragments(rawJSON)
}

// extractJSONBody はコードフェンスや前後の文章から JSON 本体を切り出します。
func extractJSONBody(raw string) string {
	raw = strings.TrimSpace(raw)

	if m := jsonBlockRegex.FindStringSubmatch(raw); len(m) > 1 {
		return m[1]
	}

	first := strings.Index(raw, "{")
	last := strings.LastIndex(raw, "}")
	if first != -1 && last > first {
		return raw[first : last+1]
	}
	return raw
}

func decodeStoryboard(rawJSON string) domain.Panels {
	var sb jsonStoryboard
	if err := json.Unmarshal([]byte(rawJSON), &sb); err != nil {
		return nil
	}

	var panels domain.Panels
	for _, jp := range sb.Panels {
		panels = append(panels, jp.toPanel(len(panels)+1))
	}
	return panels
}

// repairJSON は AI 出力に頻出する構文エラーを機械的に補正します。
// 末尾カンマの除去、オブジェクト間の欠落カンマ、閉じ忘れの3種類です。
func repairJSON(rawJSON string) string {
	fixed := trailingCommaRegex.ReplaceAllString(rawJSON, "$1")

	for i, re := range missingCommaRegexs {
		fixed = re.ReplaceAllString(fixed, missingCommaRepls[i])
	}

	fixed = strings.TrimSpace(fixed)
	if !strings.HasSuffix(fixed, "}") {
		// 最後の完全なオブジェクト境界まで切り詰め、配列とルートを閉じ直す
		if last := strings.LastIndex(fixed, "}"); last > 0 {
			fixed = fixed[:last+1]
			if strings.Contains(fixed, `"panels"`) &&
				strings.Count(fixed, "[") > strings.Count(fixed, "]") {
				fixed += "]}"
			}
		}
	}
	return fixed
}

// extractPanelFragments は {...} 形状のフラグメントを個別にパースし、
// 不正なものだけを捨てて有効なパネルを回収します。
func extractPanelFragments(rawJSON string) domain.Panels {
	var panels domain.Panels

	for _, frag := range panelObjectRegex.FindAllString(rawJSON, -1) {
		var jp jsonPanel
		if err := json.Unmarshal([]byte(frag), &jp); err != nil {
			if err := json.Unmarshal([]byte(repairJSON(frag)), &jp); err != nil {
				slog.Debug("パネルフラグメントを破棄します", "error", err)
				continue
			}
		}
		if jp.PanelNumber == 0 {
			continue
		}
		panels = append(panels, jp.toPanel(len(panels)+1))
	}
	return panels
}

func (jp jsonPanel) toPanel(defaultNumber int) domain.Panel {
	number := jp.PanelNumber
	if number == 0 {
		number = defaultNumber
	}

	dialogue := jp.Dialogue
	if dialogue == nil {
		dialogue = map[string]string{}
	}

	return domain.Panel{
		Number:            number,
		Type:              domain.ParsePanelType(jp.PanelType),
		VisualDescription: jp.VisualDescription,
		Characters:        jp.Characters,
		CharacterEmotions: jp.CharacterEmotions,
		Dialogue:          dialogue,
		Narration:         jp.Narration,
		Background:        jp.Background,
		LayoutHint:        jp.LayoutHint,
	}
}
