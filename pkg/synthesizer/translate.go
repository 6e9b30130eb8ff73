package synthesizer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shouni/go-paper-manga/pkg/domain"
	"github.com/shouni/go-paper-manga/pkg/engine"
)

// 翻訳バッチのタグ付き行種別
const (
	lineTypeDialogue  = "dialogue"
	lineTypeNarration = "narration"
	lineTypeTitle     = "title"
)

var languageNames = map[string]string{
	"zh-cn": "Simplified Chinese",
	"ja-jp": "Japanese",
	"en-us": "English",
}

// translate は台本中の全セリフ・ナレーション・タイトルを1つのタグ付き
// バッチにまとめて翻訳し、結果を台本へ書き戻します。
// 対応が取れなかった行はリトライせずに破棄します（原文のまま残る）。
func (s *Synthesizer) translate(ctx context.Context, sb *domain.Storyboard, analysis string) error {
	lines := collectLines(sb)
	if len(lines) == 0 {
		return nil
	}

	data := templateData{
		Analysis:     analysis,
		LanguageName: languageName(sb.Language),
		Lines:        strings.Join(lines, "\n"),
	}
	prompt, err := s.prompts.build(modeTranslate, data)
	if err != nil {
		return err
	}

	resp, err := s.textGen.GenerateText(ctx, engine.TextRequest{
		Prompt:          prompt,
		Temperature:     translateTemperature,
		MaxOutputTokens: translateMaxTokens,
	})
	if err != nil {
		return err
	}

	applied, dropped := applyTranslations(sb, resp.Text)
	slog.Info("翻訳を適用しました", "applied", applied, "dropped", dropped)
	return nil
}

// collectLines は翻訳対象を `panel|type|key|text` 形式へ平坦化します。
// タイトルはパネル番号 0、キー "-" で表現します。
func collectLines(sb *domain.Storyboard) []string {
	var lines []string

	if sb.Title != "" {
		lines = append(lines, fmt.Sprintf("0|%s|-|%s", lineTypeTitle, sb.Title))
	}
	for _, p := range sb.Panels {
		for speaker, text := range p.Dialogue {
			lines = append(lines, fmt.Sprintf("%d|%s|%s|%s", p.Number, lineTypeDialogue, speaker, text))
		}
		if p.Narration != "" {
			lines = append(lines, fmt.Sprintf("%d|%s|-|%s", p.Number, lineTypeNarration, p.Narration))
		}
	}
	return lines
}

// applyTranslations はタグ付き出力行を台本へ書き戻します。
// キーは大文字小文字を無視して照合し、一致しない行は捨てます。
func applyTranslations(sb *domain.Storyboard, output string) (applied, dropped int) {
	byNumber := make(map[int]*domain.Panel, len(sb.Panels))
	for i := range sb.Panels {
		byNumber[sb.Panels[i].Number] = &sb.Panels[i]
	}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.SplitN(line, "|", 4)
		if len(parts) != 4 {
			dropped++
			continue
		}

		number, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			dropped++
			continue
		}
		lineType := strings.ToLower(strings.TrimSpace(parts[1]))
		key := strings.TrimSpace(parts[2])
		text := strings.TrimSpace(parts[3])

		switch lineType {
		case lineTypeTitle:
			if number == 0 && text != "" {
				sb.Title = text
				applied++
				continue
			}
		case lineTypeDialogue:
			if p, ok := byNumber[number]; ok {
				if speaker, found := matchKey(p.Dialogue, key); found {
					p.Dialogue[speaker] = text
					applied++
					continue
				}
			}
		case lineTypeNarration:
			if p, ok := byNumber[number]; ok && p.Narration != "" {
				p.Narration = text
				applied++
				continue
			}
		}
		dropped++
	}
	return applied, dropped
}

// matchKey はマップから大文字小文字を無視してキーを探します。
func matchKey(m map[string]string, key string) (string, bool) {
	if _, ok := m[key]; ok {
		return key, true
	}
	for k := range m {
		if strings.EqualFold(k, key) {
			return k, true
		}
	}
	return "", false
}

func languageName(code string) string {
	if name, ok := languageNames[strings.ToLower(code)]; ok {
		return name
	}
	return code
}
