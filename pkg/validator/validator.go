// Package validator は、生成されたバッチ画像が参照キャラクターデザインと
// 一致しているかをテキスト生成エンジン（画像入力対応）で検証します。
// 独自キャラクターのテーマでのみ呼び出されます。
package validator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shouni/go-paper-manga/pkg/engine"
	"github.com/shouni/go-paper-manga/pkg/theme"
)

const (
	// 判定の決定性を最大化するため温度は常に 0 です。
	validationTemperature = 0.0
	validationMaxTokens   = 1024

	verdictPass = "VERDICT: PASS"
	verdictFail = "VERDICT: FAIL"
	reasonLabel = "REASON:"
)

// Result は1回の検証の判定です。
type Result struct {
	Passed bool
	Reason string
}

// Validator は画像一貫性チェックの実行器です。
type Validator struct {
	textGen engine.TextGenerator
}

// New は Validator を生成します。
func New(textGen engine.TextGenerator) *Validator {
	return &Validator{textGen: textGen}
}

// Validate は参照画像群と生成画像を比較し、全キャラクターが参照デザインに
// 一致するかの二値判定を返します。フェイルクローズド: 明確な合格判定を
// 含まない応答もエンジンエラーも、すべて不合格として扱います。
// 未検証の画像を黙って受け入れると検証機構自体が無意味になるためです。
func (v *Validator) Validate(ctx context.Context, refs []theme.ReferenceImage, generated engine.Image) Result {
	images := make([]engine.Image, 0, len(refs)+1)
	for _, r := range refs {
		images = append(images, r.Image)
	}
	images = append(images, generated)

	resp, err := v.textGen.GenerateText(ctx, engine.TextRequest{
		Prompt:          buildPrompt(refs),
		Images:          images,
		Temperature:     validationTemperature,
		MaxOutputTokens: validationMaxTokens,
	})
	if err != nil {
		slog.Warn("検証呼び出しが失敗したため不合格として扱います", "error", err)
		return Result{Passed: false, Reason: fmt.Sprintf("validation call failed: %v", err)}
	}

	return parseVerdict(resp.Text)
}

// buildPrompt は番号付きの参照画像→キャラクター名の対応表を含む
// 二値判定プロンプトを構築します。最後に添付された画像が検証対象です。
func buildPrompt(refs []theme.ReferenceImage) string {
	var sb strings.Builder
	sb.WriteString("You are a strict character design inspector for a manga pipeline.\n\n")
	sb.WriteString("The attached images are, in order:\n")
	for i, r := range refs {
		sb.WriteString(fmt.Sprintf("- Image %d: reference design for the character %q\n", i+1, r.Name))
	}
	sb.WriteString(fmt.Sprintf("- Image %d: a freshly generated manga panel image (the one to inspect)\n\n", len(refs)+1))

	sb.WriteString("Question: does EVERY character appearing in the generated image match its ")
	sb.WriteString("reference design (body shape, colors, face, distinguishing features)? ")
	sb.WriteString("A character drawn as a different creature, with wrong colors, or with ")
	sb.WriteString("invented features is a mismatch.\n\n")

	sb.WriteString("Answer with EXACTLY one of the following two lines, nothing else before it:\n")
	sb.WriteString(verdictPass + "\n")
	sb.WriteString(verdictFail + "\n")
	sb.WriteString("If the verdict is FAIL, add one more line:\n")
	sb.WriteString(reasonLabel + " <one short sentence naming the mismatched character and what is wrong>\n")
	return sb.String()
}

// parseVerdict は応答から判定を抽出します。明確な合格行がなければ不合格です。
func parseVerdict(text string) Result {
	var sawFail bool
	var reason string

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(upper, verdictPass):
			if sawFail {
				// 矛盾した応答は信用しない
				return Result{Passed: false, Reason: "contradictory verdict in response"}
			}
			return Result{Passed: true}
		case strings.HasPrefix(upper, verdictFail):
			sawFail = true
		case strings.HasPrefix(upper, reasonLabel):
			reason = strings.TrimSpace(line[len(reasonLabel):])
		}
	}

	if sawFail {
		if reason == "" {
			reason = "character design mismatch (no reason given)"
		}
		return Result{Passed: false, Reason: reason}
	}
	return Result{Passed: false, Reason: "ambiguous validation response"}
}
