package synthesizer

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed templates/analyze.md
var analyzeTemplate string

//go:embed templates/script.md
var scriptTemplate string

//go:embed templates/translate.md
var translateTemplate string

const (
	modeAnalyze   = "analyze"
	modeScript    = "script"
	modeTranslate = "translate"
)

var allTemplates = map[string]string{
	modeAnalyze:   analyzeTemplate,
	modeScript:    scriptTemplate,
	modeTranslate: translateTemplate,
}

// templateData は各ステージのプロンプトテンプレートに渡すデータです。
type templateData struct {
	InputText        string
	Analysis         string
	CharacterSection string
	ExampleTeacher   string
	ExampleStudent   string
	LanguageName     string
	Lines            string
}

// promptBuilder はステージごとのプロンプト構築を担います。
type promptBuilder struct {
	templates map[string]*template.Template
}

// newPromptBuilder は埋め込みテンプレートをパースして promptBuilder を初期化します。
func newPromptBuilder() (*promptBuilder, error) {
	parsed := make(map[string]*template.Template)
	for mode, content := range allTemplates {
		if content == "" {
			return nil, fmt.Errorf("プロンプトテンプレート '%s' (go:embed) の読み込みに失敗しました: 内容が空です", mode)
		}
		tmpl, err := template.New(mode).Parse(content)
		if err != nil {
			return nil, fmt.Errorf("プロンプト '%s' の解析に失敗: %w", mode, err)
		}
		parsed[mode] = tmpl
	}
	return &promptBuilder{templates: parsed}, nil
}

// build は指定モードのテンプレートを実行します。
func (b *promptBuilder) build(mode string, data templateData) (string, error) {
	tmpl, ok := b.templates[mode]
	if !ok {
		return "", fmt.Errorf("不明なモードです: '%s'", mode)
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("プロンプトテンプレートの実行に失敗しました: %w", err)
	}
	return sb.String(), nil
}
