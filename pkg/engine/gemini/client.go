// Package gemini は engine パッケージの能力インターフェースを
// Gemini API (google.golang.org/genai) 上に実装するアダプタです。
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/shouni/go-paper-manga/pkg/engine"

	"google.golang.org/genai"
)

// Client はテキスト・画像の両エンジンを1つの genai クライアントで提供します。
type Client struct {
	client     *genai.Client
	textModel  string
	imageModel string
}

// New は APIキーとモデル名から Client を初期化します。
func New(ctx context.Context, apiKey, textModel, imageModel string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("APIキーが空です")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("geminiクライアントの初期化に失敗しました: %w", err)
	}

	return &Client{
		client:     client,
		textModel:  textModel,
		imageModel: imageModel,
	}, nil
}

// GenerateText は画像グラウンディング対応のテキスト生成を実行します。
func (c *Client) GenerateText(ctx context.Context, req engine.TextRequest) (*engine.TextResponse, error) {
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	for _, img := range req.Images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MimeType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = req.MaxOutputTokens
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.textModel, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("テキスト生成リクエストに失敗しました: %w", err)
	}

	out := &engine.TextResponse{Text: resp.Text()}
	if resp.UsageMetadata != nil {
		out.Usage = engine.TextUsage{
			PromptTokens: resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
		}
	}
	return out, nil
}

// GenerateImage は参照画像付きの画像生成を実行します。
// Gemini の画像生成はネガティブプロンプトや解像度を独立パラメータとして
// 受けないため、プロンプト本文に畳み込んで渡します。
func (c *Client) GenerateImage(ctx context.Context, req engine.ImageRequest) (*engine.ImageResponse, error) {
	parts := []*genai.Part{genai.NewPartFromText(buildImagePrompt(req))}
	for _, img := range req.ReferenceImages {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MimeType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	cfg := &genai.GenerateContentConfig{
		Temperature:        genai.Ptr(req.Temperature),
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.imageModel, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("画像生成リクエストに失敗しました: %w", err)
	}

	var images []engine.Image
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if p.InlineData != nil && len(p.InlineData.Data) > 0 {
				images = append(images, engine.Image{
					Data:     p.InlineData.Data,
					MimeType: p.InlineData.MIMEType,
				})
			}
		}
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("応答に画像が含まれていませんでした")
	}

	return &engine.ImageResponse{Images: images}, nil
}

// buildImagePrompt はサイズ・画風・除外条件をプロンプト本文へ合成します。
func buildImagePrompt(req engine.ImageRequest) string {
	var sb strings.Builder
	sb.WriteString(req.Prompt)

	if req.Width > 0 && req.Height > 0 {
		sb.WriteString(fmt.Sprintf("\n\nTarget canvas: %dx%d pixels.", req.Width, req.Height))
	}
	if req.Style != "" {
		sb.WriteString(fmt.Sprintf("\nStyle: %s.", req.Style))
	}
	if req.NegativePrompt != "" {
		sb.WriteString(fmt.Sprintf("\nStrictly avoid: %s.", req.NegativePrompt))
	}
	return sb.String()
}
