// Package engine は、パイプラインが依存する2つの生成エンジン
// （テキスト生成・画像生成）の能力インターフェースを定義します。
// 具体的なトランスポート実装は engine/gemini などのサブパッケージが担います。
package engine

import "context"

// Image は参照画像・生成画像の共通表現です。
type Image struct {
	Data     []byte
	MimeType string
}

// TextRequest はテキスト生成の1回分のリクエストです。
// Images を渡すと画像グラウンディング付きの呼び出しになります。
type TextRequest struct {
	Prompt          string
	Images          []Image
	Temperature     float32
	MaxOutputTokens int32
}

// TextUsage はトークン消費の統計です。
type TextUsage struct {
	PromptTokens int32
	OutputTokens int32
}

// TextResponse はテキスト生成の結果です。
type TextResponse struct {
	Text  string
	Usage TextUsage
}

// ImageRequest は画像生成の1回分のリクエストです。
type ImageRequest struct {
	Prompt          string
	NegativePrompt  string
	Width           int
	Height          int
	Style           string
	Temperature     float32
	ReferenceImages []Image
}

// ImageResponse は画像生成の結果です。Images は1枚以上を想定します。
type ImageResponse struct {
	Images []Image
}

// TextGenerator はテキスト生成エンジンの契約です。
// 数万トークン規模の入出力と、検証呼び出しのための画像入力をサポートします。
type TextGenerator interface {
	GenerateText(ctx context.Context, req TextRequest) (*TextResponse, error)
}

// ImageGenerator は画像生成エンジンの契約です。
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req ImageRequest) (*ImageResponse, error)
}
