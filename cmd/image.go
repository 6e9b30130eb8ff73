package cmd

import (
	"fmt"
	"log/slog"

	"github.com/shouni/go-paper-manga/internal/pipeline"

	"github.com/spf13/cobra"
)

// imageCmd は、保存済みの台本JSONから画像生成と結合だけを実行するのだ。
var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "保存済みの台本JSONから漫画画像を生成しますなのだ。",
	Long: `storyboard コマンドで保存した台本JSONを読み込み、
バッチ単位のパネル画像生成と最終結合だけを実行するのだ。`,
	RunE: imageCommand,
}

func imageCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if opts.ScriptFile == "" {
		return fmt.Errorf("台本JSON（--script-file）を指定してほしいのだ")
	}

	cfg := loadConfig()

	slog.Info("画像生成を開始するのだ！",
		"script", opts.ScriptFile, "image_model", cfg.GeminiImageModel)

	if err := pipeline.ExecuteImageOnly(ctx, cfg); err != nil {
		return fmt.Errorf("画像生成中にエラーが発生したのだ: %w", err)
	}
	return nil
}
