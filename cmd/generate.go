package cmd

import (
	"fmt"
	"log/slog"

	"github.com/shouni/go-paper-manga/internal/pipeline"

	"github.com/spf13/cobra"
)

// generateCmd は、台本合成からバッチ画像生成・最終結合までの全工程を実行するのだ。
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "論文テキストから漫画を一気に生成しますなのだ。",
	Long: `ソースとなる論文テキストを解析して分鏡台本を合成し、
バッチ単位でパネル画像を生成して、1枚の漫画へ結合するのだ。
成果物（バッチ画像・途中経過・最終画像・メタデータ）は出力ディレクトリに保存されるのだよ。`,
	RunE: generateCommand,
}

func generateCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if err := requireSource(); err != nil {
		return err
	}

	cfg := loadConfig()

	slog.Info("漫画生成パイプラインを起動するのだ！",
		"text_model", cfg.GeminiModel,
		"image_model", cfg.GeminiImageModel,
		"language", opts.Language,
		"theme", opts.CharacterTheme,
		"output", opts.OutputDir)

	if err := pipeline.ExecuteGenerate(ctx, cfg); err != nil {
		return fmt.Errorf("パイプライン実行中にエラーが発生したのだ: %w", err)
	}

	slog.Info("すべての生成工程が完了したのだ！")
	return nil
}
