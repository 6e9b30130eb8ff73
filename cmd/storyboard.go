package cmd

import (
	"fmt"
	"log/slog"

	"github.com/shouni/go-paper-manga/internal/pipeline"

	"github.com/spf13/cobra"
)

// storyboardCmd は、台本の合成だけを行いJSONとして保存するのだ。
// 画像生成は後から image コマンドで再開できるのだよ。
var storyboardCmd = &cobra.Command{
	Use:   "storyboard",
	Short: "論文テキストから分鏡台本JSONだけを生成しますなのだ。",
	Long: `ソーステキストを解析して分鏡台本を合成し、JSONファイルとして保存するのだ。
保存した台本は image コマンドに渡して画像生成だけを再実行できるのだよ。`,
	RunE: storyboardCommand,
}

func init() {
	storyboardCmd.Flags().StringVar(&opts.OutputFile, "output-file", "output/storyboard.json", "台本JSONの保存先（ローカル or gs://...）なのだ。")
}

func storyboardCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if err := requireSource(); err != nil {
		return err
	}

	cfg := loadConfig()

	slog.Info("台本合成を開始するのだ！", "model", cfg.GeminiModel, "language", opts.Language)

	if err := pipeline.ExecuteStoryboardOnly(ctx, cfg); err != nil {
		return fmt.Errorf("台本合成中にエラーが発生したのだ: %w", err)
	}
	return nil
}
