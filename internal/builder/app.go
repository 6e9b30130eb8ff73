package builder

import (
	"github.com/shouni/go-paper-manga/internal/config"
	"github.com/shouni/go-paper-manga/pkg/theme"
	"github.com/shouni/go-paper-manga/pkg/workflow"

	"github.com/shouni/go-http-kit/httpkit"
	"github.com/shouni/go-remote-io/pkg/remoteio"
)

// AppContext は、アプリケーション実行に必要な共通コンテキストを保持する
// これを各実行関数に渡すことで、依存関係の注入を簡素化します。
type AppContext struct {
	Config     *config.Config          // Configは、環境変数から読み込まれたグローバルな設定です（APIキー、モデル名など）。
	Options    config.GenerateOptions  // Optionsは、コマンドラインから渡された実行時の設定です。
	Reader     remoteio.InputReader    // Readerは、ソーステキストや台本JSONの読み込みに使用する入力元です。
	Writer     remoteio.OutputWriter   // Writerは、生成された成果物を保存するための出力先です。
	Themes     *theme.Library          // Themesは、キャラクターテーマの検索窓口です。
	Manager    *workflow.Manager       // Managerは、台本合成から画像生成までのパイプライン窓口です。
	HTTPClient httpkit.HTTPClient // HTTPClientは、Web本文抽出などの外部通信に使う共通クライアントです。
}
