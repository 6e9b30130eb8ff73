package compositor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/shouni/go-paper-manga/pkg/domain"

	"github.com/shouni/go-utils/urlpath"
)

// 長時間のバッチスイープ中、このバッチ数ごとに途中経過の結合画像を
// 保存します。途中クラッシュしても直近の成果物がストレージに残ります。
const partialSnapshotInterval = 3

// OutputWriter は成果物を外部ストレージへ保存するためのインターフェースです。
// remoteio.OutputWriter（ローカル/GCS）がそのまま満たします。
type OutputWriter interface {
	Write(ctx context.Context, path string, data io.Reader, contentType string) error
}

// SessionMeta は1生成セッションの完了メタデータです。
// 最終画像と同じディレクトリにサイドカー JSON として保存されます。
type SessionMeta struct {
	Title           string `json:"title"`
	TotalPanels     int    `json:"total_panels"`
	GeneratedPanels int    `json:"generated_panels"`
	SessionID       string `json:"session_id"`
	IsComplete      bool   `json:"is_complete"`
}

// SessionStore は1生成セッションの成果物（バッチ画像・途中経過・最終画像・
// メタデータ）を永続化します。generator.BatchObserver として動作します。
type SessionStore struct {
	writer      OutputWriter
	baseDir     string
	title       string
	sessionID   string
	totalPanels int
}

// NewSessionStore はセッションIDを採番して SessionStore を生成します。
func NewSessionStore(writer OutputWriter, baseDir, title string, totalPanels int) *SessionStore {
	return &SessionStore{
		writer:      writer,
		baseDir:     baseDir,
		title:       sanitizeTitle(title),
		sessionID:   time.Now().Format("20060102_150405"),
		totalPanels: totalPanels,
	}
}

// SessionID はこのセッションの識別子を返します。
func (s *SessionStore) SessionID() string {
	return s.sessionID
}

// BatchGenerated はバッチ完了ごとに呼ばれ、バッチ画像を保存します。
// partialSnapshotInterval バッチごとに途中経過の結合画像も保存します。
// 永続化はベストエフォートであり、失敗してもパイプラインは止めません。
func (s *SessionStore) BatchGenerated(ctx context.Context, manga *domain.GeneratedManga, batchIndex int) {
	panel := manga.Panels[len(manga.Panels)-1]

	path, err := s.batchPath(batchIndex + 1)
	if err == nil {
		err = s.writer.Write(ctx, path, bytes.NewReader(panel.Data), panel.MimeType)
	}
	if err != nil {
		slog.Warn("バッチ画像の保存に失敗しました", "batch", batchIndex+1, "error", err)
	} else {
		slog.Info("バッチ画像を保存しました", "batch", batchIndex+1, "path", path)
	}

	if (batchIndex+1)%partialSnapshotInterval == 0 {
		s.savePartial(ctx, manga)
	}
}

// Finalize は最終結合画像とメタデータのサイドカーを保存し、
// 最終画像のパスを返します。
func (s *SessionStore) Finalize(ctx context.Context, manga *domain.GeneratedManga, layout Layout, isComplete bool) (string, error) {
	data, err := Compose(manga.Panels, layout)
	if err != nil {
		return "", err
	}

	finalPath, err := s.resolve(s.fileName("final.png"))
	if err != nil {
		return "", err
	}
	if err := s.writer.Write(ctx, finalPath, bytes.NewReader(data), "image/png"); err != nil {
		return "", fmt.Errorf("最終画像の保存に失敗しました (path: %s): %w", finalPath, err)
	}

	if err := s.writeMeta(ctx, manga, isComplete); err != nil {
		// メタデータは補助情報であり、画像本体の成功を覆さない
		slog.Warn("メタデータの保存に失敗しました", "error", err)
	}

	slog.Info("最終画像を保存しました", "path", finalPath, "panels", len(manga.Panels))
	return finalPath, nil
}

func (s *SessionStore) savePartial(ctx context.Context, manga *domain.GeneratedManga) {
	data, err := Compose(manga.Panels, LayoutVertical)
	if err != nil {
		slog.Warn("途中経過画像の結合に失敗しました", "error", err)
		return
	}

	path, err := s.resolve(s.fileName("partial.png"))
	if err == nil {
		err = s.writer.Write(ctx, path, bytes.NewReader(data), "image/png")
	}
	if err != nil {
		slog.Warn("途中経過画像の保存に失敗しました", "error", err)
		return
	}
	slog.Info("途中経過画像を保存しました", "path", path, "batches", len(manga.Panels))
}

func (s *SessionStore) writeMeta(ctx context.Context, manga *domain.GeneratedManga, isComplete bool) error {
	generated := 0
	for _, p := range manga.Panels {
		generated += len(p.CoveredPanels)
	}

	meta := SessionMeta{
		Title:           manga.Title,
		TotalPanels:     s.totalPanels,
		GeneratedPanels: generated,
		SessionID:       s.sessionID,
		IsComplete:      isComplete,
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}

	path, err := s.resolve(s.fileName("meta.json"))
	if err != nil {
		return err
	}
	return s.writer.Write(ctx, path, bytes.NewReader(data), "application/json")
}

// batchPath は `{title}_{session}_batch.png` に連番を挿入したパスを返します。
// 例: paper_20260901_120000_batch_3.png
func (s *SessionStore) batchPath(batchNumber int) (string, error) {
	base, err := s.resolve(s.fileName("batch.png"))
	if err != nil {
		return "", err
	}
	return urlpath.GenerateIndexedPath(base, batchNumber)
}

// resolve は GCS/ローカルを判別してベースディレクトリとファイル名を結合します。
func (s *SessionStore) resolve(fileName string) (string, error) {
	path, err := urlpath.ResolvePath(s.baseDir, fileName)
	if err != nil {
		return "", fmt.Errorf("出力パスの解決に失敗しました: %w", err)
	}
	return path, nil
}

func (s *SessionStore) fileName(suffix string) string {
	return fmt.Sprintf("%s_%s_%s", s.title, s.sessionID, suffix)
}

var unsafeTitleChars = regexp.MustCompile(`[^\p{L}\p{N}_-]+`)

// sanitizeTitle はタイトルをファイル名に安全な形へ正規化します。
func sanitizeTitle(title string) string {
	title = strings.TrimSpace(title)
	title = unsafeTitleChars.ReplaceAllString(title, "_")
	title = strings.Trim(title, "_")
	if title == "" {
		return "manga"
	}
	return title
}
