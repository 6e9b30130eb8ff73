// Package cache は、検証済み台本をコンテンツ指紋で引くための
// プロセス内キャッシュです。キーはコンテンツアドレスなので追い出しは行わず、
// グローバルバージョンの更新か明示フラッシュでのみ無効化します。
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/shouni/go-paper-manga/pkg/domain"

	gocache "github.com/patrickmn/go-cache"
)

// Version を上げると既存エントリは全て無効になります。
// 台本の生成ロジックやプロンプトを互換性なく変えたときに更新します。
const Version = "v2"

// StoryboardCache は指紋→台本のマッピングを保持します。
type StoryboardCache struct {
	store *gocache.Cache
}

// New は無期限・無追い出しの StoryboardCache を生成します。
func New() *StoryboardCache {
	return &StoryboardCache{
		store: gocache.New(gocache.NoExpiration, 0),
	}
}

// Fingerprint はソーステキスト全体の SHA-256 を返します。
// 先頭のみのハッシュはプレフィックスを共有するテキスト同士で衝突するため、
// 必ず全文を対象にします。
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Key は (バージョン, 指紋, タイトル, 言語, テーマ) からキャッシュキーを構築します。
func Key(fingerprint, title, language, theme string) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s", Version, fingerprint, title, language, theme)
}

// Get はキーに対応する台本を返します。
func (c *StoryboardCache) Get(key string) (*domain.Storyboard, bool) {
	v, ok := c.store.Get(key)
	if !ok {
		return nil, false
	}
	sb, ok := v.(*domain.Storyboard)
	return sb, ok
}

// Store は台本を保存します。キャッシュ条件（最小パネル数、非フォールバック）を
// 満たさない台本は黙って拒否します。
func (c *StoryboardCache) Store(key string, sb *domain.Storyboard) {
	if !sb.Cacheable() {
		slog.Debug("キャッシュ条件を満たさないため保存しません",
			"panels", sb.PanelCount(), "is_fallback", sb.IsFallback)
		return
	}
	c.store.Set(key, sb, gocache.NoExpiration)
}

// Flush は全エントリを破棄し、破棄した件数を返します。
func (c *StoryboardCache) Flush() int {
	count := c.store.ItemCount()
	c.store.Flush()
	return count
}
