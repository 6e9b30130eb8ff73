// Package progress は、パイプラインの進行状況を外部の観測者へ公開する
// トラッカーです。履歴は持たず、常に最後の書き込みが勝ちます。
// グローバル変数ではなく明示的に各コンポーネントへ渡して使います。
package progress

import "sync"

// Stage はパイプラインの粗い段階を表します。
type Stage string

const (
	StageIdle       Stage = "idle"
	StageStoryboard Stage = "storyboard"
	StageGenerating Stage = "generating"
	StageCompleted  Stage = "completed"
	StageError      Stage = "error"
)

// Snapshot はある時点の進行状況です。
type Snapshot struct {
	Stage   Stage  `json:"stage"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

// Percent は完了率（0〜100）を返します。Total が 0 のときは 0 です。
func (s Snapshot) Percent() int {
	if s.Total <= 0 {
		return 0
	}
	return s.Current * 100 / s.Total
}

// Tracker は mutex で保護された単一の進行状況レコードです。
// 同時に走る複数パイプラインが共有した場合、直近のパイプラインの状態のみを
// 反映します（助言的テレメトリであり正確性は要求しない）。
type Tracker struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewTracker は idle 状態の Tracker を生成します。
func NewTracker() *Tracker {
	return &Tracker{snap: Snapshot{Stage: StageIdle}}
}

// SetStage は段階とメッセージを更新します。
func (t *Tracker) SetStage(stage Stage, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Stage = stage
	t.snap.Message = message
}

// SetUnits は完了数と総数を上書きします。
func (t *Tracker) SetUnits(current, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Current = current
	t.snap.Total = total
}

// Advance は完了数を delta だけ進めます。
func (t *Tracker) Advance(delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Current += delta
}

// Reset は idle 状態へ戻します。
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap = Snapshot{Stage: StageIdle}
}

// Snapshot は現在の状態のコピーを返します。
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}
