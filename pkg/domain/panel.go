package domain

import (
	"sort"
	"strings"
)

// PanelType はパネルの役割を示すタグ付きカテゴリです。
// AI の出力は揺れるため、未知の値は必ず PanelOther に畳み込みます。
type PanelType string

const (
	PanelTitle        PanelType = "title"
	PanelIntroduction PanelType = "intro"
	PanelExplanation  PanelType = "explain"
	PanelExample      PanelType = "example"
	PanelDiagram      PanelType = "diagram"
	PanelReaction     PanelType = "reaction"
	PanelConclusion   PanelType = "conclusion"
	PanelAction       PanelType = "action"
	PanelTransition   PanelType = "transition"
	PanelMetaphor     PanelType = "metaphor"
	PanelMethodology  PanelType = "methodology"
	PanelDiscovery    PanelType = "discovery"
	PanelHumor        PanelType = "humor"
	PanelOther        PanelType = "other"
)

// partialMatches は完全一致しなかった値を既知タイプへ寄せるための部分一致表です。
// 順序に意味があるため、マップではなくスライスで保持します。
var partialMatches = []struct {
	substr string
	t      PanelType
}{
	{"intro", PanelIntroduction},
	{"title", PanelIntroduction},
	{"explain", PanelExplanation},
	{"concept", PanelExplanation},
	{"detail", PanelExplanation},
	{"example", PanelExample},
	{"analogy", PanelExample},
	{"react", PanelReaction},
	{"emotion", PanelReaction},
	{"conclu", PanelConclusion},
	{"summary", PanelConclusion},
	{"ending", PanelConclusion},
	{"action", PanelAction},
	{"moment", PanelAction},
	{"transition", PanelTransition},
	{"shift", PanelTransition},
	{"metaphor", PanelMetaphor},
	{"method", PanelMethodology},
	{"discov", PanelDiscovery},
	{"reveal", PanelDiscovery},
	{"humor", PanelHumor},
	{"gag", PanelHumor},
	{"chaos", PanelHumor},
}

var knownTypes = map[PanelType]struct{}{
	PanelTitle: {}, PanelIntroduction: {}, PanelExplanation: {},
	PanelExample: {}, PanelDiagram: {}, PanelReaction: {},
	PanelConclusion: {}, PanelAction: {}, PanelTransition: {},
	PanelMetaphor: {}, PanelMethodology: {}, PanelDiscovery: {},
	PanelHumor: {}, PanelOther: {},
}

// ParsePanelType は文字列を PanelType に解決します。
// 完全一致 → 部分一致 → PanelOther の順で判定します。
func ParsePanelType(value string) PanelType {
	v := strings.ToLower(strings.TrimSpace(value))
	if _, ok := knownTypes[PanelType(v)]; ok {
		return PanelType(v)
	}
	for _, pm := range partialMatches {
		if strings.Contains(v, pm.substr) {
			return pm.t
		}
	}
	return PanelOther
}

// Panel は漫画の1コマ分の構成、登場キャラクター、セリフ情報を保持します。
type Panel struct {
	Number            int               `json:"panel_number"`
	Type              PanelType         `json:"panel_type"`
	VisualDescription string            `json:"visual_description"`
	Characters        []string          `json:"characters"`
	CharacterEmotions map[string]string `json:"character_emotions,omitempty"`
	Dialogue          map[string]string `json:"dialogue,omitempty"`
	Narration         string            `json:"narration,omitempty"`
	Background        string            `json:"background,omitempty"`
	LayoutHint        string            `json:"layout_hint,omitempty"`
}

// Panels は並び替えなどの操作を提供するパネル列です。
type Panels []Panel

// SortByNumber は Number 昇順の安定ソートを行います。
// Number は下流で消費される前の唯一のソートキーです。
func (ps Panels) SortByNumber() {
	sort.SliceStable(ps, func(i, j int) bool {
		return ps[i].Number < ps[j].Number
	})
}

// UniqueCharacters は登場順を保ったまま重複を除いたキャラクターIDを返します。
func (ps Panels) UniqueCharacters() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, p := range ps {
		for _, c := range p.Characters {
			id := strings.ToLower(strings.TrimSpace(c))
			if id == "" {
				continue
			}
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	return ids
}
