package zones

import (
	"sort"

	"odjitter/internal/logger"
)

// 分区 id -> 区内候选点（派生数据，非权威）
type Index map[string][]CandidatePoint

// 文档注释：构建分区候选点索引
// 背景：全部候选点一次装入 KD-Tree，逐分区先按包围盒取候选，再做精确的边界排除判定，避免 分区×点 的全量扫描。
// 约束：落在重叠分区内的点分配给每一个包含它的分区，不跨区去重；无点的分区对应空列表。
func BuildIndex(points []CandidatePoint, reg *Registry) Index {
	tree := buildKD(append([]CandidatePoint(nil), points...), 0)
	out := make(Index, reg.Len())
	for _, id := range reg.IDs() {
		mp, _ := reg.Get(id)
		var inside []CandidatePoint
		if b, ok := Bounds(mp); ok {
			tree.search(b, func(c CandidatePoint) {
				if Contains(mp, c.Point) {
					inside = append(inside, c)
				}
			})
		}
		out[id] = inside
	}
	logger.L().Debug("index_built", "points", len(points), "zones", reg.Len(), "empty_zones", len(out.Empty()))
	return out
}

// Counts 返回每个分区的候选点数
func (ix Index) Counts() map[string]int {
	out := make(map[string]int, len(ix))
	for id, pts := range ix {
		out[id] = len(pts)
	}
	return out
}

// Empty 返回没有候选点的分区 id（已排序）
func (ix Index) Empty() []string {
	var out []string
	for id, pts := range ix {
		if len(pts) == 0 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
