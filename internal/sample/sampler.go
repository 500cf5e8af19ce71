// 包 sample：分区内取点策略（多边形内随机 / 加权候选池），每个 (角色, 分区) 构建一次
package sample

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"

	"odjitter/internal/errs"
	"odjitter/internal/zones"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/floats"
)

// 文档注释：取点器统一契约
// 约束：Sample 只消费传入的随机源，不持有全局状态；Capacity 对候选池返回有限个数，对多边形随机返回 finite=false。
type Subsampler interface {
	Sample(r *rand.Rand) (orb.Point, error)
	Capacity() (n int, finite bool)
}

type Kind int

const (
	Random Kind = iota
	Weighted
)

func (k Kind) String() string {
	if k == Weighted {
		return "weighted_pool"
	}
	return "random_in_polygon"
}

// ParseKind 接受 random / random_in_polygon / weighted / weighted_pool
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "", "random", "random_in_polygon":
		return Random, nil
	case "weighted", "weighted_pool", "points":
		return Weighted, nil
	}
	return Random, fmt.Errorf("unknown subsample strategy %q", s)
}

// Strategy：某一角色（起点或终点）的取点方式；Weighted 时 Points 为全局候选点池
type Strategy struct {
	Kind   Kind
	Points []zones.CandidatePoint
}

// 文档注释：多边形内均匀随机取点
// 背景：在包围盒内均匀抽样，落在区内（边界排除）即接受。
// 约束：maxAttempts<=0 时不设上限；无法计算包围盒的几何在构造期返回 ErrDegenerateGeometry。
type PolygonSampler struct {
	zone        string
	mp          orb.MultiPolygon
	bound       orb.Bound
	maxAttempts int
}

func NewRandomInPolygon(zone string, mp orb.MultiPolygon, maxAttempts int) (*PolygonSampler, error) {
	b, ok := zones.Bounds(mp)
	if !ok {
		return nil, fmt.Errorf("zone %q: %w", zone, errs.ErrDegenerateGeometry)
	}
	return &PolygonSampler{zone: zone, mp: mp, bound: b, maxAttempts: maxAttempts}, nil
}

func (s *PolygonSampler) Sample(r *rand.Rand) (orb.Point, error) {
	w := s.bound.Max[0] - s.bound.Min[0]
	h := s.bound.Max[1] - s.bound.Min[1]
	for i := 0; s.maxAttempts <= 0 || i < s.maxAttempts; i++ {
		p := orb.Point{s.bound.Min[0] + r.Float64()*w, s.bound.Min[1] + r.Float64()*h}
		if zones.Contains(s.mp, p) {
			return p, nil
		}
	}
	return orb.Point{}, fmt.Errorf("zone %q: no interior point after %d draws: %w", s.zone, s.maxAttempts, errs.ErrSamplingExhausted)
}

func (s *PolygonSampler) Capacity() (int, bool) { return 0, false }

// 文档注释：加权候选池（有放回）
// 背景：按权重比例抽取分区内候选点；权重全相同时等价于无权均匀抽样。
// 约束：非正或非有限权重永不被选中；没有正权重点时返回 ErrNoCandidatePoints，不回退到多边形随机。
type PoolSampler struct {
	zone     string
	pts      []orb.Point
	cum      []float64
	distinct int
}

func NewWeightedPool(zone string, cands []zones.CandidatePoint) (*PoolSampler, error) {
	pts := make([]orb.Point, 0, len(cands))
	ws := make([]float64, 0, len(cands))
	uniq := make(map[orb.Point]struct{}, len(cands))
	for _, c := range cands {
		if !(c.Weight > 0) || math.IsInf(c.Weight, 0) {
			continue
		}
		pts = append(pts, c.Point)
		ws = append(ws, c.Weight)
		uniq[c.Point] = struct{}{}
	}
	if len(pts) == 0 {
		return nil, fmt.Errorf("zone %q: %w", zone, errs.ErrNoCandidatePoints)
	}
	cum := floats.CumSum(make([]float64, len(ws)), ws)
	return &PoolSampler{zone: zone, pts: pts, cum: cum, distinct: len(uniq)}, nil
}

func (s *PoolSampler) Sample(r *rand.Rand) (orb.Point, error) {
	total := s.cum[len(s.cum)-1]
	u := r.Float64() * total
	i := sort.Search(len(s.cum), func(i int) bool { return s.cum[i] > u })
	if i == len(s.cum) {
		i--
	}
	return s.pts[i], nil
}

// Capacity 返回不同坐标的个数，重复顶点不增加唯一点对空间
func (s *PoolSampler) Capacity() (int, bool) { return s.distinct, true }
