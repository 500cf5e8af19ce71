package zones

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

// 文档注释：点入多边形判定（边界排除）
// 约束：落在任一环（外环或洞）边上的点视为不在区内；其余按 even-odd 规则判定，洞内不命中。
func Contains(mp orb.MultiPolygon, pt orb.Point) bool {
	for _, poly := range mp {
		for _, ring := range poly {
			if onRing(ring, pt) {
				return false
			}
		}
	}
	return planar.MultiPolygonContains(mp, pt)
}

// 环未闭合时补上首尾边
func onRing(r orb.Ring, pt orb.Point) bool {
	n := len(r)
	for i := 0; i < n; i++ {
		if onSegment(r[i], r[(i+1)%n], pt) {
			return true
		}
	}
	return false
}

func onSegment(a, b, p orb.Point) bool {
	cross := (b[0]-a[0])*(p[1]-a[1]) - (b[1]-a[1])*(p[0]-a[0])
	if cross != 0 {
		return false
	}
	return p[0] >= min(a[0], b[0]) && p[0] <= max(a[0], b[0]) &&
		p[1] >= min(a[1], b[1]) && p[1] <= max(a[1], b[1])
}

// 文档注释：多边形包围盒
// 约束：无任何坐标时返回 false；宽或高为零的包围盒同样无法用于拒绝采样，一并返回 false。
func Bounds(mp orb.MultiPolygon) (orb.Bound, bool) {
	b := mp.Bound()
	if !(b.Min[0] < b.Max[0]) || !(b.Min[1] < b.Max[1]) {
		return orb.Bound{}, false
	}
	return b, true
}

// 球面距离（Haversine），返回米
func Distance(a, b orb.Point) float64 {
	return geo.DistanceHaversine(a, b)
}
