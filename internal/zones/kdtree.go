package zones

import "github.com/paulmach/orb"

// 文档注释：候选点 KD-Tree（二维经纬）
// 背景：一次性批量构建，按包围盒做范围查询，作为分区内点筛选的粗过滤层。
// 约束：中位数分割，经度/纬度交替，树高 O(log P)；左子树键 <= 分割值，右子树键 >= 分割值。
type kdNode struct {
	c  CandidatePoint
	ax int // 0:lon,1:lat
	l  *kdNode
	r  *kdNode
}

func buildKD(cs []CandidatePoint, depth int) *kdNode {
	if len(cs) == 0 {
		return nil
	}
	ax := depth % 2
	mid := len(cs) / 2
	selectNth(cs, mid, ax)
	node := &kdNode{c: cs[mid], ax: ax}
	node.l = buildKD(cs[:mid], depth+1)
	node.r = buildKD(cs[mid+1:], depth+1)
	return node
}

// 原地 nth 元素选择（轴为经度/纬度）
// 约束：三路划分，与分割值相等的键聚成一段，大量同坐标点时仍为线性期望时间。
func selectNth(a []CandidatePoint, n int, ax int) {
	lo, hi := 0, len(a)-1
	for lo < hi {
		lt, gt := partition3(a, lo, hi, (lo+hi)/2, ax)
		switch {
		case n < lt:
			hi = lt - 1
		case n > gt:
			lo = gt + 1
		default:
			return
		}
	}
}

// partition3 按 pivot 键把 a[lo..hi] 分为 <、==、> 三段，返回相等段的首尾下标
func partition3(a []CandidatePoint, lo, hi, pivot, ax int) (int, int) {
	pv := a[pivot].Point[ax]
	lt, i, gt := lo, lo, hi
	for i <= gt {
		switch k := a[i].Point[ax]; {
		case k < pv:
			a[lt], a[i] = a[i], a[lt]
			lt++
			i++
		case k > pv:
			a[i], a[gt] = a[gt], a[i]
			gt--
		default:
			i++
		}
	}
	return lt, gt
}

// 范围查询：按中序遍历回调包围盒内（含边界）的点
func (n *kdNode) search(b orb.Bound, visit func(CandidatePoint)) {
	if n == nil {
		return
	}
	q := n.c.Point[n.ax]
	if b.Min[n.ax] <= q {
		n.l.search(b, visit)
	}
	if b.Contains(n.c.Point) {
		visit(n.c)
	}
	if b.Max[n.ax] >= q {
		n.r.search(b, visit)
	}
}
