package zones

import (
	"fmt"

	"odjitter/internal/errs"

	"github.com/paulmach/orb"
)

// 文档注释：分区注册表
// 背景：分区 id 到（可能多部分、带洞）多边形的映射；启动时一次加载，此后只读。
// 约束：id 按原文保存，"007" 之类看似数字的名称不做任何转换；重复 id 视为非法输入。
type Registry struct {
	zones map[string]orb.MultiPolygon
	order []string
}

func NewRegistry() *Registry {
	return &Registry{zones: make(map[string]orb.MultiPolygon)}
}

// Add 注册一个分区；重复 id 返回 ErrMalformedInput
func (r *Registry) Add(id string, mp orb.MultiPolygon) error {
	if _, ok := r.zones[id]; ok {
		return fmt.Errorf("zone %q defined twice: %w", id, errs.ErrMalformedInput)
	}
	r.zones[id] = mp
	r.order = append(r.order, id)
	return nil
}

func (r *Registry) Get(id string) (orb.MultiPolygon, bool) {
	mp, ok := r.zones[id]
	return mp, ok
}

func (r *Registry) Len() int { return len(r.order) }

// IDs 按加载顺序返回全部分区 id
func (r *Registry) IDs() []string { return append([]string(nil), r.order...) }

// 候选点：坐标（WGS84，X=经度，Y=纬度）与相对权重
type CandidatePoint struct {
	Point  orb.Point
	Weight float64
}
