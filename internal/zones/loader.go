package zones

import (
	"fmt"
	"math"
	"os"
	"strconv"

	"odjitter/internal/errs"
	"odjitter/internal/logger"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// 文档注释：从 GeoJSON 文件加载分区
// 背景：每个要素以 nameKey 属性作为分区 id，几何为 Polygon 或 MultiPolygon。
// 约束：名称必须是字符串；空几何、非面状几何与重复名称均返回 ErrMalformedInput。
func LoadZones(path, nameKey string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	reg, err := ParseZones(b, nameKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logger.L().Info("zones_loaded", "path", path, "count", reg.Len())
	return reg, nil
}

func ParseZones(data []byte, nameKey string) (*Registry, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse feature collection: %v: %w", err, errs.ErrMalformedInput)
	}
	reg := NewRegistry()
	for i, f := range fc.Features {
		name, ok := f.Properties[nameKey].(string)
		if !ok {
			return nil, fmt.Errorf("feature %d has no string property %q: %w", i, nameKey, errs.ErrMalformedInput)
		}
		var mp orb.MultiPolygon
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			mp = orb.MultiPolygon{g}
		case orb.MultiPolygon:
			mp = g
		case nil:
			return nil, fmt.Errorf("zone %q has no geometry: %w", name, errs.ErrMalformedInput)
		default:
			return nil, fmt.Errorf("zone %q has non-areal geometry %s: %w", name, g.GeoJSONType(), errs.ErrMalformedInput)
		}
		if err := reg.Add(name, mp); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// 文档注释：从 GeoJSON 文件抓取候选点
// 背景：所有要素几何中的每个坐标都成为一个候选点（路网顶点、建筑轮廓等），不做去重。
// 约束：weightKey 为空或要素缺少该属性时权重为 1.0；非数值、非有限或非正权重在加载期拒绝。
func ScrapePoints(path, weightKey string) ([]CandidatePoint, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pts, err := ParsePoints(b, weightKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logger.L().Info("subpoints_loaded", "path", path, "count", len(pts), "weight_key", weightKey)
	return pts, nil
}

func ParsePoints(data []byte, weightKey string) ([]CandidatePoint, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse feature collection: %v: %w", err, errs.ErrMalformedInput)
	}
	var out []CandidatePoint
	var coords []orb.Point
	for i, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		w := 1.0
		if weightKey != "" {
			if raw, ok := f.Properties[weightKey]; ok && raw != nil {
				v, ok := toFloat(raw)
				if !ok || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
					return nil, fmt.Errorf("feature %d: weight %q=%v is not a positive number: %w", i, weightKey, raw, errs.ErrMalformedInput)
				}
				w = v
			}
		}
		coords = appendCoords(coords[:0], f.Geometry)
		for _, p := range coords {
			out = append(out, CandidatePoint{Point: p, Weight: w})
		}
	}
	return out, nil
}

func appendCoords(dst []orb.Point, g orb.Geometry) []orb.Point {
	switch g := g.(type) {
	case orb.Point:
		dst = append(dst, g)
	case orb.MultiPoint:
		dst = append(dst, g...)
	case orb.LineString:
		dst = append(dst, g...)
	case orb.Ring:
		dst = append(dst, g...)
	case orb.MultiLineString:
		for _, ls := range g {
			dst = append(dst, ls...)
		}
	case orb.Polygon:
		for _, r := range g {
			dst = append(dst, r...)
		}
	case orb.MultiPolygon:
		for _, p := range g {
			for _, r := range p {
				dst = append(dst, r...)
			}
		}
	case orb.Collection:
		for _, c := range g {
			dst = appendCoords(dst, c)
		}
	}
	return dst
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
