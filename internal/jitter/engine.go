// 包 jitter：把按分区聚合的 OD 行解聚为逐条点到点出行
package jitter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"

	"odjitter/internal/errs"
	"odjitter/internal/logger"
	"odjitter/internal/metrics"
	"odjitter/internal/odtable"
	"odjitter/internal/sample"
	"odjitter/internal/zones"

	"github.com/paulmach/orb"
)

const (
	roleOrigin      = "origin"
	roleDestination = "destination"
)

// 已输出点对的精确坐标键
// 约束：按浮点精确相等比较，坐标生成方式改变（例如四舍五入）会改变去重结果。
type pairKey struct{ ox, oy, dx, dy float64 }

// 单行可生成的出行数上限；超出即视为非法输入，不做截断
const maxTripsPerRow = math.MaxInt32

// 文档注释：解聚引擎
// 背景：分区注册表、候选点索引与取点器在构造后只读；随机源由调用方显式传入，保证同种子同输入输出一致。
// 约束：单线程、按输入顺序处理；run 作用域的去重集合随引擎存活。
type Engine struct {
	reg       *zones.Registry
	opts      Options
	originIdx zones.Index
	destIdx   zones.Index
	cache     *sample.Cache
	seen      map[pairKey]struct{}
}

func NewEngine(reg *zones.Registry, opts Options) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{reg: reg, opts: opts, cache: sample.NewCache(opts.SubsamplerCacheSize)}
	if opts.SubsampleOrigin.Kind == sample.Weighted {
		e.originIdx = zones.BuildIndex(opts.SubsampleOrigin.Points, reg)
	}
	if opts.SubsampleDestination.Kind == sample.Weighted {
		if e.originIdx != nil && samePool(opts.SubsampleOrigin.Points, opts.SubsampleDestination.Points) {
			e.destIdx = e.originIdx
		} else {
			e.destIdx = zones.BuildIndex(opts.SubsampleDestination.Points, reg)
		}
	}
	if opts.DeduplicatePairs && opts.DedupScope == DedupRun {
		e.seen = make(map[pairKey]struct{})
	}
	return e, nil
}

func samePool(a, b []zones.CandidatePoint) bool {
	return len(a) == len(b) && (len(a) == 0 || &a[0] == &b[0])
}

// 文档注释：按阈值解聚
// 背景：每行重复 ceil(总量/阈值) 次，数值列按重复次数等分，使输出列之和等于输入；总量为 0 的行保留一条。
// 返回：运行计数；任何错误都会终止整个运行，不跳过坏行。
func (e *Engine) Jitter(ctx context.Context, rows RowSource, rng *rand.Rand, sink Sink) (Stats, error) {
	return e.run(ctx, rows, func(row odtable.Row, st *Stats) error {
		return e.jitterRow(ctx, row, rng, sink, st)
	})
}

// 文档注释：完全解聚（按方式列）
// 背景：每个方式列的每一个单位生成一条出行并带上 mode 属性；其余列原样保留，不做缩放。
// 约束：方式列取值四舍五入为整数，且必须非负。
func (e *Engine) Disaggregate(ctx context.Context, rows RowSource, rng *rand.Rand, modes []string, sink Sink) (Stats, error) {
	if len(modes) == 0 {
		return Stats{}, errors.New("no mode columns given")
	}
	return e.run(ctx, rows, func(row odtable.Row, st *Stats) error {
		return e.disaggregateRow(ctx, row, rng, modes, sink, st)
	})
}

func (e *Engine) run(ctx context.Context, rows RowSource, each func(odtable.Row, *Stats) error) (Stats, error) {
	var st Stats
	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		row, err := rows.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return st, err
		}
		if err := each(row, &st); err != nil {
			return st, fmt.Errorf("line %d: %w", row.Line, err)
		}
		st.Rows++
		metrics.RowsTotal.Inc()
	}
	hits, misses := e.cache.Stats()
	logger.L().Info("jitter_done",
		"rows", st.Rows,
		"trips", st.Trips,
		"rejected_distance", st.RejectedDistance,
		"rejected_duplicate", st.RejectedDuplicate,
		"sampler_cache_hits", hits,
		"sampler_cache_misses", misses,
	)
	return st, nil
}

func (e *Engine) jitterRow(ctx context.Context, row odtable.Row, rng *rand.Rand, sink Sink, st *Stats) error {
	total, err := demand(row, e.opts.DisaggregationKey)
	if err != nil {
		return err
	}
	repeat := 1
	if total != 0 {
		q := math.Ceil(total / float64(e.opts.DisaggregationThreshold))
		if q > maxTripsPerRow {
			return fmt.Errorf("column %q value %v needs %.0f trips, limit %d: %w", e.opts.DisaggregationKey, total, q, maxTripsPerRow, errs.ErrMalformedInput)
		}
		repeat = int(q)
	}
	props := e.properties(row, float64(repeat), nil)
	from, to, err := e.endpoints(row)
	if err != nil {
		return err
	}
	if err := e.checkFeasible(from, to, repeat); err != nil {
		return err
	}
	seen := e.scopeSeen()
	for i := 0; i < repeat; i++ {
		o, d, err := e.drawPair(ctx, rng, from, to, seen, st)
		if err != nil {
			return err
		}
		if err := e.emit(ctx, sink, Trip{Origin: o, Destination: d, Properties: maps.Clone(props)}, "", st); err != nil {
			return err
		}
	}
	logger.L().Debug("row_done", "line", row.Line, "total", total, "repeat", repeat)
	return nil
}

func (e *Engine) disaggregateRow(ctx context.Context, row odtable.Row, rng *rand.Rand, modes []string, sink Sink, st *Stats) error {
	counts := make([]int, len(modes))
	sum := 0
	for i, m := range modes {
		v, err := demand(row, m)
		if err != nil {
			return err
		}
		n := math.Round(v)
		if n > float64(maxTripsPerRow-sum) {
			return fmt.Errorf("mode %q value %v exceeds %d trips per row: %w", m, v, maxTripsPerRow, errs.ErrMalformedInput)
		}
		counts[i] = int(n)
		sum += counts[i]
	}
	skip := make(map[string]bool, len(modes))
	for _, m := range modes {
		skip[m] = true
	}
	base := e.properties(row, 1, skip)
	from, to, err := e.endpoints(row)
	if err != nil {
		return err
	}
	if err := e.checkFeasible(from, to, sum); err != nil {
		return err
	}
	seen := e.scopeSeen()
	for i, m := range modes {
		for n := 0; n < counts[i]; n++ {
			o, d, err := e.drawPair(ctx, rng, from, to, seen, st)
			if err != nil {
				return err
			}
			props := maps.Clone(base)
			props["mode"] = m
			if err := e.emit(ctx, sink, Trip{Origin: o, Destination: d, Properties: props}, m, st); err != nil {
				return err
			}
		}
	}
	logger.L().Debug("row_done", "line", row.Line, "trips", sum)
	return nil
}

// 读取需求列：缺失或非数值返回 ErrMissingOrNonNumericColumn，负值返回 ErrMalformedInput
func demand(row odtable.Row, col string) (float64, error) {
	raw, ok := row.Get(col)
	if !ok {
		return 0, fmt.Errorf("no %q column: %w", col, errs.ErrMissingOrNonNumericColumn)
	}
	v, ok := finite(raw)
	if !ok {
		return 0, fmt.Errorf("column %q value %q is not a finite number: %w", col, raw, errs.ErrMissingOrNonNumericColumn)
	}
	if v < 0 {
		return 0, fmt.Errorf("column %q value %v is negative: %w", col, v, errs.ErrMalformedInput)
	}
	return v, nil
}

// 数值解析：需求列与属性列共用，去除首尾空白后须为有限数
func finite(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// 文档注释：构造输出属性
// 约束：起终点列永远保留为字符串；其余可解析为有限数值的列除以 repeat，其余原样保留；skip 中的列不输出。
func (e *Engine) properties(row odtable.Row, repeat float64, skip map[string]bool) map[string]any {
	props := make(map[string]any, len(row.Header))
	for i, col := range row.Header {
		if skip[col] {
			continue
		}
		v := row.Values[i]
		if col == e.opts.OriginKey || col == e.opts.DestinationKey {
			props[col] = v
			continue
		}
		if x, ok := finite(v); ok {
			props[col] = x / repeat
			continue
		}
		props[col] = v
	}
	return props
}

// 解析起终点分区并取得（或复用）两端取点器
func (e *Engine) endpoints(row odtable.Row) (sample.Subsampler, sample.Subsampler, error) {
	oID, ok := row.Get(e.opts.OriginKey)
	if !ok {
		return nil, nil, fmt.Errorf("no %q column: %w", e.opts.OriginKey, errs.ErrMissingOrNonNumericColumn)
	}
	dID, ok := row.Get(e.opts.DestinationKey)
	if !ok {
		return nil, nil, fmt.Errorf("no %q column: %w", e.opts.DestinationKey, errs.ErrMissingOrNonNumericColumn)
	}
	from, err := e.subsampler(roleOrigin, e.opts.SubsampleOrigin.Kind, e.originIdx, oID)
	if err != nil {
		return nil, nil, err
	}
	to, err := e.subsampler(roleDestination, e.opts.SubsampleDestination.Kind, e.destIdx, dID)
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func (e *Engine) subsampler(role string, kind sample.Kind, idx zones.Index, zone string) (sample.Subsampler, error) {
	key := sample.Key(role, zone)
	if s, ok := e.cache.Get(key); ok {
		return s, nil
	}
	mp, ok := e.reg.Get(zone)
	if !ok {
		return nil, fmt.Errorf("%s zone %q: %w", role, zone, errs.ErrUnknownZone)
	}
	var s sample.Subsampler
	if kind == sample.Weighted {
		ps, err := sample.NewWeightedPool(zone, idx[zone])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", role, err)
		}
		s = ps
	} else {
		ps, err := sample.NewRandomInPolygon(zone, mp, e.opts.MaxSamplingAttempts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", role, err)
		}
		s = ps
	}
	e.cache.Set(key, s)
	return s, nil
}

// 两端均为有限候选池时，提前判定唯一点对空间是否足够
func (e *Engine) checkFeasible(from, to sample.Subsampler, want int) error {
	if !e.opts.DeduplicatePairs {
		return nil
	}
	no, fo := from.Capacity()
	nd, fd := to.Capacity()
	if fo && fd && int64(want) > int64(no)*int64(nd) {
		return fmt.Errorf("%d unique pairs requested but only %d x %d candidate points: %w", want, no, nd, errs.ErrInfeasibleUniqueness)
	}
	return nil
}

func (e *Engine) scopeSeen() map[pairKey]struct{} {
	if !e.opts.DeduplicatePairs {
		return nil
	}
	if e.opts.DedupScope == DedupRow {
		return make(map[pairKey]struct{})
	}
	return e.seen
}

// 文档注释：接受/拒绝抽样
// 约束：距离不足或点对已出现则重抽；超过 MaxSamplingAttempts 返回 ErrSamplingExhausted；每 1024 次检查一次 ctx。
func (e *Engine) drawPair(ctx context.Context, rng *rand.Rand, from, to sample.Subsampler, seen map[pairKey]struct{}, st *Stats) (orb.Point, orb.Point, error) {
	limit := e.opts.MaxSamplingAttempts
	for attempt := 1; ; attempt++ {
		if limit > 0 && attempt > limit {
			return orb.Point{}, orb.Point{}, fmt.Errorf("no valid pair after %d draws: %w", limit, errs.ErrSamplingExhausted)
		}
		if attempt%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return orb.Point{}, orb.Point{}, err
			}
		}
		o, err := from.Sample(rng)
		if err != nil {
			return orb.Point{}, orb.Point{}, err
		}
		d, err := to.Sample(rng)
		if err != nil {
			return orb.Point{}, orb.Point{}, err
		}
		if zones.Distance(o, d) < e.opts.MinDistanceMeters {
			st.RejectedDistance++
			metrics.SampleRejectionsTotal.WithLabelValues("distance").Inc()
			continue
		}
		if seen != nil {
			k := pairKey{o[0], o[1], d[0], d[1]}
			if _, dup := seen[k]; dup {
				st.RejectedDuplicate++
				metrics.SampleRejectionsTotal.WithLabelValues("duplicate").Inc()
				continue
			}
			seen[k] = struct{}{}
		}
		metrics.SampleAttempts.Observe(float64(attempt))
		return o, d, nil
	}
}

func (e *Engine) emit(ctx context.Context, sink Sink, t Trip, mode string, st *Stats) error {
	if err := sink.Write(ctx, t); err != nil {
		return err
	}
	st.Trips++
	metrics.TripsTotal.WithLabelValues(mode).Inc()
	return nil
}
