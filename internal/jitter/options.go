package jitter

import (
	"errors"
	"fmt"

	"odjitter/internal/sample"
)

// 去重作用域：row 每行重置，run 在引擎生命周期内持续累积
type DedupScope string

const (
	DedupRow DedupScope = "row"
	DedupRun DedupScope = "run"
)

// 文档注释：解聚引擎参数
// 约束：DisaggregationThreshold>=1；MinDistanceMeters>=0；开启去重时必须显式给出 DedupScope；
// MaxSamplingAttempts 为每条出行的最大抽样次数，0 表示不设上限（约束不可满足时将永不返回）。
type Options struct {
	DisaggregationThreshold int
	DisaggregationKey       string
	OriginKey               string
	DestinationKey          string
	SubsampleOrigin         sample.Strategy
	SubsampleDestination    sample.Strategy
	MinDistanceMeters       float64
	DeduplicatePairs        bool
	DedupScope              DedupScope
	MaxSamplingAttempts     int
	SubsamplerCacheSize     int
}

func (o Options) Validate() error {
	if o.DisaggregationThreshold < 1 {
		return fmt.Errorf("disaggregation threshold must be >= 1, got %d", o.DisaggregationThreshold)
	}
	if o.DisaggregationKey == "" || o.OriginKey == "" || o.DestinationKey == "" {
		return errors.New("disaggregation, origin and destination keys are required")
	}
	if o.OriginKey == o.DestinationKey {
		return fmt.Errorf("origin and destination key are both %q", o.OriginKey)
	}
	if !(o.MinDistanceMeters >= 0) {
		return fmt.Errorf("min distance must be a non-negative number, got %v", o.MinDistanceMeters)
	}
	if o.MaxSamplingAttempts < 0 {
		return fmt.Errorf("max sampling attempts must be >= 0, got %d", o.MaxSamplingAttempts)
	}
	if o.DeduplicatePairs && o.DedupScope != DedupRow && o.DedupScope != DedupRun {
		return fmt.Errorf("dedup scope must be %q or %q, got %q", DedupRow, DedupRun, o.DedupScope)
	}
	return nil
}
