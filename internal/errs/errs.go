// 包 errs：解聚流程的错误种类，调用方以 errors.Is 判定；均视为整次运行失败
package errs

import "errors"

var (
	// 几何或表格结构非法
	ErrMalformedInput = errors.New("malformed input")
	// 解聚列或必需列缺失、不可解析
	ErrMissingOrNonNumericColumn = errors.New("missing or non-numeric column")
	// OD 行引用了未加载的分区
	ErrUnknownZone = errors.New("unknown zone")
	// 加权池为空
	ErrNoCandidatePoints = errors.New("no candidate points")
	// 去重要求的唯一点对数超过候选空间
	ErrInfeasibleUniqueness = errors.New("infeasible uniqueness")
	// 分区几何无法计算包围盒
	ErrDegenerateGeometry = errors.New("degenerate geometry")
	// 接受/拒绝循环达到重试上限
	ErrSamplingExhausted = errors.New("sampling exhausted")
)
