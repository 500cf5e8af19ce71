package jitter

import (
	"context"

	"odjitter/internal/odtable"

	"github.com/paulmach/orb"
)

// 文档注释：单条出行（输出单元）
// 约束：几何固定为 起点→终点 两点线；Properties 每条独立，交给 Sink 后引擎不再持有。
type Trip struct {
	Origin      orb.Point
	Destination orb.Point
	Properties  map[string]any
}

// Sink：逐条接收出行记录；实现可为流式文件、数据库或消息流
type Sink interface {
	Write(ctx context.Context, t Trip) error
}

// RowSource：逐行提供 OD 行，读完返回 io.EOF
type RowSource interface {
	Next() (odtable.Row, error)
}

// Stats：一次运行的计数
type Stats struct {
	Rows              int
	Trips             int
	RejectedDistance  int
	RejectedDuplicate int
}
