package sink

import (
	"context"
	"encoding/json"
	"time"

	"odjitter/internal/jitter"
	"odjitter/internal/store"
)

// TripStore：Postgres 输出端依赖的存储契约，由 store.Store 实现
type TripStore interface {
	InsertTrips(ctx context.Context, runID string, rows []store.TripRow) error
	FinishRun(ctx context.Context, runID string, trips int64) error
	FailRun(ctx context.Context, runID string, trips int64, reason string) error
}

// 文档注释：PostgreSQL 输出端
// 背景：按批缓冲出行，满批即在一个事务中写入 _od_trips；Close 时写入剩余部分并登记运行完成。
// 约束：seq 自 1 起按输出顺序递增；内存占用上限为一批；mode 取自属性 "mode"（完全解聚模式）；
// 调用过 Abort 的运行在 Close 时登记为 failed。
type Postgres struct {
	st        TripStore
	runID     string
	batchSize int
	batch     []store.TripRow
	seq       int64
	aborted   error
}

// NewPostgres：batchSize<=0 时回退到 5000
func NewPostgres(st TripStore, runID string, batchSize int) *Postgres {
	if batchSize <= 0 {
		batchSize = 5000
	}
	return &Postgres{st: st, runID: runID, batchSize: batchSize}
}

func (p *Postgres) Write(ctx context.Context, t jitter.Trip) error {
	props, err := json.Marshal(t.Properties)
	if err != nil {
		return err
	}
	mode, _ := t.Properties["mode"].(string)
	p.seq++
	p.batch = append(p.batch, store.TripRow{
		Seq:        p.seq,
		Mode:       mode,
		OriginLon:  t.Origin.Lon(),
		OriginLat:  t.Origin.Lat(),
		DestLon:    t.Destination.Lon(),
		DestLat:    t.Destination.Lat(),
		Properties: props,
	})
	if len(p.batch) >= p.batchSize {
		return p.flush(ctx)
	}
	return nil
}

func (p *Postgres) flush(ctx context.Context) error {
	if err := p.st.InsertTrips(ctx, p.runID, p.batch); err != nil {
		return err
	}
	p.batch = p.batch[:0]
	return nil
}

// Abort 标记运行失败，Close 时登记为 failed 而非 finished
func (p *Postgres) Abort(err error) { p.aborted = err }

// Close 使用独立的超时上下文收尾，运行被取消后已缓冲的记录仍会落库
func (p *Postgres) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.flush(ctx); err != nil {
		return err
	}
	if p.aborted != nil {
		return p.st.FailRun(ctx, p.runID, p.seq, p.aborted.Error())
	}
	return p.st.FinishRun(ctx, p.runID, p.seq)
}
