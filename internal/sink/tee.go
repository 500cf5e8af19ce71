package sink

import (
	"context"
	"errors"
	"io"
	"time"

	"odjitter/internal/jitter"
	"odjitter/internal/metrics"
)

// Aborter：运行失败时需要区别收尾的输出端（如数据库登记失败状态）
type Aborter interface {
	Abort(err error)
}

// 文档注释：多路输出
// 约束：按注册顺序逐个写入，首个错误即中止；nil 项跳过。
type Tee struct {
	list []jitter.Sink
}

func NewTee(list ...jitter.Sink) *Tee { return &Tee{list: list} }

func (t *Tee) Write(ctx context.Context, trip jitter.Trip) error {
	for _, s := range t.list {
		if s == nil {
			continue
		}
		if err := s.Write(ctx, trip); err != nil {
			return err
		}
	}
	return nil
}

// Abort 通知所有实现了 Aborter 的下游本次运行失败；须在 Close 之前调用
func (t *Tee) Abort(err error) {
	for _, s := range t.list {
		if a, ok := s.(Aborter); ok {
			a.Abort(err)
		}
	}
}

// Close 关闭所有实现了 io.Closer 的下游，汇总错误
func (t *Tee) Close() error {
	var errs []error
	for _, s := range t.list {
		if c, ok := s.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// 文档注释：为输出端记录写入耗时与失败次数
type instrumented struct {
	name string
	next jitter.Sink
}

func Instrument(name string, next jitter.Sink) jitter.Sink {
	return &instrumented{name: name, next: next}
}

func (s *instrumented) Write(ctx context.Context, t jitter.Trip) error {
	start := time.Now()
	err := s.next.Write(ctx, t)
	metrics.SinkWriteDurationMs.WithLabelValues(s.name).Observe(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		metrics.SinkErrorsTotal.WithLabelValues(s.name).Inc()
	}
	return err
}

func (s *instrumented) Abort(err error) {
	if a, ok := s.next.(Aborter); ok {
		a.Abort(err)
	}
}

func (s *instrumented) Close() error {
	if c, ok := s.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
