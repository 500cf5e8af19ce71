// 包 sink：出行记录的输出端（流式 GeoJSON、PostgreSQL、Redis Stream 及其组合）
package sink

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"odjitter/internal/jitter"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// 文档注释：流式 FeatureCollection 写出
// 背景：逐要素写出而不是在内存中聚合整个集合，输出规模不受内存限制。
// 约束：Close 写入结尾并刷新；未 Close 的输出不是合法 GeoJSON。
type GeoJSON struct {
	w      *bufio.Writer
	closer io.Closer
	n      int
}

func NewGeoJSON(w io.Writer) (*GeoJSON, error) {
	s := &GeoJSON{w: bufio.NewWriter(w)}
	if _, err := s.w.WriteString(`{"type":"FeatureCollection","features":[` + "\n"); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *GeoJSON) Write(_ context.Context, t jitter.Trip) error {
	b, err := Feature(t).MarshalJSON()
	if err != nil {
		return err
	}
	if s.n > 0 {
		if _, err := s.w.WriteString(",\n"); err != nil {
			return err
		}
	}
	s.n++
	_, err = s.w.Write(b)
	return err
}

func (s *GeoJSON) Close() error {
	if _, err := s.w.WriteString("\n]}\n"); err != nil {
		return err
	}
	if err := s.w.Flush(); err != nil {
		return err
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// 文档注释：GeoJSON 文本序列（每行一个 Feature）
// 约束：无头尾，可被下游逐行消费；Close 仅刷新缓冲。
type GeoJSONSeq struct {
	w      *bufio.Writer
	closer io.Closer
}

func NewGeoJSONSeq(w io.Writer) *GeoJSONSeq { return &GeoJSONSeq{w: bufio.NewWriter(w)} }

func (s *GeoJSONSeq) Write(_ context.Context, t jitter.Trip) error {
	b, err := Feature(t).MarshalJSON()
	if err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	return s.w.WriteByte('\n')
}

func (s *GeoJSONSeq) Close() error {
	if err := s.w.Flush(); err != nil {
		return err
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// WriteCloser：需要收尾的输出端
type WriteCloser interface {
	jitter.Sink
	io.Closer
}

// Feature 把出行转换为两点 LineString 要素
func Feature(t jitter.Trip) *geojson.Feature {
	f := geojson.NewFeature(orb.LineString{t.Origin, t.Destination})
	f.Properties = geojson.Properties(t.Properties)
	return f
}

// 文档注释：按路径打开文件输出端
// 约束："-" 写到标准输出；扩展名 .geojsonl/.geojsons/.ndjson 为逐行序列，其余为 FeatureCollection。
func Create(path string) (WriteCloser, error) {
	var w io.Writer = os.Stdout
	var c io.Closer
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		w, c = f, f
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojsonl", ".geojsons", ".ndjson":
		s := NewGeoJSONSeq(w)
		s.closer = c
		return s, nil
	}
	s, err := NewGeoJSON(w)
	if err != nil {
		if c != nil {
			_ = c.Close()
		}
		return nil, err
	}
	s.closer = c
	return s, nil
}
