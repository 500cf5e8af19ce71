// 包 odtable：读取带表头的 OD 矩阵 CSV，逐行返回原始字符串，不做任何数值推断
package odtable

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"odjitter/internal/errs"
)

// 文档注释：OD 行
// 约束：保留表头列序；所有值均为原始字符串，"007" 这样的分区 id 不会丢失前导零。
type Row struct {
	Header []string
	Values []string
	Line   int
}

// Get 按列名取值；列不存在时 ok=false
func (r Row) Get(col string) (string, bool) {
	for i, h := range r.Header {
		if h == col {
			return r.Values[i], true
		}
	}
	return "", false
}

// 文档注释：流式 CSV 读取器
// 约束：首行为表头；列数不一致、空表头、重复列名返回 ErrMalformedInput；读完返回 io.EOF。
type Reader struct {
	cr     *csv.Reader
	header []string
	line   int
	closer io.Closer
}

func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = false
	h, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty table, expected a header row: %w", errs.ErrMalformedInput)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %v: %w", err, errs.ErrMalformedInput)
	}
	seen := make(map[string]bool, len(h))
	for _, c := range h {
		if seen[c] {
			return nil, fmt.Errorf("duplicate column %q: %w", c, errs.ErrMalformedInput)
		}
		seen[c] = true
	}
	return &Reader{cr: cr, header: h, line: 1}, nil
}

// Open 打开文件并读取表头；调用方负责 Close
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	rd, err := NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rd.closer = f
	return rd, nil
}

func (r *Reader) Header() []string { return append([]string(nil), r.header...) }

func (r *Reader) Next() (Row, error) {
	rec, err := r.cr.Read()
	if err == io.EOF {
		return Row{}, io.EOF
	}
	r.line++
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return Row{}, fmt.Errorf("line %d: %v: %w", pe.Line, pe.Err, errs.ErrMalformedInput)
		}
		return Row{}, err
	}
	return Row{Header: r.header, Values: rec, Line: r.line}, nil
}

func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
