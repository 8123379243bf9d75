package cwregen

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/tarm/serial"
)

/*
样本来源

上游分类器把每个 tick 的输出写成一行 CSV: c,w,e0,...,e(n-1)。
来源可以是文件 (可选 zstd 压缩)、stdin 或串口。以 # 开头的行是注释。
长度不对的行原样交给解码器，由解码器拒绝并计数；无法解析的行返回 ErrMalformedSample，
读取可以继续。
*/

// ErrMalformedSample 表示一行无法解析，来源仍可继续读取
var ErrMalformedSample = errors.New("malformed sample")

// SampleSource 按到达顺序产生样本，结束时返回 io.EOF
type SampleSource interface {
	Next() ([]float64, error)
	Close() error
}

// SerialPort 定义串口操作接口，方便测试 Mock
type SerialPort interface {
	io.ReadWriteCloser
}

// CSVSource 从任意 io.Reader 读取 CSV 样本
type CSVSource struct {
	reader  *csv.Reader
	closers []io.Closer
	line    int
}

// NewCSVSource wraps r. The closers are closed in order by Close.
func NewCSVSource(r io.Reader, closers ...io.Closer) *CSVSource {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	return &CSVSource{reader: cr, closers: closers}
}

// Next 读取下一个样本
func (s *CSVSource) Next() ([]float64, error) {
	record, err := s.reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			s.line++
			return nil, fmt.Errorf("%w: %v", ErrMalformedSample, err)
		}
		return nil, fmt.Errorf("failed to read sample: %w", err)
	}
	s.line++
	sample := make([]float64, len(record))
	for i, field := range record {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: sample %d field %d: %v", ErrMalformedSample, s.line, i, err)
		}
		sample[i] = v
	}
	return sample, nil
}

// Close 关闭底层文件/解压器/串口
func (s *CSVSource) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

// OpenFileSource 打开样本文件。"-" 表示 stdin，*.zst 自动解压
func OpenFileSource(path string) (*CSVSource, error) {
	if path == "-" {
		return NewCSVSource(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}
	if !strings.HasSuffix(path, ".zst") {
		return NewCSVSource(f, f), nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to open zstd stream: %w", err)
	}
	rc := dec.IOReadCloser()
	return NewCSVSource(rc, rc, f), nil
}

// OpenSerialSource 打开串口，分类器以 CSV 行的形式推送样本
func OpenSerialSource(port string, baudRate int) (*CSVSource, error) {
	// 不设置 ReadTimeout: 超时会被当作 EOF
	p, err := serial.OpenPort(&serial.Config{
		Name: port,
		Baud: baudRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", port, err)
	}
	return NewSerialSource(p), nil
}

// NewSerialSource 包装一个已打开的串口
func NewSerialSource(conn SerialPort) *CSVSource {
	return NewCSVSource(conn, conn)
}

// WriteSamples 把样本写成 CSV
func WriteSamples(w io.Writer, samples [][]float64) error {
	cw := csv.NewWriter(w)
	var record []string
	for _, s := range samples {
		record = record[:0]
		for _, v := range s {
			record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSampleFile 写样本文件，*.zst 使用 zstd 压缩
func WriteSampleFile(path string, samples [][]float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create sample file: %w", err)
	}
	if !strings.HasSuffix(path, ".zst") {
		if err := WriteSamples(f, samples); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to create zstd stream: %w", err)
	}
	if err := WriteSamples(enc, samples); err != nil {
		enc.Close()
		f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
