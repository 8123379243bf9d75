package cwregen

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"
)

// SignalDebugger 定义调试器接口
// 解码流程只依赖这个接口，不依赖具体的文件操作
type SignalDebugger interface {
	Record(tick int64, sample []float64, charReady, envReady bool, lastChar rune)
	Close()
}

// CsvFileDebugger 是 SignalDebugger 的具体实现，每个 tick 一行
type CsvFileDebugger struct {
	file   *os.File
	writer *bufio.Writer
}

// NewCsvFileDebugger 创建一个新的 CSV 调试器，maxElements 决定 E 列的数量
func NewCsvFileDebugger(filename string, maxElements int) (*CsvFileDebugger, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}

	w := bufio.NewWriter(f)
	// 写入表头
	cols := []string{"Tick", "C", "W"}
	for i := 0; i < maxElements; i++ {
		cols = append(cols, fmt.Sprintf("E%d", i))
	}
	cols = append(cols, "CharReady", "EnvReady", "LastChar")
	if _, err := w.WriteString(strings.Join(cols, ",") + "\n"); err != nil {
		f.Close()
		return nil, err
	}

	return &CsvFileDebugger{
		file:   f,
		writer: w,
	}, nil
}

// Record 记录单帧数据
func (d *CsvFileDebugger) Record(tick int64, sample []float64, charReady, envReady bool, lastChar rune) {
	fmt.Fprintf(d.writer, "%d", tick)
	for _, v := range sample {
		fmt.Fprintf(d.writer, ",%f", v)
	}
	fmt.Fprintf(d.writer, ",%d,%d,%c\n", flag(charReady), flag(envReady), lastChar)
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Close 关闭文件并刷新缓冲区
func (d *CsvFileDebugger) Close() {
	log.Println("[DEBUG] Closing CsvFileDebugger")
	if d.writer != nil {
		d.writer.Flush()
	}
	if d.file != nil {
		d.file.Close()
	}
}

// NoOpDebugger 是一个空实现，不记录数据时使用
type NoOpDebugger struct{}

func (d *NoOpDebugger) Record(tick int64, sample []float64, charReady, envReady bool, lastChar rune) {
}
func (d *NoOpDebugger) Close() {}
