package main

import (
	"cwregen/Calibration"
	"cwregen/RegenDecoder"
	"cwregen/Synth"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/agnivade/levenshtein"
)

// ============================================================================
// 1. 评分 (Scoring)
// ============================================================================

// CalculateCER 计算字符错误率 (Character Error Rate)，按 Levenshtein 距离
func CalculateCER(reference, hypothesis string) (float64, int) {
	ref := strings.TrimSpace(reference)
	hyp := strings.TrimSpace(hypothesis)

	distance := levenshtein.ComputeDistance(ref, hyp)
	lenRef := len([]rune(ref))
	if lenRef == 0 {
		if len(hyp) == 0 {
			return 0.0, 0
		}
		return 100.0, distance
	}
	return float64(distance) / float64(lenRef) * 100.0, distance
}

// ============================================================================
// 2. 基准测试套件 (Benchmark Harness)
// ============================================================================

type TestCase struct {
	Name   string
	DitLen int     // 合成流的点长 (tick)
	Jitter float64 // 单位长度相对抖动
	Blur   int     // Hann 窗长度
	Noise  float64 // 均匀噪声幅度
}

type Result struct {
	Text      string
	Suggested float64
	Elapsed   time.Duration
}

// runCase 合成一段流并用默认配置的解码器解码
func runCase(tc TestCase, text string, seed int64) (Result, error) {
	opts := Synth.DefaultOptions()
	opts.DitLen = tc.DitLen
	opts.Jitter = tc.Jitter
	opts.Blur = tc.Blur
	opts.Noise = tc.Noise
	opts.Seed = seed
	gen, err := Synth.NewGenerator(opts)
	if err != nil {
		return Result{}, err
	}
	frames, err := gen.Generate(text)
	if err != nil {
		return Result{}, err
	}

	dec, err := RegenDecoder.NewDecoder(RegenDecoder.DefaultConfig())
	if err != nil {
		return Result{}, err
	}
	start := time.Now()
	for _, f := range frames {
		if _, _, err := dec.NewSample(f); err != nil {
			return Result{}, err
		}
	}
	elapsed := time.Since(start)

	cal := Calibration.Analyze(dec.History(), dec.DitLen(), Calibration.DefaultConfig())
	return Result{Text: dec.Text(), Suggested: cal.SuggestedDitLen, Elapsed: elapsed}, nil
}

func RunBenchmark() {
	baseText := "PARIS PARIS PARIS 73 CQ DE BG1ABC K"

	testCases := []TestCase{
		{Name: "Level 1 (Clean)", DitLen: 8},
		{Name: "Level 1 (Blur)", DitLen: 8, Blur: 5},
		{Name: "Level 2 (Jitter)", DitLen: 8, Jitter: 0.05, Blur: 5},
		{Name: "Level 2 (Noise)", DitLen: 8, Blur: 5, Noise: 0.05},
		{Name: "Level 2 (Slow)", DitLen: 10, Blur: 5},
		{Name: "Level 3 (Hard)", DitLen: 8, Jitter: 0.15, Blur: 7, Noise: 0.1},
		{Name: "Level 3 (Fast)", DitLen: 6, Jitter: 0.1, Blur: 5, Noise: 0.05},
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LEVEL\tDIT\tJITTER\tBLUR\tNOISE\tCER(%)\tCALIB\tTIME(us)\tSTATUS")
	fmt.Fprintln(w, "-----\t---\t------\t----\t-----\t------\t-----\t--------\t------")

	for i, tc := range testCases {
		res, err := runCase(tc, baseText, int64(i+1))
		if err != nil {
			log.Printf("[BENCH] %s failed: %v", tc.Name, err)
			continue
		}
		cer, _ := CalculateCER(baseText, res.Text)

		status := "PASS"
		if cer > 10.0 {
			status = "FAIL"
		} // 10% CER 作为及格线

		fmt.Fprintf(w, "%s\t%d\t%.0f%%\t%d\t%.2f\t%.2f%%\t%.2f\t%d\t%s\n",
			tc.Name, tc.DitLen, tc.Jitter*100, tc.Blur, tc.Noise, cer, res.Suggested, res.Elapsed.Microseconds(), status)
	}
	w.Flush()
}

// ============================================================================
// Main Entry
// ============================================================================

func main() {
	fmt.Println("Starting CW Regen Decoder Benchmark Suite...")
	fmt.Println("========================================")

	RunBenchmark()

	fmt.Println("\nBenchmark Complete.")
}
