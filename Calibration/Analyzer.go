package Calibration

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

/*
时长分布分析

解码器每解出一个字符就把各槽位的原始时长压入历史环。槽位的标签覆盖"元素 + 后面一个单位的间隔"，
所以在正确的 dit_len 下点聚在 2.125 个单位附近 (dit_len=8 时约 17)，划聚在 4 个单位附近 (约 32)。
这里把历史数据排序，在最大断层处切成点/划两堆，再由两堆的均值反推 dit_len。
*/

// Config 分析参数
type Config struct {
	MinSamples int     // 有效时长少于此数量时不给建议
	DitCenter  float64 // 点的中心 (dit_len 的倍数)
	DahCenter  float64 // 划的中心 (dit_len 的倍数)
	FloorRatio float64 // 低于 FloorRatio*dit_len 的值视为空槽位
	MinGap     float64 // 断层至少 MinGap*dit_len 才认为有两堆
	TrimRatio  float64 // 寻找断层时首尾各跳过的比例，防止极端值
}

func DefaultConfig() Config {
	return Config{
		MinSamples: 10,
		DitCenter:  2.125,
		DahCenter:  4.0,
		FloorRatio: 0.6875,
		MinGap:     0.5,
		TrimRatio:  0.05,
	}
}

// ClusterStats 一堆时长的统计
type ClusterStats struct {
	Mean   float64
	StdDev float64
	Count  int
}

// Result is the outcome of one analysis pass.
type Result struct {
	Valid           bool
	Reason          string
	SuggestedDitLen float64
	Split           float64 // 点/划分界，单堆时为 0
	Dits            ClusterStats
	Dahs            ClusterStats
	Confidence      float64 // 0.0 - 1.0
}

// Analyze estimates dit_len from a history ring snapshot. ditLen is the value
// the decoder is currently using; it only scales the floor and the gap test.
func Analyze(history []float64, ditLen float64, cfg Config) Result {
	if !(ditLen > 0) {
		return Result{Reason: "dit length must be positive"}
	}
	floor := cfg.FloorRatio * ditLen
	data := make([]float64, 0, len(history))
	for _, v := range history {
		if v > floor {
			data = append(data, v)
		}
	}
	if len(data) < cfg.MinSamples || len(data) == 0 {
		return Result{Reason: "not enough samples"}
	}
	sort.Float64s(data)

	split := findSplit(data, cfg.TrimRatio, cfg.MinGap*ditLen)
	if split < 0 {
		return singleCluster(data, ditLen, cfg)
	}

	dits := clusterStats(data[:split+1])
	dahs := clusterStats(data[split+1:])

	ditEst := dits.Mean / cfg.DitCenter
	dahEst := dahs.Mean / cfg.DahCenter
	total := float64(dits.Count + dahs.Count)
	suggested := (ditEst*float64(dits.Count) + dahEst*float64(dahs.Count)) / total

	// 变异系数越小，置信度越高
	avgCV := (dits.StdDev/dits.Mean + dahs.StdDev/dahs.Mean) / 2.0

	return Result{
		Valid:           true,
		SuggestedDitLen: suggested,
		Split:           (data[split] + data[split+1]) / 2.0,
		Dits:            dits,
		Dahs:            dahs,
		Confidence:      confidence(avgCV),
	}
}

// findSplit returns the index of the last value of the lower cluster, or -1
// when no gap of at least minGap exists.
func findSplit(sorted []float64, trim, minGap float64) int {
	n := len(sorted)
	lo := int(float64(n) * trim)
	hi := n - 1 - lo
	maxGap := 0.0
	split := -1
	for i := lo; i < hi; i++ {
		if gap := sorted[i+1] - sorted[i]; gap > maxGap {
			maxGap = gap
			split = i
		}
	}
	if maxGap < minGap {
		return -1
	}
	return split
}

// singleCluster 只有一种元素 (例如全是 E/I/S/H)，按中位数离哪个中心近来判断
func singleCluster(data []float64, ditLen float64, cfg Config) Result {
	st := clusterStats(data)
	median := stat.Quantile(0.5, stat.Empirical, data, nil)
	res := Result{Valid: true, Confidence: confidence(st.StdDev/st.Mean) / 2}
	if median < ditLen*(cfg.DitCenter+cfg.DahCenter)/2 {
		res.Dits = st
		res.SuggestedDitLen = st.Mean / cfg.DitCenter
	} else {
		res.Dahs = st
		res.SuggestedDitLen = st.Mean / cfg.DahCenter
	}
	return res
}

func clusterStats(data []float64) ClusterStats {
	switch len(data) {
	case 0:
		return ClusterStats{}
	case 1:
		return ClusterStats{Mean: data[0], Count: 1}
	}
	mean, std := stat.MeanStdDev(data, nil)
	return ClusterStats{Mean: mean, StdDev: std, Count: len(data)}
}

func confidence(cv float64) float64 {
	c := 1.0 - cv
	if math.IsNaN(c) || c < 0 {
		return 0.1
	}
	if c > 1 {
		return 1
	}
	return c
}

// Histogram bins the non-zero history values into bins of binWidth starting at
// zero, the same view the operator uses to tune dit_len and threshold.
// It returns the bin dividers (len(counts)+1 values) and the counts.
func Histogram(history []float64, binWidth float64) (dividers, counts []float64) {
	if !(binWidth > 0) {
		return nil, nil
	}
	data := make([]float64, 0, len(history))
	for _, v := range history {
		if v > 0 {
			data = append(data, v)
		}
	}
	if len(data) == 0 {
		return nil, nil
	}
	sort.Float64s(data)
	nbins := int(data[len(data)-1]/binWidth) + 1
	dividers = floats.Span(make([]float64, nbins+1), 0, float64(nbins)*binWidth)
	counts = stat.Histogram(nil, dividers, data, nil)
	return dividers, counts
}
