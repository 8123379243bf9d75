package cwregen

import (
	"errors"
	"fmt"
	"math"
)

/*
时序换算

上游分类器吃的是音频的短时频谱，每一帧产生一个样本 (tick)。
频谱参数按码速选取，使一个点大约对应 Decimation 帧:
  spd      = int(1.2 / wpm * audioRate)        每个点的音频采样数
  nfft     = 2 ^ int(log2(spd) - 1)
  noverlap = nfft - round(spd / decimation)
tick 速率 = audioRate / (nfft - noverlap)，点长 = 1.2 * tickRate / wpm (PARIS 标准)。
*/

var ErrInvalidTiming = errors.New("invalid timing parameters")

// SpectrogramParams 上游频谱图参数
type SpectrogramParams struct {
	SamplesPerDit int
	NFFT          int
	NOverlap      int
}

// SpectrogramFor computes the spectrogram framing used for a given speed.
func SpectrogramFor(audioRate int, wpm, decimation float64) (SpectrogramParams, error) {
	if audioRate <= 0 || !(wpm > 0) || !(decimation > 0) {
		return SpectrogramParams{}, fmt.Errorf("%w: rate %d wpm %v decimation %v", ErrInvalidTiming, audioRate, wpm, decimation)
	}
	spd := int(1.2 / wpm * float64(audioRate))
	if spd < 4 {
		return SpectrogramParams{}, fmt.Errorf("%w: %v wpm too fast for %d Hz", ErrInvalidTiming, wpm, audioRate)
	}
	nfft := 1 << int(math.Log2(float64(spd))-1)
	hop := int(math.RoundToEven(float64(spd) / decimation))
	if hop < 1 || hop > nfft {
		return SpectrogramParams{}, fmt.Errorf("%w: hop %d outside 1..%d", ErrInvalidTiming, hop, nfft)
	}
	return SpectrogramParams{
		SamplesPerDit: spd,
		NFFT:          nfft,
		NOverlap:      nfft - hop,
	}, nil
}

// Hop 相邻两帧之间的音频采样数
func (p SpectrogramParams) Hop() int {
	return p.NFFT - p.NOverlap
}

// TickRate 每秒样本数
func (p SpectrogramParams) TickRate(audioRate int) float64 {
	return float64(audioRate) / float64(p.Hop())
}

// DitLenFromWPM 点长 (tick)
func DitLenFromWPM(tickRate, wpm float64) (float64, error) {
	if !(tickRate > 0) || !(wpm > 0) {
		return 0, fmt.Errorf("%w: tick rate %v wpm %v", ErrInvalidTiming, tickRate, wpm)
	}
	return 1.2 * tickRate / wpm, nil
}

// WPMFromDitLen 反算码速，用于显示
func WPMFromDitLen(tickRate, ditLen float64) (float64, error) {
	if !(tickRate > 0) || !(ditLen > 0) {
		return 0, fmt.Errorf("%w: tick rate %v dit length %v", ErrInvalidTiming, tickRate, ditLen)
	}
	return 1.2 * tickRate / ditLen, nil
}
