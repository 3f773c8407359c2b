package audio

import (
	"errors"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	featureFrameLength = 2048
	featureHopLength   = 512
)

// Features 是用于展示的次要频谱特征。
type Features struct {
	RMSEnergy        float64
	ZeroCrossingRate float64 // 每帧过零率的均值
	SpectralCentroid float64 // 每帧谱质心的均值（Hz）
}

// ComputeFeatures 以 2048 点帧、512 点帧移计算单声道样本的特征。
func ComputeFeatures(samples []float32, sampleRate int) (Features, error) {
	if len(samples) == 0 {
		return Features{}, errors.New("没有可分析的样本")
	}
	if sampleRate <= 0 {
		return Features{}, errors.New("采样率必须为正数")
	}

	window := hannWindow(featureFrameLength)
	frame := make([]float32, featureFrameLength)
	windowed := make([]float64, featureFrameLength)
	fft := fourier.NewFFT(featureFrameLength)
	var coeffs []complex128

	var zcrSum, centroidSum float64
	frames := 0
	for start := 0; start == 0 || start+featureFrameLength <= len(samples); start += featureHopLength {
		// 不足一帧时补零
		for i := range frame {
			if start+i < len(samples) {
				frame[i] = samples[start+i]
			} else {
				frame[i] = 0
			}
		}
		zcrSum += zeroCrossingRate(frame)

		for i, v := range frame {
			windowed[i] = float64(v) * window[i]
		}
		coeffs = fft.Coefficients(coeffs, windowed)
		centroidSum += spectralCentroid(coeffs, featureFrameLength, sampleRate)
		frames++
	}

	return Features{
		RMSEnergy:        RMS(samples),
		ZeroCrossingRate: zcrSum / float64(frames),
		SpectralCentroid: centroidSum / float64(frames),
	}, nil
}

func zeroCrossingRate(frame []float32) float64 {
	crossings := 0
	for i := 1; i < len(frame); i++ {
		if (frame[i-1] >= 0) != (frame[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(frame))
}

// spectralCentroid 计算 n 点帧单边谱（n/2+1 个系数）的谱质心。静音帧返回 0。
func spectralCentroid(coeffs []complex128, n, sampleRate int) float64 {
	binHz := float64(sampleRate) / float64(n)
	var weighted, total float64
	for k, c := range coeffs {
		mag := cmplx.Abs(c)
		weighted += float64(k) * binHz * mag
		total += mag
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}
