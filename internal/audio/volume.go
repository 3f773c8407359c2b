package audio

import "math"

const (
	// TargetRMS 约为 -3 dBFS，音量归一化的目标能量。
	TargetRMS = 0.7
	// MaxGain 限制放大倍数，避免接近静音的输入被过度放大。
	MaxGain = 3.0
)

// RMS 计算样本的均方根能量。空输入返回 0。
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// RMS 计算所有声道样本的均方根能量。
func (s *Stream) RMS() float64 {
	var sum float64
	var n int
	for _, data := range s.Samples {
		for _, v := range data {
			sum += float64(v) * float64(v)
		}
		n += len(data)
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

// VolumeScale 返回把 rms 拉到 TargetRMS 所需的增益，上限 MaxGain。
// rms 不为正时返回 1，静音输入保持不变。
func VolumeScale(rms float64) float64 {
	if rms <= 0 {
		return 1
	}
	return math.Min(TargetRMS/rms, MaxGain)
}

// NormalizeVolume 对所有样本统一施加增益，返回实际使用的增益。
func NormalizeVolume(s *Stream) float64 {
	scale := VolumeScale(s.RMS())
	if scale == 1 {
		return scale
	}
	g := float32(scale)
	for _, data := range s.Samples {
		for i := range data {
			data[i] *= g
		}
	}
	return scale
}

// Clip 将所有样本硬限幅到 [-1.0, 1.0]，返回被限幅的样本数。
func Clip(s *Stream) int {
	clipped := 0
	for _, data := range s.Samples {
		for i, v := range data {
			if v > 1 {
				data[i] = 1
				clipped++
			} else if v < -1 {
				data[i] = -1
				clipped++
			}
		}
	}
	return clipped
}
