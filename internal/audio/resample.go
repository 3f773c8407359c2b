package audio

import "math"

// Resample 用线性插值把样本从 from Hz 转换到 to Hz。
// 输出长度为 round(len(in) * to / from)，时间上单调。
func Resample(in []float32, from, to int) []float32 {
	if from <= 0 || to <= 0 || from == to || len(in) == 0 {
		return append([]float32(nil), in...)
	}

	outLen := int(math.Round(float64(len(in)) * float64(to) / float64(from)))
	if outLen < 1 {
		outLen = 1
	}

	ratio := float64(from) / float64(to)
	last := len(in) - 1
	out := make([]float32, outLen)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = in[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = in[idx] + (in[idx+1]-in[idx])*frac
	}
	return out
}

// Resample 返回重采样到目标采样率的新 Stream；采样率相同时返回拷贝。
func (s *Stream) Resample(to int) *Stream {
	out := &Stream{Samples: make([][]float32, len(s.Samples)), SampleRate: to}
	for ch, data := range s.Samples {
		out.Samples[ch] = Resample(data, s.SampleRate, to)
	}
	if to <= 0 {
		out.SampleRate = s.SampleRate
	}
	return out
}
