package audio

import "fmt"

// ToMono 将多声道音频按声道平均下混为单声道。
func ToMono(s *Stream) *Stream {
	channels := s.Channels()
	if channels <= 1 {
		return s.Clone()
	}
	frames := s.Frames()
	mono := make([]float32, frames)
	inv := 1 / float32(channels)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += s.Samples[ch][i]
		}
		mono[i] = sum * inv
	}
	return NewMono(mono, s.SampleRate)
}

// ToChannels 转换到 n 个声道。
// 单声道扩展为多声道时直接复制，不做任何立体声化处理；
// 多声道到另一个多声道数时先下混再复制。
func ToChannels(s *Stream, n int) (*Stream, error) {
	if n <= 0 {
		return nil, fmt.Errorf("目标声道数必须为正数: %d", n)
	}
	switch {
	case s.Channels() == n:
		return s.Clone(), nil
	case n == 1:
		return ToMono(s), nil
	}

	mono := s
	if s.Channels() != 1 {
		mono = ToMono(s)
	}
	out := &Stream{Samples: make([][]float32, n), SampleRate: s.SampleRate}
	for ch := 0; ch < n; ch++ {
		out.Samples[ch] = append([]float32(nil), mono.Samples[0]...)
	}
	return out, nil
}
