package audio

import (
	"fmt"
	"time"
)

// Stream 是解码后的内存音频。样本按声道平面存储，Samples[ch][frame]，
// 取值范围 [-1.0, 1.0]。所有声道长度必须一致。
type Stream struct {
	Samples    [][]float32
	SampleRate int
}

// NewMono 用单声道样本创建 Stream。
func NewMono(samples []float32, sampleRate int) *Stream {
	return &Stream{Samples: [][]float32{samples}, SampleRate: sampleRate}
}

// NewInterleaved 将交错样本拆分为平面 Stream。
func NewInterleaved(data []float32, channels, sampleRate int) (*Stream, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("声道数必须为正数: %d", channels)
	}
	if len(data)%channels != 0 {
		return nil, fmt.Errorf("样本数 %d 不是声道数 %d 的整数倍", len(data), channels)
	}
	frames := len(data) / channels
	planar := make([][]float32, channels)
	for ch := range planar {
		planar[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			planar[ch][i] = data[i*channels+ch]
		}
	}
	return &Stream{Samples: planar, SampleRate: sampleRate}, nil
}

// Channels 返回声道数。
func (s *Stream) Channels() int {
	return len(s.Samples)
}

// Frames 返回每个声道的采样点数。
func (s *Stream) Frames() int {
	if len(s.Samples) == 0 {
		return 0
	}
	return len(s.Samples[0])
}

// Seconds 返回时长（秒）。
func (s *Stream) Seconds() float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(s.Frames()) / float64(s.SampleRate)
}

// Duration 返回时长。
func (s *Stream) Duration() time.Duration {
	return time.Duration(s.Seconds() * float64(time.Second))
}

// Interleaved 返回交错排列的样本，用于编码和播放。
func (s *Stream) Interleaved() []float32 {
	channels := s.Channels()
	frames := s.Frames()
	out := make([]float32, frames*channels)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			out[i*channels+ch] = s.Samples[ch][i]
		}
	}
	return out
}

// Validate 检查采样率、声道数和声道长度是否合法。
func (s *Stream) Validate() error {
	if s.SampleRate <= 0 {
		return fmt.Errorf("采样率必须为正数: %d", s.SampleRate)
	}
	if len(s.Samples) == 0 {
		return fmt.Errorf("音频没有声道")
	}
	frames := len(s.Samples[0])
	for ch, data := range s.Samples {
		if len(data) != frames {
			return fmt.Errorf("声道 %d 长度 %d 与声道 0 长度 %d 不一致", ch, len(data), frames)
		}
	}
	return nil
}

// Clone 深拷贝 Stream。
func (s *Stream) Clone() *Stream {
	out := &Stream{Samples: make([][]float32, len(s.Samples)), SampleRate: s.SampleRate}
	for ch, data := range s.Samples {
		out.Samples[ch] = append([]float32(nil), data...)
	}
	return out
}
