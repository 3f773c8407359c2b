package audio

import (
	"math"
	"testing"
)

func TestResample_Length(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		from, to int
		want     int
	}{
		{"上采样", 100, 8000, 16000, 200},
		{"下采样", 44100, 44100, 16000, 16000},
		{"22050 到 16000", 22050, 22050, 16000, 16000},
		{"相同采样率", 10, 16000, 16000, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Resample(make([]float32, tt.n), tt.from, tt.to)
			if len(out) != tt.want {
				t.Errorf("length: got %d, want %d", len(out), tt.want)
			}
		})
	}
}

func TestResample_PreservesConstantAndOrder(t *testing.T) {
	constant := make([]float32, 64)
	for i := range constant {
		constant[i] = 0.25
	}
	for _, v := range Resample(constant, 11025, 16000) {
		if math.Abs(float64(v-0.25)) > 1e-6 {
			t.Fatalf("constant signal changed: %f", v)
		}
	}

	ramp := make([]float32, 100)
	for i := range ramp {
		ramp[i] = float32(i) / 100
	}
	out := Resample(ramp, 100, 37)
	for i := 1; i < len(out); i++ {
		if out[i] < out[i-1] {
			t.Fatalf("resampled ramp not monotonic at %d: %f < %f", i, out[i], out[i-1])
		}
	}
}

func TestResample_EmptyInput(t *testing.T) {
	if out := Resample(nil, 8000, 16000); len(out) != 0 {
		t.Fatalf("expected empty output, got %d samples", len(out))
	}
}

func TestStreamResample_AllChannels(t *testing.T) {
	s := &Stream{Samples: [][]float32{make([]float32, 441), make([]float32, 441)}, SampleRate: 44100}
	out := s.Resample(16000)
	if out.SampleRate != 16000 {
		t.Fatalf("SampleRate: got %d", out.SampleRate)
	}
	if err := out.Validate(); err != nil {
		t.Fatalf("invalid stream: %v", err)
	}
	if out.Frames() != 160 {
		t.Errorf("Frames: got %d, want 160", out.Frames())
	}
}

func TestToMono_Averages(t *testing.T) {
	s := &Stream{Samples: [][]float32{{1, 0.5}, {0, -0.5}}, SampleRate: 8000}
	mono := ToMono(s)
	if mono.Channels() != 1 {
		t.Fatalf("Channels: got %d", mono.Channels())
	}
	if mono.Samples[0][0] != 0.5 || mono.Samples[0][1] != 0 {
		t.Errorf("unexpected mono samples: %v", mono.Samples[0])
	}
}

func TestToChannels(t *testing.T) {
	mono := NewMono([]float32{0.1, 0.2}, 8000)

	stereo, err := ToChannels(mono, 2)
	if err != nil {
		t.Fatalf("ToChannels: %v", err)
	}
	if stereo.Channels() != 2 {
		t.Fatalf("Channels: got %d", stereo.Channels())
	}
	for ch := 0; ch < 2; ch++ {
		if stereo.Samples[ch][0] != 0.1 || stereo.Samples[ch][1] != 0.2 {
			t.Errorf("channel %d not duplicated: %v", ch, stereo.Samples[ch])
		}
	}

	// 复制出的声道互不共享底层数组
	stereo.Samples[0][0] = 1
	if stereo.Samples[1][0] != 0.1 || mono.Samples[0][0] != 0.1 {
		t.Error("channels share backing storage")
	}

	quad := &Stream{Samples: [][]float32{{1}, {0}, {1}, {0}}, SampleRate: 8000}
	out, err := ToChannels(quad, 2)
	if err != nil {
		t.Fatalf("ToChannels: %v", err)
	}
	if out.Channels() != 2 || out.Samples[0][0] != 0.5 || out.Samples[1][0] != 0.5 {
		t.Errorf("unexpected 4->2 result: %v", out.Samples)
	}

	if _, err := ToChannels(mono, 0); err == nil {
		t.Error("expected error for 0 channels")
	}
}

func TestVolumeScale_Clamp(t *testing.T) {
	if got := VolumeScale(0.01); got != MaxGain {
		t.Fatalf("VolumeScale(0.01) = %f, want %f", got, MaxGain)
	}
	if got := VolumeScale(0.35); math.Abs(got-2.0) > 1e-9 {
		t.Errorf("VolumeScale(0.35) = %f, want 2.0", got)
	}
	if got := VolumeScale(1.4); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("VolumeScale(1.4) = %f, want 0.5", got)
	}
	if got := VolumeScale(0); got != 1 {
		t.Errorf("VolumeScale(0) = %f, want 1", got)
	}
}

func TestNormalizeVolume_QuietInputClamped(t *testing.T) {
	samples := make([]float32, 1000)
	for i := range samples {
		samples[i] = 0.01
	}
	s := NewMono(samples, 16000)

	scale := NormalizeVolume(s)
	if scale != 3.0 {
		t.Fatalf("scale: got %f, want 3.0", scale)
	}
	if math.Abs(float64(s.Samples[0][0])-0.03) > 1e-6 {
		t.Errorf("sample: got %f, want 0.03", s.Samples[0][0])
	}
}

func TestNormalizeVolume_Silence(t *testing.T) {
	s := NewMono(make([]float32, 256), 16000)
	if scale := NormalizeVolume(s); scale != 1 {
		t.Fatalf("scale: got %f, want 1", scale)
	}
	for i, v := range s.Samples[0] {
		if v != 0 {
			t.Fatalf("sample %d changed: %f", i, v)
		}
	}
}

func TestClip(t *testing.T) {
	s := &Stream{Samples: [][]float32{{1.5, -2, 0.5}, {-1, 1, 3}}, SampleRate: 8000}
	if n := Clip(s); n != 3 {
		t.Errorf("clipped: got %d, want 3", n)
	}
	for _, data := range s.Samples {
		for _, v := range data {
			if v > 1 || v < -1 {
				t.Fatalf("sample out of range: %f", v)
			}
		}
	}
}

func TestNewInterleaved(t *testing.T) {
	s, err := NewInterleaved([]float32{1, 2, 3, 4, 5, 6}, 2, 8000)
	if err != nil {
		t.Fatalf("NewInterleaved: %v", err)
	}
	if s.Frames() != 3 || s.Samples[0][1] != 3 || s.Samples[1][2] != 6 {
		t.Errorf("unexpected planar layout: %v", s.Samples)
	}
	back := s.Interleaved()
	for i, v := range []float32{1, 2, 3, 4, 5, 6} {
		if back[i] != v {
			t.Errorf("Interleaved()[%d] = %f, want %f", i, back[i], v)
		}
	}

	if _, err := NewInterleaved([]float32{1, 2, 3}, 2, 8000); err == nil {
		t.Error("expected error for ragged interleaved data")
	}
}
