package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// sine 生成指定频率、幅度、时长的正弦波 Stream，所有声道相同。
func sine(freq, amp float64, seconds float64, rate, channels int) *Stream {
	frames := int(seconds * float64(rate))
	s := &Stream{Samples: make([][]float32, channels), SampleRate: rate}
	for ch := range s.Samples {
		data := make([]float32, frames)
		for i := range data {
			data[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
		}
		s.Samples[ch] = data
	}
	return s
}

func writeWAVFile(t *testing.T, dir, name string, s *Stream) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := EncodeWAV(path, s); err != nil {
		t.Fatalf("EncodeWAV(%s): %v", name, err)
	}
	return path
}

// writeRawWAV 手工写出 fmt + data 两个块的 WAV，用于生成编码器不会产生的格式。
func writeRawWAV(t *testing.T, path string, format, bits, channels, rate int, data []byte) {
	t.Helper()
	var b bytes.Buffer
	le := binary.LittleEndian
	b.WriteString("RIFF")
	binary.Write(&b, le, uint32(4+8+16+8+len(data)))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	binary.Write(&b, le, uint32(16))
	binary.Write(&b, le, uint16(format))
	binary.Write(&b, le, uint16(channels))
	binary.Write(&b, le, uint32(rate))
	binary.Write(&b, le, uint32(rate*channels*bits/8))
	binary.Write(&b, le, uint16(channels*bits/8))
	binary.Write(&b, le, uint16(bits))
	b.WriteString("data")
	binary.Write(&b, le, uint32(len(data)))
	b.Write(data)
	if err := os.WriteFile(path, b.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

// writeFloatWAV 写出 32 位浮点单声道 WAV。
func writeFloatWAV(t *testing.T, path string, samples []float32, rate int) {
	t.Helper()
	data := make([]byte, 4*len(samples))
	for i, v := range samples {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(v))
	}
	writeRawWAV(t, path, 3, 32, 1, rate, data)
}

func TestDecode_FloatWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "float.wav")
	want := []float32{0, 0.25, -0.5, 0.75, -1}
	writeFloatWAV(t, path, want, 8000)

	s, err := Decode(path)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if s.SampleRate != 8000 || s.Channels() != 1 || s.Frames() != len(want) {
		t.Fatalf("got rate=%d channels=%d frames=%d", s.SampleRate, s.Channels(), s.Frames())
	}
	for i, v := range want {
		if s.Samples[0][i] != v {
			t.Errorf("sample %d = %v, want %v", i, s.Samples[0][i], v)
		}
	}

	h, err := Probe(path)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if h.Codec != "FLOAT" || h.Frames != int64(len(want)) {
		t.Errorf("Probe = %+v, want FLOAT with %d frames", h, len(want))
	}
}

func TestDecodeAndProbe_AgreeOnUnsupportedWAV(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name   string
		format int
		bits   int
	}{
		{"a-law", 6, 8},
		{"16 位浮点", 3, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "x.wav")
			writeRawWAV(t, path, tt.format, tt.bits, 1, 8000, make([]byte, 64))

			if _, err := Probe(path); !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("Probe: expected ErrUnsupportedFormat, got %v", err)
			}
			if _, err := Decode(path); !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("Decode: expected ErrUnsupportedFormat, got %v", err)
			}
		})
	}
}

func TestFlacScale(t *testing.T) {
	if got, err := flacScale(16); err != nil || got != 32768 {
		t.Errorf("flacScale(16) = %v, %v; want 32768", got, err)
	}
	for _, depth := range []int{0, -1, 33} {
		if _, err := flacScale(depth); err == nil {
			t.Errorf("flacScale(%d): expected error", depth)
		}
	}
}

func TestEncodeDecodeWAV_Roundtrip(t *testing.T) {
	in := sine(440, 0.5, 0.25, 8000, 2)
	path := writeWAVFile(t, t.TempDir(), "tone.wav", in)

	if _, err := os.Stat(path + ".part"); !os.IsNotExist(err) {
		t.Errorf("temporary .part file should be gone, stat err = %v", err)
	}

	out, err := Decode(path)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.SampleRate != 8000 || out.Channels() != 2 || out.Frames() != in.Frames() {
		t.Fatalf("unexpected shape: rate=%d ch=%d frames=%d", out.SampleRate, out.Channels(), out.Frames())
	}
	for ch := range in.Samples {
		for i := range in.Samples[ch] {
			if d := math.Abs(float64(in.Samples[ch][i] - out.Samples[ch][i])); d > 2e-4 {
				t.Fatalf("ch %d sample %d: got %f, want %f", ch, i, out.Samples[ch][i], in.Samples[ch][i])
			}
		}
	}
}

func TestEncodeWAV_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "out.wav")
	if err := EncodeWAV(path, NewMono(make([]float32, 16), 16000)); err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("output missing: %v", err)
	}
}

func TestEncodeWAV_RejectsInvalidStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	err := EncodeWAV(path, &Stream{Samples: [][]float32{{0, 0}, {0}}, SampleRate: 8000})
	if err == nil {
		t.Fatal("expected error for ragged stream")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("no output should be written for an invalid stream")
	}
}

func TestProbeWAV(t *testing.T) {
	path := writeWAVFile(t, t.TempDir(), "probe.wav", sine(220, 0.3, 2, 1000, 1))

	h, err := Probe(path)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if h.Format != "wav" || h.Codec != "PCM_16" {
		t.Errorf("format/codec: got %s/%s", h.Format, h.Codec)
	}
	if h.SampleRate != 1000 || h.Channels != 1 || h.Frames != 2000 {
		t.Errorf("unexpected header: %+v", h)
	}
	if h.Seconds() != 2 {
		t.Errorf("Seconds: got %f, want 2", h.Seconds())
	}
}

func TestDecode_UnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.ogg")
	if err := os.WriteFile(path, []byte("OggS"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Decode(path)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	var de *DecodeError
	if !errors.As(err, &de) || de.Path != path {
		t.Errorf("expected *DecodeError for %s, got %v", path, err)
	}
}

func TestDecode_CorruptWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.wav")
	if err := os.WriteFile(path, []byte("definitely not a riff file"), 0644); err != nil {
		t.Fatal(err)
	}

	var de *DecodeError
	if _, err := Decode(path); !errors.As(err, &de) {
		t.Fatalf("Decode: expected *DecodeError, got %v", err)
	}
	if _, err := Probe(path); !errors.As(err, &de) {
		t.Fatalf("Probe: expected *DecodeError, got %v", err)
	}
}

func TestDecodeBytes_WAV(t *testing.T) {
	path := writeWAVFile(t, t.TempDir(), "mem.wav", sine(440, 0.5, 0.1, 16000, 1))
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	s, err := DecodeBytes(data, "WAV")
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	if s.SampleRate != 16000 || s.Frames() != 1600 {
		t.Errorf("unexpected stream: rate=%d frames=%d", s.SampleRate, s.Frames())
	}
}

func TestFormatOf(t *testing.T) {
	tests := map[string]string{
		"a/b/voice.WAV": "wav",
		"x.mp3":         "mp3",
		"noext":         "",
		"song.tar.flac": "flac",
	}
	for in, want := range tests {
		if got := FormatOf(in); got != want {
			t.Errorf("FormatOf(%q) = %q, want %q", in, got, want)
		}
	}
}
