package tts

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iabetor/pivoice/internal/audio"
)

func toneStream(seconds float64, rate int) *audio.Stream {
	samples := make([]float32, int(seconds*float64(rate)))
	for i := range samples {
		samples[i] = float32(0.3 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
	}
	return audio.NewMono(samples, rate)
}

// wavBytes 生成一段 WAV 编码的音频，模拟网络引擎的返回。
func wavBytes(t *testing.T, seconds float64, rate int) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "remote.wav")
	if err := audio.EncodeWAV(path, toneStream(seconds, rate)); err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

type fakeRemote struct {
	mu        sync.Mutex
	data      []byte
	err       error
	languages []string
}

func (f *fakeRemote) Name() string { return "fake-remote" }

func (f *fakeRemote) Synthesize(ctx context.Context, text, language string) (Encoded, error) {
	f.mu.Lock()
	f.languages = append(f.languages, language)
	f.mu.Unlock()
	if f.err != nil {
		return Encoded{}, f.err
	}
	return Encoded{Data: f.data, Format: "wav"}, nil
}

func (f *fakeRemote) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.languages...)
}

type fakeOffline struct {
	voices     []SystemVoice
	voicesErr  error
	synthErr   error
	voiceErr   error
	sampleRate int
	delay      time.Duration

	handle    string
	synthCall int32
	inFlight  int32
	overlaps  int32
	lastPath  string
}

func (f *fakeOffline) Name() string { return "fake-offline" }

func (f *fakeOffline) Voices() ([]SystemVoice, error) { return f.voices, f.voicesErr }

func (f *fakeOffline) SetRate(int) error { return nil }

func (f *fakeOffline) SetVolume(float64) error { return nil }

func (f *fakeOffline) SetVoice(handle string) error {
	if f.voiceErr != nil {
		return f.voiceErr
	}
	f.handle = handle
	return nil
}

func (f *fakeOffline) SynthesizeToFile(ctx context.Context, text, path string) error {
	if atomic.AddInt32(&f.inFlight, 1) > 1 {
		atomic.AddInt32(&f.overlaps, 1)
	}
	defer atomic.AddInt32(&f.inFlight, -1)
	atomic.AddInt32(&f.synthCall, 1)
	f.lastPath = path

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.synthErr != nil {
		return f.synthErr
	}
	rate := f.sampleRate
	if rate == 0 {
		rate = 8000
	}
	return audio.EncodeWAV(path, toneStream(0.2, rate))
}

func (f *fakeOffline) Close() {}

var errRigged = errors.New("rigged failure")
