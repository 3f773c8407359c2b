package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iabetor/pivoice/internal/config"
	"github.com/iabetor/pivoice/internal/tts"
)

type fakeSynth struct {
	mu       sync.Mutex
	requests []tts.Request
	err      error
	delay    time.Duration
	inFlight int32
	overlaps int32
}

func (f *fakeSynth) Synthesize(ctx context.Context, req tts.Request) (string, error) {
	if atomic.AddInt32(&f.inFlight, 1) > 1 {
		atomic.AddInt32(&f.overlaps, 1)
	}
	defer atomic.AddInt32(&f.inFlight, -1)
	time.Sleep(f.delay)

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return "/tmp/" + req.VoiceID + ".wav", nil
}

func (f *fakeSynth) seen() []tts.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tts.Request(nil), f.requests...)
}

func runServer(t *testing.T) *server.Server {
	t.Helper()
	opts := test.DefaultTestOptions
	opts.Port = -1
	srv := test.RunServer(&opts)
	t.Cleanup(srv.Shutdown)
	return srv
}

func startWorker(t *testing.T, synth Synthesizer) *nats.Conn {
	t.Helper()
	srv := runServer(t)
	nc, err := Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	w := NewWorker(nc, synth, "tts.synthesize", "pivoice")
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })
	return nc
}

func TestWorker_Synthesizes(t *testing.T) {
	synth := &fakeSynth{}
	nc := startWorker(t, synth)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	path, err := Submit(ctx, nc, "tts.synthesize", Request{
		Text:       "Olá @ mundo",
		VoiceID:    "network_en",
		Language:   "en",
		SampleRate: 16000,
	})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/network_en.wav", path)

	seen := synth.seen()
	require.Len(t, seen, 1)
	got := seen[0]
	assert.Equal(t, "Olá mundo", got.Text)
	assert.Equal(t, "en", got.Language)
	assert.Equal(t, 16000, got.SampleRate)
}

func TestWorker_ReportsErrors(t *testing.T) {
	synth := &fakeSynth{err: errors.New("backend down")}
	nc := startWorker(t, synth)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Submit(ctx, nc, "tts.synthesize", Request{Text: "oi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend down")

	_, err = Submit(ctx, nc, "tts.synthesize", Request{Text: "@@@"})
	require.Error(t, err)
	assert.Len(t, synth.seen(), 1)

	msg, err := nc.RequestWithContext(ctx, "tts.synthesize", []byte("not json"))
	require.NoError(t, err)
	assert.Contains(t, string(msg.Data), "error")
}

func TestWorker_HandlesOneAtATime(t *testing.T) {
	synth := &fakeSynth{delay: 10 * time.Millisecond}
	nc := startWorker(t, synth)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Submit(ctx, nc, "tts.synthesize", Request{Text: "oi", VoiceID: "network_pt"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, synth.seen(), 5)
	assert.Zero(t, atomic.LoadInt32(&synth.overlaps))
}

func TestStartEmbedded(t *testing.T) {
	ns, err := StartEmbedded(config.BusConfig{Port: -1})
	require.NoError(t, err)
	defer ns.Shutdown()

	nc, err := Connect(ns.ClientURL())
	require.NoError(t, err)
	defer nc.Close()
	assert.True(t, nc.IsConnected())
}
