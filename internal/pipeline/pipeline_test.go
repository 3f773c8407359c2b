package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/iabetor/pivoice/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	base := t.TempDir()
	cfg.Storage.DBPath = filepath.Join(base, "data", "pivoice.db")
	cfg.Storage.VoicesDir = filepath.Join(base, "voices")
	cfg.Storage.OutputDir = filepath.Join(base, "outputs")
	cfg.Storage.StaticDir = filepath.Join(base, "static")
	cfg.Storage.LogsDir = filepath.Join(base, "logs")
	return cfg
}

func TestNew_NetworkOnly(t *testing.T) {
	cfg := testConfig(t)
	cfg.TTS.Offline.Engine = "none"

	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer p.Close()

	if p.Synth.HasOffline() {
		t.Error("offline engine should be disabled")
	}
	if got := p.Synth.ListVoices()[0].ID; got != "network_pt" {
		t.Errorf("first voice = %q, want network_pt", got)
	}
	if _, err := os.Stat(cfg.Storage.DBPath); err != nil {
		t.Errorf("database not created: %v", err)
	}
	for _, dir := range []string{cfg.Storage.VoicesDir, cfg.Storage.OutputDir} {
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("dir %s not created: %v", dir, err)
		}
	}
}

func TestNew_OfflineFailureDegrades(t *testing.T) {
	cfg := testConfig(t)
	cfg.TTS.Offline.Engine = "piper"
	cfg.TTS.Offline.Piper.ModelPath = ""

	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer p.Close()

	if p.Synth.HasOffline() {
		t.Error("broken offline engine should degrade to network-only")
	}
}

func TestNew_BadNetworkProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.TTS.Offline.Engine = "none"
	cfg.TTS.Network.Provider = "nope"

	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for unknown network provider")
	}
}

func TestClose_Idempotent(t *testing.T) {
	cfg := testConfig(t)
	cfg.TTS.Offline.Engine = "none"
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	p.Close()
	p.Close()
}
