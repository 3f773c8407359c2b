package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSetDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	checks := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"Server.Port", cfg.Server.Port, 8000},
		{"Server.MaxTextLength", cfg.Server.MaxTextLength, 5000},
		{"Server.UploadMaxSize", cfg.Server.UploadMaxSize, 50_000_000},
		{"Audio.SampleRate", cfg.Audio.SampleRate, 16000},
		{"Audio.Channels", cfg.Audio.Channels, 1},
		{"Audio.MinDuration", cfg.Audio.MinDuration, 30.0},
		{"Audio.MaxDuration", cfg.Audio.MaxDuration, 300.0},
		{"TTS.SampleRate", cfg.TTS.SampleRate, 22050},
		{"TTS.DefaultLanguage", cfg.TTS.DefaultLanguage, "pt-BR"},
		{"TTS.PrimaryLanguage", cfg.TTS.PrimaryLanguage, "pt"},
		{"TTS.Offline.Engine", cfg.TTS.Offline.Engine, "sherpa"},
		{"TTS.Offline.Rate", cfg.TTS.Offline.Rate, 150},
		{"TTS.Offline.Volume", cfg.TTS.Offline.Volume, 0.9},
		{"TTS.Network.Provider", cfg.TTS.Network.Provider, "edge"},
		{"TTS.Network.Edge.Voices[pt]", cfg.TTS.Network.Edge.Voices["pt"], "pt-BR-FranciscaNeural"},
		{"Storage.OutputDir", cfg.Storage.OutputDir, "outputs"},
		{"Storage.VoicesDir", cfg.Storage.VoicesDir, filepath.Join("data", "voices")},
		{"Bus.Subject", cfg.Bus.Subject, "tts.synthesize"},
		{"Log.Level", cfg.Log.Level, "info"},
	}

	for _, c := range checks {
		switch want := c.want.(type) {
		case int:
			if c.got.(int) != want {
				t.Errorf("%s: got %v, want %v", c.name, c.got, want)
			}
		case float64:
			if c.got.(float64) != want {
				t.Errorf("%s: got %v, want %v", c.name, c.got, want)
			}
		case string:
			if c.got.(string) != want {
				t.Errorf("%s: got %v, want %v", c.name, c.got, want)
			}
		}
	}

	want := []string{".wav", ".mp3", ".flac"}
	if len(cfg.Audio.SupportedFormats) != len(want) {
		t.Fatalf("SupportedFormats: got %v, want %v", cfg.Audio.SupportedFormats, want)
	}
	for i := range want {
		if cfg.Audio.SupportedFormats[i] != want[i] {
			t.Errorf("SupportedFormats[%d]: got %q, want %q", i, cfg.Audio.SupportedFormats[i], want[i])
		}
	}
}

func TestSetDefaults_DoesNotOverride(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{Port: 9000, MaxTextLength: 100},
		Audio:  AudioConfig{SampleRate: 44100, MinDuration: 5, MaxDuration: 60},
		TTS: TTSConfig{
			SampleRate: 16000,
			Offline:    OfflineConfig{Engine: "piper", Rate: 200},
			Network: NetworkConfig{
				Provider: "tencent",
				Edge:     EdgeConfig{Voices: map[string]string{"pt": "pt-BR-AntonioNeural"}},
			},
		},
		Log: LogConfig{Level: "debug"},
	}
	setDefaults(cfg)

	if cfg.Server.Port != 9000 {
		t.Errorf("Port should not be overridden: got %d", cfg.Server.Port)
	}
	if cfg.Server.MaxTextLength != 100 {
		t.Errorf("MaxTextLength should not be overridden: got %d", cfg.Server.MaxTextLength)
	}
	if cfg.Audio.SampleRate != 44100 {
		t.Errorf("Audio.SampleRate should not be overridden: got %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.MinDuration != 5 || cfg.Audio.MaxDuration != 60 {
		t.Errorf("durations should not be overridden: got %v/%v", cfg.Audio.MinDuration, cfg.Audio.MaxDuration)
	}
	if cfg.TTS.SampleRate != 16000 {
		t.Errorf("TTS.SampleRate should not be overridden: got %d", cfg.TTS.SampleRate)
	}
	if cfg.TTS.Offline.Engine != "piper" || cfg.TTS.Offline.Rate != 200 {
		t.Errorf("offline settings should not be overridden: got %+v", cfg.TTS.Offline)
	}
	if cfg.TTS.Network.Provider != "tencent" {
		t.Errorf("Network.Provider should not be overridden: got %s", cfg.TTS.Network.Provider)
	}
	if cfg.TTS.Network.Edge.Voices["pt"] != "pt-BR-AntonioNeural" {
		t.Errorf("Edge voice should not be overridden: got %s", cfg.TTS.Network.Edge.Voices["pt"])
	}
	if cfg.TTS.Network.Edge.Voices["en"] == "" {
		t.Error("missing languages should still get default Edge voices")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level should not be overridden: got %s", cfg.Log.Level)
	}
}

func TestSetDefaults_NormalizesExtensions(t *testing.T) {
	cfg := &Config{Audio: AudioConfig{SupportedFormats: []string{"WAV", " .Mp3 "}}}
	setDefaults(cfg)

	if cfg.Audio.SupportedFormats[0] != ".wav" || cfg.Audio.SupportedFormats[1] != ".mp3" {
		t.Errorf("unexpected extensions: %v", cfg.Audio.SupportedFormats)
	}
}

func TestSetDefaults_StorageUnderBaseDir(t *testing.T) {
	cfg := &Config{Storage: StorageConfig{BaseDir: "/srv/pivoice", OutputDir: "/tmp/out"}}
	setDefaults(cfg)

	if cfg.Storage.OutputDir != "/tmp/out" {
		t.Errorf("absolute OutputDir should be kept: got %s", cfg.Storage.OutputDir)
	}
	if cfg.Storage.VoicesDir != "/srv/pivoice/data/voices" {
		t.Errorf("VoicesDir: got %s", cfg.Storage.VoicesDir)
	}
	if cfg.Storage.DBPath != "/srv/pivoice/data/pivoice.db" {
		t.Errorf("DBPath: got %s", cfg.Storage.DBPath)
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	yamlContent := `
server:
  port: 8080
audio:
  sample_rate: 22050
  min_duration: 10
tts:
  offline:
    engine: say
    say:
      voice: Luciana
  network:
    provider: tencent
    tencent:
      voice_types:
        en: 1051
log:
  level: debug
`
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "pivoice.yaml")
	if err := os.WriteFile(tmpFile, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port: got %d, want 8080", cfg.Server.Port)
	}
	if cfg.Audio.SampleRate != 22050 {
		t.Errorf("Audio.SampleRate: got %d, want 22050", cfg.Audio.SampleRate)
	}
	if cfg.Audio.MinDuration != 10 {
		t.Errorf("Audio.MinDuration: got %v, want 10", cfg.Audio.MinDuration)
	}
	if cfg.Audio.MaxDuration != 300 {
		t.Errorf("Audio.MaxDuration should default to 300, got %v", cfg.Audio.MaxDuration)
	}
	if cfg.TTS.Offline.Say.Voice != "Luciana" {
		t.Errorf("Say.Voice: got %q", cfg.TTS.Offline.Say.Voice)
	}
	if cfg.TTS.Network.Tencent.VoiceTypes["en"] != 1051 {
		t.Errorf("Tencent.VoiceTypes[en]: got %d", cfg.TTS.Network.Tencent.VoiceTypes["en"])
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level: got %q, want %q", cfg.Log.Level, "debug")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_TENCENT_KEY", "  secret-from-env ")

	yamlContent := `
tts:
  network:
    tencent:
      secret_key: "${TEST_TENCENT_KEY}"
`
	tmpFile := filepath.Join(t.TempDir(), "pivoice.yaml")
	if err := os.WriteFile(tmpFile, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.TTS.Network.Tencent.SecretKey != "secret-from-env" {
		t.Errorf("expected expanded and trimmed key, got %q", cfg.TTS.Network.Tencent.SecretKey)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/pivoice.yaml")
	if err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestEnsureDirs(t *testing.T) {
	cfg := &Config{Storage: StorageConfig{BaseDir: t.TempDir()}}
	setDefaults(cfg)

	if err := cfg.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs failed: %v", err)
	}
	for _, dir := range []string{cfg.Storage.VoicesDir, cfg.Storage.OutputDir, cfg.Storage.StaticDir, cfg.Storage.LogsDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("directory %s not created", dir)
		}
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault error: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Audio.VADThreshold != 0.5 {
		t.Errorf("Audio.VADThreshold = %v, want 0.5", cfg.Audio.VADThreshold)
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOrDefault(path); err == nil {
		t.Error("expected parse error for malformed file")
	}
}
