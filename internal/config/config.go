package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 是 pivoice 的顶层配置结构。
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Audio   AudioConfig   `yaml:"audio"`
	TTS     TTSConfig     `yaml:"tts"`
	Storage StorageConfig `yaml:"storage"`
	Bus     BusConfig     `yaml:"bus"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig HTTP 服务配置。
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	MaxTextLength  int      `yaml:"max_text_length"`
	UploadMaxSize  int      `yaml:"upload_max_size"` // 字节
	AllowedOrigins []string `yaml:"allowed_origins"`
	// OutputFormats 是 /v1/tts 接受的输出格式。
	OutputFormats []string `yaml:"output_formats"`
}

// Addr 返回监听地址。
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AudioConfig 参考音频（上传的声音样本）规范化配置。
type AudioConfig struct {
	SampleRate       int      `yaml:"sample_rate"`
	Channels         int      `yaml:"channels"`
	MinDuration      float64  `yaml:"min_duration"` // 秒
	MaxDuration      float64  `yaml:"max_duration"` // 秒
	SupportedFormats []string `yaml:"supported_formats"`
	// DisableDecode 强制降级为仅按扩展名校验，用于没有解码能力的部署。
	DisableDecode bool `yaml:"disable_decode"`
	// VADModel 是 Silero VAD 模型路径，配置后录制的参考音频会去掉静音段。
	VADModel        string  `yaml:"vad_model"`
	VADThreshold    float32 `yaml:"vad_threshold"`
	VADMinSilenceMs int     `yaml:"vad_min_silence_ms"`
}

// TTSConfig 语音合成配置。
type TTSConfig struct {
	SampleRate      int           `yaml:"sample_rate"`
	DefaultLanguage string        `yaml:"default_language"`
	PrimaryLanguage string        `yaml:"primary_language"` // 兜底网络引擎使用的语言
	Offline         OfflineConfig `yaml:"offline"`
	Network         NetworkConfig `yaml:"network"`
}

// OfflineConfig 离线引擎配置。
type OfflineConfig struct {
	Engine string       `yaml:"engine"` // sherpa, piper, say, none
	Rate   int          `yaml:"rate"`   // 语速（词/分钟）
	Volume float64      `yaml:"volume"` // 0.0 - 1.0
	Sherpa SherpaConfig `yaml:"sherpa"`
	Piper  PiperConfig  `yaml:"piper"`
	Say    SayConfig    `yaml:"say"`
}

// SherpaConfig sherpa-onnx VITS 模型配置。
type SherpaConfig struct {
	ModelDir     string   `yaml:"model_dir"`
	Model        string   `yaml:"model"`
	Tokens       string   `yaml:"tokens"`
	Lexicon      string   `yaml:"lexicon"`
	DataDir      string   `yaml:"data_dir"`
	NumThreads   int      `yaml:"num_threads"`
	SpeakerNames []string `yaml:"speaker_names"`
}

// PiperConfig Piper CLI 配置。
type PiperConfig struct {
	Command    string         `yaml:"command"`
	ModelPath  string         `yaml:"model_path"`
	SampleRate int            `yaml:"sample_rate"`
	Speakers   []PiperSpeaker `yaml:"speakers"`
}

// PiperSpeaker 多说话人 Piper 模型中的一个说话人。
type PiperSpeaker struct {
	ID   int    `yaml:"id"`
	Name string `yaml:"name"`
}

// SayConfig macOS say 配置。
type SayConfig struct {
	Voice string `yaml:"voice"`
}

// NetworkConfig 网络引擎配置。
type NetworkConfig struct {
	Provider string        `yaml:"provider"` // edge, tencent
	Edge     EdgeConfig    `yaml:"edge"`
	Tencent  TencentConfig `yaml:"tencent"`
}

// EdgeConfig Edge TTS 配置，按语言选择神经语音。
type EdgeConfig struct {
	Voices map[string]string `yaml:"voices"`
}

// TencentConfig 腾讯云 TTS 配置。
type TencentConfig struct {
	SecretID   string           `yaml:"secret_id"`
	SecretKey  string           `yaml:"secret_key"`
	Region     string           `yaml:"region"`
	VoiceType  int64            `yaml:"voice_type"`
	VoiceTypes map[string]int64 `yaml:"voice_types"`
	Speed      float64          `yaml:"speed"`
}

// StorageConfig 数据目录配置。
type StorageConfig struct {
	BaseDir   string `yaml:"base_dir"`
	DBPath    string `yaml:"db_path"`
	VoicesDir string `yaml:"voices_dir"`
	OutputDir string `yaml:"output_dir"`
	StaticDir string `yaml:"static_dir"`
	LogsDir   string `yaml:"logs_dir"`
}

// BusConfig NATS 合成任务配置。
type BusConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Embedded bool   `yaml:"embedded"`
	Port     int    `yaml:"port"`
	Subject  string `yaml:"subject"`
	Queue    string `yaml:"queue"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Load 读取 YAML 配置文件并返回 Config。
// 支持 ${VAR_NAME} 形式的环境变量展开。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}

	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}

	setDefaults(cfg)
	return cfg, nil
}

// LoadOrDefault 在配置文件不存在时使用默认配置，其他读取错误照常返回。
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

// Default 返回全部使用默认值的配置，配置文件不存在时使用。
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// EnsureDirs 创建运行所需的目录。
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.Storage.VoicesDir, c.Storage.OutputDir, c.Storage.StaticDir, c.Storage.LogsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建目录 %s 失败: %w", dir, err)
		}
	}
	return nil
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.MaxTextLength == 0 {
		cfg.Server.MaxTextLength = 5000
	}
	if cfg.Server.UploadMaxSize == 0 {
		cfg.Server.UploadMaxSize = 50_000_000
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{
			"http://localhost:3000",
			"http://localhost:8000",
			"http://127.0.0.1:8000",
		}
	}
	if len(cfg.Server.OutputFormats) == 0 {
		cfg.Server.OutputFormats = []string{"wav"}
	}

	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels == 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.MinDuration == 0 {
		cfg.Audio.MinDuration = 30
	}
	if cfg.Audio.MaxDuration == 0 {
		cfg.Audio.MaxDuration = 300
	}
	if cfg.Audio.VADThreshold == 0 {
		cfg.Audio.VADThreshold = 0.5
	}
	if cfg.Audio.VADMinSilenceMs == 0 {
		cfg.Audio.VADMinSilenceMs = 300
	}
	if len(cfg.Audio.SupportedFormats) == 0 {
		cfg.Audio.SupportedFormats = []string{".wav", ".mp3", ".flac"}
	}
	for i, ext := range cfg.Audio.SupportedFormats {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		cfg.Audio.SupportedFormats[i] = ext
	}

	if cfg.TTS.SampleRate == 0 {
		cfg.TTS.SampleRate = 22050
	}
	if cfg.TTS.DefaultLanguage == "" {
		cfg.TTS.DefaultLanguage = "pt-BR"
	}
	if cfg.TTS.PrimaryLanguage == "" {
		cfg.TTS.PrimaryLanguage = "pt"
	}
	if cfg.TTS.Offline.Engine == "" {
		cfg.TTS.Offline.Engine = "sherpa"
	}
	if cfg.TTS.Offline.Rate == 0 {
		cfg.TTS.Offline.Rate = 150
	}
	if cfg.TTS.Offline.Volume == 0 {
		cfg.TTS.Offline.Volume = 0.9
	}
	if cfg.TTS.Offline.Sherpa.NumThreads == 0 {
		cfg.TTS.Offline.Sherpa.NumThreads = 2
	}
	if cfg.TTS.Offline.Piper.Command == "" {
		cfg.TTS.Offline.Piper.Command = "piper"
	}
	if cfg.TTS.Offline.Piper.SampleRate == 0 {
		cfg.TTS.Offline.Piper.SampleRate = 22050
	}
	if cfg.TTS.Network.Provider == "" {
		cfg.TTS.Network.Provider = "edge"
	}
	if cfg.TTS.Network.Edge.Voices == nil {
		cfg.TTS.Network.Edge.Voices = map[string]string{}
	}
	for lang, voice := range defaultEdgeVoices {
		if _, ok := cfg.TTS.Network.Edge.Voices[lang]; !ok {
			cfg.TTS.Network.Edge.Voices[lang] = voice
		}
	}
	if cfg.TTS.Network.Tencent.Region == "" {
		cfg.TTS.Network.Tencent.Region = "ap-guangzhou"
	}
	if cfg.TTS.Network.Tencent.VoiceType == 0 {
		cfg.TTS.Network.Tencent.VoiceType = 1001
	}
	if cfg.TTS.Network.Tencent.Speed == 0 {
		cfg.TTS.Network.Tencent.Speed = 1.0
	}

	if cfg.Storage.BaseDir == "" {
		cfg.Storage.BaseDir = "."
	} else if strings.HasPrefix(cfg.Storage.BaseDir, "~/") {
		// Go 不会自动展开 ~，需要手动替换为用户主目录
		if home, _ := os.UserHomeDir(); home != "" {
			cfg.Storage.BaseDir = home + cfg.Storage.BaseDir[1:]
		}
	}
	base := cfg.Storage.BaseDir
	cfg.Storage.VoicesDir = underBase(base, cfg.Storage.VoicesDir, "data/voices")
	cfg.Storage.OutputDir = underBase(base, cfg.Storage.OutputDir, "outputs")
	cfg.Storage.StaticDir = underBase(base, cfg.Storage.StaticDir, "static")
	cfg.Storage.LogsDir = underBase(base, cfg.Storage.LogsDir, "logs")
	cfg.Storage.DBPath = underBase(base, cfg.Storage.DBPath, "data/pivoice.db")

	if cfg.Bus.URL == "" {
		cfg.Bus.URL = "nats://127.0.0.1:4222"
	}
	if cfg.Bus.Port == 0 {
		cfg.Bus.Port = 4222
	}
	if cfg.Bus.Subject == "" {
		cfg.Bus.Subject = "tts.synthesize"
	}
	if cfg.Bus.Queue == "" {
		cfg.Bus.Queue = "pivoice"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	// 去除密钥两端可能的空白（环境变量展开后常见）
	cfg.TTS.Network.Tencent.SecretID = strings.TrimSpace(cfg.TTS.Network.Tencent.SecretID)
	cfg.TTS.Network.Tencent.SecretKey = strings.TrimSpace(cfg.TTS.Network.Tencent.SecretKey)
}

var defaultEdgeVoices = map[string]string{
	"pt":    "pt-BR-FranciscaNeural",
	"pt-BR": "pt-BR-FranciscaNeural",
	"en":    "en-US-AriaNeural",
	"es":    "es-ES-ElviraNeural",
	"fr":    "fr-FR-DeniseNeural",
	"de":    "de-DE-KatjaNeural",
	"it":    "it-IT-ElsaNeural",
}

// underBase 相对路径挂到 base 下，绝对路径原样保留。
func underBase(base, value, fallback string) string {
	if value == "" {
		value = fallback
	}
	if filepath.IsAbs(value) {
		return value
	}
	return filepath.Join(base, value)
}
