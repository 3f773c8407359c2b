package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iabetor/pivoice/internal/audio"
	"github.com/iabetor/pivoice/internal/logger"
)

const (
	// DefaultVoiceID 是离线引擎的默认语音，也是初始的当前语音。
	DefaultVoiceID = "default"
	// FallbackVoiceID 是当前语音不在注册表中时使用的网络语音。
	FallbackVoiceID = "network_pt"

	defaultSampleRate = 22050
)

// Options 创建 Synthesizer 的参数。Offline 为 nil 表示仅网络模式。
type Options struct {
	Offline         OfflineEngine
	Remote          RemoteEngine
	OutputDir       string
	SampleRate      int    // 默认输出采样率
	PrimaryLanguage string // 离线失败后网络兜底使用的语言
}

// Request 是一次合成请求。VoiceID 为空时使用当前语音，OutputPath 为空时自动生成。
type Request struct {
	Text       string
	VoiceID    string
	Language   string // 仅用于日志
	OutputPath string
	SampleRate int
}

// ModelInfo 描述合成器的组成，用于健康检查。
type ModelInfo struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Engines     []string `json:"engines"`
	Languages   []string `json:"languages"`
	Description string   `json:"description"`
	Loaded      bool     `json:"loaded"`
	ModelID     string   `json:"model_id"`
	Device      string   `json:"device"`
}

// Synthesizer 管理语音注册表和当前语音，把文本合成为 WAV 文件。
//
// 离线引擎是有状态的，所有访问都经过 offlineMu 串行化；网络路径不加锁。
type Synthesizer struct {
	offline         OfflineEngine
	remote          RemoteEngine
	outputDir       string
	sampleRate      int
	primaryLanguage string

	voices []Voice
	index  map[string]int

	mu      sync.RWMutex // 保护 current
	current string

	offlineMu sync.Mutex
}

// New 创建合成器并构建语音注册表：内置语音在前，离线引擎枚举出的系统语音在后。
func New(opts Options) (*Synthesizer, error) {
	if opts.Remote == nil {
		return nil, errors.New("合成器需要网络引擎")
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = defaultSampleRate
	}
	if opts.PrimaryLanguage == "" {
		opts.PrimaryLanguage = "pt"
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "outputs"
	}

	s := &Synthesizer{
		offline:         opts.Offline,
		remote:          opts.Remote,
		outputDir:       opts.OutputDir,
		sampleRate:      opts.SampleRate,
		primaryLanguage: opts.PrimaryLanguage,
		index:           make(map[string]int),
		current:         DefaultVoiceID,
	}

	if s.offline != nil {
		s.register(Voice{ID: DefaultVoiceID, Name: "Voz Padrão", Kind: KindOffline, Language: "pt-BR"})
	}
	s.register(Voice{ID: FallbackVoiceID, Name: "Network TTS Português", Kind: KindNetwork, Language: "pt"})
	s.register(Voice{ID: "network_en", Name: "Network TTS English", Kind: KindNetwork, Language: "en"})

	if s.offline != nil {
		system, err := s.offline.Voices()
		bestEffort("枚举系统语音", err)
		for i, sv := range system {
			name := sv.Name
			if name == "" {
				name = fmt.Sprintf("Voz Sistema %d", i)
			}
			s.register(Voice{
				ID:       fmt.Sprintf("system_%d", i),
				Name:     name,
				Kind:     KindOffline,
				Language: "pt-BR",
				Handle:   sv.Handle,
			})
		}
	}

	logger.Infof("[tts] 合成器已初始化，共 %d 个语音（离线引擎: %v）", len(s.voices), s.offline != nil)
	return s, nil
}

func (s *Synthesizer) register(v Voice) {
	s.index[v.ID] = len(s.voices)
	s.voices = append(s.voices, v)
}

func (s *Synthesizer) lookup(id string) (Voice, bool) {
	i, ok := s.index[id]
	if !ok {
		return Voice{}, false
	}
	return s.voices[i], true
}

// ListVoices 按注册顺序返回所有语音。
func (s *Synthesizer) ListVoices() []Voice {
	return append([]Voice(nil), s.voices...)
}

// HasOffline 返回离线引擎是否可用。
func (s *Synthesizer) HasOffline() bool {
	return s.offline != nil
}

// CurrentVoice 返回当前语音 ID。
func (s *Synthesizer) CurrentVoice() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SelectVoice 设置当前语音。id 不存在时返回 false 且不改变状态。
// 绑定系统语音到离线引擎是尽力而为的，失败不影响返回值。
func (s *Synthesizer) SelectVoice(id string) bool {
	v, ok := s.lookup(id)
	if !ok {
		return false
	}

	// 保存注册表持有的字符串，调用方的 id 可能指向会被复用的缓冲区
	s.mu.Lock()
	s.current = v.ID
	s.mu.Unlock()

	if v.Kind == KindOffline && v.Handle != "" && s.offline != nil {
		s.offlineMu.Lock()
		bestEffort("绑定系统语音 "+v.Handle, s.offline.SetVoice(v.Handle))
		s.offlineMu.Unlock()
	}
	logger.Infof("[tts] 当前语音: %s", id)
	return true
}

// resolve 依次尝试显式 ID、当前语音、网络兜底语音。
func (s *Synthesizer) resolve(id string) Voice {
	if v, ok := s.lookup(id); ok {
		return v
	}
	if v, ok := s.lookup(s.CurrentVoice()); ok {
		return v
	}
	v, _ := s.lookup(FallbackVoiceID)
	return v
}

// OutputPath 生成唯一的输出文件路径 tts_<unix>_<8 位随机>.wav。
func (s *Synthesizer) OutputPath() string {
	name := fmt.Sprintf("tts_%d_%s.wav", time.Now().Unix(), uuid.NewString()[:8])
	return filepath.Join(s.outputDir, name)
}

// Synthesize 把文本合成为 WAV 文件并返回其路径。
// 离线引擎失败时用主语言的网络引擎重试一次；网络引擎失败直接返回错误。
// 输出经 .part 临时文件原子写入，失败时输出路径上不会出现新文件。
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", ErrEmptyText
	}

	voice := s.resolve(req.VoiceID)
	out := req.OutputPath
	if out == "" {
		out = s.OutputPath()
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return "", fmt.Errorf("创建输出目录失败: %w", err)
	}
	rate := req.SampleRate
	if rate <= 0 {
		rate = s.sampleRate
	}

	start := time.Now()
	used := voice.ID
	var err error
	switch voice.Kind {
	case KindNetwork:
		err = s.synthesizeNetwork(ctx, req.Text, voice.Language, voice.ID, out, rate)
	case KindOffline:
		err = s.synthesizeOffline(ctx, req.Text, voice, out, rate)
		if err != nil {
			logger.Warnf("[tts] 离线合成失败，切换到网络引擎: %v", err)
			used = FallbackVoiceID
			if netErr := s.synthesizeNetwork(ctx, req.Text, s.primaryLanguage, FallbackVoiceID, out, rate); netErr != nil {
				err = fmt.Errorf("%v; 网络兜底也失败: %w", err, netErr)
			} else {
				err = nil
			}
		}
	default:
		err = fmt.Errorf("未知的引擎类型: %v", voice.Kind)
	}

	fields := []zap.Field{
		zap.Int("text_length", len([]rune(req.Text))),
		zap.String("language", req.Language),
		zap.String("voice_id", used),
		zap.Int64("processing_ms", time.Since(start).Milliseconds()),
		zap.String("output_file", out),
		zap.Bool("success", err == nil),
	}
	if err != nil {
		bestEffort("清理未完成的输出文件", removeIfExists(out+".part"))
		logger.EventError("tts_synthesis_error", append(fields, zap.Error(err))...)
		return "", err
	}
	logger.Event("tts_synthesis", fields...)
	return out, nil
}

func (s *Synthesizer) synthesizeNetwork(ctx context.Context, text, language, voiceID, out string, rate int) error {
	fail := func(err error) error {
		return &BackendError{Voice: voiceID, Kind: KindNetwork, Err: err}
	}

	enc, err := s.remote.Synthesize(ctx, text, language)
	if err != nil {
		return fail(err)
	}
	stream, err := audio.DecodeBytes(enc.Data, enc.Format)
	if err != nil {
		return fail(err)
	}
	if err := audio.EncodeWAV(out, fitStream(stream, rate)); err != nil {
		return fail(err)
	}
	logger.Infof("[tts] 网络引擎 %s 合成完成: %s", s.remote.Name(), out)
	return nil
}

func (s *Synthesizer) synthesizeOffline(ctx context.Context, text string, voice Voice, out string, rate int) error {
	fail := func(err error) error {
		return &BackendError{Voice: voice.ID, Kind: KindOffline, Err: err}
	}
	if s.offline == nil {
		return fail(errors.New("离线引擎不可用"))
	}

	tmp := strings.TrimSuffix(out, filepath.Ext(out)) + "_temp.wav"
	defer func() { bestEffort("删除临时文件", removeIfExists(tmp)) }()

	s.offlineMu.Lock()
	err := func() error {
		if voice.Handle != "" {
			if err := s.offline.SetVoice(voice.Handle); err != nil {
				return err
			}
		}
		return s.offline.SynthesizeToFile(ctx, text, tmp)
	}()
	s.offlineMu.Unlock()
	if err != nil {
		return fail(err)
	}

	if _, err := os.Stat(tmp); err != nil {
		return fail(fmt.Errorf("%s 没有生成音频文件: %w", s.offline.Name(), err))
	}
	stream, err := audio.Decode(tmp)
	if err != nil {
		return fail(err)
	}
	if err := audio.EncodeWAV(out, fitStream(stream, rate)); err != nil {
		return fail(err)
	}
	logger.Infof("[tts] 离线引擎 %s 合成完成: %s", s.offline.Name(), out)
	return nil
}

// fitStream 下混为单声道并重采样到 rate。
func fitStream(s *audio.Stream, rate int) *audio.Stream {
	mono := audio.ToMono(s)
	if mono.SampleRate != rate {
		mono = mono.Resample(rate)
	}
	audio.Clip(mono)
	return mono
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// CloneVoice 声音克隆不受支持，始终返回 false。
func (s *Synthesizer) CloneVoice(ctx context.Context, text, audioFile, voiceID string) bool {
	logger.Warnf("[tts] 不支持声音克隆 (voice=%s, reference=%s)", voiceID, audioFile)
	return false
}

// SupportedLanguages 返回支持的语言标签。
func (s *Synthesizer) SupportedLanguages() []string {
	return []string{"pt", "pt-BR", "en", "es", "fr", "de", "it"}
}

// ModelInfo 返回合成器信息。
func (s *Synthesizer) ModelInfo() ModelInfo {
	engines := []string{s.remote.Name()}
	if s.offline != nil {
		engines = append([]string{s.offline.Name()}, engines...)
	}
	return ModelInfo{
		Name:        "pivoice synthesizer",
		Version:     "1.0.0",
		Engines:     engines,
		Languages:   []string{"pt", "pt-BR", "en"},
		Description: "离线引擎优先，网络引擎兜底",
		Loaded:      true,
		ModelID:     "pivoice-" + strings.Join(engines, "-"),
		Device:      "cpu",
	}
}
