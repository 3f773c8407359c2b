package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/iabetor/pivoice/internal/config"
	"github.com/iabetor/pivoice/internal/logger"
)

// baseRate 对应 sherpa 的 1.0 倍语速（词/分钟）。
const baseRate = 150

// SherpaEngine 封装 sherpa-onnx 离线 TTS（VITS / Piper ONNX 模型）。
// 多说话人模型的每个说话人作为一个系统语音。
type SherpaEngine struct {
	tts      *sherpa.OfflineTts
	speakers []string
	sid      int
	speed    float32
	volume   float32
}

// NewSherpaEngine 加载模型。模型文件缺失时返回错误，调用方据此进入仅网络模式。
func NewSherpaEngine(cfg config.SherpaConfig) (*SherpaEngine, error) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(cfg.ModelDir, p)
	}

	model := resolve(cfg.Model)
	tokens := resolve(cfg.Tokens)
	for _, p := range []string{model, tokens} {
		if p == "" {
			return nil, fmt.Errorf("sherpa TTS 需要配置 model 和 tokens")
		}
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("sherpa TTS 模型文件不可用: %w", err)
		}
	}

	numThreads := cfg.NumThreads
	if numThreads <= 0 {
		numThreads = 2
	}

	ttsConfig := sherpa.OfflineTtsConfig{}
	ttsConfig.Model.Vits.Model = model
	ttsConfig.Model.Vits.Tokens = tokens
	ttsConfig.Model.Vits.Lexicon = resolve(cfg.Lexicon)
	ttsConfig.Model.Vits.DataDir = resolve(cfg.DataDir)
	ttsConfig.Model.Vits.NoiseScale = 0.667
	ttsConfig.Model.Vits.NoiseScaleW = 0.8
	ttsConfig.Model.Vits.LengthScale = 1.0
	ttsConfig.Model.NumThreads = numThreads
	ttsConfig.Model.Provider = "cpu"
	ttsConfig.MaxNumSentences = 1

	t := sherpa.NewOfflineTts(&ttsConfig)
	if t == nil {
		return nil, fmt.Errorf("创建 sherpa TTS 失败，模型: %s", model)
	}

	speakers := cfg.SpeakerNames
	if len(speakers) == 0 {
		for i := 0; i < t.NumSpeakers(); i++ {
			speakers = append(speakers, "Speaker "+strconv.Itoa(i))
		}
	}

	logger.Infof("[tts] sherpa TTS 已加载: model=%s speakers=%d", model, len(speakers))
	return &SherpaEngine{tts: t, speakers: speakers, speed: 1.0, volume: 1.0}, nil
}

// Name 返回引擎名。
func (e *SherpaEngine) Name() string { return "sherpa" }

// Voices 返回模型的说话人，Handle 为说话人编号。
func (e *SherpaEngine) Voices() ([]SystemVoice, error) {
	voices := make([]SystemVoice, len(e.speakers))
	for i, name := range e.speakers {
		voices[i] = SystemVoice{Handle: strconv.Itoa(i), Name: name}
	}
	return voices, nil
}

// SetRate 设置语速，150 词/分钟对应 1.0 倍。
func (e *SherpaEngine) SetRate(rate int) error {
	if rate <= 0 {
		return fmt.Errorf("语速必须为正数: %d", rate)
	}
	e.speed = float32(rate) / baseRate
	return nil
}

// SetVolume 设置输出增益。
func (e *SherpaEngine) SetVolume(volume float64) error {
	if volume < 0 || volume > 1 {
		return fmt.Errorf("音量超出范围 [0, 1]: %.2f", volume)
	}
	e.volume = float32(volume)
	return nil
}

// SetVoice 选择说话人。
func (e *SherpaEngine) SetVoice(handle string) error {
	sid, err := strconv.Atoi(handle)
	if err != nil || sid < 0 || (len(e.speakers) > 0 && sid >= len(e.speakers)) {
		return fmt.Errorf("无效的说话人编号: %q", handle)
	}
	e.sid = sid
	return nil
}

// SynthesizeToFile 合成并保存为 WAV。sherpa 的合成不可中断，只在开始前检查 ctx。
func (e *SherpaEngine) SynthesizeToFile(ctx context.Context, text, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger.Debugf("[tts] sherpa: 正在合成 %d 个字符，sid=%d speed=%.2f", len([]rune(text)), e.sid, e.speed)

	generated := e.tts.Generate(text, e.sid, e.speed)
	if generated == nil || len(generated.Samples) == 0 {
		return fmt.Errorf("sherpa: 未生成音频")
	}
	if e.volume != 1 {
		for i := range generated.Samples {
			generated.Samples[i] *= e.volume
		}
	}
	if !generated.Save(path) {
		return fmt.Errorf("sherpa: 保存音频到 %s 失败", path)
	}
	return nil
}

// Close 释放 sherpa 资源。
func (e *SherpaEngine) Close() {
	if e.tts != nil {
		sherpa.DeleteOfflineTts(e.tts)
		e.tts = nil
		logger.Info("[tts] sherpa TTS 已关闭")
	}
}
