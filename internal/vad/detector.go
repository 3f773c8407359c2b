package vad

import (
	"fmt"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/iabetor/pivoice/internal/audio"
	"github.com/iabetor/pivoice/internal/logger"
)

// SampleRate 是 Silero VAD 要求的输入采样率。
const SampleRate = 16000

const windowSize = 512

// Trimmer 用 sherpa-onnx Silero VAD 去掉参考录音中的静音段。
type Trimmer struct {
	vad *sherpa.VoiceActivityDetector
}

// NewTrimmer 加载 VAD 模型。
// threshold: 检测灵敏度（典型值 0.5）
// minSilenceMs: 短于此时长的停顿不切分
func NewTrimmer(modelPath string, threshold float32, minSilenceMs int) (*Trimmer, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("未配置 VAD 模型")
	}
	if threshold <= 0 {
		threshold = 0.5
	}
	if minSilenceMs <= 0 {
		minSilenceMs = 300
	}
	config := sherpa.VadModelConfig{
		SileroVad: sherpa.SileroVadModelConfig{
			Model:              modelPath,
			Threshold:          threshold,
			MinSilenceDuration: float32(minSilenceMs) / 1000.0,
			MinSpeechDuration:  0.25,
			MaxSpeechDuration:  60.0,
			WindowSize:         windowSize,
		},
		SampleRate: SampleRate,
		NumThreads: 1,
		Provider:   "cpu",
	}

	// 第二个参数是缓冲区秒数，需要容纳最长的一段语音
	v := sherpa.NewVoiceActivityDetector(&config, float32(120))
	if v == nil {
		return nil, fmt.Errorf("创建语音活动检测器失败，模型: %s", modelPath)
	}
	logger.Infof("[vad] 语音活动检测器已创建: model=%s threshold=%.2f minSilenceMs=%d",
		modelPath, threshold, minSilenceMs)
	return &Trimmer{vad: v}, nil
}

// Trim 返回只包含语音段的单声道 16kHz 音频。
// 输入会先下混并重采样；没有检测到语音时返回错误。
func (t *Trimmer) Trim(s *audio.Stream) (*audio.Stream, error) {
	mono := audio.ToMono(s)
	if mono.SampleRate != SampleRate {
		mono = mono.Resample(SampleRate)
	}
	samples := mono.Samples[0]

	t.vad.Clear()
	for i := 0; i < len(samples); i += windowSize {
		end := i + windowSize
		if end > len(samples) {
			end = len(samples)
		}
		t.vad.AcceptWaveform(samples[i:end])
	}
	t.vad.Flush()

	var speech []float32
	segments := 0
	for !t.vad.IsEmpty() {
		seg := t.vad.Front()
		t.vad.Pop()
		speech = append(speech, seg.Samples...)
		segments++
	}
	if len(speech) == 0 {
		return nil, fmt.Errorf("未检测到语音")
	}

	logger.Infof("[vad] 保留 %d 个语音段: %.1fs -> %.1fs", segments,
		float64(len(samples))/SampleRate, float64(len(speech))/SampleRate)
	return audio.NewMono(speech, SampleRate), nil
}

// Close 释放底层 sherpa-onnx VAD 资源。
func (t *Trimmer) Close() {
	if t.vad != nil {
		sherpa.DeleteVoiceActivityDetector(t.vad)
		t.vad = nil
		logger.Info("[vad] 语音活动检测器已关闭")
	}
}
