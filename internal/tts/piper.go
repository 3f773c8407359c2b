package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/mattn/go-shellwords"

	"github.com/iabetor/pivoice/internal/audio"
	"github.com/iabetor/pivoice/internal/config"
	"github.com/iabetor/pivoice/internal/logger"
)

// PiperEngine 使用 piper CLI 子进程实现离线合成。
// piper 输出 signed 16-bit LE 单声道 PCM，由本引擎封装为 WAV。
type PiperEngine struct {
	argv        []string
	modelPath   string
	sampleRate  int
	speakers    []config.PiperSpeaker
	speaker     int // -1 表示模型默认说话人
	lengthScale float64
	volume      float32
}

// NewPiperEngine 创建 Piper 引擎。cfg.Command 可以带参数，按 shell 规则拆分。
func NewPiperEngine(cfg config.PiperConfig) (*PiperEngine, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("piper 需要配置 model_path")
	}
	command := cfg.Command
	if command == "" {
		command = "piper"
	}
	argv, err := shellwords.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("解析 piper 命令失败: %w", err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("piper 命令为空")
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		return nil, fmt.Errorf("找不到 piper 可执行文件: %w", err)
	}

	rate := cfg.SampleRate
	if rate <= 0 {
		rate = 22050
	}
	return &PiperEngine{
		argv:        argv,
		modelPath:   cfg.ModelPath,
		sampleRate:  rate,
		speakers:    cfg.Speakers,
		speaker:     -1,
		lengthScale: 1.0,
		volume:      1.0,
	}, nil
}

// Name 返回引擎名。
func (p *PiperEngine) Name() string { return "piper" }

// Voices 返回配置中的说话人。
func (p *PiperEngine) Voices() ([]SystemVoice, error) {
	voices := make([]SystemVoice, 0, len(p.speakers))
	for _, s := range p.speakers {
		name := s.Name
		if name == "" {
			name = "Speaker " + strconv.Itoa(s.ID)
		}
		voices = append(voices, SystemVoice{Handle: strconv.Itoa(s.ID), Name: name})
	}
	return voices, nil
}

// SetRate 通过 length_scale 控制语速，语速越快 length_scale 越小。
func (p *PiperEngine) SetRate(rate int) error {
	if rate <= 0 {
		return fmt.Errorf("语速必须为正数: %d", rate)
	}
	p.lengthScale = float64(baseRate) / float64(rate)
	return nil
}

// SetVolume 设置输出增益。
func (p *PiperEngine) SetVolume(volume float64) error {
	if volume < 0 || volume > 1 {
		return fmt.Errorf("音量超出范围 [0, 1]: %.2f", volume)
	}
	p.volume = float32(volume)
	return nil
}

// SetVoice 选择说话人编号。
func (p *PiperEngine) SetVoice(handle string) error {
	id, err := strconv.Atoi(handle)
	if err != nil || id < 0 {
		return fmt.Errorf("无效的说话人编号: %q", handle)
	}
	p.speaker = id
	return nil
}

func (p *PiperEngine) args() []string {
	args := append([]string(nil), p.argv[1:]...)
	args = append(args, "--model", p.modelPath, "--output-raw")
	if p.speaker >= 0 {
		args = append(args, "--speaker", strconv.Itoa(p.speaker))
	}
	if p.lengthScale != 1.0 {
		args = append(args, "--length_scale", strconv.FormatFloat(p.lengthScale, 'f', 3, 64))
	}
	return args
}

// SynthesizeToFile 运行 piper 并把原始 PCM 写成 WAV。
func (p *PiperEngine) SynthesizeToFile(ctx context.Context, text, path string) error {
	logger.Debugf("[tts] piper: 正在合成 %d 个字符，模型=%s", len([]rune(text)), p.modelPath)

	cmd := exec.CommandContext(ctx, p.argv[0], p.args()...)
	cmd.Stdin = bytes.NewReader([]byte(text))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if s := stderr.String(); s != "" {
			logger.Warnf("[tts] piper stderr: %s", s)
		}
		return fmt.Errorf("piper 执行失败: %w", err)
	}

	pcm := stdout.Bytes()
	if len(pcm) < 2 {
		return fmt.Errorf("piper: 未收到音频数据")
	}
	logger.Debugf("[tts] piper: 收到 %d 字节原始 PCM", len(pcm))

	samples := audio.BytesToFloat32(pcm[:len(pcm)/2*2])
	if p.volume != 1 {
		for i := range samples {
			samples[i] *= p.volume
		}
	}
	return audio.EncodeWAV(path, audio.NewMono(samples, p.sampleRate))
}

// Close 无需释放资源。
func (p *PiperEngine) Close() {}
