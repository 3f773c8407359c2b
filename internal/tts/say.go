package tts

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/iabetor/pivoice/internal/logger"
)

// saySampleRate 是 say 输出 WAV 的采样率。
const saySampleRate = 22050

// sayVoiceLine 匹配 `say -v ?` 的一行，如 "Luciana             pt_BR    # Olá, ..."。
var sayVoiceLine = regexp.MustCompile(`^(.+?)\s+([a-z]{2,3}[_-][A-Za-z0-9]+)\s+#`)

// SayEngine 使用 macOS 内置 say 命令实现离线合成。仅在 macOS 上可用。
type SayEngine struct {
	voice  string
	rate   int
	volume float64
}

// NewSayEngine 创建 say 引擎。voice 为空时使用系统默认语音。
func NewSayEngine(voice string) (*SayEngine, error) {
	if _, err := exec.LookPath("say"); err != nil {
		return nil, fmt.Errorf("找不到 say 命令: %w", err)
	}
	return &SayEngine{voice: voice, volume: 1.0}, nil
}

// Name 返回引擎名。
func (s *SayEngine) Name() string { return "say" }

// Voices 枚举系统语音。
func (s *SayEngine) Voices() ([]SystemVoice, error) {
	out, err := exec.Command("say", "-v", "?").Output()
	if err != nil {
		return nil, fmt.Errorf("枚举 say 语音失败: %w", err)
	}
	return parseSayVoices(out), nil
}

func parseSayVoices(out []byte) []SystemVoice {
	var voices []SystemVoice
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		m := sayVoiceLine.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		voices = append(voices, SystemVoice{Handle: name, Name: name + " (" + m[2] + ")"})
	}
	return voices
}

// SetRate 设置语速（词/分钟）。
func (s *SayEngine) SetRate(rate int) error {
	if rate <= 0 {
		return fmt.Errorf("语速必须为正数: %d", rate)
	}
	s.rate = rate
	return nil
}

// SetVolume 通过 [[volm]] 内嵌命令设置音量。
func (s *SayEngine) SetVolume(volume float64) error {
	if volume < 0 || volume > 1 {
		return fmt.Errorf("音量超出范围 [0, 1]: %.2f", volume)
	}
	s.volume = volume
	return nil
}

// SetVoice 设置语音名称。
func (s *SayEngine) SetVoice(handle string) error {
	if strings.TrimSpace(handle) == "" {
		return fmt.Errorf("语音名称为空")
	}
	s.voice = handle
	return nil
}

func (s *SayEngine) args(text, path string) []string {
	args := []string{"-o", path, "--file-format=WAVE", "--data-format=LEI16@" + strconv.Itoa(saySampleRate)}
	if s.voice != "" {
		args = append(args, "-v", s.voice)
	}
	if s.rate > 0 {
		args = append(args, "-r", strconv.Itoa(s.rate))
	}
	if s.volume != 1.0 {
		text = "[[volm " + strconv.FormatFloat(s.volume, 'f', 2, 64) + "]] " + text
	}
	return append(args, "--", text)
}

// SynthesizeToFile 调用 say 直接输出 16-bit WAV。
func (s *SayEngine) SynthesizeToFile(ctx context.Context, text, path string) error {
	logger.Debugf("[tts] say: 正在合成 %d 个字符，语音=%s", len([]rune(text)), s.voice)

	cmd := exec.CommandContext(ctx, "say", s.args(text, path)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("say 执行失败: %w, stderr: %s", err, stderr.String())
	}
	return nil
}

// Close 无需释放资源。
func (s *SayEngine) Close() {}
