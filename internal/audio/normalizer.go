package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/iabetor/pivoice/internal/logger"
)

var (
	// ErrNotFound 表示音频文件不存在。
	ErrNotFound = errors.New("音频文件不存在")
	// ErrDuration 表示音频时长超出允许范围。
	ErrDuration = errors.New("音频时长超出范围")
)

// Capabilities 在启动时计算一次，描述可选能力是否可用。
type Capabilities struct {
	// Decode 为 false 时进入降级模式：校验只看扩展名，无法规范化。
	Decode bool
}

// DetectCapabilities 返回当前构建的能力。disableDecode 用于强制降级。
func DetectCapabilities(disableDecode bool) Capabilities {
	caps := Capabilities{Decode: !disableDecode}
	if !caps.Decode {
		logger.Warn("[audio] 音频解码已禁用，仅按扩展名校验，规范化不可用")
	}
	return caps
}

// NormalizerConfig 规范化参数，来自 audio 配置段。
type NormalizerConfig struct {
	MinDuration      float64 // 秒
	MaxDuration      float64 // 秒
	SampleRate       int
	Channels         int
	SupportedFormats []string // 带点的小写扩展名
}

// Normalizer 校验参考音频并转换为规范格式（单声道、固定采样率、16-bit PCM WAV）。
// 所有方法都不会返回错误，失败以 false 或 FileInfo.Error 表示。
type Normalizer struct {
	cfg  NormalizerConfig
	caps Capabilities
}

// NewNormalizer 创建 Normalizer。
func NewNormalizer(cfg NormalizerConfig, caps Capabilities) *Normalizer {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	return &Normalizer{cfg: cfg, caps: caps}
}

// Capabilities 返回启动时确定的能力。
func (n *Normalizer) Capabilities() Capabilities {
	return n.caps
}

// Supported 判断扩展名是否在支持列表中。
func (n *Normalizer) Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range n.cfg.SupportedFormats {
		if ext == s {
			return true
		}
	}
	return false
}

// Check 校验音频文件，返回具体的失败原因。
func (n *Normalizer) Check(path string) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if !n.Supported(path) {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if !n.caps.Decode {
		return nil
	}

	h, err := Probe(path)
	if err != nil {
		return err
	}
	duration := h.Seconds()
	if duration < n.cfg.MinDuration {
		return fmt.Errorf("%w: 音频过短 %.2fs（最少 %.0fs）", ErrDuration, duration, n.cfg.MinDuration)
	}
	if duration > n.cfg.MaxDuration {
		return fmt.Errorf("%w: 音频过长 %.2fs（最多 %.0fs）", ErrDuration, duration, n.cfg.MaxDuration)
	}
	return nil
}

// Validate 判断音频文件是否满足格式和时长要求。
func (n *Normalizer) Validate(path string) bool {
	err := n.Check(path)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrDuration):
		logger.Warnf("[audio] %v", err)
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnsupportedFormat):
		logger.Debugf("[audio] 校验失败: %v", err)
	default:
		logger.Errorf("[audio] 校验音频出错: %v", err)
	}
	return false
}

// FileInfo 是音频文件的只读快照，每次 Inspect 重新计算。
type FileInfo struct {
	FilePath     string   `json:"file_path"`
	Exists       bool     `json:"exists"`
	FileSize     int64    `json:"file_size"`
	ModifiedTime *float64 `json:"modified_time,omitempty"` // Unix 秒
	Format       string   `json:"format,omitempty"`

	Duration   *float64 `json:"duration,omitempty"`
	SampleRate int      `json:"sample_rate,omitempty"`
	Channels   int      `json:"channels,omitempty"`
	Frames     int64    `json:"frames,omitempty"`
	Codec      string   `json:"codec,omitempty"`

	RMSEnergy        *float64 `json:"rms_energy,omitempty"`
	ZeroCrossingRate *float64 `json:"zero_crossing_rate,omitempty"`
	SpectralCentroid *float64 `json:"spectral_centroid,omitempty"`

	Error string `json:"error,omitempty"`
}

// Inspect 读取音频文件信息。
// 主元数据解码失败时填充 Error；次要特征计算失败只记录日志，不影响主元数据。
func (n *Normalizer) Inspect(path string) FileInfo {
	info := FileInfo{FilePath: path}

	st, err := os.Stat(path)
	if err != nil {
		return info
	}
	info.Exists = true
	info.Format = strings.ToLower(filepath.Ext(path))
	info.FileSize = st.Size()
	mtime := float64(st.ModTime().UnixNano()) / float64(time.Second)
	info.ModifiedTime = &mtime

	if !n.caps.Decode {
		return info
	}

	h, err := Probe(path)
	if err != nil {
		logger.Errorf("[audio] 读取音频信息失败: %v", err)
		info.Error = err.Error()
		return info
	}
	duration := h.Seconds()
	info.Duration = &duration
	info.SampleRate = h.SampleRate
	info.Channels = h.Channels
	info.Frames = h.Frames
	info.Codec = h.Codec

	if err := n.addFeatures(&info, path); err != nil {
		logger.Debugf("[audio] 频谱特征分析失败: %v", err)
	}
	return info
}

func (n *Normalizer) addFeatures(info *FileInfo, path string) error {
	s, err := Decode(path)
	if err != nil {
		return err
	}
	f, err := ComputeFeatures(ToMono(s).Samples[0], s.SampleRate)
	if err != nil {
		return err
	}
	info.RMSEnergy = &f.RMSEnergy
	info.ZeroCrossingRate = &f.ZeroCrossingRate
	info.SpectralCentroid = &f.SpectralCentroid
	return nil
}

// Job 描述一次规范化转换，调用结束即丢弃。
type Job struct {
	Input           string
	Output          string
	TargetRate      int // 0 表示使用配置的采样率
	TargetChannels  int // 0 表示使用配置的声道数
	NormalizeVolume bool
}

// Normalize 执行 Job，成功返回 true。
// 顺序：解码 → 声道转换 → 重采样 → 音量归一化 → 限幅 → 16-bit WAV 编码。
func (n *Normalizer) Normalize(job Job) bool {
	if !n.caps.Decode {
		logger.Error("[audio] 音频解码不可用，无法规范化")
		return false
	}
	if job.TargetRate <= 0 {
		job.TargetRate = n.cfg.SampleRate
	}
	if job.TargetChannels <= 0 {
		job.TargetChannels = n.cfg.Channels
	}

	logger.Infof("[audio] 规范化音频: %s -> %s", job.Input, job.Output)
	if err := n.normalize(job); err != nil {
		logger.Errorf("[audio] 规范化音频失败: %v", err)
		return false
	}
	logger.Infof("[audio] 音频规范化完成: %s", job.Output)
	return true
}

func (n *Normalizer) normalize(job Job) error {
	s, err := Decode(job.Input)
	if err != nil {
		return err
	}

	s, err = ToChannels(s, job.TargetChannels)
	if err != nil {
		return err
	}

	if s.SampleRate != job.TargetRate {
		s = s.Resample(job.TargetRate)
	}

	if job.NormalizeVolume {
		scale := NormalizeVolume(s)
		logger.Debugf("[audio] 音量增益 %.3f", scale)
	}

	if clipped := Clip(s); clipped > 0 {
		logger.Debugf("[audio] 限幅 %d 个样本", clipped)
	}

	return EncodeWAV(job.Output, s)
}

// PrepareForTTS 校验并规范化参考音频，输出到 outputDir/processed_<stem>.wav。
func (n *Normalizer) PrepareForTTS(input, outputDir string) (string, bool) {
	if !n.Validate(input) {
		logger.Errorf("[audio] 音频格式无效: %s", input)
		return "", false
	}

	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	output := filepath.Join(outputDir, "processed_"+stem+".wav")

	ok := n.Normalize(Job{
		Input:           input,
		Output:          output,
		TargetRate:      n.cfg.SampleRate,
		TargetChannels:  n.cfg.Channels,
		NormalizeVolume: true,
	})
	if !ok {
		return "", false
	}
	return output, true
}
