package tts

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	tctts "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/tts/v20190823"

	"github.com/iabetor/pivoice/internal/config"
	"github.com/iabetor/pivoice/internal/logger"
)

// textToVoicer 是腾讯云 TTS 客户端中用到的部分，便于测试替换。
type textToVoicer interface {
	TextToVoiceWithContext(ctx context.Context, request *tctts.TextToVoiceRequest) (*tctts.TextToVoiceResponse, error)
}

// TencentEngine 使用腾讯云 TTS 实现网络合成，返回 MP3 数据。
type TencentEngine struct {
	client     textToVoicer
	voiceType  int64
	voiceTypes map[string]int64 // 语言标签 -> 音色
	speed      float64
}

// NewTencentEngine 创建腾讯云 TTS 引擎。
func NewTencentEngine(cfg config.TencentConfig) (*TencentEngine, error) {
	if cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("腾讯云 TTS 需要 SecretID 和 SecretKey")
	}
	if cfg.VoiceType == 0 {
		cfg.VoiceType = 1001
	}
	if cfg.Region == "" {
		cfg.Region = "ap-guangzhou"
	}

	credential := common.NewCredential(cfg.SecretID, cfg.SecretKey)
	cpf := profile.NewClientProfile()
	cpf.HttpProfile.Endpoint = "tts.tencentcloudapi.com"

	client, err := tctts.NewClient(credential, cfg.Region, cpf)
	if err != nil {
		return nil, fmt.Errorf("创建腾讯云 TTS 客户端失败: %w", err)
	}

	logger.Infof("[tts] 腾讯云 TTS 引擎已初始化 (voice=%d, region=%s)", cfg.VoiceType, cfg.Region)
	return newTencentEngine(client, cfg), nil
}

func newTencentEngine(client textToVoicer, cfg config.TencentConfig) *TencentEngine {
	types := make(map[string]int64, len(cfg.VoiceTypes))
	for lang, vt := range cfg.VoiceTypes {
		types[strings.ToLower(lang)] = vt
	}
	speed := cfg.Speed
	if speed == 0 {
		speed = 1.0
	}
	return &TencentEngine{client: client, voiceType: cfg.VoiceType, voiceTypes: types, speed: speed}
}

// Name 返回引擎名。
func (e *TencentEngine) Name() string { return "tencent" }

// voiceTypeFor 按语言选择音色，没有配置时使用默认音色。
func (e *TencentEngine) voiceTypeFor(language string) int64 {
	lang := strings.ToLower(strings.TrimSpace(language))
	if vt, ok := e.voiceTypes[lang]; ok {
		return vt
	}
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		if vt, ok := e.voiceTypes[lang[:i]]; ok {
			return vt
		}
	}
	return e.voiceType
}

// Synthesize 合成文本。腾讯云返回 Base64 编码的 MP3。
func (e *TencentEngine) Synthesize(ctx context.Context, text, language string) (Encoded, error) {
	voiceType := e.voiceTypeFor(language)
	logger.Debugf("[tts] 腾讯云 TTS: 正在合成 %d 个字符，音色=%d", len([]rune(text)), voiceType)

	request := tctts.NewTextToVoiceRequest()
	request.Text = common.StringPtr(text)
	request.SessionId = common.StringPtr(uuid.NewString())
	request.VoiceType = common.Int64Ptr(voiceType)
	request.Codec = common.StringPtr("mp3")
	request.Speed = common.Float64Ptr(e.speed)
	request.Volume = common.Float64Ptr(5.0)

	response, err := e.client.TextToVoiceWithContext(ctx, request)
	if err != nil {
		return Encoded{}, fmt.Errorf("腾讯云 TTS 合成失败: %w", err)
	}
	if response == nil || response.Response == nil || response.Response.Audio == nil {
		return Encoded{}, fmt.Errorf("腾讯云 TTS: 未返回音频数据")
	}

	mp3Data, err := base64.StdEncoding.DecodeString(*response.Response.Audio)
	if err != nil {
		return Encoded{}, fmt.Errorf("Base64 解码失败: %w", err)
	}
	if len(mp3Data) == 0 {
		return Encoded{}, fmt.Errorf("腾讯云 TTS: 音频数据为空")
	}

	logger.Debugf("[tts] 腾讯云 TTS: 收到 %d 字节 MP3 数据", len(mp3Data))
	return Encoded{Data: mp3Data, Format: "mp3"}, nil
}

// NewRemoteEngine 按 tts.network.provider 创建网络引擎。
func NewRemoteEngine(cfg config.NetworkConfig) (RemoteEngine, error) {
	switch cfg.Provider {
	case "tencent":
		return NewTencentEngine(cfg.Tencent)
	case "edge", "":
		return NewEdgeEngine(cfg.Edge.Voices), nil
	default:
		return nil, fmt.Errorf("不支持的网络 TTS 引擎: %s", cfg.Provider)
	}
}
