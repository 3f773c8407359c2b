package tts

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/pp-group/edge-tts-go/biz/service/tts/edge"

	"github.com/iabetor/pivoice/internal/logger"
)

// EdgeEngine 使用微软 Edge TTS 实现网络合成。
// 按语言标签选择神经语音，返回 MP3 数据，解码交给调用方。
type EdgeEngine struct {
	voices map[string]string // 语言标签 -> 语音名
}

// NewEdgeEngine 创建 Edge TTS 引擎。voices 的键为语言标签，如 "pt"、"pt-BR"、"en"。
func NewEdgeEngine(voices map[string]string) *EdgeEngine {
	m := make(map[string]string, len(voices))
	for lang, voice := range voices {
		m[strings.ToLower(lang)] = voice
	}
	return &EdgeEngine{voices: m}
}

// Name 返回引擎名。
func (e *EdgeEngine) Name() string { return "edge" }

// voiceFor 先精确匹配语言标签，再退到主语言（pt-BR -> pt）。
func (e *EdgeEngine) voiceFor(language string) (string, error) {
	lang := strings.ToLower(strings.TrimSpace(language))
	if v, ok := e.voices[lang]; ok {
		return v, nil
	}
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		if v, ok := e.voices[lang[:i]]; ok {
			return v, nil
		}
	}
	return "", fmt.Errorf("edge-tts 没有语言 %q 的语音", language)
}

// Synthesize 合成文本，返回 MP3 数据。
func (e *EdgeEngine) Synthesize(ctx context.Context, text, language string) (Encoded, error) {
	voice, err := e.voiceFor(language)
	if err != nil {
		return Encoded{}, err
	}
	logger.Debugf("[tts] edge-tts: 正在合成 %d 个字符，语音=%s", len([]rune(text)), voice)

	comm, err := edge.NewCommunicate(text, edge.WithVoice(voice))
	if err != nil {
		return Encoded{}, fmt.Errorf("edge-tts 创建实例失败: %w", err)
	}

	ch, err := comm.Stream()
	if err != nil {
		return Encoded{}, fmt.Errorf("edge-tts 开始流式合成失败: %w", err)
	}

	data, err := collectAudio(ctx, ch)
	if err != nil {
		return Encoded{}, err
	}
	mp3Buf := bytes.NewBuffer(data)

	if mp3Buf.Len() == 0 {
		return Encoded{}, fmt.Errorf("edge-tts: 未收到音频数据")
	}
	logger.Debugf("[tts] edge-tts: 收到 %d 字节 MP3 数据", mp3Buf.Len())
	return Encoded{Data: mp3Buf.Bytes(), Format: "mp3"}, nil
}

// collectAudio 拼接 type=="audio" 条目的数据。
// ctx 取消时在后台排空 ch，生产者不会阻塞在发送上。
func collectAudio(ctx context.Context, ch <-chan map[string]interface{}) ([]byte, error) {
	var buf bytes.Buffer
	for msg := range ch {
		if err := ctx.Err(); err != nil {
			go func() {
				for range ch {
				}
			}()
			return nil, err
		}
		if msgType, ok := msg["type"].(string); ok && msgType == "audio" {
			if data, ok := msg["data"].([]byte); ok {
				buf.Write(data)
			}
		}
	}
	return buf.Bytes(), nil
}
