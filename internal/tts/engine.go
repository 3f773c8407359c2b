package tts

import (
	"context"
	"errors"
	"fmt"

	"github.com/iabetor/pivoice/internal/logger"
)

// ErrEmptyText 表示去除空白后文本为空。
var ErrEmptyText = errors.New("文本不能为空")

// Kind 是合成后端的类型。只有离线和网络两种，分派时必须穷举。
type Kind int

const (
	KindOffline Kind = iota + 1
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindOffline:
		return "offline"
	case KindNetwork:
		return "network"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// MarshalText 让 Kind 在 JSON 中输出为字符串。
func (k Kind) MarshalText() ([]byte, error) {
	switch k {
	case KindOffline, KindNetwork:
		return []byte(k.String()), nil
	default:
		return nil, fmt.Errorf("未知的引擎类型: %d", int(k))
	}
}

// Voice 是注册表中的一个可用语音。
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Kind     Kind   `json:"engine"`
	Language string `json:"lang"`
	// Handle 非空时表示绑定到离线引擎的某个系统语音。
	Handle string `json:"-"`
}

// SystemVoice 是离线引擎枚举出的系统语音。
type SystemVoice struct {
	Handle string
	Name   string
}

// Encoded 是网络引擎返回的编码音频。
type Encoded struct {
	Data   []byte
	Format string // mp3, wav
}

// RemoteEngine 是无状态的网络合成服务。可以并发调用。
type RemoteEngine interface {
	Name() string
	Synthesize(ctx context.Context, text, language string) (Encoded, error)
}

// OfflineEngine 是有状态的本地合成引擎。
// 实现不保证并发安全，调用方负责串行化。
type OfflineEngine interface {
	Name() string
	Voices() ([]SystemVoice, error)
	SetRate(rate int) error
	SetVolume(volume float64) error
	SetVoice(handle string) error
	// SynthesizeToFile 阻塞直到音频完整写入 path（WAV）。
	SynthesizeToFile(ctx context.Context, text, path string) error
	Close()
}

// BackendError 表示某个后端未能产生音频。
type BackendError struct {
	Voice string
	Kind  Kind
	Err   error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s 引擎合成失败 (voice=%s): %v", e.Kind, e.Voice, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// bestEffort 记录尽力而为操作的失败。err 被有意丢弃，不影响调用结果。
func bestEffort(op string, err error) {
	if err != nil {
		logger.Debugf("[tts] %s失败（已忽略）: %v", op, err)
	}
}
