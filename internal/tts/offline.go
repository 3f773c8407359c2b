package tts

import (
	"fmt"

	"github.com/iabetor/pivoice/internal/config"
	"github.com/iabetor/pivoice/internal/logger"
)

// NewOfflineEngine 按 tts.offline.engine 创建离线引擎并应用语速和音量。
// 返回 (nil, nil) 表示配置为 none；返回错误时调用方应进入仅网络模式。
func NewOfflineEngine(cfg config.OfflineConfig) (OfflineEngine, error) {
	var (
		engine OfflineEngine
		err    error
	)
	switch cfg.Engine {
	case "none":
		logger.Info("[tts] 未启用离线引擎")
		return nil, nil
	case "sherpa", "":
		engine, err = NewSherpaEngine(cfg.Sherpa)
	case "piper":
		engine, err = NewPiperEngine(cfg.Piper)
	case "say":
		engine, err = NewSayEngine(cfg.Say.Voice)
	default:
		return nil, fmt.Errorf("不支持的离线 TTS 引擎: %s", cfg.Engine)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Rate > 0 {
		bestEffort("设置离线引擎语速", engine.SetRate(cfg.Rate))
	}
	if cfg.Volume > 0 {
		bestEffort("设置离线引擎音量", engine.SetVolume(cfg.Volume))
	}
	logger.Infof("[tts] 离线引擎已就绪: %s (rate=%d, volume=%.2f)", engine.Name(), cfg.Rate, cfg.Volume)
	return engine, nil
}
