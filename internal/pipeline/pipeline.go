package pipeline

import (
	"fmt"

	"github.com/iabetor/pivoice/internal/audio"
	"github.com/iabetor/pivoice/internal/config"
	"github.com/iabetor/pivoice/internal/database"
	"github.com/iabetor/pivoice/internal/logger"
	"github.com/iabetor/pivoice/internal/tts"
	"github.com/iabetor/pivoice/internal/voiceprofile"
)

// Pipeline 持有合成与规范化流水线的全部组件，供服务和命令行工具共用。
type Pipeline struct {
	Config     *config.Config
	DB         *database.DB
	Profiles   *voiceprofile.Store
	Normalizer *audio.Normalizer
	Synth      *tts.Synthesizer

	offline tts.OfflineEngine
}

// New 按配置创建流水线。
// 离线引擎初始化失败只降级为仅网络模式；网络引擎和数据库失败则返回错误。
func New(cfg *config.Config) (*Pipeline, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	p := &Pipeline{Config: cfg}

	db, err := database.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	p.DB = db
	p.Profiles = voiceprofile.NewStore(db)

	// 参考音频规范化
	p.Normalizer = audio.NewNormalizer(audio.NormalizerConfig{
		MinDuration:      cfg.Audio.MinDuration,
		MaxDuration:      cfg.Audio.MaxDuration,
		SampleRate:       cfg.Audio.SampleRate,
		Channels:         cfg.Audio.Channels,
		SupportedFormats: cfg.Audio.SupportedFormats,
	}, audio.DetectCapabilities(cfg.Audio.DisableDecode))

	// 离线引擎（可选）
	p.offline, err = tts.NewOfflineEngine(cfg.TTS.Offline)
	if err != nil {
		logger.Warnf("[pipeline] 离线 TTS 不可用，进入仅网络模式: %v", err)
		p.offline = nil
	}

	// 网络引擎
	remote, err := tts.NewRemoteEngine(cfg.TTS.Network)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("初始化网络 TTS 失败: %w", err)
	}

	p.Synth, err = tts.New(tts.Options{
		Offline:         p.offline,
		Remote:          remote,
		OutputDir:       cfg.Storage.OutputDir,
		SampleRate:      cfg.TTS.SampleRate,
		PrimaryLanguage: cfg.TTS.PrimaryLanguage,
	})
	if err != nil {
		p.Close()
		return nil, err
	}

	logger.Infof("[pipeline] 初始化完成 (offline=%v, network=%s, decode=%v)",
		p.offline != nil, remote.Name(), p.Normalizer.Capabilities().Decode)
	return p, nil
}

// Close 释放离线引擎和数据库。
func (p *Pipeline) Close() {
	if p.offline != nil {
		p.offline.Close()
		p.offline = nil
	}
	if p.DB != nil {
		if err := p.DB.Close(); err != nil {
			logger.Debugf("[pipeline] 关闭数据库失败（已忽略）: %v", err)
		}
		p.DB = nil
	}
}
