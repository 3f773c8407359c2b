package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iabetor/pivoice/internal/bus"
	"github.com/iabetor/pivoice/internal/config"
	"github.com/iabetor/pivoice/internal/logger"
	"github.com/iabetor/pivoice/internal/pipeline"
	"github.com/iabetor/pivoice/internal/server"
)

func main() {
	configPath := flag.String("config", "configs/pivoice.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infof("[main] pivoice 启动中 (log_level=%s)", cfg.Log.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听系统信号，优雅关闭
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infof("[main] 收到信号 %v，正在关闭...", sig)
		cancel()
	}()

	p, err := pipeline.New(cfg)
	if err != nil {
		logger.Errorf("[main] 创建流水线失败: %v", err)
		os.Exit(1)
	}
	defer p.Close()

	if cfg.Bus.Enabled {
		stop, err := startWorker(ctx, cfg, p)
		if err != nil {
			logger.Errorf("[main] 启动合成 worker 失败: %v", err)
			os.Exit(1)
		}
		defer stop()
	}

	srv := server.New(server.Deps{
		Config:     cfg,
		Synth:      p.Synth,
		Profiles:   p.Profiles,
		Normalizer: p.Normalizer,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Listen() }()

	select {
	case <-ctx.Done():
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("[main] HTTP 服务关闭出错: %v", err)
		}
	case err := <-errCh:
		if err != nil {
			logger.Errorf("[main] HTTP 服务出错: %v", err)
			os.Exit(1)
		}
	}

	logger.Info("[main] pivoice 已停止")
}

// startWorker 连接 NATS（必要时先启动内嵌服务）并开始消费合成任务。
func startWorker(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline) (func(), error) {
	url := cfg.Bus.URL
	var shutdownEmbedded func()
	if cfg.Bus.Embedded {
		ns, err := bus.StartEmbedded(cfg.Bus)
		if err != nil {
			return nil, err
		}
		url = ns.ClientURL()
		shutdownEmbedded = ns.Shutdown
	}

	nc, err := bus.Connect(url)
	if err != nil {
		if shutdownEmbedded != nil {
			shutdownEmbedded()
		}
		return nil, err
	}

	w := bus.NewWorker(nc, p.Synth, cfg.Bus.Subject, cfg.Bus.Queue)
	if err := w.Start(ctx); err != nil {
		nc.Close()
		if shutdownEmbedded != nil {
			shutdownEmbedded()
		}
		return nil, err
	}

	return func() {
		if err := w.Stop(); err != nil {
			logger.Warnf("[main] 停止 worker 出错: %v", err)
		}
		nc.Close()
		if shutdownEmbedded != nil {
			shutdownEmbedded()
		}
	}, nil
}
