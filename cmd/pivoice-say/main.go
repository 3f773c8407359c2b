package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/iabetor/pivoice/internal/audio"
	"github.com/iabetor/pivoice/internal/bus"
	"github.com/iabetor/pivoice/internal/config"
	"github.com/iabetor/pivoice/internal/logger"
	"github.com/iabetor/pivoice/internal/pipeline"
	"github.com/iabetor/pivoice/internal/tts"
)

func main() {
	configPath := flag.String("config", "configs/pivoice.yaml", "配置文件路径")
	voiceID := flag.String("voice", "", "语音 ID（默认使用当前语音）")
	language := flag.String("lang", "pt", "文本语言")
	output := flag.String("o", "", "输出 WAV 路径（默认写入输出目录）")
	play := flag.Bool("play", false, "合成后通过扬声器播放")
	list := flag.Bool("list", false, "列出可用语音")
	natsURL := flag.String("nats", "", "通过 NATS 提交任务到运行中的服务，而不是本地合成")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	text := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if !*list && text == "" {
		fmt.Fprintln(os.Stderr, "用法: pivoice-say [-config path] [-voice id] [-lang pt] [-o out.wav] [-play] [-nats url] <文本>")
		fmt.Fprintln(os.Stderr, "      pivoice-say -list")
		os.Exit(1)
	}

	var path string
	if *natsURL != "" && !*list {
		path, err = submitRemote(ctx, *natsURL, cfg.Bus.Subject, bus.Request{
			Text:     text,
			VoiceID:  *voiceID,
			Language: *language,
		})
	} else {
		path, err = synthesizeLocal(ctx, cfg, *list, text, *voiceID, *language, *output)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "合成失败: %v\n", err)
		os.Exit(1)
	}
	if path == "" {
		return
	}
	fmt.Println(path)

	if *play {
		if err := playFile(ctx, path); err != nil {
			fmt.Fprintf(os.Stderr, "播放失败: %v\n", err)
			os.Exit(1)
		}
	}
}

func synthesizeLocal(ctx context.Context, cfg *config.Config, list bool, text, voiceID, language, output string) (string, error) {
	p, err := pipeline.New(cfg)
	if err != nil {
		return "", err
	}
	defer p.Close()

	if list {
		current := p.Synth.CurrentVoice()
		for _, v := range p.Synth.ListVoices() {
			mark := " "
			if v.ID == current {
				mark = "*"
			}
			fmt.Printf("%s %-12s %-8s %-6s %s\n", mark, v.ID, v.Kind, v.Language, v.Name)
		}
		return "", nil
	}

	return p.Synth.Synthesize(ctx, tts.Request{
		Text:       tts.PreprocessText(text, language),
		VoiceID:    voiceID,
		Language:   language,
		OutputPath: output,
	})
}

func submitRemote(ctx context.Context, url, subject string, req bus.Request) (string, error) {
	nc, err := bus.Connect(url)
	if err != nil {
		return "", err
	}
	defer nc.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	return bus.Submit(ctx, nc, subject, req)
}

func playFile(ctx context.Context, path string) error {
	s, err := audio.Decode(path)
	if err != nil {
		return err
	}
	player, err := audio.NewPlayer()
	if err != nil {
		return err
	}
	defer player.Close()
	return player.Play(ctx, s)
}
