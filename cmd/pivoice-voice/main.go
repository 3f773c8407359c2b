package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/iabetor/pivoice/internal/audio"
	"github.com/iabetor/pivoice/internal/config"
	"github.com/iabetor/pivoice/internal/logger"
	"github.com/iabetor/pivoice/internal/pipeline"
	"github.com/iabetor/pivoice/internal/vad"
	"github.com/iabetor/pivoice/internal/voiceprofile"
)

func main() {
	configPath := flag.String("config", "configs/pivoice.yaml", "配置文件路径")
	displayName := flag.String("display", "", "显示名称（默认同名称）")
	language := flag.String("lang", "pt", "档案语言")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

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

	p, err := pipeline.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化失败: %v\n", err)
		os.Exit(1)
	}
	defer p.Close()

	ctx := context.Background()
	req := voiceprofile.ImportRequest{DisplayName: *displayName, Language: *language}

	switch args[0] {
	case "register":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "用法: pivoice-voice register <名称> [秒数]")
			os.Exit(1)
		}
		seconds := int(cfg.Audio.MinDuration) + 5
		if len(args) > 2 {
			if seconds, err = strconv.Atoi(args[2]); err != nil || seconds <= 0 {
				fmt.Fprintf(os.Stderr, "无效的秒数: %s\n", args[2])
				os.Exit(1)
			}
		}
		req.Name = args[1]
		err = cmdRegister(ctx, p, req, time.Duration(seconds)*time.Second)
	case "import":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "用法: pivoice-voice import <名称> <音频文件>")
			os.Exit(1)
		}
		req.Name = args[1]
		req.Input = args[2]
		req.KeepInput = true
		err = cmdImport(ctx, p, req)
	case "list":
		err = cmdList(ctx, p)
	case "delete":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "用法: pivoice-voice delete <ID>")
			os.Exit(1)
		}
		err = p.Profiles.Delete(ctx, args[1])
		if err == nil {
			fmt.Printf("声音档案 %s 已删除。\n", args[1])
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s 失败: %v\n", args[0], err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "pivoice 声音档案管理工具")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "用法: pivoice-voice [-config <path>] [-display <名称>] [-lang pt] <command> [args]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "命令:")
	fmt.Fprintln(os.Stderr, "  register <名称> [秒数]   从麦克风录制参考音频并创建档案")
	fmt.Fprintln(os.Stderr, "  import <名称> <文件>     导入已有音频文件（原文件保留）")
	fmt.Fprintln(os.Stderr, "  list                    列出所有声音档案")
	fmt.Fprintln(os.Stderr, "  delete <ID>             删除档案及其音频")
}

func cmdRegister(ctx context.Context, p *pipeline.Pipeline, req voiceprofile.ImportRequest, d time.Duration) error {
	cfg := p.Config

	capture, err := audio.NewCapture(cfg.Audio.SampleRate, 512)
	if err != nil {
		return err
	}
	defer capture.Close()

	fmt.Printf("即将为 [%s] 录制 %v 的参考音频（至少需要 %.0f 秒有效语音）。\n", req.Name, d, cfg.Audio.MinDuration)
	fmt.Print("按回车开始录制...")
	fmt.Scanln()
	fmt.Printf("  录制中（%v）...\n", d)

	recorded, err := capture.Record(ctx, d)
	if err != nil {
		return err
	}
	fmt.Printf("  已录制 %.1f 秒\n", recorded.Seconds())

	if cfg.Audio.VADModel != "" {
		trimmer, err := vad.NewTrimmer(cfg.Audio.VADModel, cfg.Audio.VADThreshold, cfg.Audio.VADMinSilenceMs)
		if err != nil {
			return err
		}
		trimmed, err := trimmer.Trim(recorded)
		trimmer.Close()
		if err != nil {
			return err
		}
		recorded = trimmed
		fmt.Printf("  去除静音后 %.1f 秒\n", recorded.Seconds())
	}

	path := filepath.Join(cfg.Storage.VoicesDir, "record_"+uuid.NewString()+".wav")
	if err := audio.EncodeWAV(path, recorded); err != nil {
		return err
	}
	req.Input = path
	return cmdImport(ctx, p, req)
}

func cmdImport(ctx context.Context, p *pipeline.Pipeline, req voiceprofile.ImportRequest) error {
	profile, err := p.Profiles.Import(ctx, p.Normalizer, p.Config.Storage.VoicesDir, req)
	if err != nil {
		return err
	}
	fmt.Printf("声音档案已创建: %s (%s, %.1f 秒, %d Hz)\n", profile.ID, profile.Name, profile.Duration, profile.SampleRate)
	return nil
}

func cmdList(ctx context.Context, p *pipeline.Pipeline) error {
	profiles, err := p.Profiles.List(ctx)
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		fmt.Println("当前没有声音档案。")
		return nil
	}

	fmt.Printf("共 %d 个声音档案:\n", len(profiles))
	fmt.Println("  ID                                   | 名称         | 时长   | 创建时间")
	fmt.Println("  -------------------------------------+--------------+--------+-----------------")
	for _, pr := range profiles {
		fmt.Printf("  %-37s| %-13s| %5.1fs | %s\n", pr.ID, pr.DisplayName, pr.Duration, pr.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}
