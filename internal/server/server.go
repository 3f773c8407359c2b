package server

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/iabetor/pivoice/internal/audio"
	"github.com/iabetor/pivoice/internal/config"
	"github.com/iabetor/pivoice/internal/logger"
	"github.com/iabetor/pivoice/internal/tts"
	"github.com/iabetor/pivoice/internal/voiceprofile"
)

// Version 是对外报告的服务版本。
const Version = "1.0.0"

// Deps 是 Server 依赖的组件，全部由调用方创建并持有。
type Deps struct {
	Config     *config.Config
	Synth      *tts.Synthesizer
	Profiles   *voiceprofile.Store
	Normalizer *audio.Normalizer
}

// Server 是 pivoice 的 HTTP 接口。
type Server struct {
	app        *fiber.App
	cfg        *config.Config
	synth      *tts.Synthesizer
	profiles   *voiceprofile.Store
	normalizer *audio.Normalizer
	log        *zap.SugaredLogger
	started    time.Time
}

// New 创建 Server 并注册路由。
func New(d Deps) *Server {
	s := &Server{
		cfg:        d.Config,
		synth:      d.Synth,
		profiles:   d.Profiles,
		normalizer: d.Normalizer,
		log:        logger.Named("server"),
		started:    time.Now(),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "pivoice",
		BodyLimit:             d.Config.Server.UploadMaxSize,
		DisableStartupMessage: true,
		// 请求中的字符串会被合成器和档案库保存，需要独立于 fasthttp 缓冲区
		Immutable: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(recover.New())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:  strings.Join(d.Config.Server.AllowedOrigins, ","),
		AllowMethods:  "GET,POST,DELETE,OPTIONS",
		AllowHeaders:  "*",
		ExposeHeaders: "X-Processing-Time,X-Text-Length,X-Voice-ID",
	}))
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/", s.handleRoot)
	s.app.Static("/static", s.cfg.Storage.StaticDir)
	s.app.Get("/health", s.handleHealth)

	v1 := s.app.Group("/v1")
	v1.Post("/tts", s.handleTTS)
	v1.Get("/voices/available", s.handleAvailableVoices)
	v1.Post("/voices/select", s.handleSelectVoice)
	v1.Post("/voices", s.handleCreateProfile)
	v1.Get("/voices", s.handleListProfiles)
	v1.Get("/voices/:id", s.handleGetProfile)
	v1.Delete("/voices/:id", s.handleDeleteProfile)
	v1.Post("/audio/inspect", s.handleInspect)
}

// App 返回底层 fiber 应用，测试中用 app.Test 发请求。
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen 在配置的地址上监听，阻塞直到出错或 Shutdown。
func (s *Server) Listen() error {
	addr := s.cfg.Server.Addr()
	s.log.Infof("[server] 监听 http://%s", addr)
	return s.app.Listen(addr)
}

// Shutdown 优雅关闭，等待进行中的请求完成。
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// handleError 把错误统一输出为 {"detail": "..."}。
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.log.Errorf("[server] %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(code).JSON(fiber.Map{"detail": err.Error()})
}
