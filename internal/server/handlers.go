package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/iabetor/pivoice/internal/tts"
	"github.com/iabetor/pivoice/internal/voiceprofile"
)

const rootPage = `<!DOCTYPE html>
<html>
<head>
    <title>pivoice</title>
    <meta http-equiv="refresh" content="0; url=/static/index.html">
</head>
<body>
    <p>Redirecionando para a interface...</p>
    <p><a href="/static/index.html">Clique aqui se não for redirecionado automaticamente</a></p>
</body>
</html>
`

func (s *Server) handleRoot(c *fiber.Ctx) error {
	c.Type("html", "utf-8")
	return c.SendString(rootPage)
}

// formatUptime 输出 "Xd Yh Zm"。
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	info := s.synth.ModelInfo()
	return c.JSON(fiber.Map{
		"status":           "healthy",
		"version":          Version,
		"timestamp":        time.Now().UTC(),
		"tts_model_loaded": info.Loaded,
		"tts_model_id":     info.ModelID,
		"device":           info.Device,
		"uptime":           formatUptime(time.Since(s.started)),
		"offline_engine":   s.synth.HasOffline(),
		"audio_decode":     s.normalizer.Capabilities().Decode,
	})
}

func (s *Server) outputFormatAllowed(format string) bool {
	for _, f := range s.cfg.Server.OutputFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (s *Server) handleTTS(c *fiber.Ctx) error {
	start := time.Now()

	text := c.FormValue("text")
	language := c.FormValue("language", "pt")
	format := strings.ToLower(c.FormValue("format", "wav"))
	voiceID := c.FormValue("voice_id")

	if strings.TrimSpace(text) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Texto não pode estar vazio")
	}
	if n := utf8.RuneCountInString(text); n > s.cfg.Server.MaxTextLength {
		return fiber.NewError(fiber.StatusBadRequest,
			fmt.Sprintf("Texto muito longo. Máximo: %d caracteres", s.cfg.Server.MaxTextLength))
	}
	if !s.outputFormatAllowed(format) {
		return fiber.NewError(fiber.StatusBadRequest,
			fmt.Sprintf("Formato não suportado. Use: %s", strings.Join(s.cfg.Server.OutputFormats, ", ")))
	}

	processed := tts.PreprocessText(text, language)
	if processed == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Texto não contém caracteres sintetizáveis")
	}

	if voiceID != "" {
		profile, err := s.profiles.Get(c.UserContext(), voiceID)
		switch {
		case err != nil:
			s.log.Warnf("[server] 查询声音档案失败: %v", err)
		case profile != nil:
			// 克隆不受支持，档案只作为参考记录
			s.log.Infof("[server] 使用声音档案: %s (%s)", profile.DisplayName, profile.FilePath)
		default:
			s.log.Debugf("[server] 声音档案不存在: %s", voiceID)
		}
	}

	output := filepath.Join(s.cfg.Storage.OutputDir, "tts_"+uuid.NewString()+"."+format)
	path, err := s.synth.Synthesize(c.UserContext(), tts.Request{
		Text:       processed,
		VoiceID:    voiceID,
		Language:   language,
		OutputPath: output,
	})
	if err != nil {
		if errors.Is(err, tts.ErrEmptyText) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return fiber.NewError(fiber.StatusInternalServerError, "Falha na síntese de áudio: "+err.Error())
	}

	elapsed := float64(time.Since(start).Microseconds()) / 1000
	if voiceID == "" {
		voiceID = "default"
	}
	c.Set("X-Processing-Time", strconv.FormatFloat(elapsed, 'f', 2, 64))
	c.Set("X-Text-Length", strconv.Itoa(utf8.RuneCountInString(text)))
	c.Set("X-Voice-ID", voiceID)
	return c.Download(path, "tts_"+time.Now().Format("20060102_150405")+"."+format)
}

func (s *Server) handleAvailableVoices(c *fiber.Ctx) error {
	voices := s.synth.ListVoices()
	return c.JSON(fiber.Map{
		"voices":              voices,
		"total":               len(voices),
		"current_voice":       s.synth.CurrentVoice(),
		"supported_languages": s.synth.SupportedLanguages(),
	})
}

func (s *Server) handleSelectVoice(c *fiber.Ctx) error {
	var body struct {
		VoiceID string `json:"voice_id" form:"voice_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "corpo da requisição inválido")
	}
	if body.VoiceID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "voice_id é obrigatório")
	}
	if !s.synth.SelectVoice(body.VoiceID) {
		return fiber.NewError(fiber.StatusNotFound, "Voz não encontrada: "+body.VoiceID)
	}
	return c.JSON(fiber.Map{"voice_id": body.VoiceID, "selected": true})
}

// saveUpload 把上传文件保存为 dir 下唯一命名的文件。
func (s *Server) saveUpload(c *fiber.Ctx, dir string) (string, string, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return "", "", fiber.NewError(fiber.StatusBadRequest, "arquivo de áudio é obrigatório")
	}
	if !s.normalizer.Supported(fh.Filename) {
		return "", "", fiber.NewError(fiber.StatusBadRequest,
			fmt.Sprintf("Formato não suportado: %s", filepath.Ext(fh.Filename)))
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", err
	}
	path := filepath.Join(dir, "upload_"+uuid.NewString()+strings.ToLower(filepath.Ext(fh.Filename)))
	if err := c.SaveFile(fh, path); err != nil {
		return "", "", fmt.Errorf("保存上传文件失败: %w", err)
	}
	return path, fh.Filename, nil
}

func (s *Server) handleCreateProfile(c *fiber.Ctx) error {
	name := strings.TrimSpace(c.FormValue("name"))
	if name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "name é obrigatório")
	}

	upload, _, err := s.saveUpload(c, s.cfg.Storage.VoicesDir)
	if err != nil {
		return err
	}

	profile, err := s.profiles.Import(c.UserContext(), s.normalizer, s.cfg.Storage.VoicesDir, voiceprofile.ImportRequest{
		Name:        name,
		DisplayName: c.FormValue("display_name"),
		Language:    c.FormValue("language", "pt"),
		Input:       upload,
	})
	if err != nil {
		if rmErr := os.Remove(upload); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			s.log.Debugf("[server] 删除上传文件失败（已忽略）: %v", rmErr)
		}
		switch {
		case errors.Is(err, voiceprofile.ErrExists):
			return fiber.NewError(fiber.StatusConflict, err.Error())
		case errors.Is(err, voiceprofile.ErrInvalidAudio):
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		default:
			return err
		}
	}
	return c.Status(fiber.StatusCreated).JSON(profile)
}

func (s *Server) handleListProfiles(c *fiber.Ctx) error {
	profiles, err := s.profiles.List(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"profiles": profiles, "total": len(profiles)})
}

func (s *Server) handleGetProfile(c *fiber.Ctx) error {
	profile, err := s.profiles.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if profile == nil {
		return fiber.NewError(fiber.StatusNotFound, "Perfil de voz não encontrado")
	}
	return c.JSON(profile)
}

func (s *Server) handleDeleteProfile(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.profiles.Delete(c.UserContext(), id); err != nil {
		if errors.Is(err, voiceprofile.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "Perfil de voz não encontrado")
		}
		return err
	}
	return c.JSON(fiber.Map{"deleted": id})
}

func (s *Server) handleInspect(c *fiber.Ctx) error {
	upload, original, err := s.saveUpload(c, os.TempDir())
	if err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(upload); err != nil {
			s.log.Debugf("[server] 删除临时文件失败（已忽略）: %v", err)
		}
	}()

	info := s.normalizer.Inspect(upload)
	info.FilePath = original
	return c.JSON(info)
}
