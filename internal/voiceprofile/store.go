package voiceprofile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iabetor/pivoice/internal/audio"
	"github.com/iabetor/pivoice/internal/database"
	"github.com/iabetor/pivoice/internal/logger"
)

var (
	// ErrExists 表示同名的声音档案已存在。
	ErrExists = errors.New("声音档案已存在")
	// ErrNotFound 表示声音档案不存在。
	ErrNotFound = errors.New("声音档案不存在")
	// ErrInvalidAudio 表示参考音频未通过校验或规范化。
	ErrInvalidAudio = errors.New("参考音频无效")
)

// Profile 是一个声音档案，FilePath 指向规范化后的参考音频。
type Profile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	DisplayName  string    `json:"display_name"`
	Language     string    `json:"language"`
	FilePath     string    `json:"file_path"`
	OriginalFile string    `json:"original_file,omitempty"`
	Duration     float64   `json:"duration"`
	SampleRate   int       `json:"sample_rate"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store 使用 SQLite 持久化声音档案。
type Store struct {
	db *database.DB
}

// NewStore 创建档案存储，db 需已完成迁移。
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

const profileColumns = `id, name, display_name, language, file_path, original_file, duration, sample_rate, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (*Profile, error) {
	var p Profile
	var created int64
	if err := row.Scan(&p.ID, &p.Name, &p.DisplayName, &p.Language, &p.FilePath,
		&p.OriginalFile, &p.Duration, &p.SampleRate, &created); err != nil {
		return nil, err
	}
	p.CreatedAt = time.Unix(created, 0)
	return &p, nil
}

// Get 按 ID 查询档案，不存在时返回 (nil, nil)。
func (s *Store) Get(ctx context.Context, id string) (*Profile, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+profileColumns+" FROM voice_profiles WHERE id = ?", id)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询声音档案失败: %w", err)
	}
	return p, nil
}

// GetByName 按名称查询档案，不存在时返回 (nil, nil)。
func (s *Store) GetByName(ctx context.Context, name string) (*Profile, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+profileColumns+" FROM voice_profiles WHERE name = ?", name)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询声音档案失败: %w", err)
	}
	return p, nil
}

// Create 保存档案。ID 和 CreatedAt 为空时自动生成。
func (s *Store) Create(ctx context.Context, p *Profile) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return fmt.Errorf("档案名称不能为空")
	}
	if p.FilePath == "" {
		return fmt.Errorf("档案缺少音频文件路径")
	}
	existing, err := s.GetByName(ctx, p.Name)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrExists, p.Name)
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.DisplayName == "" {
		p.DisplayName = p.Name
	}
	if p.Language == "" {
		p.Language = "pt"
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO voice_profiles ("+profileColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		p.ID, p.Name, p.DisplayName, p.Language, p.FilePath, p.OriginalFile, p.Duration, p.SampleRate, p.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("保存声音档案失败: %w", err)
	}
	logger.Infof("[voiceprofile] 已创建声音档案: %s (%s)", p.Name, p.ID)
	return nil
}

// List 按创建时间从新到旧列出所有档案。
func (s *Store) List(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+profileColumns+" FROM voice_profiles ORDER BY created_at DESC, name")
	if err != nil {
		return nil, fmt.Errorf("列出声音档案失败: %w", err)
	}
	defer rows.Close()

	profiles := []Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("读取声音档案失败: %w", err)
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

// Delete 删除档案及其参考音频文件。文件删除失败只记录日志。
func (s *Store) Delete(ctx context.Context, id string) error {
	p, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM voice_profiles WHERE id = ?", id); err != nil {
		return fmt.Errorf("删除声音档案失败: %w", err)
	}
	for _, path := range []string{p.FilePath, p.OriginalFile} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Debugf("[voiceprofile] 删除音频文件失败（已忽略）: %v", err)
		}
	}
	logger.Infof("[voiceprofile] 已删除声音档案: %s", p.Name)
	return nil
}

// ImportRequest 描述一次参考音频导入。
type ImportRequest struct {
	Name        string
	DisplayName string
	Language    string
	Input       string // 原始音频路径
	KeepInput   bool   // false 时导入成功后删除原始文件
}

// Import 校验并规范化参考音频，写入 voicesDir，然后创建档案。
func (s *Store) Import(ctx context.Context, n *audio.Normalizer, voicesDir string, req ImportRequest) (*Profile, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("档案名称不能为空")
	}
	existing, err := s.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, name)
	}

	processed, ok := n.PrepareForTTS(req.Input, voicesDir)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAudio, req.Input)
	}

	info := n.Inspect(processed)
	p := &Profile{
		Name:        name,
		DisplayName: req.DisplayName,
		Language:    req.Language,
		FilePath:    processed,
		SampleRate:  info.SampleRate,
	}
	if info.Duration != nil {
		p.Duration = *info.Duration
	}
	if req.KeepInput {
		p.OriginalFile = req.Input
	}

	if err := s.Create(ctx, p); err != nil {
		if rmErr := os.Remove(processed); rmErr != nil {
			logger.Debugf("[voiceprofile] 清理规范化音频失败（已忽略）: %v", rmErr)
		}
		return nil, err
	}
	if !req.KeepInput {
		if err := os.Remove(req.Input); err != nil {
			logger.Debugf("[voiceprofile] 删除原始音频失败（已忽略）: %v", err)
		}
	}
	return p, nil
}
