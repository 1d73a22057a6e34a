package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tcross/narrator/internal/database"
	"github.com/tcross/narrator/internal/speech"
)

// timeLayout 固定小数位数，保证按字符串排序即按时间排序。
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound 表示记录不存在。
var ErrNotFound = errors.New("narration not found")

// Status 是一次生成的结果。
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
)

// Record 是一次生成的记录。
type Record struct {
	ID        string          `json:"id"`
	Text      string          `json:"text"`
	Language  speech.Language `json:"language"`
	Gender    speech.Gender   `json:"gender"`
	Speed     float64         `json:"speed"`
	Engine    speech.Engine   `json:"engine"`
	Voice     string          `json:"voice,omitempty"`
	File      string          `json:"file,omitempty"`
	Size      int64           `json:"size"`
	Duration  time.Duration   `json:"duration"`
	Status    Status          `json:"status"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store 将生成记录保存在 SQLite 中。
type Store struct {
	db *database.DB
}

// NewStore 创建记录存储并执行迁移。
func NewStore(db *database.DB) (*Store, error) {
	if err := db.Migrate(); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Add 保存一条记录。ID 和 CreatedAt 为空时自动填充。
func (s *Store) Add(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO narrations
		(id, text, language, gender, speed, engine, voice, file, size, duration_ms, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Text, string(rec.Language), string(rec.Gender), rec.Speed, string(rec.Engine),
		rec.Voice, rec.File, rec.Size, rec.Duration.Milliseconds(), string(rec.Status), rec.Error,
		rec.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("[history] 保存记录失败: %w", err)
	}
	return nil
}

// List 按时间倒序返回最近的 limit 条记录，limit <= 0 时默认 50 条。
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT
		id, text, language, gender, speed, engine, voice, file, size, duration_ms, status, error, created_at
		FROM narrations ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("[history] 查询记录失败: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Get 按 ID 查询记录。
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT
		id, text, language, gender, speed, engine, voice, file, size, duration_ms, status, error, created_at
		FROM narrations WHERE id = ?`, id)
	rec, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(sc scanner) (*Record, error) {
	var (
		rec                          Record
		lang, gender, engine, status string
		durationMs                   int64
		createdAt                    string
	)
	err := sc.Scan(&rec.ID, &rec.Text, &lang, &gender, &rec.Speed, &engine,
		&rec.Voice, &rec.File, &rec.Size, &durationMs, &status, &rec.Error, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("[history] 读取记录失败: %w", err)
	}
	rec.Language = speech.Language(lang)
	rec.Gender = speech.Gender(gender)
	rec.Engine = speech.Engine(engine)
	rec.Status = Status(status)
	rec.Duration = time.Duration(durationMs) * time.Millisecond
	if t, err := time.Parse(timeLayout, createdAt); err == nil {
		rec.CreatedAt = t.Local()
	}
	return &rec, nil
}
