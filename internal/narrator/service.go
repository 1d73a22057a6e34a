package narrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tcross/narrator/internal/audio"
	"github.com/tcross/narrator/internal/history"
	"github.com/tcross/narrator/internal/logger"
	"github.com/tcross/narrator/internal/speech"
)

// Recorder 保存生成记录。
type Recorder interface {
	Add(ctx context.Context, rec history.Record) error
}

// Result 是一次生成得到的音频文件。
type Result struct {
	ID       string         `json:"id"`
	FileName string         `json:"file_name"`
	Path     string         `json:"path"`
	Request  speech.Request `json:"-"`
	Voice    string         `json:"voice,omitempty"`
	Size     int64          `json:"size"`
	Duration time.Duration  `json:"duration"`
	Degraded bool           `json:"degraded"`
}

// Audio 读取生成的音频内容。
func (r *Result) Audio() ([]byte, error) {
	return os.ReadFile(r.Path)
}

// ServiceConfig 生成服务配置。
type ServiceConfig struct {
	Dispatcher *Dispatcher
	OutputDir  string
	FilePrefix string
	// Recorder 为 nil 时不记录历史。
	Recorder Recorder
	// Now 用于生成文件名中的时间戳，默认 time.Now。
	Now func() time.Time
}

// Service 处理一次用户操作：校验输入、确定文件名、调用合成并记录结果。
type Service struct {
	dispatcher *Dispatcher
	outputDir  string
	prefix     string
	recorder   Recorder
	now        func() time.Time
}

// NewService 创建生成服务。
func NewService(cfg ServiceConfig) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "outputs"
	}
	return &Service{
		dispatcher: cfg.Dispatcher,
		outputDir:  cfg.OutputDir,
		prefix:     cfg.FilePrefix,
		recorder:   cfg.Recorder,
		now:        cfg.Now,
	}
}

// OutputDir 返回输出目录。
func (s *Service) OutputDir() string {
	return s.outputDir
}

// Generate 为 req 生成 MP3 文件。
//
// 输入不合法时在调用任何后端之前返回错误。
// 变速降级时同时返回结果和 *DegradedError；
// 其他失败只要磁盘上留有文件，也会连同错误一起返回结果。
func (s *Service) Generate(ctx context.Context, req speech.Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("[narrator] 创建输出目录失败: %w", err)
	}

	name, err := s.reserve(req)
	if err != nil {
		return nil, err
	}
	res := &Result{
		ID:       uuid.NewString(),
		FileName: name,
		Path:     filepath.Join(s.outputDir, name),
		Request:  req,
		Voice:    s.dispatcher.Voice(req),
	}

	start := time.Now()
	logger.Infof("[narrator] 开始生成 %s (engine=%s, %d 个字符)", name, req.Engine, len([]rune(req.Text)))

	err = s.dispatcher.Synthesize(ctx, req, res.Path)
	if err != nil && !IsDegraded(err) {
		release(res.Path)
	}
	exists := s.inspect(res)

	status := history.StatusOK
	switch {
	case err == nil:
		logger.Infof("[narrator] 生成完成 %s (%d 字节, 时长 %v, 耗时 %v)", name, res.Size, res.Duration, time.Since(start))
	case IsDegraded(err):
		status = history.StatusDegraded
		res.Degraded = true
	default:
		status = history.StatusFailed
		logger.Errorf("[narrator] 生成失败 %s: %v", name, err)
	}

	s.record(ctx, res, status, err)

	if err != nil && !exists {
		return nil, err
	}
	return res, err
}

// maxNameAttempts 是同一秒内同参数请求的文件名序号上限。
const maxNameAttempts = 1000

// reserve 以 O_EXCL 创建空文件占用文件名，并发请求不会得到同一个路径。
// 同一秒内参数相同的请求依次追加 _2、_3 等序号。
func (s *Service) reserve(req speech.Request) (string, error) {
	name := speech.FileName(s.prefix, req, s.now())
	base := strings.TrimSuffix(name, ".mp3")
	for i := 1; i <= maxNameAttempts; i++ {
		candidate := name
		if i > 1 {
			candidate = fmt.Sprintf("%s_%d.mp3", base, i)
		}
		f, err := os.OpenFile(filepath.Join(s.outputDir, candidate), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			f.Close()
			return candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("[narrator] 创建输出文件失败: %w", err)
		}
	}
	return "", fmt.Errorf("[narrator] 文件名 %s 的序号已用尽", name)
}

// release 删除合成失败后仍为空的占位文件。
func release(path string) {
	if info, err := os.Stat(path); err == nil && info.Size() == 0 {
		os.Remove(path)
	}
}

// inspect 填充文件大小和时长，返回文件是否存在。
func (s *Service) inspect(res *Result) bool {
	info, err := os.Stat(res.Path)
	if err != nil {
		return false
	}
	res.Size = info.Size()
	if d, err := audio.MP3Duration(res.Path); err == nil {
		res.Duration = d
	} else {
		logger.Debugf("[narrator] 无法读取时长 %s: %v", res.FileName, err)
	}
	return true
}

func (s *Service) record(ctx context.Context, res *Result, status history.Status, err error) {
	if s.recorder == nil {
		return
	}
	rec := history.Record{
		ID:       res.ID,
		Text:     res.Request.Text,
		Language: res.Request.Language,
		Gender:   res.Request.Gender,
		Speed:    res.Request.Speed,
		Engine:   res.Request.Engine,
		Voice:    res.Voice,
		Size:     res.Size,
		Duration: res.Duration,
		Status:   status,
	}
	if res.Size > 0 {
		rec.File = res.FileName
	}
	if err != nil {
		rec.Error = err.Error()
	}
	// 记录失败不影响本次生成结果
	if rerr := s.recorder.Add(context.WithoutCancel(ctx), rec); rerr != nil {
		logger.Warnf("[narrator] 保存生成记录失败: %v", rerr)
	}
}
