package narrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tcross/narrator/internal/logger"
	"github.com/tcross/narrator/internal/speech"
	"github.com/tcross/narrator/internal/tts"
)

// Tempo 对 MP3 文件做变速处理，src 保持不变。
type Tempo interface {
	Apply(ctx context.Context, src, dst string, speed float64) error
}

// DispatcherConfig 合成调度器配置。
type DispatcherConfig struct {
	Catalog   *speech.VoiceCatalog
	Primary   tts.StreamEngine
	Secondary tts.FileEngine
	// Tempo 为 nil 时备用后端的非 1.0 语速总是降级。
	Tempo Tempo
	// StreamTimeout 主后端一次流式合成的最长时间，0 表示不限制。
	StreamTimeout time.Duration
}

// Dispatcher 根据请求选择后端并生成音频文件。无状态，可并发使用。
type Dispatcher struct {
	catalog       *speech.VoiceCatalog
	primary       tts.StreamEngine
	secondary     tts.FileEngine
	tempo         Tempo
	streamTimeout time.Duration
}

// NewDispatcher 创建合成调度器。
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Catalog == nil {
		cfg.Catalog = speech.NewVoiceCatalog(nil)
	}
	return &Dispatcher{
		catalog:       cfg.Catalog,
		primary:       cfg.Primary,
		secondary:     cfg.Secondary,
		tempo:         cfg.Tempo,
		streamTimeout: cfg.StreamTimeout,
	}
}

// Voice 返回请求将使用的音色；备用后端只区分语言，返回空字符串。
func (d *Dispatcher) Voice(req speech.Request) string {
	if req.Engine == speech.EngineGoogle {
		return ""
	}
	return d.catalog.Resolve(req.Language, req.Gender)
}

// Synthesize 为 req 生成音频并写入 outPath。
//
// 合成一旦开始就不受调用方取消的影响：在调用方 ctx 的基础上去掉取消信号，
// 建立独立的作用域，结束后释放。请求因此恰好执行一次。
//
// 返回 *DegradedError 时 outPath 上已有正常语速的音频；
// 其他错误时不保留任何文件。
func (d *Dispatcher) Synthesize(ctx context.Context, req speech.Request, outPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithoutCancel(ctx)

	switch req.Engine {
	case speech.EngineEdge:
		return d.synthesizeStream(ctx, req, outPath)
	case speech.EngineGoogle:
		return d.synthesizeFile(ctx, req, outPath)
	}
	return fmt.Errorf("%w: %q", speech.ErrInvalidEngine, req.Engine)
}

// synthesizeStream 调用主后端，边接收边写入音频块。
func (d *Dispatcher) synthesizeStream(ctx context.Context, req speech.Request, outPath string) error {
	if d.primary == nil {
		return fmt.Errorf("[narrator] %w: 主后端未配置", ErrSynthesisFailed)
	}

	var cancel context.CancelFunc
	if d.streamTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, d.streamTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	voice := d.catalog.Resolve(req.Language, req.Gender)
	rate := speech.RateString(req.Speed)

	chunks, err := d.primary.Stream(ctx, req.Text, voice, rate)
	if err != nil {
		return fmt.Errorf("[narrator] %s: %w: %w", d.primary.Name(), ErrSynthesisFailed, err)
	}

	var (
		f       *os.File
		written int64
	)
	fail := func(err error) error {
		if f != nil {
			f.Close()
			os.Remove(outPath)
		}
		return fmt.Errorf("[narrator] %s: %w: %w", d.primary.Name(), ErrSynthesisFailed, err)
	}

	for chunk := range chunks {
		if chunk.Kind == tts.ChunkError {
			if chunk.Err == nil {
				chunk.Err = errors.New("后端返回错误")
			}
			// 之后的数据不再可信，已写入的部分一并删除
			return fail(chunk.Err)
		}
		if chunk.Kind != tts.ChunkAudio || len(chunk.Data) == 0 {
			continue
		}
		// 收到第一个音频块才创建文件，后端失败时不留下空文件
		if f == nil {
			if f, err = os.Create(outPath); err != nil {
				f = nil
				return fail(err)
			}
		}
		n, err := f.Write(chunk.Data)
		written += int64(n)
		if err != nil {
			return fail(err)
		}
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if written == 0 {
		return fail(errors.New("未收到音频数据（音色不受支持或服务不可用）"))
	}
	if err := f.Close(); err != nil {
		f = nil
		os.Remove(outPath)
		return fmt.Errorf("[narrator] %s: %w: %w", d.primary.Name(), ErrSynthesisFailed, err)
	}

	logger.Debugf("[narrator] %s: 已写入 %d 字节 (voice=%s, rate=%s)", d.primary.Name(), written, voice, rate)
	return nil
}

// synthesizeFile 调用备用后端生成正常语速的音频，再按需变速。
func (d *Dispatcher) synthesizeFile(ctx context.Context, req speech.Request, outPath string) error {
	if d.secondary == nil {
		return fmt.Errorf("[narrator] %w: 备用后端未配置", ErrSynthesisFailed)
	}

	tmp := tempPath(outPath)
	if err := d.secondary.Save(ctx, req.Text, req.Language, tmp); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("[narrator] %s: %w: %w", d.secondary.Name(), ErrSynthesisFailed, err)
	}

	if speech.IsNormalSpeed(req.Speed) {
		return promote(tmp, outPath)
	}

	var err error
	if d.tempo == nil {
		err = errors.New("未配置变速处理")
	} else {
		err = d.tempo.Apply(ctx, tmp, outPath, req.Speed)
	}
	if err != nil {
		logger.Warnf("[narrator] 变速 %sx 失败，使用正常语速音频: %v", speech.FormatSpeed(req.Speed), err)
		if perr := promote(tmp, outPath); perr != nil {
			return perr
		}
		return &DegradedError{Path: outPath, Speed: req.Speed, Cause: err}
	}

	os.Remove(tmp)
	return nil
}

// promote 将临时文件移动到最终路径。
func promote(tmp, outPath string) error {
	if err := os.Rename(tmp, outPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("[narrator] 移动临时文件失败: %w", err)
	}
	return nil
}

// tempPath 返回 outPath 对应的临时文件路径：x.mp3 -> x.tmp.mp3。
func tempPath(outPath string) string {
	return strings.TrimSuffix(outPath, ".mp3") + ".tmp.mp3"
}
