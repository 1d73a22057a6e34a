package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/tcross/narrator/internal/logger"
	"github.com/tcross/narrator/internal/speech"
)

const googleUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// GoogleEngine 调用 Google 翻译的 translate_tts 接口合成语音。
// 只有正常语速，长文本按片段请求后拼接成一个 MP3 文件。
type GoogleEngine struct {
	baseURL string
	client  *http.Client
}

// GoogleConfig Google 翻译 TTS 配置。
type GoogleConfig struct {
	BaseURL string
	Timeout time.Duration
}

// NewGoogleEngine 创建 Google 翻译 TTS 引擎。
func NewGoogleEngine(cfg GoogleConfig) *GoogleEngine {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://translate.google.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &GoogleEngine{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Name 实现 FileEngine 接口。
func (g *GoogleEngine) Name() string { return "gtts" }

// Save 实现 FileEngine 接口。
func (g *GoogleEngine) Save(ctx context.Context, text string, lang speech.Language, path string) error {
	segments := splitText(text, maxSegmentRunes)
	if len(segments) == 0 {
		return fmt.Errorf("[tts] gtts: %w", speech.ErrEmptyText)
	}

	logger.Debugf("[tts] gtts: 正在合成 %d 个字符，语言=%s，分 %d 段", len([]rune(text)), lang, len(segments))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("[tts] gtts: 创建文件失败: %w", err)
	}

	written := int64(0)
	for i, seg := range segments {
		n, err := g.fetch(ctx, f, seg, lang, i, len(segments))
		if err != nil {
			f.Close()
			os.Remove(path)
			return err
		}
		written += n
	}

	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("[tts] gtts: 写入文件失败: %w", err)
	}

	logger.Debugf("[tts] gtts: 收到 %d 字节 MP3 数据", written)
	return nil
}

// fetch 请求一个片段的音频并追加写入 w。
func (g *GoogleEngine) fetch(ctx context.Context, w io.Writer, seg string, lang speech.Language, idx, total int) (int64, error) {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("q", seg)
	q.Set("tl", string(lang))
	q.Set("total", strconv.Itoa(total))
	q.Set("idx", strconv.Itoa(idx))
	q.Set("textlen", strconv.Itoa(len([]rune(seg))))
	q.Set("client", "tw-ob")
	q.Set("ttsspeed", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/translate_tts?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("[tts] gtts: 创建请求失败: %w", err)
	}
	req.Header.Set("User-Agent", googleUserAgent)
	req.Header.Set("Referer", g.baseURL+"/")

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("[tts] gtts: 请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return 0, fmt.Errorf("[tts] gtts: 第 %d/%d 段返回 HTTP %d: %s", idx+1, total, resp.StatusCode, body)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("[tts] gtts: 读取音频失败: %w", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("[tts] gtts: 第 %d/%d 段未收到音频数据", idx+1, total)
	}
	return n, nil
}
