package narrator

import (
	"errors"
	"fmt"

	"github.com/tcross/narrator/internal/speech"
)

// ErrSynthesisFailed 表示后端合成失败，没有可用的音频。
var ErrSynthesisFailed = errors.New("speech synthesis failed")

// DegradedError 表示变速处理失败，但正常语速的音频已写入 Path。
// 调用方应当把它当作提示而不是致命错误，仍然提供该文件。
type DegradedError struct {
	Path  string
	Speed float64
	Cause error
}

// Error 实现 error 接口。
func (e *DegradedError) Error() string {
	return fmt.Sprintf("[narrator] %sx 变速失败（可能未安装 ffmpeg），已输出正常语速音频 %s: %v",
		speech.FormatSpeed(e.Speed), e.Path, e.Cause)
}

// Unwrap 返回变速失败的原因。
func (e *DegradedError) Unwrap() error {
	return e.Cause
}

// IsDegraded 报告 err 是否为降级结果。
func IsDegraded(err error) bool {
	var d *DegradedError
	return errors.As(err, &d)
}
