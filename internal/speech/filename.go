package speech

import (
	"fmt"
	"strings"
	"time"
)

// DefaultFilePrefix 是输出文件名的默认前缀。
const DefaultFilePrefix = "tekross_voice"

// timestampLayout 对应 %Y%m%d_%H%M%S，精度到秒。
const timestampLayout = "20060102_150405"

// FileName 生成输出文件名：
// {prefix}_{language}_{gender}_{speed}x_{timestamp}.mp3，
// 例如 tekross_voice_en_female_1_25x_20250101_120000.mp3。
func FileName(prefix string, req Request, at time.Time) string {
	if prefix == "" {
		prefix = DefaultFilePrefix
	}
	speed := strings.ReplaceAll(FormatSpeed(req.Speed), ".", "_")
	return fmt.Sprintf("%s_%s_%s_%sx_%s.mp3",
		prefix,
		req.Language,
		strings.ToLower(string(req.Gender)),
		speed,
		at.Format(timestampLayout),
	)
}
