package speech

import (
	"fmt"
	"math"
)

// RateString 将语速倍率转换为 Edge TTS 的 rate 参数。
// 1.0→"+0%"，1.25→"+25%"，0.75→"-25%"。
// 零偏差必须带正号，后端拒绝不带符号的 "0%"。
func RateString(x float64) string {
	pct := int(math.Round((x - 1.0) * 100))
	switch {
	case pct > 0:
		return fmt.Sprintf("+%d%%", pct)
	case pct < 0:
		return fmt.Sprintf("%d%%", pct)
	default:
		return "+0%"
	}
}
