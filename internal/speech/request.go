package speech

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// 输入错误。只在外层（CLI 参数、HTTP 表单）解析时产生，核心逻辑不会构造非法请求。
var (
	ErrEmptyText       = errors.New("text cannot be empty")
	ErrInvalidLanguage = errors.New("unsupported language")
	ErrInvalidGender   = errors.New("unsupported voice gender")
	ErrInvalidSpeed    = errors.New("unsupported speed")
	ErrInvalidEngine   = errors.New("unsupported engine")
)

// Language 是旁白语言。
type Language string

const (
	English  Language = "en"
	Japanese Language = "ja"
)

// Gender 是说话人性别。
type Gender string

const (
	Female Gender = "Female"
	Male   Gender = "Male"
)

// Engine 标识合成后端。
type Engine string

const (
	// EngineEdge 主后端：Edge TTS，支持语速参数。
	EngineEdge Engine = "edge"
	// EngineGoogle 备用后端：Google 翻译 TTS，只有正常语速，变速靠后处理近似。
	EngineGoogle Engine = "gtts"
)

// SpeedOptions 是允许的语速倍率，按界面展示顺序排列。
var SpeedOptions = []float64{0.5, 0.75, 1.0, 1.25, 1.5}

// DefaultSpeed 是默认语速。
const DefaultSpeed = 1.0

// DefaultTexts 是各语言的默认示例文本。
var DefaultTexts = map[Language]string{
	English:  "The development of a new drug takes immense time and substantial financial investment.",
	Japanese: "新薬の開発には多大な時間と大きな投資が必要です。",
}

// Request 描述一次合成请求。按值传递，构造后不再修改。
type Request struct {
	Text     string
	Language Language
	Gender   Gender
	Speed    float64
	Engine   Engine
}

// Validate 检查请求是否合法。空白文本返回 ErrEmptyText。
func (r Request) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return ErrEmptyText
	}
	if r.Language != English && r.Language != Japanese {
		return fmt.Errorf("%w: %q", ErrInvalidLanguage, r.Language)
	}
	if r.Gender != Female && r.Gender != Male {
		return fmt.Errorf("%w: %q", ErrInvalidGender, r.Gender)
	}
	if !ValidSpeed(r.Speed) {
		return fmt.Errorf("%w: %v", ErrInvalidSpeed, r.Speed)
	}
	if r.Engine != EngineEdge && r.Engine != EngineGoogle {
		return fmt.Errorf("%w: %q", ErrInvalidEngine, r.Engine)
	}
	return nil
}

// IsNormalSpeed 报告语速是否为 1.0。
func IsNormalSpeed(x float64) bool {
	return math.Abs(x-1.0) < 1e-6
}

// ValidSpeed 报告 x 是否属于 SpeedOptions。
func ValidSpeed(x float64) bool {
	for _, s := range SpeedOptions {
		if math.Abs(s-x) < 1e-6 {
			return true
		}
	}
	return false
}

// ParseLanguage 解析语言，接受语言代码或界面上的名称。
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "en", "english":
		return English, nil
	case "ja", "jp", "japanese", "日本語":
		return Japanese, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidLanguage, s)
}

// ParseGender 解析性别，大小写不敏感。
func ParseGender(s string) (Gender, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "female", "f":
		return Female, nil
	case "male", "m":
		return Male, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidGender, s)
}

// ParseEngine 解析后端名称。
func ParseEngine(s string) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "edge", "edge-tts", "primary":
		return EngineEdge, nil
	case "gtts", "google", "secondary":
		return EngineGoogle, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEngine, s)
}

// ParseSpeed 解析语速，允许 "1.25"、"1.25x"、"1.25×" 这样的写法。
// 不在 SpeedOptions 中的值返回 ErrInvalidSpeed。
func ParseSpeed(s string) (float64, error) {
	v := strings.TrimSpace(s)
	v = strings.TrimSuffix(v, "×")
	v = strings.TrimSuffix(strings.TrimSuffix(v, "x"), "X")
	x, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSpeed, s)
	}
	if !ValidSpeed(x) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSpeed, s)
	}
	return x, nil
}

// FormatSpeed 按 "1.0"、"0.5"、"1.25" 的形式输出语速，整数倍也保留一位小数。
func FormatSpeed(x float64) string {
	s := strconv.FormatFloat(x, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
