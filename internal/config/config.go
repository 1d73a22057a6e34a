package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tcross/narrator/internal/speech"
)

// Config 是 narrator 的顶层配置结构。
type Config struct {
	Output  OutputConfig  `yaml:"output"`
	Voices  VoicesConfig  `yaml:"voices"`
	Edge    EdgeConfig    `yaml:"edge"`
	GTTS    GTTSConfig    `yaml:"gtts"`
	Tempo   TempoConfig   `yaml:"tempo"`
	Server  ServerConfig  `yaml:"server"`
	History HistoryConfig `yaml:"history"`
	Log     LogConfig     `yaml:"log"`
}

// OutputConfig 输出文件配置。
type OutputConfig struct {
	Dir    string `yaml:"dir"`
	Prefix string `yaml:"prefix"`
}

// VoicesConfig 覆盖内置音色，为空的项保持默认。
type VoicesConfig struct {
	EN GenderVoices `yaml:"en"`
	JA GenderVoices `yaml:"ja"`
}

// GenderVoices 同一语言下的男女音色。
type GenderVoices struct {
	Female string `yaml:"female"`
	Male   string `yaml:"male"`
}

// EdgeConfig Edge TTS 配置。
type EdgeConfig struct {
	// ReceiveTimeout 单次流式合成的最长时间（秒），0 表示使用默认值。
	ReceiveTimeout int    `yaml:"receive_timeout"`
	// Proxy 连接 Edge 服务使用的 HTTP 代理，留空直连。
	Proxy          string `yaml:"proxy"`
}

// GTTSConfig Google 翻译 TTS 配置。
type GTTSConfig struct {
	BaseURL string `yaml:"base_url"`
	// Timeout 单个 HTTP 请求超时（秒）。
	Timeout int `yaml:"timeout"`
}

// TempoConfig 变速后处理配置。
type TempoConfig struct {
	// Encoder 是 MP3 编码器可执行文件，默认 ffmpeg。
	Encoder string `yaml:"encoder"`
	Bitrate string `yaml:"bitrate"`
}

// ServerConfig HTTP 服务配置。
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// HistoryConfig 生成记录配置。
type HistoryConfig struct {
	Enabled *bool  `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// Load 读取 YAML 配置文件并返回 Config。
// 支持 ${VAR_NAME} 形式的环境变量展开。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}

	expanded := os.Expand(string(data), os.Getenv)

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}

	setDefaults(cfg)
	return cfg, nil
}

// LoadOrDefault 与 Load 相同，但文件不存在时返回默认配置。
// path 为空时直接返回默认配置。
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Default 返回全部使用默认值的配置。
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// HistoryEnabled 报告是否记录生成历史，未配置时默认开启。
func (c *Config) HistoryEnabled() bool {
	return c.History.Enabled == nil || *c.History.Enabled
}

// VoiceOverrides 将配置中的音色转换为音色目录的覆盖项。
func (c *Config) VoiceOverrides() []speech.Voice {
	return []speech.Voice{
		{Language: speech.English, Gender: speech.Female, ID: c.Voices.EN.Female},
		{Language: speech.English, Gender: speech.Male, ID: c.Voices.EN.Male},
		{Language: speech.Japanese, Gender: speech.Female, ID: c.Voices.JA.Female},
		{Language: speech.Japanese, Gender: speech.Male, ID: c.Voices.JA.Male},
	}
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "outputs"
	}
	cfg.Output.Dir = expandHome(cfg.Output.Dir)
	if cfg.Output.Prefix == "" {
		cfg.Output.Prefix = speech.DefaultFilePrefix
	}
	if cfg.Edge.ReceiveTimeout == 0 {
		cfg.Edge.ReceiveTimeout = 60
	}
	if cfg.GTTS.BaseURL == "" {
		cfg.GTTS.BaseURL = "https://translate.google.com"
	}
	cfg.GTTS.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.GTTS.BaseURL), "/")
	if cfg.GTTS.Timeout == 0 {
		cfg.GTTS.Timeout = 30
	}
	if cfg.Tempo.Encoder == "" {
		cfg.Tempo.Encoder = "ffmpeg"
	}
	if cfg.Tempo.Bitrate == "" {
		cfg.Tempo.Bitrate = "128k"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8501"
	}
	if cfg.History.DBPath == "" {
		cfg.History.DBPath = filepath.Join(cfg.Output.Dir, "history.db")
	}
	cfg.History.DBPath = expandHome(cfg.History.DBPath)
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	cfg.Log.File = expandHome(cfg.Log.File)
}

// expandHome 将 ~/ 替换为用户主目录，Go 不会自动展开。
func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		return p
	}
	return filepath.Join(home, p[2:])
}
